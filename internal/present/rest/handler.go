package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Owill27/livekit/internal/domain"
	"github.com/Owill27/livekit/internal/present/rest/presenter"
	"github.com/Owill27/livekit/internal/service"
)

type Handler struct {
	presence  *service.PresenceService
	signaling *service.SignalingService
	tokens    *service.TokenService
}

func NewHandler(
	presence *service.PresenceService,
	signaling *service.SignalingService,
	tokens *service.TokenService,
) *Handler {
	return &Handler{
		presence:  presence,
		signaling: signaling,
		tokens:    tokens,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.handleHealthz)
	e.GET("/token", h.handleToken)
	e.GET("/users", h.handleUsers)
	e.POST("/calls/start", h.handleStartCall)
	e.POST("/calls/answer", h.handleAnswerCall)
	e.POST("/calls/end", h.handleEndCall)
	e.GET("/ws", h.handleSocket)
}

func (h *Handler) handleHealthz(c echo.Context) error {
	return presenter.OK(c, echo.Map{"ok": true})
}

func (h *Handler) handleToken(c echo.Context) error {
	ctx := c.Request().Context()

	room := c.QueryParam("room")
	id := c.QueryParam("id")

	token, err := h.tokens.Issue(ctx, room, id)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			return presenter.BadRequest(c, err)
		}
		return presenter.InternalError(c, err)
	}

	return presenter.OK(c, echo.Map{"token": token})
}

func (h *Handler) handleUsers(c echo.Context) error {
	return presenter.OK(c, h.presence.List())
}

type startCallRequest struct {
	CallerID   string `json:"callerId"`
	ReceiverID string `json:"receiverId"`
}

func (h *Handler) handleStartCall(c echo.Context) error {
	ctx := c.Request().Context()

	var req startCallRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	call, err := h.signaling.StartCall(ctx, req.CallerID, req.ReceiverID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return presenter.NotFound(c, err.Error())
		}
		if errors.Is(err, domain.ErrConflict) {
			return presenter.BadRequest(c, err)
		}
		return presenter.InternalError(c, err)
	}

	return presenter.OK(c, call)
}

type answerCallRequest struct {
	CallID string        `json:"callId"`
	Answer domain.Answer `json:"answer"`
}

func (h *Handler) handleAnswerCall(c echo.Context) error {
	ctx := c.Request().Context()

	var req answerCallRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	call, err := h.signaling.AnswerCall(ctx, req.CallID, req.Answer)
	if err != nil {
		// the web client treats any call-control failure as a bad
		// request, including an unknown call id
		if errors.Is(err, domain.ErrNotFound) ||
			errors.Is(err, domain.ErrConflict) ||
			errors.Is(err, domain.ErrInvalidArgument) {
			return presenter.BadRequest(c, err)
		}
		return presenter.InternalError(c, err)
	}

	return presenter.OK(c, call)
}

type endCallRequest struct {
	CallID string `json:"callId"`
	UserID string `json:"userId"`
}

func (h *Handler) handleEndCall(c echo.Context) error {
	ctx := c.Request().Context()

	var req endCallRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	call, err := h.signaling.EndCall(ctx, req.CallID, req.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
			return presenter.BadRequest(c, err)
		}
		return presenter.InternalError(c, err)
	}

	return presenter.OK(c, call)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type clientMessage struct {
	Type string `json:"type"`
}

func (h *Handler) handleSocket(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}

	id := c.QueryParam("id")
	name := c.QueryParam("name")
	location := c.QueryParam("location")

	if id == "" || name == "" || location == "" {
		slog.Info(
			"rejecting connection with missing params",
			slog.String("module", "socket"),
		)
		reason, _ := json.Marshal(echo.Map{"message": "Missing required params"})
		deadline := time.Now().Add(time.Second)
		_ = ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, string(reason)),
			deadline,
		)
		return ws.Close()
	}

	user := domain.User{ID: id, Name: name, Location: location}
	conn := newSocketConn(ws)
	h.presence.Register(user, conn)

	slog.Info(
		"user connected",
		slog.String("user", user.ID),
		slog.String("module", "socket"),
	)

	h.readLoop(c, user, conn, ws)
	return nil
}

// readLoop pumps inbound frames until the connection dies. Any frame is
// proof of life; PONG is just the canonical reply to our PING. When the
// loop exits the user is unregistered, unless a newer connection already
// took over the id.
func (h *Handler) readLoop(c echo.Context, user domain.User, conn *socketConn, ws *websocket.Conn) {
	ctx := c.Request().Context()

	for {
		var msg clientMessage
		err := ws.ReadJSON(&msg)
		if err != nil {
			wsErr, ok := err.(*websocket.CloseError)
			if ok {
				if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
					slog.Debug(
						"WebSocket closed",
						slog.String("error", wsErr.Error()),
						slog.String("module", "socket"),
					)
				}
			} else {
				slog.Debug(
					"Error reading message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
			}
			break
		}

		h.presence.MarkAlive(user.ID)

		switch msg.Type {
		case domain.EventPong:
			// alive flag already reset above
		default:
			slog.Debug(
				"Unknown message type",
				slog.String("type", msg.Type),
				slog.String("module", "socket"),
			)
		}
	}

	_ = conn.Close()
	if h.presence.Unregister(user.ID, conn) {
		slog.Info(
			"user disconnected",
			slog.String("user", user.ID),
			slog.String("module", "socket"),
		)
		h.signaling.HandleDisconnect(ctx, user.ID)
	}
}
