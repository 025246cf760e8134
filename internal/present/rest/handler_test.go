package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Owill27/livekit/internal/config"
	"github.com/Owill27/livekit/internal/domain"
	"github.com/Owill27/livekit/internal/service"
)

// --- mocks ---

type stubConn struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *stubConn) Send(event domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *stubConn) Close() error { return nil }

func newTestHandler(lk config.LiveKit) (*echo.Echo, *service.PresenceService) {
	presence := service.NewPresenceService()
	ledger := service.NewCallLedger(time.Minute)
	signaling := service.NewSignalingService(presence, ledger, 0)
	tokens := service.NewTokenService(lk)

	e := echo.New()
	NewHandler(presence, signaling, tokens).RegisterRoutes(e)
	return e, presence
}

func testLiveKitConf() config.LiveKit {
	return config.LiveKit{
		APIKey:    "APIabcdefg",
		APISecret: "0123456789abcdef0123456789abcdef0123456789ab",
		URL:       "wss://livekit.example.com",
		TokenTTL:  config.Duration(time.Minute),
	}
}

func postJSON(e *echo.Echo, path string, payload any) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	res := httptest.NewRecorder()
	e.ServeHTTP(res, req)
	return res
}

// --- handler tests ---

func TestHandleUsers(t *testing.T) {
	e, presence := newTestHandler(testLiveKitConf())

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	res := httptest.NewRecorder()
	e.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status: %d", res.Code)
	}
	if got := strings.TrimSpace(res.Body.String()); got != "[]" {
		t.Errorf("empty registry should serialize as [], got %s", got)
	}

	presence.Register(domain.User{ID: "alice", Name: "Alice", Location: "Lagos"}, &stubConn{})
	presence.Register(domain.User{ID: "bob", Name: "Bob", Location: "Abuja"}, &stubConn{})

	res = httptest.NewRecorder()
	e.ServeHTTP(res, req)

	var users []domain.User
	if err := json.Unmarshal(res.Body.Bytes(), &users); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(users) != 2 || users[0].ID != "alice" || users[1].ID != "bob" {
		t.Errorf("users: %+v", users)
	}
}

func TestHandleStartCall(t *testing.T) {
	e, presence := newTestHandler(testLiveKitConf())
	presence.Register(domain.User{ID: "alice"}, &stubConn{})
	presence.Register(domain.User{ID: "bob"}, &stubConn{})

	res := postJSON(e, "/calls/start", echo.Map{"callerId": "alice", "receiverId": "bob"})
	if res.Code != http.StatusOK {
		t.Fatalf("status: %d, body %s", res.Code, res.Body.String())
	}

	var call domain.Call
	if err := json.Unmarshal(res.Body.Bytes(), &call); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if call.Status != domain.CallStatusDialling || call.Receiver.ID != "bob" {
		t.Errorf("call: %+v", call)
	}

	// receiver busy now
	res = postJSON(e, "/calls/start", echo.Map{"callerId": "alice", "receiverId": "bob"})
	if res.Code != http.StatusBadRequest {
		t.Errorf("busy receiver: got %d, want 400", res.Code)
	}
}

func TestHandleStartCallOffline(t *testing.T) {
	e, presence := newTestHandler(testLiveKitConf())
	presence.Register(domain.User{ID: "alice"}, &stubConn{})

	res := postJSON(e, "/calls/start", echo.Map{"callerId": "alice", "receiverId": "zed"})
	if res.Code != http.StatusNotFound {
		t.Errorf("offline receiver: got %d, want 404", res.Code)
	}

	res = postJSON(e, "/calls/start", echo.Map{"callerId": "zed", "receiverId": "alice"})
	if res.Code != http.StatusNotFound {
		t.Errorf("offline caller: got %d, want 404", res.Code)
	}
}

func TestHandleAnswerAndEnd(t *testing.T) {
	e, presence := newTestHandler(testLiveKitConf())
	presence.Register(domain.User{ID: "alice"}, &stubConn{})
	presence.Register(domain.User{ID: "bob"}, &stubConn{})

	res := postJSON(e, "/calls/answer", echo.Map{"callId": "nope", "answer": "ACCEPT"})
	if res.Code != http.StatusBadRequest {
		t.Errorf("unknown call: got %d, want 400", res.Code)
	}

	res = postJSON(e, "/calls/start", echo.Map{"callerId": "alice", "receiverId": "bob"})
	var call domain.Call
	if err := json.Unmarshal(res.Body.Bytes(), &call); err != nil {
		t.Fatalf("decode: %v", err)
	}

	res = postJSON(e, "/calls/answer", echo.Map{"callId": call.ID, "answer": "MAYBE"})
	if res.Code != http.StatusBadRequest {
		t.Errorf("bad answer: got %d, want 400", res.Code)
	}

	res = postJSON(e, "/calls/answer", echo.Map{"callId": call.ID, "answer": "ACCEPT"})
	if res.Code != http.StatusOK {
		t.Fatalf("accept: got %d, body %s", res.Code, res.Body.String())
	}
	var answered domain.Call
	if err := json.Unmarshal(res.Body.Bytes(), &answered); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if answered.Status != domain.CallStatusOngoing {
		t.Errorf("status: %s", answered.Status)
	}

	res = postJSON(e, "/calls/end", echo.Map{"callId": call.ID, "userId": "alice"})
	if res.Code != http.StatusOK {
		t.Fatalf("end: got %d", res.Code)
	}
	var ended domain.Call
	if err := json.Unmarshal(res.Body.Bytes(), &ended); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ended.Status != domain.CallStatusEnded {
		t.Errorf("status: %s", ended.Status)
	}

	res = postJSON(e, "/calls/end", echo.Map{"callId": "nope", "userId": "alice"})
	if res.Code != http.StatusBadRequest {
		t.Errorf("unknown call: got %d, want 400", res.Code)
	}
}

func TestHandleToken(t *testing.T) {
	e, _ := newTestHandler(testLiveKitConf())

	req := httptest.NewRequest(http.MethodGet, "/token?room=room-1&id=alice", nil)
	res := httptest.NewRecorder()
	e.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status: %d, body %s", res.Code, res.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["token"] == "" {
		t.Error("expected a token")
	}

	req = httptest.NewRequest(http.MethodGet, "/token?id=alice", nil)
	res = httptest.NewRecorder()
	e.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Errorf("missing room: got %d, want 400", res.Code)
	}
}

func TestHandleTokenMisconfigured(t *testing.T) {
	e, _ := newTestHandler(config.LiveKit{})

	req := httptest.NewRequest(http.MethodGet, "/token?room=room-1&id=alice", nil)
	res := httptest.NewRecorder()
	e.ServeHTTP(res, req)
	if res.Code != http.StatusInternalServerError {
		t.Errorf("got %d, want 500", res.Code)
	}
}

// --- websocket integration ---

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
}

func dialSocket(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, query), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return ws
}

func waitForUsers(t *testing.T, srv *httptest.Server, want int) []domain.User {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		res, err := http.Get(srv.URL + "/users")
		if err != nil {
			t.Fatalf("get users: %v", err)
		}
		var users []domain.User
		err = json.NewDecoder(res.Body).Decode(&users)
		res.Body.Close()
		if err != nil {
			t.Fatalf("decode users: %v", err)
		}
		if len(users) == want {
			return users
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d users, stuck at %d", want, len(users))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readEvent(t *testing.T, ws *websocket.Conn) domain.Event {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event domain.Event
	if err := ws.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return event
}

func TestSocketRejectsMissingParams(t *testing.T) {
	e, _ := newTestHandler(testLiveKitConf())
	srv := httptest.NewServer(e)
	defer srv.Close()

	ws := dialSocket(t, srv, "?id=alice&name=Alice") // no location
	defer ws.Close()

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected a close error, got %v", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Errorf("close code: %d", closeErr.Code)
	}
	if !strings.Contains(closeErr.Text, "Missing required params") {
		t.Errorf("close reason: %s", closeErr.Text)
	}
}

func TestSocketCallFlow(t *testing.T) {
	e, _ := newTestHandler(testLiveKitConf())
	srv := httptest.NewServer(e)
	defer srv.Close()

	aliceWS := dialSocket(t, srv, "?id=alice&name=Alice&location=Lagos")
	defer aliceWS.Close()
	waitForUsers(t, srv, 1)
	bobWS := dialSocket(t, srv, "?id=bob&name=Bob&location=Abuja")
	defer bobWS.Close()

	users := waitForUsers(t, srv, 2)
	if users[0].ID != "alice" || users[1].ID != "bob" {
		t.Fatalf("users: %+v", users)
	}

	res, err := http.Post(
		srv.URL+"/calls/start",
		echo.MIMEApplicationJSON,
		strings.NewReader(`{"callerId":"alice","receiverId":"bob"}`),
	)
	if err != nil {
		t.Fatalf("start call: %v", err)
	}
	var call domain.Call
	if err := json.NewDecoder(res.Body).Decode(&call); err != nil {
		t.Fatalf("decode call: %v", err)
	}
	res.Body.Close()

	incoming := readEvent(t, bobWS)
	if incoming.Type != domain.EventIncomingCall || incoming.Call == nil || incoming.Call.ID != call.ID {
		t.Fatalf("incoming event: %+v", incoming)
	}

	res, err = http.Post(
		srv.URL+"/calls/answer",
		echo.MIMEApplicationJSON,
		strings.NewReader(`{"callId":"`+call.ID+`","answer":"ACCEPT"}`),
	)
	if err != nil {
		t.Fatalf("answer call: %v", err)
	}
	res.Body.Close()

	accepted := readEvent(t, aliceWS)
	if accepted.Type != domain.EventAcceptCall || accepted.Call.Status != domain.CallStatusOngoing {
		t.Fatalf("accept event: %+v", accepted)
	}

	res, err = http.Post(
		srv.URL+"/calls/end",
		echo.MIMEApplicationJSON,
		strings.NewReader(`{"callId":"`+call.ID+`","userId":"alice"}`),
	)
	if err != nil {
		t.Fatalf("end call: %v", err)
	}
	res.Body.Close()

	endEvent := readEvent(t, bobWS)
	if endEvent.Type != domain.EventEndCall || endEvent.Call.Status != domain.CallStatusEnded {
		t.Fatalf("end event: %+v", endEvent)
	}
}

func TestSocketDisconnectRemovesUser(t *testing.T) {
	e, _ := newTestHandler(testLiveKitConf())
	srv := httptest.NewServer(e)
	defer srv.Close()

	aliceWS := dialSocket(t, srv, "?id=alice&name=Alice&location=Lagos")
	bobWS := dialSocket(t, srv, "?id=bob&name=Bob&location=Abuja")
	defer bobWS.Close()

	waitForUsers(t, srv, 2)

	aliceWS.Close()
	users := waitForUsers(t, srv, 1)
	if users[0].ID != "bob" {
		t.Errorf("remaining user: %+v", users[0])
	}
}
