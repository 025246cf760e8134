package rest

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Owill27/livekit/internal/domain"
)

const sendQueueSize = 32

// socketConn adapts a gorilla websocket to the service Connection port.
// Outbound events go through a buffered queue drained by a single writer
// goroutine, so pushes never block a control request and stay ordered per
// connection.
type socketConn struct {
	ws   *websocket.Conn
	send chan domain.Event
	done chan struct{}
	once sync.Once
}

func newSocketConn(ws *websocket.Conn) *socketConn {
	c := &socketConn{
		ws:   ws,
		send: make(chan domain.Event, sendQueueSize),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *socketConn) Send(event domain.Event) error {
	select {
	case <-c.done:
		return fmt.Errorf("connection closed")
	case c.send <- event:
		return nil
	default:
		return fmt.Errorf("send queue full")
	}
}

func (c *socketConn) Close() error {
	c.once.Do(func() {
		close(c.done)
	})
	return c.ws.Close()
}

func (c *socketConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case event := <-c.send:
			if err := c.ws.WriteJSON(event); err != nil {
				slog.Debug(
					"Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				_ = c.Close()
				return
			}
		}
	}
}
