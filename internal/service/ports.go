package service

import (
	"github.com/Owill27/livekit/internal/domain"
)

// Connection is one persistent, message-oriented channel to a client.
// Send must not block the caller; implementations queue the event and
// report an error only when the queue is full or the channel is gone.
type Connection interface {
	Send(event domain.Event) error
	Close() error
}
