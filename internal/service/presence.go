package service

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/Owill27/livekit/internal/domain"
)

type session struct {
	user  domain.User
	conn  Connection
	alive bool
	seq   int64
}

// PresenceService is the registry of online users. It owns the mapping
// from user id to connection and is the only component allowed to close
// registered connections.
type PresenceService struct {
	mu       sync.Mutex
	sessions map[string]*session
	seq      int64
}

func NewPresenceService() *PresenceService {
	return &PresenceService{
		sessions: make(map[string]*session),
	}
}

// Register installs a session for the user, replacing and closing any
// previous connection registered under the same id. One live connection
// per user.
func (s *PresenceService) Register(user domain.User, conn Connection) {
	s.mu.Lock()
	prev, replaced := s.sessions[user.ID]
	s.seq++
	s.sessions[user.ID] = &session{
		user:  user,
		conn:  conn,
		alive: true,
		seq:   s.seq,
	}
	s.mu.Unlock()

	if replaced {
		slog.Info(
			"replacing existing connection",
			slog.String("user", user.ID),
			slog.String("module", "presence"),
		)
		if err := prev.conn.Close(); err != nil {
			slog.Debug(
				"closing replaced connection",
				slog.String("error", err.Error()),
				slog.String("module", "presence"),
			)
		}
	}
}

// Unregister removes the user's session if conn is still the registered
// connection. It reports whether the entry was removed, so a stale socket
// that was already replaced cannot evict a fresh registration. A nil conn
// removes unconditionally.
func (s *PresenceService) Unregister(userID string, conn Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	if conn != nil && sess.conn != conn {
		return false
	}
	delete(s.sessions, userID)
	return true
}

// Lookup returns the user registered under id.
func (s *PresenceService) Lookup(userID string) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return domain.User{}, false
	}
	return sess.user, true
}

// List returns all online users in registration order.
func (s *PresenceService) List() []domain.User {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].seq < sessions[j].seq
	})

	users := make([]domain.User, 0, len(sessions))
	for _, sess := range sessions {
		users = append(users, sess.user)
	}
	return users
}

// MarkAlive records proof of life for the user's connection. Any inbound
// traffic counts, not only PONG.
func (s *PresenceService) MarkAlive(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		sess.alive = true
	}
}

// Send pushes an event to the user's connection. The caller decides what
// to do with a failure; the registry itself never retries.
func (s *PresenceService) Send(userID string, event domain.Event) error {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	s.mu.Unlock()

	if !ok {
		return domain.NotFoundError{Resource: "connection for " + userID}
	}
	return sess.conn.Send(event)
}

// Sweep runs one liveness pass: sessions that produced no traffic since
// the previous pass are removed and their connections closed; survivors
// are marked unresponsive and sent a PING. Returns the evicted users.
func (s *PresenceService) Sweep() []domain.User {
	s.mu.Lock()
	var evicted []domain.User
	var stale []Connection
	for id, sess := range s.sessions {
		if !sess.alive {
			evicted = append(evicted, sess.user)
			stale = append(stale, sess.conn)
			delete(s.sessions, id)
			continue
		}
		sess.alive = false
		if err := sess.conn.Send(domain.Event{Type: domain.EventPing}); err != nil {
			slog.Debug(
				"ping push failed",
				slog.String("user", id),
				slog.String("error", err.Error()),
				slog.String("module", "presence"),
			)
		}
	}
	s.mu.Unlock()

	for _, conn := range stale {
		_ = conn.Close()
	}
	return evicted
}
