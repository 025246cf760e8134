package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/Owill27/livekit/internal/domain"
)

// CallLedger tracks in-flight calls and keeps finished ones around for a
// bounded retention window. Non-terminal calls live in the active map;
// a terminal transition moves the record into the TTL history.
type CallLedger struct {
	mu      sync.Mutex
	active  map[string]*domain.Call
	history *cache.Cache
}

func NewCallLedger(retention time.Duration) *CallLedger {
	return &CallLedger{
		active:  make(map[string]*domain.Call),
		history: cache.New(retention, retention),
	}
}

// FindActive returns the non-terminal call ringing or running against the
// receiver, if any.
func (l *CallLedger) FindActive(receiverID string) (domain.Call, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, call := range l.active {
		if call.Receiver.ID == receiverID {
			return *call, true
		}
	}
	return domain.Call{}, false
}

// FindByID returns the call with the given id, searching in-flight calls
// first and retained history second.
func (l *CallLedger) FindByID(callID string) (domain.Call, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if call, ok := l.active[callID]; ok {
		return *call, nil
	}
	if cached, ok := l.history.Get(callID); ok {
		return cached.(domain.Call), nil
	}
	return domain.Call{}, domain.NotFoundError{Resource: "call"}
}

// ActiveFor returns every non-terminal call the user participates in.
func (l *CallLedger) ActiveFor(userID string) []domain.Call {
	l.mu.Lock()
	defer l.mu.Unlock()

	var calls []domain.Call
	for _, call := range l.active {
		if call.Involves(userID) {
			calls = append(calls, *call)
		}
	}
	return calls
}

// Create allocates a new DIALLING call between the two snapshots. A user
// already holding a non-terminal call, in either role, makes the request
// conflict.
func (l *CallLedger) Create(caller, receiver domain.User) (domain.Call, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, call := range l.active {
		if call.Involves(receiver.ID) {
			return domain.Call{}, domain.ConflictError{Reason: "receiver busy"}
		}
		if call.Involves(caller.ID) {
			return domain.Call{}, domain.ConflictError{Reason: "caller busy"}
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.Call{}, err
	}

	call := &domain.Call{
		ID:       id.String(),
		Caller:   caller,
		Receiver: receiver,
		Status:   domain.CallStatusDialling,
	}
	l.active[call.ID] = call
	return *call, nil
}

// UpdateStatus applies a state transition to the call. Unknown ids fail
// with NotFound; transitions out of a terminal state, or otherwise
// disallowed ones, fail with Conflict and leave the record untouched.
func (l *CallLedger) UpdateStatus(callID string, next domain.CallStatus) (domain.Call, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	call, ok := l.active[callID]
	if !ok {
		if cached, found := l.history.Get(callID); found {
			done := cached.(domain.Call)
			return done, domain.ConflictError{
				Reason: fmt.Sprintf("call already %s", done.Status),
			}
		}
		return domain.Call{}, domain.NotFoundError{Resource: "call"}
	}

	if !call.Status.CanTransition(next) {
		return *call, domain.ConflictError{
			Reason: fmt.Sprintf("call is %s, cannot become %s", call.Status, next),
		}
	}

	call.Status = next
	if next.Terminal() {
		delete(l.active, callID)
		l.history.Set(callID, *call, cache.DefaultExpiration)
	}
	return *call, nil
}
