package domain

// CallStatus is the state of a call record.
type CallStatus string

const (
	CallStatusDialling CallStatus = "DIALLING"
	CallStatusOngoing  CallStatus = "ONGOING"
	CallStatusEnded    CallStatus = "ENDED"
	CallStatusDeclined CallStatus = "DECLINED"
	CallStatusMissed   CallStatus = "MISSED"
	CallStatusError    CallStatus = "ERROR"
)

// Terminal reports whether no further transition is allowed out of s.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusEnded, CallStatusDeclined, CallStatusMissed, CallStatusError:
		return true
	}
	return false
}

// CanTransition reports whether a call may move from s to next.
//
//	DIALLING -> ONGOING | DECLINED | MISSED | ENDED | ERROR
//	ONGOING  -> ENDED | ERROR
func (s CallStatus) CanTransition(next CallStatus) bool {
	switch s {
	case CallStatusDialling:
		switch next {
		case CallStatusOngoing, CallStatusDeclined, CallStatusMissed, CallStatusEnded, CallStatusError:
			return true
		}
	case CallStatusOngoing:
		switch next {
		case CallStatusEnded, CallStatusError:
			return true
		}
	}
	return false
}

// Answer is the receiver's decision on a ringing call.
type Answer string

const (
	AnswerAccept  Answer = "ACCEPT"
	AnswerDecline Answer = "DECLINE"
)

// Call is one dial attempt between exactly two users. Caller and Receiver
// are snapshots taken at creation time, not live references.
type Call struct {
	ID           string     `json:"id"`
	Caller       User       `json:"caller"`
	Receiver     User       `json:"receiver"`
	Status       CallStatus `json:"status"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// Other returns the participant that is not userID. Falls back to the
// receiver when userID matches neither party.
func (c Call) Other(userID string) User {
	if c.Receiver.ID == userID {
		return c.Caller
	}
	return c.Receiver
}

// Involves reports whether userID is a participant of the call.
func (c Call) Involves(userID string) bool {
	return c.Caller.ID == userID || c.Receiver.ID == userID
}
