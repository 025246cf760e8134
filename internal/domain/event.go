package domain

// Event types pushed over a user's websocket connection.
const (
	EventIncomingCall = "INCOMING_CALL"
	EventAcceptCall   = "ACCEPT_CALL"
	EventDeclineCall  = "DECLINE_CALL"
	EventEndCall      = "END_CALL"
	EventMissedCall   = "MISSED_CALL"
	EventPing         = "PING"
	EventPong         = "PONG"
)

// Event is a server-to-client push. Call is present on call-control
// events and absent on PING.
type Event struct {
	Type string `json:"type"`
	Call *Call  `json:"call,omitempty"`
}
