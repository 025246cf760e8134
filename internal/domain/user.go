package domain

// User is an online participant. Identity is client-asserted at handshake
// time; the presence registry is keyed by ID.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}
