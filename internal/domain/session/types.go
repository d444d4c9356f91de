package session

import "time"

// State describes where a session is in its lifecycle.
type State string

const (
	// StateStarting marks a provisional record owned by an in-flight
	// create. Provisional ids are not yet visible to the runtime, so
	// discovery never touches them.
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// Record is one tracked session. The ID is the container id assigned by
// the runtime, except while Starting, when it is a provisional ulid.
type Record struct {
	ID         string    `json:"id"`
	VNCPort    int       `json:"vnc_port"`
	DebugPort  int       `json:"debug_port,omitempty"`
	Display    string    `json:"display,omitempty"`
	WSEndpoint string    `json:"ws_endpoint,omitempty"`
	State      State     `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
}

// Live reports whether the record still holds its port reservations.
func (r *Record) Live() bool {
	return r.State != StateStopped
}
