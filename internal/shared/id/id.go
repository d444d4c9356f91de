// Package id provides prefixed ULID generation for session and request
// identifiers. Provisional session ids (sess_*) name records owned by an
// in-flight create before the runtime has assigned a container id; the
// prefix keeps them recognizable in logs and guarantees they never
// collide with container ids.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies a provisional session record.
type SessionID string

// RequestID identifies an API request or trace.
type RequestID string

const (
	// SessionPrefix marks provisional session ids.
	SessionPrefix = "sess"
	// RequestPrefix marks request/trace ids.
	RequestPrefix = "req"
)

// Generator generates ULIDs from a guarded entropy source.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the shared generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator(rand.Reader)
	})
	return defaultGenerator
}

// NewGenerator creates a generator over the given entropy source.
// Tests can pass a deterministic reader.
func NewGenerator(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates one ULID.
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string, e.g. "sess_01H...".
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewSessionID generates a provisional session id.
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewRequestID generates a request id.
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// String methods for the id types.
func (id SessionID) String() string { return string(id) }
func (id RequestID) String() string { return string(id) }

// IsProvisional reports whether a session id was generated locally and is
// not yet backed by a runtime container.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, SessionPrefix+"_")
}
