package session

import (
	"fmt"
	"sync"
)

// Band identifies one of the three disjoint port ranges.
type Band int

const (
	BandDebug Band = iota
	BandVNC
	BandDisplay
)

// String returns the band name for logs and errors.
func (b Band) String() string {
	switch b {
	case BandDebug:
		return "debug"
	case BandVNC:
		return "vnc"
	case BandDisplay:
		return "display"
	default:
		return "unknown"
	}
}

// Range is a half-open numeric band [Start, Start+Size).
type Range struct {
	Start int
	Size  int
}

// Contains reports whether port falls inside the range.
func (r Range) Contains(port int) bool {
	return port >= r.Start && port < r.Start+r.Size
}

// Allocator hands out free numbers from the debug, VNC, and display bands.
// A number is reserved at most once across its band until released.
type Allocator struct {
	mu    sync.Mutex
	bands map[Band]*band
}

type band struct {
	rng      Range
	reserved map[int]bool
}

// NewAllocator creates an allocator over the three configured bands.
func NewAllocator(debug, vnc, display Range) *Allocator {
	return &Allocator{
		bands: map[Band]*band{
			BandDebug:   {rng: debug, reserved: make(map[int]bool)},
			BandVNC:     {rng: vnc, reserved: make(map[int]bool)},
			BandDisplay: {rng: display, reserved: make(map[int]bool)},
		},
	}
}

// Allocate reserves and returns the lowest free number in the band.
// Returns ErrExhausted when every number in the band is reserved.
func (a *Allocator) Allocate(b Band) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bd := a.bands[b]
	for port := bd.rng.Start; port < bd.rng.Start+bd.rng.Size; port++ {
		if !bd.reserved[port] {
			bd.reserved[port] = true
			return port, nil
		}
	}
	return 0, fmt.Errorf("%s band %d-%d: %w", b, bd.rng.Start, bd.rng.Start+bd.rng.Size-1, ErrExhausted)
}

// Reserve marks an exact number as taken. Used when a container reports a
// negotiated port that differs from the one handed to the launcher.
// Returns ErrPortConflict if the number is already reserved.
func (a *Allocator) Reserve(b Band, port int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	bd := a.bands[b]
	if bd.reserved[port] {
		return fmt.Errorf("%s port %d: %w", b, port, ErrPortConflict)
	}
	bd.reserved[port] = true
	return nil
}

// Release clears a reservation. Releasing an unreserved or zero number is
// a no-op, never an error.
func (a *Allocator) Release(b Band, port int) {
	if port == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.bands[b].reserved, port)
}

// Reserved reports whether the number is currently taken in the band.
func (a *Allocator) Reserved(b Band, port int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bands[b].reserved[port]
}
