package session

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Registry is the authoritative in-memory map of session id -> Record.
// It owns the port allocator so that record transitions and reservation
// changes happen under one lock: no two live records ever share a VNC
// port, and no port is released while its record is still live.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Record
	ports    *Allocator
}

// NewRegistry creates an empty registry over the given allocator.
func NewRegistry(ports *Allocator) *Registry {
	return &Registry{
		sessions: make(map[string]*Record),
		ports:    ports,
	}
}

// AllocatePorts reserves one port from each band for a new session.
// On failure every partial reservation is rolled back.
func (r *Registry) AllocatePorts() (debug, vnc, display int, err error) {
	if debug, err = r.ports.Allocate(BandDebug); err != nil {
		return 0, 0, 0, err
	}
	if vnc, err = r.ports.Allocate(BandVNC); err != nil {
		r.ports.Release(BandDebug, debug)
		return 0, 0, 0, err
	}
	if display, err = r.ports.Allocate(BandDisplay); err != nil {
		r.ports.Release(BandDebug, debug)
		r.ports.Release(BandVNC, vnc)
		return 0, 0, 0, err
	}
	return debug, vnc, display, nil
}

// ReleasePorts clears the reservations held by a record. Idempotent.
func (r *Registry) ReleasePorts(rec Record) {
	r.ports.Release(BandDebug, rec.DebugPort)
	r.ports.Release(BandVNC, rec.VNCPort)
	r.ports.Release(BandDisplay, displayNumber(rec.Display))
}


// Add inserts a record. The caller must already hold reservations for the
// record's ports.
func (r *Registry) Add(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := rec
	r.sessions[rec.ID] = &stored
}

// Get returns a copy of the record, so callers never observe concurrent
// mutations.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.sessions[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Running returns the record only when the session is confirmed Running.
// This is the lookup the bridge uses before dialing upstream.
func (r *Registry) Running(id string) (Record, bool) {
	rec, ok := r.Get(id)
	if !ok || rec.State != StateRunning {
		return Record{}, false
	}
	return rec, true
}

// SetState transitions a record's state in place.
func (r *Registry) SetState(id string, state State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[id]
	if !ok {
		return false
	}
	rec.State = state
	return true
}

// Remove deletes a record and releases its ports. Returns the removed
// record; removing an unknown id is a no-op.
func (r *Registry) Remove(id string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[id]
	if !ok {
		return Record{}, false
	}
	delete(r.sessions, id)
	removed := *rec
	removed.State = StateStopped
	r.ReleasePorts(removed)
	return removed, true
}

// Promote replaces a provisional Starting record with its confirmed one,
// keyed by the container id the runtime assigned. When the confirmed VNC
// port differs from the provisional one, the reservation moves to the
// actual port; ErrPortConflict means another session already holds it.
// An absent provisional record means a stop won the race while the
// create was in flight: the record's ports are already released and may
// belong to someone else, so nothing is inserted or reserved, and
// ErrNotFound is returned.
func (r *Registry) Promote(provisionalID string, confirmed Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prov, ok := r.sessions[provisionalID]
	if !ok {
		return fmt.Errorf("provisional session %s: %w", provisionalID, ErrNotFound)
	}
	if confirmed.VNCPort != prov.VNCPort {
		if err := r.ports.Reserve(BandVNC, confirmed.VNCPort); err != nil {
			return err
		}
		r.ports.Release(BandVNC, prov.VNCPort)
	}
	delete(r.sessions, provisionalID)
	stored := confirmed
	r.sessions[confirmed.ID] = &stored
	return nil
}

// List returns copies of all records ordered by creation time.
func (r *Registry) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.sessions))
	for _, rec := range r.sessions {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of tracked records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ReplaceResult reports what a discovery replacement changed.
type ReplaceResult struct {
	Added     []Record
	Removed   []Record
	Conflicts []Record
}

// ReplaceDiscovered swaps the discovery-sourced subset of the registry for
// the incoming set, atomically. Provisional Starting records are owned by
// an in-flight create and are never touched. A discovered record whose VNC
// port is already reserved by another session is reported as a conflict
// and skipped rather than silently overwriting the reservation.
func (r *Registry) ReplaceDiscovered(incoming []Record) ReplaceResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result ReplaceResult

	byID := make(map[string]Record, len(incoming))
	for _, rec := range incoming {
		byID[rec.ID] = rec
	}

	// Drop confirmed records the runtime no longer reports.
	for id, rec := range r.sessions {
		if rec.State == StateStarting {
			continue
		}
		if _, ok := byID[id]; !ok {
			delete(r.sessions, id)
			removed := *rec
			removed.State = StateStopped
			r.ReleasePorts(removed)
			result.Removed = append(result.Removed, removed)
		}
	}

	for _, rec := range incoming {
		if existing, ok := r.sessions[rec.ID]; ok {
			// Already tracked; adopt a changed VNC port if possible.
			if existing.VNCPort != rec.VNCPort {
				if err := r.ports.Reserve(BandVNC, rec.VNCPort); err != nil {
					result.Conflicts = append(result.Conflicts, rec)
					continue
				}
				r.ports.Release(BandVNC, existing.VNCPort)
				existing.VNCPort = rec.VNCPort
			}
			existing.State = StateRunning
			continue
		}
		if err := r.ports.Reserve(BandVNC, rec.VNCPort); err != nil {
			result.Conflicts = append(result.Conflicts, rec)
			continue
		}
		stored := rec
		stored.State = StateRunning
		r.sessions[stored.ID] = &stored
		result.Added = append(result.Added, stored)
	}

	return result
}

// displayNumber parses ":99" into 99. Zero means no display reservation.
func displayNumber(display string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(display, ":"))
	if err != nil {
		return 0
	}
	return n
}

// FormatDisplay renders a display number as an X11 display string.
func FormatDisplay(n int) string {
	return ":" + strconv.Itoa(n)
}
