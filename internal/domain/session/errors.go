package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a session id is not registered.
	ErrNotFound = errors.New("session not found")

	// ErrExhausted is returned when a port band has no free ports left.
	ErrExhausted = errors.New("port range exhausted")

	// ErrPortConflict is returned when a discovered session reports a VNC
	// port that is already reserved by another tracked session.
	ErrPortConflict = errors.New("vnc port conflict")
)

// IsNotFound reports whether the error indicates a missing session.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// LaunchError is a failed create. It preserves the launcher's captured
// output so the caller can diagnose why the container never came up.
type LaunchError struct {
	Stdout string
	Stderr string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch failed: %v", e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// IsLaunchFailed reports whether the error is a LaunchError.
func IsLaunchFailed(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}

// DiscoveryError is a failed runtime query. The registry is left at its
// last-known-good state when this is returned.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery query failed: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}
