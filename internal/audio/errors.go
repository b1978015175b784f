package audio

import (
	"errors"
	"fmt"
)

// Kind identifies the type of signal source behind a session
type Kind string

const (
	KindMicrophone Kind = "microphone"
	KindFile       Kind = "file"
)

// Session start failures
var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrDevice           = errors.New("audio device error")
	ErrDecode           = errors.New("audio decode error")
)

var (
	// ErrNotLive is returned when raw capture is requested from a file session
	ErrNotLive = errors.New("session is not a live capture")
	// ErrSessionStopped is returned when subscribing to a stopped session
	ErrSessionStopped = errors.New("session stopped")
)

// SourceError describes a failure to acquire a signal source
type SourceError struct {
	Kind Kind
	Name string // file name, empty for the microphone
	Err  error
}

func (e *SourceError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s source %q: %v", e.Kind, e.Name, e.Err)
	}
	return fmt.Sprintf("%s source: %v", e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// classified pairs a sentinel with the underlying cause so errors.Is matches both
type classified struct {
	sentinel error
	cause    error
}

func (c *classified) Error() string {
	return fmt.Sprintf("%v: %v", c.sentinel, c.cause)
}

func (c *classified) Unwrap() []error {
	return []error{c.sentinel, c.cause}
}

func classify(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	if errors.Is(cause, sentinel) {
		return cause
	}
	return &classified{sentinel: sentinel, cause: cause}
}
