package history

import (
	"context"
	"errors"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventRegistered EventType = "registered"
	EventExited     EventType = "exited"
	EventFailed     EventType = "failed"
	EventStopped    EventType = "stopped"
	EventRemoved    EventType = "removed"
)

// Record identifies one registration of a supervised process.
type Record struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	// ExitCode is set only for EventExited; -1 means killed by a signal.
	ExitCode *int   `json:"exit_code,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Fanout sends e to every sink and joins their errors.
func Fanout(ctx context.Context, sinks []Sink, e Event) error {
	var errs []error
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that implements io.Closer.
func Close(sinks []Sink) error {
	var errs []error
	for _, s := range sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// ExitCodeValue returns the exit code as a database/sql friendly value (nil when unset).
func ExitCodeValue(r Record) any {
	if r.ExitCode == nil {
		return nil
	}
	return *r.ExitCode
}

// NullString maps empty strings to SQL NULL.
func NullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
