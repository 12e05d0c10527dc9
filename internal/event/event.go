package event

import (
	"fmt"
	"strconv"
	"syscall"
)

// Stream identifies one of the captured output streams of a child process.
type Stream int

const (
	Stdout Stream = iota + 1
	Stderr
)

func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// ErrorKind classifies failures reported as Error events.
type ErrorKind int

const (
	// ReadFailure: reading an output stream failed. Non-fatal.
	ReadFailure ErrorKind = iota + 1
	// WaitFailure: the liveness query failed. Terminal for the process loop.
	WaitFailure
	// HandlingFailure: the interceptor returned an error or panicked. Non-fatal.
	HandlingFailure
)

func (k ErrorKind) String() string {
	switch k {
	case ReadFailure:
		return "read_failure"
	case WaitFailure:
		return "wait_failure"
	case HandlingFailure:
		return "handling_failure"
	default:
		return "unknown"
	}
}

// Event is one observation about a supervised process. The concrete types are
// Output, Exited and Error; use a type switch to inspect them.
type Event interface {
	// Terminal reports whether no further events follow this one.
	Terminal() bool
	String() string
	sealed()
}

// Output is a single non-empty read from one of the process streams.
type Output struct {
	Stream Stream
	Data   []byte
}

// NewOutput copies p so the event does not alias a reusable read buffer.
func NewOutput(s Stream, p []byte) Output {
	b := make([]byte, len(p))
	copy(b, p)
	return Output{Stream: s, Data: b}
}

// Len is the number of bytes carried by the event.
func (o Output) Len() int { return len(o.Data) }

func (o Output) Terminal() bool { return false }

func (o Output) String() string {
	return fmt.Sprintf("Output(%s, %q, %d)", o.Stream, o.Data, len(o.Data))
}

func (Output) sealed() {}

// ExitStatus describes how a process finished.
type ExitStatus struct {
	Code   int            // exit code; -1 when terminated by a signal
	Signal syscall.Signal // terminating signal, 0 when exited normally
}

// Success reports a normal exit with code 0.
func (s ExitStatus) Success() bool { return s.Signal == 0 && s.Code == 0 }

func (s ExitStatus) String() string {
	if s.Signal != 0 {
		return "signal: " + s.Signal.String()
	}
	return "exit status " + strconv.Itoa(s.Code)
}

// Exited is produced exactly once per process, as its last event.
type Exited struct {
	Status ExitStatus
}

func (e Exited) Terminal() bool { return true }

func (e Exited) String() string { return "Exited(" + e.Status.String() + ")" }

func (Exited) sealed() {}

// Error reports a supervision failure together with its underlying cause.
// Error also satisfies the error interface.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e Error) Terminal() bool { return e.Kind == WaitFailure }

func (e Error) String() string { return "Error(" + e.Error() + ")" }

func (e Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e Error) Unwrap() error { return e.Err }

func (Error) sealed() {}

// KindOf returns a short label for ev, suitable for metrics and logs.
func KindOf(ev Event) string {
	switch e := ev.(type) {
	case Output:
		return "output"
	case Exited:
		return "exited"
	case Error:
		return e.Kind.String()
	default:
		return "unknown"
	}
}
