package manager

import (
	"github.com/loykin/procman/internal/event"
	"github.com/loykin/procman/internal/process"
)

// Handle is the OS-level view of a running child used by a control block.
// *process.Process is the production implementation.
type Handle interface {
	PID() int
	// Read is a bounded, non-blocking read; 0 bytes means nothing buffered.
	Read(s event.Stream, buf []byte) (int, error)
	// TryWait reports the exit status without blocking.
	TryWait() (event.ExitStatus, bool, error)
	Terminate() error
	Close() error
}

type spawnFunc func(spec process.Spec, env []string) (Handle, error)

func spawnProcess(spec process.Spec, env []string) (Handle, error) {
	p, err := process.Start(spec, env)
	if err != nil {
		return nil, err
	}
	return p, nil
}
