package process

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/loykin/procman/internal/event"
)

// Process is the OS handle of one running child: read ends of its stdout and
// stderr pipes, a non-blocking exit query and a terminate capability.
//
// Once Terminate has been called, TryWait must not be used; the child is
// reaped in the background.
type Process struct {
	mu          sync.Mutex
	cmd         *os.Process
	pid         int
	startedAt   time.Time
	stdout      *os.File
	stderr      *os.File
	reaped      bool
	terminating bool
	status      event.ExitStatus
	reapDone    chan struct{}
}

// Start spawns spec with the given environment. A nil env inherits the
// supervisor's; an empty non-nil env starts the child with no variables.
// Stdin is /dev/null; stdout and stderr are pipes owned by the returned Process.
func Start(spec Spec, env []string) (*Process, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if env != nil {
		cmd.Env = env
	}
	configureSysProcAttr(cmd)

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		_ = outR.Close()
		_ = outW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{outR, outW, errR, errW} {
			_ = f.Close()
		}
		return nil, err
	}
	// The child holds its own copies of the write ends.
	_ = outW.Close()
	_ = errW.Close()

	return &Process{
		cmd:       cmd.Process,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		stdout:    outR,
		stderr:    errR,
		reapDone:  make(chan struct{}),
	}, nil
}

func (p *Process) PID() int { return p.pid }

func (p *Process) StartedAt() time.Time { return p.startedAt }

// Read performs a bounded, non-blocking read of at most len(buf) bytes from
// the given stream. It returns 0 when nothing is buffered.
func (p *Process) Read(s event.Stream, buf []byte) (int, error) {
	p.mu.Lock()
	var f *os.File
	switch s {
	case event.Stdout:
		f = p.stdout
	case event.Stderr:
		f = p.stderr
	default:
		p.mu.Unlock()
		return 0, fmt.Errorf("unknown stream %d", s)
	}
	p.mu.Unlock()
	if f == nil {
		return 0, os.ErrClosed
	}
	return readAvailable(f, buf)
}

// TryWait queries liveness without blocking. exited is false while the child
// runs. The child is reaped by the call that first observes the exit.
func (p *Process) TryWait() (status event.ExitStatus, exited bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reaped {
		return p.status, true, nil
	}
	if p.terminating {
		return event.ExitStatus{}, false, nil
	}
	ws, done, err := wait4(p.pid, unix.WNOHANG)
	if err != nil || !done {
		return event.ExitStatus{}, false, err
	}
	p.markReapedLocked(ws)
	return p.status, true, nil
}

// Terminate kills the child's process group and reaps it asynchronously.
// It is a no-op when the child has already been reaped.
func (p *Process) Terminate() error {
	p.mu.Lock()
	if p.reaped || p.terminating {
		p.mu.Unlock()
		return nil
	}
	p.terminating = true
	pid := p.pid
	p.mu.Unlock()

	err := unix.Kill(-pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		err = unix.Kill(pid, unix.SIGKILL)
	}
	go p.reap()
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// Done is closed once the child has been reaped, by TryWait or by Terminate.
func (p *Process) Done() <-chan struct{} { return p.reapDone }

func (p *Process) reap() {
	ws, _, err := wait4(p.pid, 0)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reaped {
		return
	}
	if err != nil {
		// Someone else reaped the child; nothing more to learn.
		ws = 0
	}
	p.markReapedLocked(ws)
}

func (p *Process) markReapedLocked(ws unix.WaitStatus) {
	p.reaped = true
	p.status = exitStatus(ws)
	_ = p.cmd.Release()
	close(p.reapDone)
}

// Close releases the read ends of the output pipes. It is idempotent.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.stdout != nil {
		errs = append(errs, p.stdout.Close())
		p.stdout = nil
	}
	if p.stderr != nil {
		errs = append(errs, p.stderr.Close())
		p.stderr = nil
	}
	return errors.Join(errs...)
}
