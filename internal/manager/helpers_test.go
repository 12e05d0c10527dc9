package manager

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/loykin/procman/internal/event"
	"github.com/loykin/procman/internal/history"
	"github.com/loykin/procman/internal/process"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("unix-only test")
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(opts Options) *Manager {
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	if opts.DirectorInterval == 0 {
		opts.DirectorInterval = 5 * time.Millisecond
	}
	opts.Logger = quietLogger()
	return New(opts)
}

// fakeHandle is a scripted Handle. Chunks are returned in order, split by the
// caller's buffer size; the process "exits" on the waits-th TryWait call.
type fakeHandle struct {
	mu         sync.Mutex
	pid        int
	chunks     map[event.Stream][][]byte
	readErr    map[event.Stream]error
	exitAfter  int // -1: never exits
	waits      int
	status     event.ExitStatus
	waitErr    error
	terminated bool
	closed     bool
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		pid:       4242,
		chunks:    make(map[event.Stream][][]byte),
		readErr:   make(map[event.Stream]error),
		exitAfter: -1,
	}
}

func (f *fakeHandle) write(s event.Stream, data string) *fakeHandle {
	f.mu.Lock()
	f.chunks[s] = append(f.chunks[s], []byte(data))
	f.mu.Unlock()
	return f
}

func (f *fakeHandle) PID() int { return f.pid }

func (f *fakeHandle) Read(s event.Stream, buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, os.ErrClosed
	}
	if err := f.readErr[s]; err != nil {
		delete(f.readErr, s)
		return 0, err
	}
	q := f.chunks[s]
	if len(q) == 0 {
		return 0, nil
	}
	n := copy(buf, q[0])
	if n < len(q[0]) {
		q[0] = q[0][n:]
	} else {
		q = q[1:]
	}
	f.chunks[s] = q
	return n, nil
}

func (f *fakeHandle) TryWait() (event.ExitStatus, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits++
	if f.exitAfter < 0 || f.waits < f.exitAfter {
		return event.ExitStatus{}, false, nil
	}
	if f.waitErr != nil {
		return event.ExitStatus{}, false, f.waitErr
	}
	return f.status, true, nil
}

func (f *fakeHandle) Terminate() error {
	f.mu.Lock()
	f.terminated = true
	f.mu.Unlock()
	return nil
}

func (f *fakeHandle) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeHandle) state() (terminated, closed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminated, f.closed
}

// useFake makes every Register on m return h.
func useFake(m *Manager, h *fakeHandle) *int {
	calls := new(int)
	m.spawn = func(process.Spec, []string) (Handle, error) {
		*calls++
		return h, nil
	}
	return calls
}

type seen struct {
	name string
	ev   event.Event
}

// collector records every event the director hands it.
type collector struct {
	mu  sync.Mutex
	evs []seen
}

func (c *collector) HandleEvent(name string, ev event.Event) Disposition {
	c.mu.Lock()
	c.evs = append(c.evs, seen{name, ev})
	c.mu.Unlock()
	return Keep
}

func (c *collector) events(name string) []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.Event
	for _, s := range c.evs {
		if s.name == name {
			out = append(out, s.ev)
		}
	}
	return out
}

// runDirector runs the director with a deadline so a broken test cannot hang.
func runDirector(t *testing.T, m *Manager, h Handler) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- m.RunDirector(h) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("director: %v", err)
		}
	case <-time.After(10 * time.Second):
		_ = m.StopAll()
		t.Fatalf("director did not finish; registry: %v", m.Names())
	}
}

type memSink struct {
	mu    sync.Mutex
	types []history.EventType
}

func (s *memSink) Send(_ context.Context, e history.Event) error {
	s.mu.Lock()
	s.types = append(s.types, e.Type)
	s.mu.Unlock()
	return nil
}

func (s *memSink) got() []history.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]history.EventType(nil), s.types...)
}

// gateSink blocks every Send until release is closed.
type gateSink struct {
	memSink
	release chan struct{}
}

func (s *gateSink) Send(ctx context.Context, e history.Event) error {
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.memSink.Send(ctx, e)
}

// drainLoop runs the loop body synchronously until it ends.
func drainLoop(m *Manager, cb *controlBlock, ic Interceptor) {
	buf := make([]byte, m.opts.MaxChunk)
	for m.tick(cb, ic, buf) {
	}
}

func popAll(cb *controlBlock) []event.Event {
	var out []event.Event
	for {
		ev, ok := cb.pop()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}
