package manager

import (
	"time"

	"github.com/loykin/procman/internal/event"
	"github.com/loykin/procman/internal/history"
)

// maxDrainReads bounds the reads per stream after the process has exited.
const maxDrainReads = 256

var streams = [...]event.Stream{event.Stdout, event.Stderr}

// RunProcessLoop runs the loop for a process registered with WithoutLoop and
// blocks until it ends: on exit, on a wait failure, or when the entry is
// stopped or removed.
func (m *Manager) RunProcessLoop(name string, ic Interceptor) error {
	cb, err := m.lookup(name)
	if err != nil {
		return err
	}
	if err := cb.claimLoop(); err != nil {
		return err
	}
	m.loop(cb, ic)
	return nil
}

func (m *Manager) loop(cb *controlBlock, ic Interceptor) {
	buf := make([]byte, m.opts.MaxChunk)
	t := time.NewTicker(m.opts.PollInterval)
	defer t.Stop()
	for m.tick(cb, ic, buf) {
		<-t.C
	}
	m.log.Debug("process loop finished", "name", cb.name, "pid", cb.pid)
}

// tick performs one poll: stdout, stderr, then liveness. It reports whether
// the loop should continue.
func (m *Manager) tick(cb *controlBlock, ic Interceptor, buf []byte) bool {
	for _, s := range streams {
		if _, ok := m.readStream(cb, ic, s, buf); !ok {
			return false
		}
	}

	st, exited, err := cb.h.TryWait()
	switch {
	case err != nil:
		cb.markTerminated()
		if m.emit(cb, ic, event.Error{Kind: event.WaitFailure, Err: err}) {
			m.record(history.EventFailed, cb, nil, err.Error())
		}
		return false
	case exited:
		cb.markTerminated()
		m.drain(cb, ic, buf)
		if m.emit(cb, ic, event.Exited{Status: st}) {
			code := st.Code
			m.record(history.EventExited, cb, &code, st.String())
		}
		return false
	}
	return !cb.isClosed()
}

// readStream performs one bounded read. n is the number of bytes read; ok is
// false once the control block has been released.
func (m *Manager) readStream(cb *controlBlock, ic Interceptor, s event.Stream, buf []byte) (n int, ok bool) {
	n, err := cb.h.Read(s, buf)
	if n > 0 {
		if !m.emit(cb, ic, event.NewOutput(s, buf[:n])) {
			return n, false
		}
	}
	if err != nil {
		if !m.emit(cb, ic, event.Error{Kind: event.ReadFailure, Err: err}) {
			return n, false
		}
		// Don't spin on a broken stream while draining.
		return 0, true
	}
	return n, true
}

// drain forwards whatever is still buffered in the pipes after exit.
func (m *Manager) drain(cb *controlBlock, ic Interceptor, buf []byte) {
	for _, s := range streams {
		for i := 0; i < maxDrainReads; i++ {
			n, ok := m.readStream(cb, ic, s, buf)
			if !ok {
				return
			}
			if n == 0 {
				break
			}
		}
	}
}

// emit passes ev through the interceptor and queues the result.
func (m *Manager) emit(cb *controlBlock, ic Interceptor, ev event.Event) bool {
	if ic == nil {
		return cb.push(ev)
	}
	return cb.push(m.intercept(cb.name, ic, ev)...)
}
