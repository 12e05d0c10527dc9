package manager

import (
	"time"

	"github.com/loykin/procman/internal/event"
	"github.com/loykin/procman/internal/metrics"
)

// Disposition is a handler's decision about the process whose event it saw.
type Disposition int

const (
	Keep Disposition = iota
	Remove
)

func (d Disposition) String() string {
	if d == Remove {
		return "remove"
	}
	return "keep"
}

// Handler consumes events on the director. It runs with no lock held.
type Handler interface {
	HandleEvent(name string, ev event.Event) Disposition
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(name string, ev event.Event) Disposition

func (f HandlerFunc) HandleEvent(name string, ev event.Event) Disposition { return f(name, ev) }

// PassThrough forwards every event to fn and never removes.
func PassThrough(fn func(name string, ev event.Event)) Handler {
	return HandlerFunc(func(name string, ev event.Event) Disposition {
		if fn != nil {
			fn(name, ev)
		}
		return Keep
	})
}

// RemoveOnTerminal calls h (which may be nil) and additionally removes the
// process once its terminal event has been handled.
func RemoveOnTerminal(h Handler) Handler {
	return HandlerFunc(func(name string, ev event.Event) Disposition {
		d := Keep
		if h != nil {
			d = h.HandleEvent(name, ev)
		}
		if ev.Terminal() {
			return Remove
		}
		return d
	})
}

// RunDirector dispatches queued events to h until the registry is empty.
// Each pass visits processes in name order and hands at most one event per
// process to h; processes marked Remove are removed after the pass.
// A nil h behaves like RemoveOnTerminal(nil).
func (m *Manager) RunDirector(h Handler) error {
	if !m.directing.CompareAndSwap(false, true) {
		return ErrDirectorRunning
	}
	defer m.directing.Store(false)
	if h == nil {
		h = RemoveOnTerminal(nil)
	}

	t := time.NewTicker(m.opts.DirectorInterval)
	defer t.Stop()
	for {
		if m.Len() == 0 {
			return nil
		}
		m.pass(h)
		<-t.C
	}
}

func (m *Manager) pass(h Handler) {
	var marked []*controlBlock
	for _, cb := range m.snapshot() {
		ev, ok := cb.pop()
		if !ok {
			continue
		}
		if m.dispatch(h, cb.name, ev) == Remove {
			marked = append(marked, cb)
		}
	}
	for _, cb := range marked {
		m.remove(cb)
	}
	metrics.IncDirectorPass()
}

func (m *Manager) dispatch(h Handler, name string, ev event.Event) (d Disposition) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("director handler panic", "name", name, "event", ev.String(), "panic", r)
			d = Keep
		}
	}()
	return h.HandleEvent(name, ev)
}
