package manager

import (
	"fmt"

	"github.com/loykin/procman/internal/event"
)

// Interceptor sees every event a process loop produces before it is queued.
// The returned slice replaces the event: empty suppresses it, and several
// events are queued in order. Terminal events in the result are honoured only
// when the input was terminal; the loop always ends with exactly one.
type Interceptor interface {
	Intercept(name string, ev event.Event) ([]event.Event, error)
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(name string, ev event.Event) ([]event.Event, error)

func (f InterceptorFunc) Intercept(name string, ev event.Event) ([]event.Event, error) {
	return f(name, ev)
}

func callInterceptor(ic Interceptor, name string, ev event.Event) (out []event.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("interceptor panic: %v", r)
		}
	}()
	return ic.Intercept(name, ev)
}

// intercept runs ic on ev and normalises the result: a failure becomes a
// HandlingFailure after the returned events, and for a terminal input the
// first terminal result (or the input itself) is placed last.
func (m *Manager) intercept(name string, ic Interceptor, ev event.Event) []event.Event {
	got, err := callInterceptor(ic, name, ev)
	out := make([]event.Event, 0, len(got)+2)
	var term event.Event
	for _, e := range got {
		if e == nil {
			continue
		}
		if e.Terminal() {
			if ev.Terminal() && term == nil {
				term = e
			}
			continue
		}
		out = append(out, e)
	}
	if err != nil {
		m.log.Warn("interceptor failed", "name", name, "event", ev.String(), "error", err)
		out = append(out, event.Error{Kind: event.HandlingFailure, Err: err})
	}
	if ev.Terminal() {
		if term == nil {
			term = ev
		}
		out = append(out, term)
	}
	return out
}
