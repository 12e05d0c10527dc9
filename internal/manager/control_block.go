package manager

import (
	"errors"
	"sync"
	"time"

	"github.com/loykin/procman/internal/event"
	"github.com/loykin/procman/internal/metrics"
	"github.com/loykin/procman/internal/process"
)

// controlBlock owns one registered process: its handle and the FIFO of
// events waiting for the director. The process loop is the only producer,
// the director the only consumer.
type controlBlock struct {
	name      string
	runID     string
	spec      process.Spec
	pid       int
	startedAt time.Time
	h         Handle
	limit     int

	mu         sync.Mutex
	queue      []event.Event
	looping    bool
	closed     bool
	terminated bool
	dropped    int
}

func newControlBlock(name, runID string, spec process.Spec, h Handle, limit int) *controlBlock {
	return &controlBlock{
		name:      name,
		runID:     runID,
		spec:      spec,
		pid:       h.PID(),
		startedAt: time.Now(),
		h:         h,
		limit:     limit,
	}
}

// claimLoop marks the block as having a running process loop.
func (cb *controlBlock) claimLoop() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.looping {
		return ErrLoopRunning
	}
	cb.looping = true
	return nil
}

// push appends events in order. It reports false once the block has been
// released, after which the loop must stop.
func (cb *controlBlock) push(evs ...event.Event) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.closed {
		return false
	}
	for _, ev := range evs {
		if ev.Terminal() {
			cb.terminated = true
		}
		if o, ok := ev.(event.Output); ok {
			if cb.limit > 0 && len(cb.queue) >= cb.limit {
				cb.dropped++
				metrics.IncDropped(cb.name)
				continue
			}
			metrics.AddOutputBytes(cb.name, o.Stream.String(), o.Len())
		}
		cb.queue = append(cb.queue, ev)
		metrics.IncEvent(cb.name, event.KindOf(ev))
	}
	metrics.SetQueueDepth(cb.name, len(cb.queue))
	return true
}

// markTerminated records that the loop observed a terminal condition, even
// if the event carrying it has not been queued yet.
func (cb *controlBlock) markTerminated() {
	cb.mu.Lock()
	cb.terminated = true
	cb.mu.Unlock()
}

func (cb *controlBlock) pop() (event.Event, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.closed || len(cb.queue) == 0 {
		return nil, false
	}
	ev := cb.queue[0]
	cb.queue[0] = nil
	cb.queue = cb.queue[1:]
	metrics.SetQueueDepth(cb.name, len(cb.queue))
	return ev, true
}

func (cb *controlBlock) isClosed() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.closed
}

// release closes the block and its handle. With kill set, or when the loop
// never observed a terminal condition, the process is terminated first.
// After a wait failure the process is left alone.
func (cb *controlBlock) release(kill bool) error {
	cb.mu.Lock()
	if cb.closed {
		cb.mu.Unlock()
		return nil
	}
	cb.closed = true
	cb.queue = nil
	terminate := kill || !cb.terminated
	cb.mu.Unlock()

	var errs []error
	if terminate {
		errs = append(errs, cb.h.Terminate())
	}
	errs = append(errs, cb.h.Close())
	return errors.Join(errs...)
}

func (cb *controlBlock) info() Info {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Info{
		Name:       cb.name,
		RunID:      cb.runID,
		PID:        cb.pid,
		StartedAt:  cb.startedAt,
		Pending:    len(cb.queue),
		Dropped:    cb.dropped,
		Terminated: cb.terminated,
		Spec:       cb.spec,
	}
}
