package manager

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/procman/internal/history"
)

const (
	historyTimeout = 5 * time.Second
	// historyBacklog bounds records waiting for slow sinks; further records
	// are dropped with a warning.
	historyBacklog = 1024
)

// historyWorker delivers lifecycle records to the sinks on its own goroutine,
// in the order they were recorded.
type historyWorker struct {
	sinks []history.Sink
	ch    chan history.Event
	done  chan struct{}
	log   *slog.Logger
}

func startHistoryWorker(sinks []history.Sink, log *slog.Logger) *historyWorker {
	w := &historyWorker{
		sinks: sinks,
		ch:    make(chan history.Event, historyBacklog),
		done:  make(chan struct{}),
		log:   log,
	}
	go w.run()
	return w
}

func (w *historyWorker) run() {
	defer close(w.done)
	for e := range w.ch {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		if err := history.Fanout(ctx, w.sinks, e); err != nil {
			w.log.Warn("history sink", "name", e.Record.Name, "event", string(e.Type), "error", err)
		}
		cancel()
	}
}

// enqueue never blocks.
func (w *historyWorker) enqueue(e history.Event) {
	select {
	case w.ch <- e:
	default:
		w.log.Warn("history backlog full, record dropped", "name", e.Record.Name, "event", string(e.Type))
	}
}

// stop waits until every queued record has been delivered.
func (w *historyWorker) stop() {
	close(w.ch)
	<-w.done
}
