package main

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/loykin/procman"
	"github.com/loykin/procman/internal/logger"
)

// eventHandler logs every event and appends captured output to the
// per-process rotating files configured under [output]. Events arrive on the
// director goroutine; release may be called from whichever goroutine removed
// the process.
type eventHandler struct {
	log     *slog.Logger
	out     logger.Config
	mu      sync.Mutex
	writers map[string][2]io.WriteCloser
}

func newEventHandler(log *slog.Logger, out logger.Config) *eventHandler {
	return &eventHandler{log: log, out: out, writers: make(map[string][2]io.WriteCloser)}
}

func (h *eventHandler) HandleEvent(name string, ev procman.Event) procman.Disposition {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch e := ev.(type) {
	case procman.Output:
		h.log.Debug("output", "name", name, "stream", e.Stream.String(), "bytes", e.Len())
		if w := h.writer(name, e.Stream); w != nil {
			if _, err := w.Write(e.Data); err != nil {
				h.log.Warn("write output", "name", name, "error", err)
			}
		}
	case procman.Exited:
		lvl := slog.LevelInfo
		if !e.Status.Success() {
			lvl = slog.LevelWarn
		}
		h.log.Log(context.Background(), lvl, "process exited", "name", name, "status", e.Status.String())
		h.close(name)
	case procman.Error:
		if e.Terminal() {
			h.log.Error("process supervision failed", "name", name, "error", e)
			h.close(name)
		} else {
			h.log.Warn("process event error", "name", name, "error", e)
		}
	}
	return procman.Keep
}

func (h *eventHandler) writer(name string, s procman.Stream) io.Writer {
	ws, ok := h.writers[name]
	if !ok {
		o, e, err := h.out.ProcessWriters(name)
		if err != nil {
			h.log.Warn("open output files", "name", name, "error", err)
		}
		ws = [2]io.WriteCloser{o, e}
		h.writers[name] = ws
	}
	w := ws[1]
	if s == procman.Stdout {
		w = ws[0]
	}
	if w == nil {
		return nil
	}
	return w
}

func (h *eventHandler) close(name string) {
	ws, ok := h.writers[name]
	if !ok {
		return
	}
	delete(h.writers, name)
	for _, w := range ws {
		if w != nil {
			_ = w.Close()
		}
	}
}

// release closes the output files of a process that left the registry.
func (h *eventHandler) release(name string) {
	h.mu.Lock()
	h.close(name)
	h.mu.Unlock()
}

func (h *eventHandler) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name := range h.writers {
		h.close(name)
	}
}
