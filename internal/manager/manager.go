package manager

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/procman/internal/env"
	"github.com/loykin/procman/internal/history"
	"github.com/loykin/procman/internal/metrics"
	"github.com/loykin/procman/internal/process"
)

// Manager is the process registry. It maps unique names to control blocks
// and runs one process loop per entry plus, on request, a single director.
//
// Locking: the registry lock is always taken before a control block lock.
// Interceptors and handlers run with no lock held and may call back into
// the Manager.
type Manager struct {
	opts  Options
	log   *slog.Logger
	env   *env.Env
	spawn spawnFunc

	mu    sync.RWMutex
	procs map[string]*controlBlock

	histMu sync.RWMutex
	hist   *historyWorker

	directing atomic.Bool
}

// Info is a point-in-time view of one registry entry.
type Info struct {
	Name       string       `json:"name"`
	RunID      string       `json:"run_id"`
	PID        int          `json:"pid"`
	StartedAt  time.Time    `json:"started_at"`
	Pending    int          `json:"pending"`
	Dropped    int          `json:"dropped"`
	Terminated bool         `json:"terminated"`
	Spec       process.Spec `json:"spec"`
}

func New(opts Options) *Manager {
	opts = opts.withDefaults()
	e := env.New()
	if opts.IsolateEnv {
		e.WithoutOS()
	}
	return &Manager{
		opts:  opts,
		log:   opts.Logger,
		env:   e,
		spawn: spawnProcess,
		procs: make(map[string]*controlBlock),
	}
}

// SetHistorySinks configures external history sinks. Records are delivered
// asynchronously; replacing the sinks first flushes everything recorded so
// far to the previous ones. Passing no sinks flushes and clears the list.
func (m *Manager) SetHistorySinks(sinks ...history.Sink) {
	m.histMu.Lock()
	defer m.histMu.Unlock()
	if m.hist != nil {
		m.hist.stop()
		m.hist = nil
	}
	if len(sinks) > 0 {
		m.hist = startHistoryWorker(append([]history.Sink(nil), sinks...), m.log)
	}
}

// SetGlobalEnv replaces the variables merged into every child's environment.
// kvs must be in the form "KEY=VALUE".
func (m *Manager) SetGlobalEnv(kvs []string) {
	m.env.SetAll(kvs)
}

// Register spawns spec under name and, unless WithoutLoop is given, starts
// its process loop. A duplicate name fails with ErrNameInUse before anything
// is spawned.
func (m *Manager) Register(name string, spec process.Spec, opts ...RegisterOption) error {
	if name == "" {
		return errors.New("name is required")
	}
	ro := registerOptions{loop: true}
	for _, o := range opts {
		o(&ro)
	}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}

	m.mu.Lock()
	if _, ok := m.procs[name]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNameInUse, name)
	}
	h, err := m.spawn(spec, m.env.Merge(spec.Env))
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("register %s: %w", name, err)
	}
	cb := newControlBlock(name, uuid.NewString(), spec, h, m.opts.QueueLimit)
	if ro.loop {
		_ = cb.claimLoop()
	}
	m.procs[name] = cb
	n := len(m.procs)
	m.mu.Unlock()

	metrics.SetRegistered(n)
	m.log.Debug("process registered", "name", name, "pid", cb.pid, "run_id", cb.runID)
	m.record(history.EventRegistered, cb, nil, "")
	if ro.loop {
		go m.loop(cb, ro.interceptor)
	}
	return nil
}

// Stop removes name from the registry and terminates its process. No Exited
// event is delivered for a stopped process.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	cb, ok := m.procs[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(m.procs, name)
	n := len(m.procs)
	m.mu.Unlock()

	err := cb.release(true)
	m.forget(cb, n, "stopped")
	m.record(history.EventStopped, cb, nil, "")
	if err != nil {
		m.log.Warn("stop process", "name", name, "error", err)
	}
	m.notifyRemoved(cb.name)
	return nil
}

// StopAll stops every registered process.
func (m *Manager) StopAll() error {
	var errs []error
	for _, name := range m.Names() {
		if err := m.Stop(name); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// remove deletes cb if it is still the entry registered under its name.
func (m *Manager) remove(cb *controlBlock) bool {
	m.mu.Lock()
	if m.procs[cb.name] != cb {
		m.mu.Unlock()
		return false
	}
	delete(m.procs, cb.name)
	n := len(m.procs)
	m.mu.Unlock()

	if err := cb.release(false); err != nil {
		m.log.Warn("release process", "name", cb.name, "error", err)
	}
	m.forget(cb, n, "director")
	m.record(history.EventRemoved, cb, nil, "")
	m.notifyRemoved(cb.name)
	return true
}

func (m *Manager) notifyRemoved(name string) {
	if m.opts.OnRemoved == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("removal hook panic", "name", name, "panic", r)
		}
	}()
	m.opts.OnRemoved(name)
}

// forget runs after cb has been released, so its loop can no longer touch the
// per-process series. They are kept if the name was registered again meanwhile.
func (m *Manager) forget(cb *controlBlock, remaining int, reason string) {
	m.mu.RLock()
	if _, again := m.procs[cb.name]; !again {
		metrics.ForgetProcess(cb.name)
	}
	m.mu.RUnlock()
	metrics.SetRegistered(remaining)
	metrics.IncRemoval(reason)
	m.log.Debug("process removed", "name", cb.name, "pid", cb.pid, "reason", reason)
}

func (m *Manager) lookup(name string) (*controlBlock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cb, ok := m.procs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return cb, nil
}

// snapshot returns the registered control blocks ordered by name.
func (m *Manager) snapshot() []*controlBlock {
	m.mu.RLock()
	out := make([]*controlBlock, 0, len(m.procs))
	for _, cb := range m.procs {
		out = append(out, cb)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Names returns the registered names in sorted order.
func (m *Manager) Names() []string {
	cbs := m.snapshot()
	out := make([]string, len(cbs))
	for i, cb := range cbs {
		out[i] = cb.name
	}
	return out
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.procs)
}

func (m *Manager) Info(name string) (Info, error) {
	cb, err := m.lookup(name)
	if err != nil {
		return Info{}, err
	}
	return cb.info(), nil
}

// List returns Info for every entry, sorted by name.
func (m *Manager) List() []Info {
	cbs := m.snapshot()
	out := make([]Info, len(cbs))
	for i, cb := range cbs {
		out[i] = cb.info()
	}
	return out
}

func (m *Manager) record(t history.EventType, cb *controlBlock, code *int, detail string) {
	m.histMu.RLock()
	defer m.histMu.RUnlock()
	if m.hist == nil {
		return
	}
	m.hist.enqueue(history.Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Record: history.Record{
			RunID:     cb.runID,
			Name:      cb.name,
			PID:       cb.pid,
			StartedAt: cb.startedAt,
			ExitCode:  code,
			Detail:    detail,
		},
	})
}
