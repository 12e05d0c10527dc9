package procman

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/procman/internal/config"
	"github.com/loykin/procman/internal/event"
	"github.com/loykin/procman/internal/history"
	"github.com/loykin/procman/internal/history/factory"
	"github.com/loykin/procman/internal/manager"
	"github.com/loykin/procman/internal/metrics"
	"github.com/loykin/procman/internal/process"
	iapi "github.com/loykin/procman/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type (
	Spec           = process.Spec
	Options        = manager.Options
	Info           = manager.Info
	RegisterOption = manager.RegisterOption
	Interceptor    = manager.Interceptor
	Handler        = manager.Handler
	Disposition    = manager.Disposition
	Config         = cfg.Config
	HistorySink    = history.Sink
)

type (
	InterceptorFunc = manager.InterceptorFunc
	HandlerFunc     = manager.HandlerFunc
)

type (
	Event      = event.Event
	Output     = event.Output
	Exited     = event.Exited
	Error      = event.Error
	Stream     = event.Stream
	ErrorKind  = event.ErrorKind
	ExitStatus = event.ExitStatus
)

const (
	Stdout = event.Stdout
	Stderr = event.Stderr

	ReadFailure     = event.ReadFailure
	WaitFailure     = event.WaitFailure
	HandlingFailure = event.HandlingFailure

	Keep   = manager.Keep
	Remove = manager.Remove
)

var (
	ErrNameInUse       = manager.ErrNameInUse
	ErrNotFound        = manager.ErrNotFound
	ErrLoopRunning     = manager.ErrLoopRunning
	ErrDirectorRunning = manager.ErrDirectorRunning
)

func WithoutLoop() RegisterOption                       { return manager.WithoutLoop() }
func WithInterceptor(ic Interceptor) RegisterOption     { return manager.WithInterceptor(ic) }
func PassThrough(fn func(name string, ev Event)) Handler { return manager.PassThrough(fn) }
func RemoveOnTerminal(h Handler) Handler                { return manager.RemoveOnTerminal(h) }

// Manager is a thin facade over internal/manager.Manager.
// It provides a stable public API for embedding.
type Manager struct{ inner *manager.Manager }

// New creates a Manager with default options.
func New() *Manager { return NewWithOptions(Options{}) }

func NewWithOptions(o Options) *Manager { return &Manager{inner: manager.New(o)} }

func (m *Manager) Register(name string, s Spec, opts ...RegisterOption) error {
	return m.inner.Register(name, s, opts...)
}
func (m *Manager) Stop(name string) error { return m.inner.Stop(name) }
func (m *Manager) StopAll() error         { return m.inner.StopAll() }
func (m *Manager) RunProcessLoop(name string, ic Interceptor) error {
	return m.inner.RunProcessLoop(name, ic)
}

// RunDirector blocks until the registry is empty. A nil handler removes each
// process after its terminal event.
func (m *Manager) RunDirector(h Handler) error { return m.inner.RunDirector(h) }

func (m *Manager) Names() []string                  { return m.inner.Names() }
func (m *Manager) Len() int                         { return m.inner.Len() }
func (m *Manager) Info(name string) (Info, error)   { return m.inner.Info(name) }
func (m *Manager) List() []Info                     { return m.inner.List() }
func (m *Manager) SetGlobalEnv(kvs []string)        { m.inner.SetGlobalEnv(kvs) }
func (m *Manager) SetHistorySinks(s ...HistorySink) { m.inner.SetHistorySinks(s...) }

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewHistorySinks builds one sink per DSN (sqlite, postgres, clickhouse, opensearch).
func NewHistorySinks(dsns []string) ([]HistorySink, error) { return factory.NewSinks(dsns) }

// NewHTTPServer starts an HTTP server exposing the process API using the given manager.
func NewHTTPServer(addr, basePath string, m *Manager) *http.Server {
	return iapi.NewServer(addr, basePath, m.inner)
}

// HTTPHandler returns the process API for mounting in an existing server.
func HTTPHandler(basePath string, m *Manager) http.Handler {
	return iapi.NewRouter(m.inner, basePath).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics serves /metrics for the default registry on addr. It blocks.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
