package manager

import (
	"log/slog"
	"time"
)

const (
	DefaultPollInterval     = 200 * time.Millisecond
	DefaultDirectorInterval = 200 * time.Millisecond
	DefaultMaxChunk         = 8192
)

// Options tunes a Manager. Zero values select the defaults.
type Options struct {
	// PollInterval is the process loop tick.
	PollInterval time.Duration
	// DirectorInterval is the director tick.
	DirectorInterval time.Duration
	// MaxChunk bounds a single read and therefore the size of an Output event.
	MaxChunk int
	// QueueLimit caps pending events per process; 0 means unbounded. When the
	// cap is reached incoming Output events are dropped; Error and Exited never are.
	QueueLimit int
	// IsolateEnv starts children without the supervisor's own environment.
	IsolateEnv bool
	// OnRemoved, if set, is called with no lock held after a name has left
	// the registry, whether through Stop or the director.
	OnRemoved func(name string)
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.DirectorInterval <= 0 {
		o.DirectorInterval = DefaultDirectorInterval
	}
	if o.MaxChunk <= 0 {
		o.MaxChunk = DefaultMaxChunk
	}
	if o.QueueLimit < 0 {
		o.QueueLimit = 0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type registerOptions struct {
	loop        bool
	interceptor Interceptor
}

// RegisterOption customizes a single registration.
type RegisterOption func(*registerOptions)

// WithoutLoop registers the process without starting its loop; the caller
// must run it with RunProcessLoop.
func WithoutLoop() RegisterOption {
	return func(o *registerOptions) { o.loop = false }
}

// WithInterceptor installs an interceptor on the automatically started loop.
func WithInterceptor(ic Interceptor) RegisterOption {
	return func(o *registerOptions) { o.interceptor = ic }
}
