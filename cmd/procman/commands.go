package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/loykin/procman"
	"github.com/loykin/procman/internal/history"
	"github.com/loykin/procman/internal/logger"
)

// idleWait is how often a server-backed run checks for new registrations
// while the registry is empty.
const idleWait = 500 * time.Millisecond

func runSupervisor(ctx context.Context, f RunFlags) error {
	if f.ConfigPath == "" {
		return errors.New("config file required: use --config=procman.toml or pass it as an argument")
	}
	cfg, err := procman.LoadConfig(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := cfg.Log.New(os.Stderr)
	if err != nil {
		return err
	}

	h := newEventHandler(log, logger.Config{File: cfg.Output})
	defer h.closeAll()

	opts := cfg.ManagerOptions()
	opts.Logger = log
	opts.OnRemoved = h.release
	mgr := procman.NewWithOptions(opts)
	mgr.SetGlobalEnv(cfg.GlobalEnv)

	sinks, err := procman.NewHistorySinks(cfg.History.DSN)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	defer func() { _ = history.Close(sinks) }()
	mgr.SetHistorySinks(sinks...)
	defer mgr.SetHistorySinks()

	if cfg.Metrics.Listen != "" {
		if err := procman.RegisterMetricsDefault(); err != nil {
			log.Warn("register metrics", "error", err)
		}
		go func() {
			if err := procman.ServeMetrics(cfg.Metrics.Listen); err != nil {
				log.Error("metrics server", "error", err)
			}
		}()
	}
	serving := cfg.Server.Listen != ""
	if serving {
		srv := procman.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, mgr)
		defer func() { _ = srv.Close() }()
		log.Info("serving API", "listen", cfg.Server.Listen, "base_path", cfg.Server.BasePath)
	}

	for _, p := range cfg.Processes {
		if err := mgr.Register(p.Name, p.Spec()); err != nil {
			_ = mgr.StopAll()
			return err
		}
		log.Info("process started", "name", p.Name)
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		_ = mgr.StopAll()
	}()

	return direct(ctx, mgr, procman.RemoveOnTerminal(h), serving)
}

// direct runs the director. With keepAlive it resumes whenever new processes
// are registered, until ctx is done.
func direct(ctx context.Context, mgr *procman.Manager, h procman.Handler, keepAlive bool) error {
	for {
		if err := mgr.RunDirector(h); err != nil {
			return err
		}
		if !keepAlive {
			return nil
		}
		t := time.NewTicker(idleWait)
		for mgr.Len() == 0 {
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
		}
		t.Stop()
	}
}

// runExec supervises a single command, mirroring its output, and returns its
// exit code (128+signal when killed).
func runExec(ctx context.Context, f ExecFlags, args []string, stdout, stderr io.Writer) (int, error) {
	log := slog.New(logger.NewColorTextHandler(stderr, &slog.HandlerOptions{Level: logger.ParseLevel(f.LogLevel)}, false))
	mgr := procman.NewWithOptions(procman.Options{PollInterval: f.PollInterval, Logger: log})

	spec := procman.Spec{Command: args[0], Args: args[1:]}
	if len(args) == 1 {
		// A single argument is a command line, possibly with shell syntax.
		spec.Args = nil
	}
	if err := mgr.Register(f.Name, spec); err != nil {
		return 1, err
	}
	go func() {
		<-ctx.Done()
		_ = mgr.StopAll()
	}()

	code := 0
	var failure error
	err := mgr.RunDirector(procman.RemoveOnTerminal(procman.PassThrough(func(_ string, ev procman.Event) {
		switch e := ev.(type) {
		case procman.Output:
			w := stdout
			if e.Stream == procman.Stderr {
				w = stderr
			}
			_, _ = w.Write(e.Data)
		case procman.Exited:
			code = exitCode(e.Status)
		case procman.Error:
			if e.Terminal() {
				failure = e
			} else {
				log.Warn("supervision error", "name", f.Name, "error", e)
			}
		}
	})))
	if err != nil {
		return 1, err
	}
	if failure != nil {
		return 1, failure
	}
	if ctx.Err() != nil {
		return 130, nil
	}
	return code, nil
}

func exitCode(s procman.ExitStatus) int {
	if s.Signal != 0 {
		return 128 + int(s.Signal)
	}
	return s.Code
}
