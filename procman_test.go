package procman

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func newQuiet() *Manager {
	return NewWithOptions(Options{
		PollInterval:     5 * time.Millisecond,
		DirectorInterval: 5 * time.Millisecond,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestFacadeRegisterDirectorStop(t *testing.T) {
	requireUnix(t)
	m := newQuiet()
	if err := m.Register("hi", Spec{Command: "echo hi"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register("hi", Spec{Command: "echo hi"}); !errors.Is(err, ErrNameInUse) {
		t.Fatalf("expected ErrNameInUse, got %v", err)
	}

	var mu sync.Mutex
	var out strings.Builder
	var exited bool
	h := RemoveOnTerminal(PassThrough(func(_ string, ev Event) {
		mu.Lock()
		defer mu.Unlock()
		switch e := ev.(type) {
		case Output:
			out.Write(e.Data)
		case Exited:
			exited = e.Status.Success()
		}
	}))
	if err := m.RunDirector(h); err != nil {
		t.Fatalf("director: %v", err)
	}
	if out.String() != "hi\n" || !exited {
		t.Fatalf("unexpected result out=%q exited=%v", out.String(), exited)
	}
	if err := m.Stop("hi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after removal, got %v", err)
	}
}

func TestFacadeManualLoop(t *testing.T) {
	requireUnix(t)
	m := newQuiet()
	if err := m.Register("manual", Spec{Command: "sh -c 'exit 4'"}, WithoutLoop()); err != nil {
		t.Fatalf("register: %v", err)
	}
	var seen []Event
	ic := InterceptorFunc(func(_ string, ev Event) ([]Event, error) {
		seen = append(seen, ev)
		return []Event{ev}, nil
	})
	if err := m.RunProcessLoop("manual", ic); err != nil {
		t.Fatalf("loop: %v", err)
	}
	if err := m.RunProcessLoop("manual", nil); !errors.Is(err, ErrLoopRunning) {
		t.Fatalf("expected ErrLoopRunning, got %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("expected only the exit event, got %v", seen)
	}
	if e, ok := seen[0].(Exited); !ok || e.Status.Code != 4 {
		t.Fatalf("unexpected terminal event %v", seen[0])
	}
	// Nil handler defaults to removal on terminal events.
	if err := m.RunDirector(nil); err != nil {
		t.Fatalf("director: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("expected empty registry")
	}
}

func TestFacadeLoadConfigAndHistory(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "procman.toml")
	body := `
[history]
dsn = ["sqlite://` + filepath.Join(dir, "h.db") + `"]

[[processes]]
name = "a"
command = "true"
`
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sinks, err := NewHistorySinks(c.History.DSN)
	if err != nil || len(sinks) != 1 {
		t.Fatalf("history sinks: %v", err)
	}
	m := newQuiet()
	m.SetHistorySinks(sinks...)
}

func TestHTTPHandlerAndMetrics(t *testing.T) {
	m := newQuiet()
	srv := httptest.NewServer(HTTPHandler("/api", m))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/api/processes")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	if err := RegisterMetrics(prometheus.NewRegistry()); err != nil {
		t.Fatalf("register metrics: %v", err)
	}
}
