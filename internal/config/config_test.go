package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadFullConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "FROM_FILE=f\nSHARED=file\n")
	cfgPath := writeFile(t, dir, "procman.toml", `
env = ["SHARED=inline", "TOP=1"]
env_files = [".env"]
use_os_env = false

[supervisor]
poll_interval = "50ms"
director_interval = "75ms"
max_chunk = 1024
queue_limit = 100

[log]
level = "debug"
format = "json"
file = { path = "/tmp/procman.log" }

[output]
dir = "/tmp/procman-out"
max_size_mb = 5

[history]
dsn = ["sqlite://:memory:"]

[metrics]
listen = ":9090"

[server]
listen = ":8080"

[[processes]]
name = "web"
command = "python app.py"
workdir = "/srv"
env = ["PORT=8000"]

[[processes]]
name = "worker"
command = "sleep"
args = ["10"]
`)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Supervisor.PollInterval != 50*time.Millisecond || cfg.Supervisor.DirectorInterval != 75*time.Millisecond {
		t.Fatalf("unexpected intervals: %+v", cfg.Supervisor)
	}
	opts := cfg.ManagerOptions()
	if opts.MaxChunk != 1024 || opts.QueueLimit != 100 || !opts.IsolateEnv {
		t.Fatalf("unexpected manager options: %+v", opts)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" || cfg.Log.File.Path != "/tmp/procman.log" {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
	if cfg.Output.Dir != "/tmp/procman-out" || cfg.Output.MaxSizeMB != 5 {
		t.Fatalf("unexpected output config: %+v", cfg.Output)
	}
	if len(cfg.History.DSN) != 1 || cfg.Metrics.Listen != ":9090" || cfg.Server.Listen != ":8080" {
		t.Fatalf("unexpected sections: %+v %+v %+v", cfg.History, cfg.Metrics, cfg.Server)
	}
	if cfg.Server.BasePath != "/api" {
		t.Fatalf("expected default base path, got %q", cfg.Server.BasePath)
	}
	if got := strings.Join(cfg.GlobalEnv, ","); got != "FROM_FILE=f,SHARED=inline,TOP=1" {
		t.Fatalf("unexpected global env %s", got)
	}
	if len(cfg.Processes) != 2 {
		t.Fatalf("expected 2 processes, got %d", len(cfg.Processes))
	}
	web := cfg.Processes[0].Spec()
	if web.Command != "python app.py" || web.WorkDir != "/srv" || web.Env[0] != "PORT=8000" {
		t.Fatalf("unexpected web spec: %+v", web)
	}
	worker := cfg.Processes[1].Spec()
	if worker.Command != "sleep" || len(worker.Args) != 1 || worker.Args[0] != "10" {
		t.Fatalf("unexpected worker spec: %+v", worker)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "min.toml", `
[[processes]]
name = "a"
command = "true"
`)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.UseOSEnv {
		t.Fatalf("use_os_env should default to true")
	}
	s := cfg.Supervisor
	if s.PollInterval != 200*time.Millisecond || s.DirectorInterval != 200*time.Millisecond || s.MaxChunk != 8192 || s.QueueLimit != 0 {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}
}

func TestLoadRejectsBadProcesses(t *testing.T) {
	cases := map[string]string{
		"duplicate": `
[[processes]]
name = "a"
command = "true"
[[processes]]
name = "a"
command = "true"
`,
		"bad name": `
[[processes]]
name = "a/b"
command = "true"
`,
		"empty command": `
[[processes]]
name = "a"
`,
		"bad interval": `
[supervisor]
poll_interval = "-1s"
`,
		"bad env": `
env = ["NOVALUE"]
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p := writeFile(t, t.TempDir(), "c.toml", body)
			if _, err := Load(p); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadEnvFile(t *testing.T) {
	p := writeFile(t, t.TempDir(), ".env", "# comment\n\nexport B=\"two words\"\nA=1\nC='x'\n")
	pairs, err := LoadEnvFile(p)
	if err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := strings.Join(pairs, "|"); got != "A=1|B=two words|C=x" {
		t.Fatalf("unexpected pairs %q", got)
	}

	bad := writeFile(t, t.TempDir(), ".env", "JUSTKEY\n")
	if _, err := LoadEnvFile(bad); err == nil {
		t.Fatalf("expected error for malformed line")
	}
}

func TestValidName(t *testing.T) {
	for _, ok := range []string{"web", "web-1", "a.b_c"} {
		if !ValidName(ok) {
			t.Fatalf("%q should be valid", ok)
		}
	}
	for _, bad := range []string{"", "a b", "../x", strings.Repeat("x", 65)} {
		if ValidName(bad) {
			t.Fatalf("%q should be invalid", bad)
		}
	}
}
