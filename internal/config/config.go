package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/procman/internal/logger"
	"github.com/loykin/procman/internal/manager"
	"github.com/loykin/procman/internal/process"
)

// Config represents the top-level TOML structure.
type Config struct {
	Env        []string          `mapstructure:"env"`
	EnvFiles   []string          `mapstructure:"env_files"`
	UseOSEnv   bool              `mapstructure:"use_os_env"`
	Supervisor SupervisorConfig  `mapstructure:"supervisor"`
	Log        logger.Config     `mapstructure:"log"`
	Output     logger.FileConfig `mapstructure:"output"`
	History    HistoryConfig     `mapstructure:"history"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Server     ServerConfig      `mapstructure:"server"`
	Processes  []ProcConfig      `mapstructure:"processes"`

	// GlobalEnv is the merged result of EnvFiles and Env, filled by Load.
	GlobalEnv []string `mapstructure:"-"`
}

type SupervisorConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	DirectorInterval time.Duration `mapstructure:"director_interval"`
	MaxChunk         int           `mapstructure:"max_chunk"`
	QueueLimit       int           `mapstructure:"queue_limit"`
}

type HistoryConfig struct {
	DSN []string `mapstructure:"dsn"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

type ProcConfig struct {
	Name    string   `mapstructure:"name"`
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	WorkDir string   `mapstructure:"workdir"`
	Env     []string `mapstructure:"env"`
}

// Spec converts the entry into a process.Spec.
func (p ProcConfig) Spec() process.Spec {
	return process.Spec{Command: p.Command, Args: p.Args, WorkDir: p.WorkDir, Env: p.Env}
}

var nameRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// ValidName reports whether s can be used as a process name.
func ValidName(s string) bool { return nameRe.MatchString(s) }

// Load reads a TOML config file, applies defaults, merges env files and
// validates the process list.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetDefault("use_os_env", true)
	v.SetDefault("supervisor.poll_interval", manager.DefaultPollInterval)
	v.SetDefault("supervisor.director_interval", manager.DefaultDirectorInterval)
	v.SetDefault("supervisor.max_chunk", manager.DefaultMaxChunk)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("server.base_path", "/api")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	global := make(map[string]string)
	for _, p := range cfg.EnvFiles {
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
		for k, val := range pairs {
			global[k] = val
		}
	}
	for _, kv := range cfg.Env {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			return nil, fmt.Errorf("invalid env entry %q: expected KEY=VALUE", kv)
		}
		global[kv[:i]] = kv[i+1:]
	}
	cfg.GlobalEnv = sortedPairs(global)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks supervisor settings and the process list.
func (c *Config) Validate() error {
	var errs []error
	s := c.Supervisor
	if s.PollInterval <= 0 {
		errs = append(errs, errors.New("supervisor.poll_interval must be positive"))
	}
	if s.DirectorInterval <= 0 {
		errs = append(errs, errors.New("supervisor.director_interval must be positive"))
	}
	if s.MaxChunk <= 0 {
		errs = append(errs, errors.New("supervisor.max_chunk must be positive"))
	}
	if s.QueueLimit < 0 {
		errs = append(errs, errors.New("supervisor.queue_limit must not be negative"))
	}
	seen := make(map[string]struct{}, len(c.Processes))
	for i, p := range c.Processes {
		if !ValidName(p.Name) {
			errs = append(errs, fmt.Errorf("processes[%d]: invalid name %q", i, p.Name))
			continue
		}
		if _, dup := seen[p.Name]; dup {
			errs = append(errs, fmt.Errorf("processes[%d]: duplicate name %q", i, p.Name))
			continue
		}
		seen[p.Name] = struct{}{}
		if err := p.Spec().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("process %s: %w", p.Name, err))
		}
	}
	return errors.Join(errs...)
}

// ManagerOptions maps the [supervisor] section onto manager.Options.
func (c *Config) ManagerOptions() manager.Options {
	return manager.Options{
		PollInterval:     c.Supervisor.PollInterval,
		DirectorInterval: c.Supervisor.DirectorInterval,
		MaxChunk:         c.Supervisor.MaxChunk,
		QueueLimit:       c.Supervisor.QueueLimit,
		IsolateEnv:       !c.UseOSEnv,
	}
}

// LoadEnvFile parses a simple .env file and returns "KEY=VALUE" entries sorted by key.
func LoadEnvFile(path string) ([]string, error) {
	m, err := loadEnvFile(path)
	if err != nil {
		return nil, err
	}
	return sortedPairs(m), nil
}

// loadEnvFile parses KEY=VALUE lines. Blank lines and lines starting with #
// are ignored, an "export " prefix is accepted and one pair of surrounding
// quotes is stripped from values.
func loadEnvFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for n, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		i := strings.IndexByte(line, '=')
		if i <= 0 {
			return nil, fmt.Errorf("line %d: expected KEY=VALUE", n+1)
		}
		k := strings.TrimSpace(line[:i])
		val := strings.TrimSpace(line[i+1:])
		if l := len(val); l >= 2 && (val[0] == '"' && val[l-1] == '"' || val[0] == '\'' && val[l-1] == '\'') {
			val = val[1 : l-1]
		}
		m[k] = val
	}
	return m, nil
}

func sortedPairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}
