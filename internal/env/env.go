package env

import (
	"os"
	"sort"
	"strings"
	"sync"
)

// Env composes child environments: the supervisor's own environment as the
// base, then global overrides, then per-process entries. It is safe for
// concurrent use.
type Env struct {
	mu     sync.RWMutex
	global map[string]string
	noOS   bool
}

func New() *Env {
	return &Env{global: make(map[string]string)}
}

// WithoutOS drops the supervisor's environment from the base.
func (e *Env) WithoutOS() *Env {
	e.mu.Lock()
	e.noOS = true
	e.mu.Unlock()
	return e
}

// Set sets a global variable K=V.
func (e *Env) Set(k, v string) {
	if k == "" {
		return
	}
	e.mu.Lock()
	e.global[k] = v
	e.mu.Unlock()
}

// SetAll replaces the global variables with the given "K=V" entries.
// Malformed entries are skipped.
func (e *Env) SetAll(kvs []string) {
	m := make(map[string]string, len(kvs))
	apply(m, kvs)
	e.mu.Lock()
	e.global = m
	e.mu.Unlock()
}

// Unset removes a global variable.
func (e *Env) Unset(k string) {
	e.mu.Lock()
	delete(e.global, k)
	e.mu.Unlock()
}

// Merge returns the environment for one child, sorted by key, with ${VAR}
// references in values expanded against the composed map (one level, unknown
// references left intact).
func (e *Env) Merge(perProc []string) []string {
	m := make(map[string]string)
	e.mu.RLock()
	if !e.noOS {
		apply(m, os.Environ())
	}
	for k, v := range e.global {
		m[k] = v
	}
	e.mu.RUnlock()
	apply(m, perProc)

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expand(m[k], m))
	}
	return out
}

func apply(m map[string]string, kvs []string) {
	for _, kv := range kvs {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		m[kv[:i]] = kv[i+1:]
	}
}

func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			break
		}
		name := s[i+2 : i+2+j]
		b.WriteString(s[:i])
		if v, ok := m[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+3+j])
		}
		s = s[i+3+j:]
	}
	b.WriteString(s)
	return b.String()
}
