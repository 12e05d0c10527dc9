package client

import "time"

// RegisterRequest is the body of POST /processes.
type RegisterRequest struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	WorkDir string   `json:"work_dir,omitempty"`
	Env     []string `json:"env,omitempty"`
}

// ProcessInfo mirrors the registry entry returned by the API.
type ProcessInfo struct {
	Name       string    `json:"name"`
	RunID      string    `json:"run_id"`
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	Pending    int       `json:"pending"`
	Dropped    int       `json:"dropped"`
	Terminated bool      `json:"terminated"`
	Spec       Spec      `json:"spec"`
	Usage      *Usage    `json:"usage,omitempty"`
}

// Spec is the command a process was registered with.
type Spec struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	WorkDir string   `json:"work_dir,omitempty"`
	Env     []string `json:"env,omitempty"`
}

// Usage is the resource snapshot attached to GET /processes/{name}.
type Usage struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
	NumThreads int32   `json:"num_threads"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
