package main

import "time"

// Flag structs to decouple cobra from logic for testing.

type GlobalFlags struct {
	ConfigPath string
}

type RunFlags struct {
	ConfigPath string
}

type ExecFlags struct {
	Name         string
	PollInterval time.Duration
	LogLevel     string
}

// APIFlags select the running supervisor for the remote commands.
type APIFlags struct {
	URL string
}

type StartFlags struct {
	Name    string
	WorkDir string
	Env     []string
}
