package manager

import "errors"

var (
	// ErrNameInUse is returned by Register when the name is already registered.
	ErrNameInUse = errors.New("process name already in use")
	// ErrNotFound is returned for names that are not in the registry.
	ErrNotFound = errors.New("process not found")
	// ErrLoopRunning is returned by RunProcessLoop when the process already has a loop.
	ErrLoopRunning = errors.New("process loop already running")
	// ErrDirectorRunning is returned by RunDirector when another director is active.
	ErrDirectorRunning = errors.New("director already running")
)
