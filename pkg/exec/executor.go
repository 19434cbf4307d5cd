// Package exec provides command execution for the code-runner capability.
// Executors enforce their own wall-clock timeout independent of the session
// that invoked them; a timeout is reported in the Result, not as an error.
package exec

import (
	"context"
	"time"
)

// ExecutorType identifies an executor implementation.
type ExecutorType string

const (
	// ExecutorTypeLocal runs commands directly on the host.
	ExecutorTypeLocal ExecutorType = "local"
)

// DefaultTimeout bounds script execution when the caller does not set one.
const DefaultTimeout = 10 * time.Minute

// Executor runs commands in some environment.
type Executor interface {
	// Run executes a command with the given options and returns the result.
	// A non-zero exit status is reported in the Result, not as an error.
	Run(ctx context.Context, cmd []string, opts Opts) (Result, error)

	// Name returns the executor type for logging.
	Name() ExecutorType

	// Available returns true if this executor can be used in the current
	// environment.
	Available() bool
}

// Opts contains options for command execution.
type Opts struct {
	// Env contains extra environment variables (KEY=VALUE format).
	Env []string

	// Timeout is the maximum wall-clock duration for the command.
	// Zero means DefaultTimeout.
	Timeout time.Duration

	// WorkDir is the working directory for the command.
	WorkDir string
}

// Result captures the outcome of a command execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}
