// Package engine executes a single command inside an isolated process
// group with optional cgroup v2 resource enforcement.
package engine

import (
	"context"
	"time"
)

// Spec describes one command execution inside the sandbox.
type Spec struct {
	SubmissionID string
	RunID        string

	Argv    []string
	WorkDir string

	StdinPath  string
	StdoutPath string
	StderrPath string

	// TimeLimit is the wall-clock ceiling. The engine kills the whole
	// process group when it elapses.
	TimeLimit time.Duration

	// MemoryLimitMB is enforced through memory.max when cgroups are
	// enabled; 0 means unlimited.
	MemoryLimitMB int
}

// Result is the raw observation of one execution. It is data, never an
// error: a timed-out or OOM-killed run still produces a Result.
type Result struct {
	ExitCode   int
	TimedOut   bool
	OomKilled  bool
	CPUTimeMs  int64
	WallTimeMs int64
	MemoryKB   int64
	Stdout     string
	Stderr     string
}

// Engine runs a Spec to completion.
type Engine interface {
	Exec(ctx context.Context, spec Spec) (Result, error)
}
