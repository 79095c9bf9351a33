// Package sandbox manages the per-submission workspace lifecycle and runs
// compile and test executions through the engine.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"gradex/internal/grader/lang"
	"gradex/internal/grader/sandbox/engine"
	"gradex/pkg/errors"
	"gradex/pkg/utils/logger"
)

// Config controls workspace placement and the compile stage ceiling.
type Config struct {
	// WorkspaceRoot is where per-submission directories are created.
	// Empty means the system temp directory.
	WorkspaceRoot string `yaml:"workspaceRoot"`

	// CompileTimeLimit bounds the compile stage. It is independent of any
	// test-case time limit.
	CompileTimeLimit time.Duration `yaml:"compileTimeLimit"`

	// CompileMemoryLimitMB bounds compiler memory. 0 means unlimited.
	CompileMemoryLimitMB int `yaml:"compileMemoryLimitMB"`
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.CompileTimeLimit <= 0 {
		c.CompileTimeLimit = 30 * time.Second
	}
	if c.CompileMemoryLimitMB <= 0 {
		c.CompileMemoryLimitMB = 512
	}
}

// Outcome is the observation of one test-case execution, failure states
// included. The caller turns it into a verdict.
type Outcome struct {
	CompileFailed bool
	TimedOut      bool
	MemoryKilled  bool
	ExitCode      int
	Stdout        string
	Stderr        string
	TimeMs        int64
	MemoryKB      int64
}

// Runner opens sandboxed sessions.
type Runner struct {
	engine engine.Engine
	cfg    Config
}

// NewRunner creates a Runner on top of an engine.
func NewRunner(eng engine.Engine, cfg Config) *Runner {
	cfg.SetDefaults()
	return &Runner{engine: eng, cfg: cfg}
}

// OpenRequest describes one submission to prepare.
type OpenRequest struct {
	SubmissionID string
	Spec         lang.Spec
	Entry        string
	Code         string
}

// Session is one prepared workspace: source written, compile stage done.
// Close destroys the workspace; callers must always call it.
type Session struct {
	runner *Runner
	req    OpenRequest

	dir     string
	runCmd  *lang.Command
	closed  bool
	runSeq  int
	compile *engine.Result
}

// Open creates an isolated workspace, writes the source file, and runs the
// compile stage for compiled languages. The workspace is removed before
// returning on every setup error; once a Session is returned the caller
// owns cleanup via Close.
func (r *Runner) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	if req.SubmissionID == "" {
		return nil, errors.ValidationError("submission_id", "required")
	}

	dir, err := os.MkdirTemp(r.cfg.WorkspaceRoot, "gradex-"+req.SubmissionID+"-")
	if err != nil {
		return nil, errors.Wrapf(err, errors.SandboxError, "create workspace failed")
	}

	s := &Session{runner: r, req: req, dir: dir}
	if err := s.prepare(ctx); err != nil {
		s.destroy()
		return nil, err
	}
	return s, nil
}

func (s *Session) prepare(ctx context.Context) error {
	srcName := lang.SourceFileName(s.req.Spec, s.req.Entry)
	srcPath := filepath.Join(s.dir, srcName)
	if err := os.WriteFile(srcPath, []byte(s.req.Code), 0644); err != nil {
		return errors.Wrapf(err, errors.SandboxError, "write source failed")
	}

	binPath := filepath.Join(s.dir, "solution")
	compileCmd, runCmd, err := lang.BuildCommands(s.req.Spec, srcPath, binPath, s.req.Entry)
	if err != nil {
		return err
	}
	s.runCmd = runCmd

	if compileCmd == nil {
		return nil
	}

	result, err := s.runner.engine.Exec(ctx, engine.Spec{
		SubmissionID:  s.req.SubmissionID,
		RunID:         "compile",
		Argv:          compileCmd.Argv,
		WorkDir:       s.dir,
		StderrPath:    filepath.Join(s.dir, "compile.log"),
		TimeLimit:     s.runner.cfg.CompileTimeLimit,
		MemoryLimitMB: s.runner.cfg.CompileMemoryLimitMB,
	})
	if err != nil {
		return err
	}
	s.compile = &result
	return nil
}

// CompileFailed reports whether the compile stage failed. Always false for
// interpreted languages.
func (s *Session) CompileFailed() bool {
	if s.compile == nil {
		return false
	}
	return s.compile.TimedOut || s.compile.ExitCode != 0
}

// CompileOutput returns the compiler diagnostics.
func (s *Session) CompileOutput() string {
	if s.compile == nil {
		return ""
	}
	if s.compile.TimedOut {
		return "compilation timed out"
	}
	return s.compile.Stderr
}

// CompileOutcome renders the failed compile stage as an execution outcome,
// used to assign every test case the same result without running any.
func (s *Session) CompileOutcome() Outcome {
	return Outcome{
		CompileFailed: true,
		Stderr:        s.CompileOutput(),
	}
}

// Execute runs the submission against one input under the given limits.
// A kill at the wall-clock deadline reports the deadline itself as the
// elapsed time, so recorded times never exceed the limit.
func (s *Session) Execute(ctx context.Context, input string, timeLimit time.Duration, memoryLimitMB int) (Outcome, error) {
	if s.closed {
		return Outcome{}, errors.New(errors.SandboxError).WithMessage("session is closed")
	}
	if s.CompileFailed() {
		return s.CompileOutcome(), nil
	}

	s.runSeq++
	runID := fmt.Sprintf("run-%d", s.runSeq)
	stdinPath := filepath.Join(s.dir, runID+".in")
	stdoutPath := filepath.Join(s.dir, runID+".out")
	stderrPath := filepath.Join(s.dir, runID+".err")
	if err := os.WriteFile(stdinPath, []byte(input), 0644); err != nil {
		return Outcome{}, errors.Wrapf(err, errors.SandboxError, "write input failed")
	}

	result, err := s.runner.engine.Exec(ctx, engine.Spec{
		SubmissionID:  s.req.SubmissionID,
		RunID:         runID,
		Argv:          s.runCmd.Argv,
		WorkDir:       s.dir,
		StdinPath:     stdinPath,
		StdoutPath:    stdoutPath,
		StderrPath:    stderrPath,
		TimeLimit:     timeLimit,
		MemoryLimitMB: memoryLimitMB,
	})
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{
		TimedOut:     result.TimedOut,
		MemoryKilled: result.OomKilled,
		ExitCode:     result.ExitCode,
		Stdout:       result.Stdout,
		Stderr:       result.Stderr,
		TimeMs:       result.WallTimeMs,
		MemoryKB:     result.MemoryKB,
	}
	if result.TimedOut && timeLimit > 0 {
		outcome.TimeMs = timeLimit.Milliseconds()
	}
	// The kernel may SIGKILL on memory exhaustion without the cgroup
	// recording an oom_kill; treat a peak above the limit the same way.
	if !outcome.MemoryKilled && memoryLimitMB > 0 && result.MemoryKB > int64(memoryLimitMB)*1024 {
		outcome.MemoryKilled = true
	}
	return outcome, nil
}

// Close destroys the workspace. Safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.destroy()
	return nil
}

func (s *Session) destroy() {
	if err := os.RemoveAll(s.dir); err != nil {
		logger.Warn(context.Background(), "remove workspace failed",
			zap.String("dir", s.dir), zap.Error(err))
	}
}

// Dir exposes the workspace path for archiving before Close.
func (s *Session) Dir() string {
	return s.dir
}
