//go:build linux

package engine

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gradex/pkg/errors"
	"gradex/pkg/utils/logger"
)

type linuxEngine struct {
	cfg Config
}

// NewEngine creates the Linux sandbox engine.
func NewEngine(cfg Config) (Engine, error) {
	cfg.SetDefaults()
	if cfg.EnableCgroup && cfg.CgroupRoot == "" {
		return nil, errors.ValidationError("cgroupRoot", "required when cgroups are enabled")
	}
	return &linuxEngine{cfg: cfg}, nil
}

func (e *linuxEngine) Exec(ctx context.Context, spec Spec) (Result, error) {
	if err := validateSpec(spec); err != nil {
		return Result{}, err
	}

	cgroupPath := ""
	cgroupCleanup := func() {}
	if e.cfg.EnableCgroup {
		var err error
		cgroupPath, cgroupCleanup, err = createRunCgroup(e.cfg.CgroupRoot, spec.SubmissionID, spec.RunID)
		if err != nil {
			return Result{}, err
		}
		if err := applyCgroupLimits(cgroupPath, spec.MemoryLimitMB, e.cfg.PidsMax); err != nil {
			cgroupCleanup()
			return Result{}, err
		}
	}
	defer cgroupCleanup()

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.WorkDir
	cmd.Env = minimalEnv()
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}

	closers, err := wireStdio(cmd, spec)
	if err != nil {
		return Result{}, err
	}
	defer closers.closeAll()

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, errors.Wrapf(err, errors.SandboxError, "start %s failed", spec.Argv[0])
	}

	if e.cfg.EnableCgroup {
		if err := addProcessToCgroup(cgroupPath, cmd.Process.Pid); err != nil {
			logger.Warn(ctx, "add process to cgroup failed",
				zap.String("cgroup", cgroupPath), zap.Error(err))
		}
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		var wallTimer <-chan time.Time
		if spec.TimeLimit > 0 {
			wallTimer = time.After(spec.TimeLimit)
		}
		select {
		case <-ctx.Done():
			e.killProcessGroup(cmd.Process.Pid, cgroupPath)
		case <-wallTimer:
			timedOut.Store(true)
			e.killProcessGroup(cmd.Process.Pid, cgroupPath)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	result := Result{
		ExitCode:   exitCodeFromErr(waitErr, cmd.ProcessState),
		TimedOut:   timedOut.Load(),
		OomKilled:  wasOomKilled(cgroupPath),
		CPUTimeMs:  cpuTimeMs(cmd.ProcessState),
		WallTimeMs: time.Since(start).Milliseconds(),
		MemoryKB:   memoryPeakKB(cgroupPath, cmd.ProcessState),
		Stdout:     readLimitedFile(spec.StdoutPath, e.cfg.StdoutStderrMaxBytes),
		Stderr:     readLimitedFile(spec.StderrPath, e.cfg.StdoutStderrMaxBytes),
	}

	// A killed process group reports a signal exit; normalize so callers
	// never mistake a timeout for a clean run.
	if result.TimedOut && result.ExitCode == 0 {
		result.ExitCode = -1
	}
	return result, nil
}

// killProcessGroup kills via cgroup.kill when available so descendants that
// escaped the process group die too, then kills the group as a backstop.
func (e *linuxEngine) killProcessGroup(pid int, cgroupPath string) {
	if cgroupPath != "" {
		_ = killCgroup(cgroupPath)
	}
	if pid > 0 {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
}

func validateSpec(spec Spec) error {
	if spec.SubmissionID == "" {
		return errors.ValidationError("submission_id", "required")
	}
	if spec.RunID == "" {
		return errors.ValidationError("run_id", "required")
	}
	if spec.WorkDir == "" {
		return errors.ValidationError("work_dir", "required")
	}
	if len(spec.Argv) == 0 {
		return errors.ValidationError("argv", "required")
	}
	return nil
}

type stdioClosers struct {
	files []*os.File
}

func (c *stdioClosers) closeAll() {
	for _, f := range c.files {
		_ = f.Close()
	}
}

func wireStdio(cmd *exec.Cmd, spec Spec) (*stdioClosers, error) {
	closers := &stdioClosers{}
	if spec.StdinPath != "" {
		in, err := os.Open(spec.StdinPath)
		if err != nil {
			return closers, errors.Wrapf(err, errors.SandboxError, "open stdin failed")
		}
		closers.files = append(closers.files, in)
		cmd.Stdin = in
	}
	if spec.StdoutPath != "" {
		out, err := os.Create(spec.StdoutPath)
		if err != nil {
			return closers, errors.Wrapf(err, errors.SandboxError, "create stdout failed")
		}
		closers.files = append(closers.files, out)
		cmd.Stdout = out
	}
	if spec.StderrPath != "" {
		errFile, err := os.Create(spec.StderrPath)
		if err != nil {
			return closers, errors.Wrapf(err, errors.SandboxError, "create stderr failed")
		}
		closers.files = append(closers.files, errFile)
		cmd.Stderr = errFile
	}
	return closers, nil
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func cpuTimeMs(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	usage, ok := state.SysUsage().(*syscall.Rusage)
	if !ok {
		return 0
	}
	utime := time.Duration(usage.Utime.Sec)*time.Second + time.Duration(usage.Utime.Usec)*time.Microsecond
	stime := time.Duration(usage.Stime.Sec)*time.Second + time.Duration(usage.Stime.Usec)*time.Microsecond
	return (utime + stime).Milliseconds()
}

func readLimitedFile(path string, maxBytes int64) string {
	if path == "" || maxBytes <= 0 {
		return ""
	}
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxBytes))
	if err != nil {
		return ""
	}
	return string(data)
}

func minimalEnv() []string {
	return []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=/tmp",
		"LANG=C.UTF-8",
	}
}
