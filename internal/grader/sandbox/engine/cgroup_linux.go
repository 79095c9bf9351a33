//go:build linux

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gradex/pkg/errors"
)

func createRunCgroup(root, submissionID, runID string) (string, func(), error) {
	if root == "" {
		return "", func() {}, errors.ValidationError("cgroup_root", "required")
	}
	runDir := fmt.Sprintf("%s-%d", runID, time.Now().UnixNano())
	cgroupPath := filepath.Join(root, submissionID, runDir)
	if err := os.MkdirAll(cgroupPath, 0750); err != nil {
		return "", func() {}, errors.Wrapf(err, errors.SandboxError, "create cgroup path failed")
	}
	cleanup := func() {
		_ = os.RemoveAll(cgroupPath)
	}
	return cgroupPath, cleanup, nil
}

func applyCgroupLimits(cgroupPath string, memoryLimitMB int, pidsMax int64) error {
	pidsValue := "max"
	if pidsMax > 0 {
		pidsValue = strconv.FormatInt(pidsMax, 10)
	}
	if err := writeCgroupValue(cgroupPath, "pids.max", pidsValue); err != nil {
		return errors.Wrapf(err, errors.SandboxError, "write pids.max failed")
	}
	if memoryLimitMB > 0 {
		limit := strconv.FormatInt(int64(memoryLimitMB)*1024*1024, 10)
		if err := writeCgroupValue(cgroupPath, "memory.max", limit); err != nil {
			return errors.Wrapf(err, errors.SandboxError, "write memory.max failed")
		}
		// Disable swap so the limit is a hard ceiling, not a slowdown.
		if err := writeCgroupValue(cgroupPath, "memory.swap.max", "0"); err != nil {
			return errors.Wrapf(err, errors.SandboxError, "write memory.swap.max failed")
		}
	}
	return nil
}

func addProcessToCgroup(cgroupPath string, pid int) error {
	if pid <= 0 {
		return errors.ValidationError("pid", "invalid")
	}
	if err := writeCgroupValue(cgroupPath, "cgroup.procs", strconv.Itoa(pid)); err != nil {
		return errors.Wrapf(err, errors.SandboxError, "write cgroup.procs failed")
	}
	return nil
}

func killCgroup(cgroupPath string) error {
	killPath := filepath.Join(cgroupPath, "cgroup.kill")
	if _, err := os.Stat(killPath); err != nil {
		return err
	}
	return os.WriteFile(killPath, []byte("1"), 0600)
}

func wasOomKilled(cgroupPath string) bool {
	if cgroupPath == "" {
		return false
	}
	data, err := os.ReadFile(filepath.Join(cgroupPath, "memory.events"))
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		if fields[0] == "oom_kill" {
			val, _ := strconv.ParseInt(fields[1], 10, 64)
			return val > 0
		}
	}
	return false
}

// memoryPeakKB prefers the cgroup high-water mark and falls back to the
// child's rusage when cgroups are unavailable.
func memoryPeakKB(cgroupPath string, state *os.ProcessState) int64 {
	if cgroupPath != "" {
		if val, err := readCgroupInt(cgroupPath, "memory.peak"); err == nil && val > 0 {
			return val / 1024
		}
	}
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		return usage.Maxrss
	}
	return 0
}

func readCgroupInt(cgroupPath, name string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(cgroupPath, name))
	if err != nil {
		return 0, errors.Wrapf(err, errors.SandboxError, "read cgroup value failed")
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, errors.SandboxError, "parse cgroup value failed")
	}
	return parsed, nil
}

func writeCgroupValue(cgroupPath, name, value string) error {
	path := filepath.Join(cgroupPath, name)
	if err := os.WriteFile(path, []byte(value), 0640); err != nil {
		return errors.Wrapf(err, errors.SandboxError, "write cgroup value failed")
	}
	return nil
}
