// Package daemon holds the single-instance guard for the long-running
// gateway process.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/hollisdev/ember/pkg/logger"
)

// PIDFilePath returns the canonical PID file location inside a workspace.
func PIDFilePath(workspace string) string {
	return filepath.Join(workspace, "state", "ember.pid")
}

// Acquire claims the PID file for the current process. A live PID already in
// the file means another daemon owns the workspace; a stale PID is cleaned
// up silently.
func Acquire(path string) error {
	if pid, err := ReadPID(path); err == nil {
		if processAlive(pid) {
			return fmt.Errorf("daemon already running with pid %d (%s)", pid, path)
		}
		logger.WarnCF("daemon", "removing stale pid file", map[string]interface{}{
			"path": path, "stale_pid": pid,
		})
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove stale pid file: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create pid file dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Release removes the PID file if it still belongs to this process.
func Release(path string) {
	pid, err := ReadPID(path)
	if err != nil || pid != os.Getpid() {
		return
	}
	if err := os.Remove(path); err != nil {
		logger.WarnCF("daemon", "failed to remove pid file", map[string]interface{}{
			"path": path, "error": err.Error(),
		})
	}
}

// ReadPID parses the PID file at path.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pid file %s: %w", path, err)
	}
	return pid, nil
}

// processAlive probes a PID with signal 0. On Unix a dead or foreign PID
// answers ESRCH or EPERM respectively; EPERM still means something is there.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
