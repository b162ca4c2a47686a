package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// pidFilePath implements the --config/MOZI_PID_FILE/default precedence for
// the runtime's PID file, which spec.md §6 places at {configDir}/data/mozi.pid
// by default.
func pidFilePath(configPath string) string {
	if v := os.Getenv("MOZI_PID_FILE"); v != "" {
		return v
	}
	return filepath.Join(filepath.Dir(configPath), "data", "mozi.pid")
}

// logFilePath is {configDir}/logs/runtime.log, per spec.md §6.
func logFilePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "logs", "runtime.log")
}

func writePIDFile(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create pid file dir: %w", err)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("pid file %s is corrupt: %w", path, err)
	}
	return pid, nil
}

func removePIDFile(path string) {
	_ = os.Remove(path)
}

// processAlive reports whether pid names a live process. Sending signal 0
// performs the existence/permission check without delivering anything.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
