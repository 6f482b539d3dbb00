// Package pidfile records the PID of a running mcpmon proxy instance under
// the XDG data directory, keyed by proxy name, so `mcpmon status`/`mcpmon
// stop`-style tooling can find a running instance without a shared daemon.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"

	"github.com/neilopet/mcpmon/internal/fileutils"
)

// getPIDFilePath returns the XDG-data-home path for name's PID file. This
// keeps a single canonical location: there is no prior released version
// of mcpmon whose PID files would need migrating.
func getPIDFilePath(name string) (string, error) {
	dir := filepath.Join(xdg.DataHome, "mcpmon", "pids")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create pid directory: %w", err)
	}
	return filepath.Join(dir, fmt.Sprintf("mcpmon-%s.pid", name)), nil
}

// WritePIDFile records pid for the proxy instance identified by name.
func WritePIDFile(name string, pid int) error {
	path, err := getPIDFilePath(name)
	if err != nil {
		return err
	}
	return fileutils.AtomicWriteFile(path, []byte(strconv.Itoa(pid)), 0o600)
}

// WriteCurrentPIDFile records the calling process's own PID.
func WriteCurrentPIDFile(name string) error {
	return WritePIDFile(name, os.Getpid())
}

// ReadPIDFile returns the PID previously recorded for name.
func ReadPIDFile(name string) (int, error) {
	path, err := getPIDFilePath(name)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file contents: %w", err)
	}
	return pid, nil
}

// RemovePIDFile deletes name's PID file, if any.
func RemovePIDFile(name string) error {
	path, err := getPIDFilePath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pid file: %w", err)
	}
	return nil
}
