// Package lockfile tracks flock-based advisory locks mcpmon takes out (the
// response-archive extension locks its database file this way), and
// cleans them up on exit.
package lockfile

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/neilopet/mcpmon/internal/logger"
)

// lockRegistry tracks every lock this process currently holds so they can
// be released as a group on shutdown, regardless of which goroutine took
// each one out.
type lockRegistry struct {
	mu    sync.RWMutex
	locks map[string]*flock.Flock
}

var globalRegistry = &lockRegistry{
	locks: make(map[string]*flock.Flock),
}

// RegisterLock records lock under path.
func (r *lockRegistry) RegisterLock(path string, lock *flock.Flock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks[path] = lock
}

// UnregisterLock removes path from the registry without touching the file.
func (r *lockRegistry) UnregisterLock(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, path)
}

// CleanupAll unlocks and removes every lock file currently tracked.
func (r *lockRegistry) CleanupAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for path, lock := range r.locks {
		if err := lock.Unlock(); err != nil {
			logger.Warnf("failed to unlock %s: %v", path, err)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warnf("failed to remove lock file %s: %v", path, err)
		}
		delete(r.locks, path)
	}
}

// NewTrackedLock creates a flock.Flock for path and registers it globally.
func NewTrackedLock(path string) *flock.Flock {
	lock := flock.New(path)
	globalRegistry.RegisterLock(path, lock)
	return lock
}

// ReleaseTrackedLock unlocks lock, removes its file, and drops it from the
// global registry.
func ReleaseTrackedLock(path string, lock *flock.Flock) {
	if err := lock.Unlock(); err != nil {
		logger.Warnf("failed to unlock %s: %v", path, err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warnf("failed to remove lock file %s: %v", path, err)
	}
	globalRegistry.UnregisterLock(path)
}

// CleanupAllLocks releases every lock this process holds. Call on shutdown.
func CleanupAllLocks() {
	globalRegistry.CleanupAll()
}

// CleanupStaleLocks removes *.lock files older than maxAge from dirs that
// are not currently held by another process, so a crashed mcpmon doesn't
// permanently wedge future runs.
func CleanupStaleLocks(dirs []string, maxAge time.Duration) {
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".lock" {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			info, err := entry.Info()
			if err != nil || time.Since(info.ModTime()) < maxAge {
				continue
			}

			lock := flock.New(path)
			locked, err := lock.TryLock()
			if err != nil || !locked {
				// Held by a live process; leave it alone.
				continue
			}
			_ = lock.Unlock()
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				logger.Warnf("failed to remove stale lock %s: %v", path, err)
			}
		}
	}
}
