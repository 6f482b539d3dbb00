package lockfile

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockRegistry_RegisterLock(t *testing.T) {
	t.Parallel()
	registry := &lockRegistry{locks: make(map[string]*flock.Flock)}

	lockPath := "/test/path/file.lock"
	lock := flock.New(lockPath)
	registry.RegisterLock(lockPath, lock)

	registry.mu.RLock()
	defer registry.mu.RUnlock()
	assert.Contains(t, registry.locks, lockPath)
	assert.Equal(t, lock, registry.locks[lockPath])
}

func TestLockRegistry_UnregisterLock(t *testing.T) {
	t.Parallel()
	registry := &lockRegistry{locks: make(map[string]*flock.Flock)}

	lockPath := "/test/path/file.lock"
	lock := flock.New(lockPath)
	registry.RegisterLock(lockPath, lock)
	registry.UnregisterLock(lockPath)

	registry.mu.RLock()
	defer registry.mu.RUnlock()
	assert.NotContains(t, registry.locks, lockPath)
}

func TestLockRegistry_CleanupAll(t *testing.T) {
	t.Parallel()
	tempDir := t.TempDir()
	registry := &lockRegistry{locks: make(map[string]*flock.Flock)}

	lockPaths := make([]string, 3)
	for i := 0; i < 3; i++ {
		lockPaths[i] = filepath.Join(tempDir, "test"+string(rune('1'+i))+".lock")
		lock := flock.New(lockPaths[i])
		require.NoError(t, lock.Lock())
		registry.RegisterLock(lockPaths[i], lock)
	}

	registry.CleanupAll()

	registry.mu.RLock()
	assert.Len(t, registry.locks, 0)
	registry.mu.RUnlock()

	for _, p := range lockPaths {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "lock file should be removed: %s", p)
	}
}

//nolint:paralleltest // modifies global state
func TestNewAndReleaseTrackedLock(t *testing.T) {
	tempDir := t.TempDir()
	origRegistry := globalRegistry
	defer func() { globalRegistry = origRegistry }()
	globalRegistry = &lockRegistry{locks: make(map[string]*flock.Flock)}

	lockPath := filepath.Join(tempDir, "tracked.lock")
	lock := NewTrackedLock(lockPath)
	require.NoError(t, lock.Lock())

	globalRegistry.mu.RLock()
	assert.Contains(t, globalRegistry.locks, lockPath)
	globalRegistry.mu.RUnlock()

	ReleaseTrackedLock(lockPath, lock)

	globalRegistry.mu.RLock()
	assert.NotContains(t, globalRegistry.locks, lockPath)
	globalRegistry.mu.RUnlock()

	_, err := os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err))
}

func TestLockRegistry_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	registry := &lockRegistry{locks: make(map[string]*flock.Flock)}

	const goroutines = 10
	const ops = 50
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < ops; j++ {
				path := filepath.Join("/test", "concurrent", string(rune('a'+id))+string(rune('a'+j%26))+".lock")
				lock := flock.New(path)
				registry.RegisterLock(path, lock)
				time.Sleep(time.Microsecond)
				registry.UnregisterLock(path)
			}
		}(i)
	}
	wg.Wait()

	registry.mu.RLock()
	assert.Len(t, registry.locks, 0)
	registry.mu.RUnlock()
}

func TestCleanupStaleLocks(t *testing.T) {
	t.Parallel()
	tempDir := t.TempDir()

	staleLockPath := filepath.Join(tempDir, "stale.lock")
	staleLock := flock.New(staleLockPath)
	require.NoError(t, staleLock.Lock())
	require.NoError(t, staleLock.Unlock())

	oldTime := time.Now().Add(-10 * time.Minute)
	require.NoError(t, os.Chtimes(staleLockPath, oldTime, oldTime))

	freshLockPath := filepath.Join(tempDir, "fresh.lock")
	freshLock := flock.New(freshLockPath)
	require.NoError(t, freshLock.Lock())
	defer freshLock.Unlock()

	activeLockPath := filepath.Join(tempDir, "active.lock")
	activeLock := flock.New(activeLockPath)
	require.NoError(t, activeLock.Lock())
	defer activeLock.Unlock()
	require.NoError(t, os.Chtimes(activeLockPath, oldTime, oldTime))

	CleanupStaleLocks([]string{tempDir}, 5*time.Minute)

	_, err := os.Stat(staleLockPath)
	assert.True(t, os.IsNotExist(err), "stale lock file should be removed")

	_, err = os.Stat(freshLockPath)
	assert.NoError(t, err, "fresh lock file should still exist")

	_, err = os.Stat(activeLockPath)
	assert.NoError(t, err, "active lock file should still exist")
}

func TestCleanupStaleLocks_NonexistentDirectory(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() {
		CleanupStaleLocks([]string{"/this/directory/does/not/exist"}, 5*time.Minute)
	})
}
