package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeTriggersRestart(t *testing.T) {
	assert.False(t, Create.TriggersRestart())
	assert.True(t, Modify.TriggersRestart())
	assert.True(t, Remove.TriggersRestart())
	assert.True(t, VersionUpdate.TriggersRestart())
	assert.True(t, DependencyChange.TriggersRestart())
}

func TestFSSourceEmitsModifyOnWrite(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "server.js")
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	src := NewFSSource()
	events, err := src.Watch(ctx, []string{target})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond) // let the watcher attach
	require.NoError(t, os.WriteFile(target, []byte("v2"), 0o644))

	select {
	case ev := <-events:
		assert.Equal(t, Modify, ev.Type)
		assert.Equal(t, target, ev.Path)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for modify event")
	}
}

func TestFSSourceClosesChannelOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	src := NewFSSource()
	events, err := src.Watch(ctx, []string{dir})
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}
