// Package watch supplies the default Change Source: a file-system watcher
// built on fsnotify that emits the {type, path} event contract any Change
// Source implementation must satisfy.
package watch

import (
	"context"
	"errors"

	"github.com/fsnotify/fsnotify"

	mcperrors "github.com/neilopet/mcpmon/internal/errors"
	"github.com/neilopet/mcpmon/internal/logger"
)

// EventType is one of the five kinds a Change Source may emit. Only
// Modify, Remove, VersionUpdate, and DependencyChange trigger a restart;
// Create never does, to avoid thrashing on editor-save temp files.
type EventType string

const (
	Create           EventType = "create"
	Modify           EventType = "modify"
	Remove           EventType = "remove"
	VersionUpdate    EventType = "version_update"
	DependencyChange EventType = "dependency_change"
)

// TriggersRestart reports whether an event of this type should debounce a
// restart.
func (t EventType) TriggersRestart() bool {
	return t != Create
}

// Event is one change observation for a watched path.
type Event struct {
	Type EventType
	Path string
}

// Source produces change events for a set of watch targets until ctx is
// canceled. Implementations other than FSSource (e.g. a package-manager
// lockfile watcher emitting DependencyChange, or a registry poller
// emitting VersionUpdate) satisfy the same interface.
type Source interface {
	Watch(ctx context.Context, targets []string) (<-chan Event, error)
}

// FSSource is the default Change Source: a thin fsnotify wrapper. It
// watches each target path directly (files and directories alike); it
// does not recurse into subdirectories.
type FSSource struct{}

// NewFSSource returns the default file-system Change Source.
func NewFSSource() *FSSource {
	return &FSSource{}
}

// Watch starts an fsnotify watcher over targets and returns a channel of
// translated events. The channel is closed when ctx is done or the
// underlying watcher errors out irrecoverably.
func (s *FSSource) Watch(ctx context.Context, targets []string) (<-chan Event, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, mcperrors.NewWatchFailedError("watch: failed to create fsnotify watcher", err)
	}

	for _, t := range targets {
		if err := watcher.Add(t); err != nil {
			logger.Warnf("watch: failed to add target %q: %v", t, err)
		}
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Debugf("watch: close failed: %v", err)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				translated, ok := translate(ev)
				if !ok {
					continue
				}
				select {
				case out <- translated:
				case <-ctx.Done():
					return
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if errors.Is(werr, fsnotify.ErrEventOverflow) {
					logger.Warnf("watch: event queue overflowed; some changes may have been missed")
					continue
				}
				logger.Warnf("watch: watcher error: %v", werr)
			}
		}
	}()

	return out, nil
}

func translate(ev fsnotify.Event) (Event, bool) {
	switch {
	case ev.Op&fsnotify.Create != 0:
		return Event{Type: Create, Path: ev.Name}, true
	case ev.Op&fsnotify.Remove != 0:
		return Event{Type: Remove, Path: ev.Name}, true
	case ev.Op&fsnotify.Write != 0:
		return Event{Type: Modify, Path: ev.Name}, true
	case ev.Op&fsnotify.Rename != 0:
		return Event{Type: Remove, Path: ev.Name}, true
	case ev.Op&fsnotify.Chmod != 0:
		return Event{}, false
	default:
		return Event{}, false
	}
}
