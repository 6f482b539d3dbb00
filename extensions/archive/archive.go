// Package archive is the bundled response-archive extension: large
// tools/call results are persisted to an embedded SQLite database and
// replaced with a short pointer, retrievable later via the synthetic
// mcpmon_fetch_archived tool.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	mcperrors "github.com/neilopet/mcpmon/internal/errors"
	"github.com/neilopet/mcpmon/internal/hooks"
	"github.com/neilopet/mcpmon/internal/lockfile"
	"github.com/neilopet/mcpmon/internal/protocol"
)

const fetchToolName = "mcpmon_fetch_archived"

// toolsCallResult is the shape of a tools/call response's result, just
// enough to rewrite its content array.
type toolsCallResult struct {
	Content []json.RawMessage `json:"content"`
}

// fetchArchivedParams is mcpmon_fetch_archived's single argument.
type fetchArchivedParams struct {
	ID string `json:"id"`
}

// Archiver implements hooks.Registrant.
type Archiver struct {
	cfg *Config

	store *Store
	lock  *flock.Flock

	mu      sync.Mutex
	pending map[string]struct{}
}

// New builds an Archiver from cfg.
func New(cfg *Config) *Archiver {
	return &Archiver{cfg: cfg, pending: make(map[string]struct{})}
}

func (a *Archiver) Name() string { return "archive" }

func (a *Archiver) Initialize(_ context.Context, h *hooks.Hooks) error {
	if !a.cfg.Enabled {
		return nil
	}

	a.lock = lockfile.NewTrackedLock(a.cfg.Path + ".lock")
	locked, err := a.lock.TryLock()
	if err != nil {
		return mcperrors.NewLockHeldError("archive: acquire lock", err)
	}
	if !locked {
		return mcperrors.NewLockHeldError(fmt.Sprintf("archive: database %s is locked by another mcpmon instance", a.cfg.Path), nil)
	}

	store, err := OpenStore(a.cfg.Path)
	if err != nil {
		lockfile.ReleaseTrackedLock(a.cfg.Path+".lock", a.lock)
		return err
	}
	a.store = store

	threshold := a.cfg.ThresholdBytes
	if threshold <= 0 {
		threshold = DefaultThresholdBytes
	}

	h.BeforeStdinForward = func(_ context.Context, m *protocol.Message) (*protocol.Message, error) {
		if m.Method == "tools/call" && m.IsRequest() {
			a.markPending(m.IDString())
		}
		return m, nil
	}

	h.AfterStdoutReceive = func(_ context.Context, m *protocol.Message) (*protocol.Message, error) {
		if !m.IsResponse() || !a.takePending(m.IDString()) || m.Error != nil {
			return m, nil
		}
		if len(m.Result) <= threshold {
			return m, nil
		}
		if err := a.archiveResult(m); err != nil {
			return m, nil
		}
		return m, nil
	}

	h.HandleToolCall = func(_ context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
		if name != fetchToolName {
			return nil, nil
		}
		var params fetchArchivedParams
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, mcperrors.NewInvalidArgumentError(fmt.Sprintf("archive: invalid %s arguments", fetchToolName), err)
		}
		content, found, err := a.store.Get(params.ID)
		if err != nil {
			return nil, mcperrors.NewArchiveFailedError(fmt.Sprintf("archive: fetch %s", params.ID), err)
		}
		if !found {
			return nil, mcperrors.NewArchiveFailedError(fmt.Sprintf("archive: no archived response for id %s", params.ID), nil)
		}
		return json.Marshal(map[string]json.RawMessage{"result": content})
	}

	return nil
}

func (a *Archiver) archiveResult(m *protocol.Message) error {
	id := uuid.NewString()
	if err := a.store.Put(id, m.Result); err != nil {
		return err
	}

	pointer := toolsCallResult{
		Content: []json.RawMessage{
			mustMarshal(map[string]string{
				"type": "text",
				"text": fmt.Sprintf("[archived: %s, %d bytes]", id, len(m.Result)),
			}),
		},
	}
	raw, err := json.Marshal(pointer)
	if err != nil {
		return err
	}
	m.Result = raw
	return nil
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

func (a *Archiver) markPending(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[id] = struct{}{}
}

func (a *Archiver) takePending(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pending[id]; !ok {
		return false
	}
	delete(a.pending, id)
	return true
}

func (a *Archiver) Shutdown(_ context.Context) error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	lockfile.ReleaseTrackedLock(a.cfg.Path+".lock", a.lock)
	return err
}
