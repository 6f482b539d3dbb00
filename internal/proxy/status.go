package proxy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/neilopet/mcpmon/internal/hooks"
)

// statusProvider implements the built-in mcpmon_status tool: restart
// count, current child pid, and proxy uptime, surfaced in-band over MCP
// rather than via a separate CLI command. It is registered like any other
// extension but is wired in by New itself, not by user configuration.
type statusProvider struct {
	restartCount func() int64
	currentPID   func() int
	startedAt    time.Time
}

type statusResult struct {
	RestartCount int64 `json:"restartCount"`
	ChildPID     int   `json:"childPid"`
	UptimeSecs   int64 `json:"uptimeSeconds"`
}

func (s *statusProvider) Name() string { return "core-status" }

func (s *statusProvider) Initialize(_ context.Context, h *hooks.Hooks) error {
	h.HandleToolCall = func(_ context.Context, name string, _ json.RawMessage) (json.RawMessage, error) {
		if name != "mcpmon_status" {
			return nil, nil
		}
		result := statusResult{
			RestartCount: s.restartCount(),
			ChildPID:     s.currentPID(),
			UptimeSecs:   int64(time.Since(s.startedAt).Seconds()),
		}
		return json.Marshal(result)
	}
	return nil
}

func (s *statusProvider) Shutdown(_ context.Context) error { return nil }
