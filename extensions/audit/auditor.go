package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/neilopet/mcpmon/internal/hooks"
	"github.com/neilopet/mcpmon/internal/protocol"
)

// Metrics is the narrow slice of internal/metrics.Metrics the auditor
// needs, defined locally so this extension does not import the metrics
// package. May be left nil to skip counting.
type Metrics interface {
	IncForwarded(direction string)
}

// Auditor is the bundled audit-log extension. It implements
// hooks.Registrant: Initialize opens the log file and installs
// BeforeStdinForward/AfterStdoutReceive hooks; Shutdown closes it.
type Auditor struct {
	cfg     *Config
	metrics Metrics

	mu   sync.Mutex
	file *os.File
}

// New builds an Auditor from cfg. metrics may be nil.
func New(cfg *Config, metrics Metrics) *Auditor {
	return &Auditor{cfg: cfg, metrics: metrics}
}

func (a *Auditor) Name() string { return "audit" }

func (a *Auditor) Initialize(_ context.Context, h *hooks.Hooks) error {
	if !a.cfg.Enabled {
		return nil
	}
	f, err := os.OpenFile(a.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open log file: %w", err)
	}
	a.file = f

	h.BeforeStdinForward = func(ctx context.Context, m *protocol.Message) (*protocol.Message, error) {
		a.record(ctx, DirectionToChild, m)
		return m, nil
	}
	h.AfterStdoutReceive = func(ctx context.Context, m *protocol.Message) (*protocol.Message, error) {
		a.record(ctx, DirectionToClient, m)
		return m, nil
	}
	return nil
}

func (a *Auditor) record(ctx context.Context, direction string, m *protocol.Message) {
	eventType := EventTypeForMethod(m.Method)
	if !a.cfg.ShouldAuditEvent(eventType) {
		return
	}

	_, span := otel.Tracer("mcpmon/audit").Start(ctx, "forward."+direction,
		trace.WithAttributes(
			attribute.String("mcpmon.audit.event_type", eventType),
			attribute.String("mcpmon.audit.method", m.Method),
		),
	)
	defer span.End()

	outcome := OutcomeSuccess
	if m.Error != nil {
		outcome = OutcomeError
	}

	event := NewEvent(eventType, direction, m.Method, m.IDString(), outcome, a.cfg.Component)
	a.attachData(event, direction, m)

	if a.metrics != nil {
		a.metrics.IncForwarded(direction)
	}
	a.writeLine(event)
}

func (a *Auditor) attachData(event *Event, direction string, m *protocol.Message) {
	var raw json.RawMessage
	switch {
	case direction == DirectionToChild && a.cfg.IncludeRequestData:
		raw = m.Params
	case direction == DirectionToClient && a.cfg.IncludeResponseData:
		raw = m.Result
	default:
		return
	}
	if len(raw) == 0 || len(raw) > a.cfg.MaxDataSize {
		return
	}
	event.WithData(&raw)
}

func (a *Auditor) writeLine(event *Event) {
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		_, _ = a.file.Write(line)
	}
}

func (a *Auditor) Shutdown(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	return a.file.Close()
}

