package transport

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/neilopet/mcpmon/internal/buffer"
	mcperrors "github.com/neilopet/mcpmon/internal/errors"
	"github.com/neilopet/mcpmon/internal/hooks"
	"github.com/neilopet/mcpmon/internal/logger"
	"github.com/neilopet/mcpmon/internal/protocol"
	"github.com/neilopet/mcpmon/internal/session"
)

// ToolCallParams is the shape of a tools/call request's params: a tool name
// and opaque arguments the proxy never interprets beyond the name.
type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// toolsListResult is the shape of a tools/list response's result, just
// enough to splice extension tools into the tools array.
type toolsListResult struct {
	Tools []json.RawMessage `json:"tools"`
}

// ChildWriter abstracts the current child's stdin so the Forwarder can be
// handed a fresh writer after every restart without knowing about process
// handles.
type ChildWriter interface {
	io.Writer
}

// MetricsRecorder is the narrow slice of internal/metrics.Metrics the
// Forwarder needs, kept as a small interface here so transport does not
// import the metrics package.
type MetricsRecorder interface {
	IncForwarded(direction string)
	IncHookFailure(stage string)
}

// Forwarder runs the three pumps and serializes writes to the child's
// stdin and the client's stdout: one writer at a time per channel.
type Forwarder struct {
	clientStdoutMu sync.Mutex
	clientStdout   io.Writer

	childMu    sync.Mutex
	childStdin ChildWriter

	session    *session.State
	buf        *buffer.Buffer
	restarting *atomic.Bool
	hooks      *hooks.Hooks

	// ResponseObserved, if set, is invoked for every message Pump B writes
	// to the client; used by the Restart Controller's correlator to claim
	// responses to its own proxy-originated requests before they would
	// otherwise be written to the client. Returns true if the message was
	// claimed (and Pump B must not write it to the client).
	ResponseObserved func(m *protocol.Message) bool

	// ReservedToolPrefixes lists the prefixes that mark a tools/call name
	// as proxy-internal: "mcpmon_" and "mcpmon.".
	ReservedToolPrefixes []string

	// Metrics, if set, records forwarded-message and hook-failure counts.
	Metrics MetricsRecorder
}

// New builds a Forwarder. hooks must not be nil; pass &hooks.Hooks{} (or a
// Registry's merged Hooks with no registrants) when no extensions exist.
func New(clientStdout io.Writer, sess *session.State, buf *buffer.Buffer, restarting *atomic.Bool, h *hooks.Hooks) *Forwarder {
	return &Forwarder{
		clientStdout:         clientStdout,
		session:              sess,
		buf:                  buf,
		restarting:           restarting,
		hooks:                h,
		ReservedToolPrefixes: []string{"mcpmon_", "mcpmon."},
	}
}

// SetChildStdin installs the current child's stdin writer, or nil when no
// child is running (between kill and respawn).
func (f *Forwarder) SetChildStdin(w ChildWriter) {
	f.childMu.Lock()
	defer f.childMu.Unlock()
	f.childStdin = w
}

// WriteToClient serializes m with a trailing newline and writes it to the
// client's stdout under the shared write lock.
func (f *Forwarder) WriteToClient(m *protocol.Message) error {
	raw, err := protocol.Marshal(m)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')

	f.clientStdoutMu.Lock()
	_, err = f.clientStdout.Write(raw)
	f.clientStdoutMu.Unlock()

	if err == nil && f.Metrics != nil {
		f.Metrics.IncForwarded("to_client")
	}
	return err
}

// WriteRawToClient writes a non-JSON line through verbatim.
func (f *Forwarder) WriteRawToClient(line string) error {
	f.clientStdoutMu.Lock()
	defer f.clientStdoutMu.Unlock()
	_, err := f.clientStdout.Write([]byte(line + "\n"))
	return err
}

// WriteToChild writes raw to the current child's stdin under the same lock
// SetChildStdin uses, so it is the single serialization point for every
// writer of child stdin: Pump A, the Restart Controller's correlator
// replays, and its buffer drain all go through this method rather than
// writing to a process handle's stdin directly, so writes from different
// goroutines can never interleave on the pipe.
func (f *Forwarder) WriteToChild(raw []byte) error {
	f.childMu.Lock()
	defer f.childMu.Unlock()
	if f.childStdin == nil {
		return mcperrors.NewChildNotRunningError("write to child: no child stdin installed", nil)
	}
	_, err := f.childStdin.Write(raw)
	if err == nil && f.Metrics != nil {
		f.Metrics.IncForwarded("to_child")
	}
	return err
}

func (f *Forwarder) hasReservedPrefix(name string) bool {
	for _, p := range f.ReservedToolPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// PumpA is the client-stdin → child-stdin pump. It is a singleton: started
// once, kept running across restarts, guarded by the caller against being
// started twice.
func (f *Forwarder) PumpA(ctx context.Context, clientStdin io.Reader) error {
	return Run(ctx, clientStdin, func(e Event) {
		if !e.IsMessage() {
			// Step 1: unparseable line, forward verbatim to the current
			// child if any.
			if err := f.WriteToChild([]byte(e.Raw + "\n")); err != nil {
				logger.Debugf("pump A: forward raw line failed: %v", err)
			}
			return
		}
		f.handleClientMessage(ctx, e.Message)
	})
}

func (f *Forwarder) handleClientMessage(ctx context.Context, m *protocol.Message) {
	// Step 2: beforeStdinForward hook.
	if f.hooks != nil && f.hooks.BeforeStdinForward != nil {
		modified, err := f.hooks.BeforeStdinForward(ctx, m)
		if err != nil {
			logger.Warnf("beforeStdinForward hook failed: %v; using original message", err)
			if f.Metrics != nil {
				f.Metrics.IncHookFailure("beforeStdinForward")
			}
		} else if modified != nil {
			m = modified
		}
	}

	// Step 3: capture initialize params.
	if m.Method == "initialize" {
		f.session.CaptureInitialize(m.Params)
	}

	// Step 4: tools/list is always forwarded, exempted from the
	// restart-buffer branch.
	if m.Method == "tools/list" && m.IsRequest() {
		f.session.MarkToolsListPending(m.IDString())
		raw, err := protocol.Marshal(m)
		if err == nil {
			raw = append(raw, '\n')
			if err := f.WriteToChild(raw); err != nil {
				logger.Debugf("pump A: forward tools/list failed: %v", err)
			}
		}
		return
	}

	// Step 5: reserved-prefix tools/call handled in-proxy.
	if m.Method == "tools/call" && f.hooks != nil && f.hooks.HandleToolCall != nil {
		var params ToolCallParams
		if err := json.Unmarshal(m.Params, &params); err == nil && f.hasReservedPrefix(params.Name) {
			result, err := f.hooks.HandleToolCall(ctx, params.Name, params.Arguments)
			if err != nil {
				if f.Metrics != nil {
					f.Metrics.IncHookFailure("handleToolCall")
				}
				data, _ := json.Marshal(map[string]string{"toolName": params.Name})
				resp := &protocol.Message{
					JSONRPC: "2.0", ID: m.ID,
					Error: &protocol.RPCError{Code: protocol.ErrCodeInternalError, Message: err.Error(), Data: data},
				}
				if werr := f.WriteToClient(resp); werr != nil {
					logger.Warnf("pump A: write tool-call error response failed: %v", werr)
				}
				return
			}
			if result != nil {
				resp := &protocol.Message{JSONRPC: "2.0", ID: m.ID, Result: result}
				if werr := f.WriteToClient(resp); werr != nil {
					logger.Warnf("pump A: write tool-call response failed: %v", werr)
				}
				return
			}
			// Fall through: hook declined to handle it.
		}
	}

	// Step 6: buffer during restart, else forward.
	raw, err := protocol.Marshal(m)
	if err != nil {
		logger.Warnf("pump A: marshal client message failed: %v", err)
		return
	}
	raw = append(raw, '\n')

	if f.restarting.Load() {
		f.buf.Append(m)
		return
	}
	if err := f.WriteToChild(raw); err != nil {
		logger.Debugf("pump A: forward to child failed: %v", err)
	}
}

// PumpB is the child-stdout → client-stdout pump. It is recreated per
// child; its caller should stop calling it once the child's stdout reader
// returns EOF.
func (f *Forwarder) PumpB(ctx context.Context, childStdout io.Reader) error {
	return Run(ctx, childStdout, func(e Event) {
		if !e.IsMessage() {
			if err := f.WriteRawToClient(e.Raw); err != nil {
				logger.Debugf("pump B: forward raw line failed: %v", err)
			}
			return
		}
		f.handleChildMessage(ctx, e.Message)
	})
}

func (f *Forwarder) handleChildMessage(ctx context.Context, m *protocol.Message) {
	// Step 1: tools/list response injection.
	if m.IsResponse() && f.session.TakeToolsListPending(m.IDString()) && len(m.Result) > 0 {
		var result toolsListResult
		if err := json.Unmarshal(m.Result, &result); err == nil {
			if f.hooks != nil && f.hooks.GetAdditionalTools != nil {
				extra, err := f.hooks.GetAdditionalTools(ctx)
				if err != nil {
					logger.Warnf("getAdditionalTools hook failed: %v; forwarding without injection", err)
					if f.Metrics != nil {
						f.Metrics.IncHookFailure("getAdditionalTools")
					}
				} else {
					result.Tools = append(result.Tools, extra...)
					if merged, err := json.Marshal(result); err == nil {
						m.Result = merged
					}
				}
			}
		}
	}

	// Step 2: afterStdoutReceive hook.
	if f.hooks != nil && f.hooks.AfterStdoutReceive != nil {
		modified, err := f.hooks.AfterStdoutReceive(ctx, m)
		if err != nil {
			logger.Warnf("afterStdoutReceive hook failed: %v; using original message", err)
			if f.Metrics != nil {
				f.Metrics.IncHookFailure("afterStdoutReceive")
			}
		} else if modified != nil {
			m = modified
		}
	}

	// Step 4 (checked before the write so a claimed response is not also
	// delivered to the client): if this response belongs to a
	// proxy-originated request, the correlator claims it instead.
	if f.ResponseObserved != nil && f.ResponseObserved(m) {
		return
	}

	// Step 3: write to client.
	if err := f.WriteToClient(m); err != nil {
		logger.Warnf("pump B: write to client failed: %v", err)
	}
}

// PumpC is the child-stderr → client-stderr pump: a pure byte copy, no
// framing, no hooks.
func (f *Forwarder) PumpC(ctx context.Context, childStderr io.Reader, clientStderr io.Writer) error {
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(clientStderr, childStderr)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
