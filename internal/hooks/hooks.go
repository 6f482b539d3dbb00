// Package hooks models the extension registry as a record of optional,
// precisely-typed hook functions rather than a grab-bag of callbacks, plus
// a Registry that owns extension lifecycle.
package hooks

import (
	"context"
	"encoding/json"
	"fmt"

	mcperrors "github.com/neilopet/mcpmon/internal/errors"
	"github.com/neilopet/mcpmon/internal/protocol"
)

// ToolDescriptor is a minimal MCP tool descriptor: name/description/schema,
// passed through opaquely since the proxy does not interpret tool shapes.
type ToolDescriptor = json.RawMessage

// Hooks is the set of extension points a registrant may implement. Any or
// all fields may be left nil; the core treats absence and presence
// uniformly by nil-checking before calling.
type Hooks struct {
	// BeforeStdinForward runs on every client→child message before it is
	// forwarded (Pump A step 2).
	BeforeStdinForward func(ctx context.Context, m *protocol.Message) (*protocol.Message, error)

	// AfterStdoutReceive runs on every child→client message before it is
	// written (Pump B step 2).
	AfterStdoutReceive func(ctx context.Context, m *protocol.Message) (*protocol.Message, error)

	// GetAdditionalTools returns extension-provided tool descriptors to
	// merge into a tools/list response (Pump B step 1, Restart step 8).
	GetAdditionalTools func(ctx context.Context) ([]ToolDescriptor, error)

	// HandleToolCall handles a tools/call whose name carries the reserved
	// `mcpmon_`/`mcpmon.` prefix. A nil result with nil error means "not
	// handled, fall through" (Pump A step 5).
	HandleToolCall func(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// Registrant is implemented by an extension: Initialize is called once at
// startup with a *Hooks the extension should populate by assignment;
// Shutdown is called once, in reverse registration order, on proxy exit.
type Registrant interface {
	Name() string
	Initialize(ctx context.Context, h *Hooks) error
	Shutdown(ctx context.Context) error
}

// Registry holds registered extensions and composes their individually
// registered hooks into one merged Hooks view the Forwarder consults.
// Message hooks (BeforeStdinForward/AfterStdoutReceive) chain in
// registration order, each seeing the previous one's output.
// GetAdditionalTools concatenates every extension's tools. HandleToolCall
// tries each registrant in order and stops at the first one that returns a
// non-nil result (or an error).
type Registry struct {
	registrants []Registrant
	perExt      []Hooks
	merged      Hooks
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds r to the registry. Call before Initialize.
func (reg *Registry) Register(r Registrant) {
	reg.registrants = append(reg.registrants, r)
}

// Initialize calls Initialize on every registered extension in
// registration order and builds the composed Hooks view.
func (reg *Registry) Initialize(ctx context.Context) error {
	for _, r := range reg.registrants {
		var h Hooks
		if err := r.Initialize(ctx, &h); err != nil {
			return err
		}
		reg.perExt = append(reg.perExt, h)
	}
	reg.buildMerged()
	return nil
}

func (reg *Registry) buildMerged() {
	perExt := reg.perExt
	names := make([]string, len(perExt))
	for i, r := range reg.registrants {
		names[i] = r.Name()
	}

	reg.merged.BeforeStdinForward = func(ctx context.Context, m *protocol.Message) (*protocol.Message, error) {
		cur := m
		for i, h := range perExt {
			if h.BeforeStdinForward == nil {
				continue
			}
			next, err := h.BeforeStdinForward(ctx, cur)
			if err != nil {
				return cur, wrapHookError(names[i], "beforeStdinForward", err)
			}
			cur = next
		}
		return cur, nil
	}

	reg.merged.AfterStdoutReceive = func(ctx context.Context, m *protocol.Message) (*protocol.Message, error) {
		cur := m
		for i, h := range perExt {
			if h.AfterStdoutReceive == nil {
				continue
			}
			next, err := h.AfterStdoutReceive(ctx, cur)
			if err != nil {
				return cur, wrapHookError(names[i], "afterStdoutReceive", err)
			}
			cur = next
		}
		return cur, nil
	}

	reg.merged.GetAdditionalTools = func(ctx context.Context) ([]ToolDescriptor, error) {
		var all []ToolDescriptor
		for i, h := range perExt {
			if h.GetAdditionalTools == nil {
				continue
			}
			tools, err := h.GetAdditionalTools(ctx)
			if err != nil {
				return all, wrapHookError(names[i], "getAdditionalTools", err)
			}
			all = append(all, tools...)
		}
		return all, nil
	}

	reg.merged.HandleToolCall = func(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
		for i, h := range perExt {
			if h.HandleToolCall == nil {
				continue
			}
			result, err := h.HandleToolCall(ctx, name, args)
			if err != nil {
				return nil, wrapHookError(names[i], "handleToolCall", err)
			}
			if result != nil {
				return result, nil
			}
		}
		return nil, nil
	}
}

// wrapHookError tags err with the registrant and hook that produced it, so
// callers logging a hook failure can tell which extension misbehaved.
func wrapHookError(registrant, hook string, err error) error {
	return mcperrors.NewHookFailedError(fmt.Sprintf("%s: %s hook failed", registrant, hook), err)
}

// Hooks returns the merged hook view the Forwarder should consult. Valid
// only after Initialize has been called; until then its functions are nil
// and should not be invoked (there is nothing to compose).
func (reg *Registry) Hooks() *Hooks {
	return &reg.merged
}

// Shutdown calls Shutdown on every registered extension in reverse
// registration order.
func (reg *Registry) Shutdown(ctx context.Context) error {
	var firstErr error
	for i := len(reg.registrants) - 1; i >= 0; i-- {
		if err := reg.registrants[i].Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
