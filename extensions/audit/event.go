// Package audit is the bundled audit-log extension: it appends one JSON
// line for every forwarded message (request, response, or notification)
// and wraps each in an OpenTelemetry span.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Outcome values for an Event.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Direction values for an Event.
const (
	DirectionToChild  = "to_child"
	DirectionToClient = "to_client"
)

// MCP method-derived event types, named after the JSON-RPC method that
// produced them.
const (
	EventTypeInitialize       = "mcp_initialize"
	EventTypeToolCall         = "mcp_tool_call"
	EventTypeToolsList        = "mcp_tools_list"
	EventTypeResourceRead     = "mcp_resource_read"
	EventTypeResourcesList    = "mcp_resources_list"
	EventTypePromptGet        = "mcp_prompt_get"
	EventTypePromptsList      = "mcp_prompts_list"
	EventTypeNotification     = "mcp_notification"
	EventTypePing             = "mcp_ping"
	EventTypeRequest          = "mcp_request"
)

// EventTypeForMethod maps a JSON-RPC method name to an audit event type,
// falling back to EventTypeRequest for anything unrecognized.
func EventTypeForMethod(method string) string {
	switch method {
	case "initialize":
		return EventTypeInitialize
	case "tools/call":
		return EventTypeToolCall
	case "tools/list":
		return EventTypeToolsList
	case "resources/read":
		return EventTypeResourceRead
	case "resources/list":
		return EventTypeResourcesList
	case "prompts/get":
		return EventTypePromptGet
	case "prompts/list":
		return EventTypePromptsList
	case "ping":
		return EventTypePing
	case "":
		return EventTypeRequest
	default:
		if len(method) >= len("notifications/") && method[:len("notifications/")] == "notifications/" {
			return EventTypeNotification
		}
		return EventTypeRequest
	}
}

// Metadata carries the event's identity and freeform extras.
type Metadata struct {
	AuditID string         `json:"auditId"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// Event is one audit-logged forwarded message.
type Event struct {
	Type      string           `json:"type"`
	Direction string           `json:"direction"`
	Method    string           `json:"method,omitempty"`
	RequestID string           `json:"requestId,omitempty"`
	Outcome   string           `json:"outcome"`
	Component string           `json:"component"`
	Metadata  Metadata         `json:"metadata"`
	Data      *json.RawMessage `json:"data,omitempty"`
	LoggedAt  time.Time        `json:"loggedAt"`
}

// NewEvent builds an Event with a freshly generated audit id.
func NewEvent(eventType, direction, method, requestID, outcome, component string) *Event {
	return NewEventWithID(uuid.NewString(), eventType, direction, method, requestID, outcome, component)
}

// NewEventWithID builds an Event with a caller-supplied audit id, mainly
// for deterministic tests.
func NewEventWithID(auditID, eventType, direction, method, requestID, outcome, component string) *Event {
	return &Event{
		Type:      eventType,
		Direction: direction,
		Method:    method,
		RequestID: requestID,
		Outcome:   outcome,
		Component: component,
		Metadata:  Metadata{AuditID: auditID},
		LoggedAt:  time.Now().UTC(),
	}
}

// WithData attaches the message's raw payload to the event and returns the
// same instance for chaining.
func (e *Event) WithData(data *json.RawMessage) *Event {
	e.Data = data
	return e
}
