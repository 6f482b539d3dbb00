package audit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.IncludeRequestData)
	assert.False(t, cfg.IncludeResponseData)
	assert.Equal(t, 1024, cfg.MaxDataSize)
	assert.Empty(t, cfg.EventTypes)
	assert.Empty(t, cfg.ExcludeEventTypes)
}

func TestLoadFromReader(t *testing.T) {
	jsonConfig := `{
		"enabled": true,
		"path": "/tmp/audit.jsonl",
		"component": "test-component",
		"event_types": ["mcp_tool_call", "mcp_resource_read"],
		"exclude_event_types": ["mcp_ping"],
		"include_request_data": true,
		"max_data_size": 2048
	}`

	cfg, err := LoadFromReader(strings.NewReader(jsonConfig))
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "/tmp/audit.jsonl", cfg.Path)
	assert.Equal(t, "test-component", cfg.Component)
	assert.Equal(t, []string{"mcp_tool_call", "mcp_resource_read"}, cfg.EventTypes)
	assert.Equal(t, []string{"mcp_ping"}, cfg.ExcludeEventTypes)
	assert.True(t, cfg.IncludeRequestData)
	assert.Equal(t, 2048, cfg.MaxDataSize)
}

func TestLoadFromReaderInvalidJSON(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`{"invalid": }`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode audit config")
}

func TestLoadFromReaderDefaultsMaxDataSize(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`{"enabled": true}`))
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.MaxDataSize)
}

func TestShouldAuditEventNoFilters(t *testing.T) {
	cfg := &Config{}
	assert.True(t, cfg.ShouldAuditEvent("mcp_tool_call"))
}

func TestShouldAuditEventIncludeList(t *testing.T) {
	cfg := &Config{EventTypes: []string{EventTypeToolCall}}
	assert.True(t, cfg.ShouldAuditEvent(EventTypeToolCall))
	assert.False(t, cfg.ShouldAuditEvent(EventTypeResourceRead))
}

func TestShouldAuditEventExcludeTakesPrecedence(t *testing.T) {
	cfg := &Config{
		EventTypes:        []string{EventTypeToolCall, EventTypePing},
		ExcludeEventTypes: []string{EventTypePing},
	}
	assert.True(t, cfg.ShouldAuditEvent(EventTypeToolCall))
	assert.False(t, cfg.ShouldAuditEvent(EventTypePing))
	assert.False(t, cfg.ShouldAuditEvent(EventTypeResourceRead))
}

func TestEventTypeForMethod(t *testing.T) {
	tests := map[string]string{
		"initialize":                       EventTypeInitialize,
		"tools/call":                       EventTypeToolCall,
		"tools/list":                       EventTypeToolsList,
		"ping":                             EventTypePing,
		"notifications/tools/list_changed": EventTypeNotification,
		"":                                 EventTypeRequest,
		"something/weird":                  EventTypeRequest,
	}
	for method, want := range tests {
		assert.Equal(t, want, EventTypeForMethod(method), "method=%q", method)
	}
}
