package audit

import (
	"encoding/json"
	"fmt"
	"io"
)

// Config controls the audit extension's behavior.
type Config struct {
	// Enabled turns the extension on. An extension can be registered but
	// disabled, in which case it is a no-op.
	Enabled bool `json:"enabled"`

	// Path is the audit log file to append JSON lines to.
	Path string `json:"path"`

	// Component labels every event emitted by this proxy instance.
	Component string `json:"component"`

	// EventTypes, if non-empty, restricts auditing to these event types
	// (see EventTypeForMethod). ExcludeEventTypes is checked first.
	EventTypes        []string `json:"event_types,omitempty"`
	ExcludeEventTypes []string `json:"exclude_event_types,omitempty"`

	// IncludeRequestData/IncludeResponseData attach the raw message body
	// to the event, up to MaxDataSize bytes.
	IncludeRequestData  bool `json:"include_request_data"`
	IncludeResponseData bool `json:"include_response_data"`
	MaxDataSize         int  `json:"max_data_size"`
}

// DefaultConfig returns a Config with data capture off and a 1KB cap.
func DefaultConfig() *Config {
	return &Config{MaxDataSize: 1024}
}

// LoadFromReader decodes a JSON-encoded Config, defaulting MaxDataSize
// when the input omits it.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	if err := json.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode audit config: %w", err)
	}
	if cfg.MaxDataSize <= 0 {
		cfg.MaxDataSize = 1024
	}
	return cfg, nil
}

// ShouldAuditEvent reports whether eventType passes the include/exclude
// filters. An empty EventTypes list means "audit everything not excluded".
func (c *Config) ShouldAuditEvent(eventType string) bool {
	for _, excluded := range c.ExcludeEventTypes {
		if excluded == eventType {
			return false
		}
	}
	if len(c.EventTypes) == 0 {
		return true
	}
	for _, included := range c.EventTypes {
		if included == eventType {
			return true
		}
	}
	return false
}
