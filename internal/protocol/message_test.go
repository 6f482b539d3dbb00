package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	m, err := Parse(raw)
	require.NoError(t, err)
	assert.True(t, m.IsRequest())
	assert.False(t, m.IsNotification())
	assert.False(t, m.IsResponse())
	assert.Equal(t, "tools/list", m.Method)
}

func TestParseNotification(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","method":"notifications/tools/list_changed"}`)
	m, err := Parse(raw)
	require.NoError(t, err)
	assert.False(t, m.IsRequest())
	assert.True(t, m.IsNotification())
	assert.False(t, m.IsResponse())
}

func TestParseResponse(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`)
	m, err := Parse(raw)
	require.NoError(t, err)
	assert.False(t, m.IsRequest())
	assert.False(t, m.IsNotification())
	assert.True(t, m.IsResponse())
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestNewErrorResponse(t *testing.T) {
	id := json.RawMessage(`42`)
	m := NewErrorResponse(id, ErrCodeTimeout, "request timed out")
	assert.Equal(t, "2.0", m.JSONRPC)
	assert.Equal(t, id, m.ID)
	require.NotNil(t, m.Error)
	assert.Equal(t, ErrCodeTimeout, m.Error.Code)

	out, err := Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"code":-32001`)
}

func TestIDStringDistinguishesNumberAndString(t *testing.T) {
	numeric, err := Parse([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.NoError(t, err)
	stringy, err := Parse([]byte(`{"jsonrpc":"2.0","id":"1","method":"ping"}`))
	require.NoError(t, err)
	assert.NotEqual(t, numeric.IDString(), stringy.IDString())
}
