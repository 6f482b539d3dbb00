package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neilopet/mcpmon/internal/buffer"
	"github.com/neilopet/mcpmon/internal/hooks"
	"github.com/neilopet/mcpmon/internal/protocol"
	"github.com/neilopet/mcpmon/internal/session"
)

func newTestForwarder(clientOut *bytes.Buffer, h *hooks.Hooks) (*Forwarder, *session.State, *buffer.Buffer, *atomic.Bool) {
	sess := session.New()
	buf := buffer.New(0)
	restarting := &atomic.Bool{}
	if h == nil {
		h = &hooks.Hooks{}
	}
	return New(clientOut, sess, buf, restarting, h), sess, buf, restarting
}

func TestPumpAForwardsToChildAndCapturesInitialize(t *testing.T) {
	var clientOut bytes.Buffer
	f, sess, _, _ := newTestForwarder(&clientOut, nil)
	var childIn bytes.Buffer
	f.SetChildStdin(&childIn)

	r := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"a":1}}` + "\n")
	require.NoError(t, f.PumpA(context.Background(), r))

	assert.JSONEq(t, `{"a":1}`, string(sess.InitializeParams()))
	assert.Contains(t, childIn.String(), `"method":"initialize"`)
}

func TestPumpABuffersDuringRestart(t *testing.T) {
	var clientOut bytes.Buffer
	f, _, buf, restarting := newTestForwarder(&clientOut, nil)
	var childIn bytes.Buffer
	f.SetChildStdin(&childIn)
	restarting.Store(true)

	r := strings.NewReader(`{"jsonrpc":"2.0","id":10,"method":"do"}` + "\n")
	require.NoError(t, f.PumpA(context.Background(), r))

	assert.Empty(t, childIn.Bytes())
	assert.Equal(t, 1, buf.Len())
}

func TestPumpAToolsListAlwaysForwardedEvenDuringRestart(t *testing.T) {
	var clientOut bytes.Buffer
	f, sess, buf, restarting := newTestForwarder(&clientOut, nil)
	var childIn bytes.Buffer
	f.SetChildStdin(&childIn)
	restarting.Store(true)

	r := strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"tools/list","params":{}}` + "\n")
	require.NoError(t, f.PumpA(context.Background(), r))

	assert.Contains(t, childIn.String(), `"method":"tools/list"`)
	assert.Equal(t, 0, buf.Len())
	assert.True(t, sess.TakeToolsListPending("7"))
}

func TestPumpAHandlesReservedToolCallWithoutReachingChild(t *testing.T) {
	var clientOut bytes.Buffer
	h := &hooks.Hooks{
		HandleToolCall: func(_ context.Context, name string, _ json.RawMessage) (json.RawMessage, error) {
			if name == "mcpmon_status" {
				return json.RawMessage(`{"ok":true}`), nil
			}
			return nil, nil
		},
	}
	f, _, _, _ := newTestForwarder(&clientOut, h)
	var childIn bytes.Buffer
	f.SetChildStdin(&childIn)

	r := strings.NewReader(`{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"mcpmon_status","arguments":{}}}` + "\n")
	require.NoError(t, f.PumpA(context.Background(), r))

	assert.Empty(t, childIn.Bytes())
	resp, err := protocol.Parse(bytes.TrimSpace(clientOut.Bytes()))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Result))
}

func TestPumpBInjectsExtensionTools(t *testing.T) {
	var clientOut bytes.Buffer
	h := &hooks.Hooks{
		GetAdditionalTools: func(_ context.Context) ([]hooks.ToolDescriptor, error) {
			return []hooks.ToolDescriptor{json.RawMessage(`{"name":"mcpmon_x"}`)}, nil
		},
	}
	f, sess, _, _ := newTestForwarder(&clientOut, h)
	sess.MarkToolsListPending("7")

	r := strings.NewReader(`{"jsonrpc":"2.0","id":7,"result":{"tools":[{"name":"t"}]}}` + "\n")
	require.NoError(t, f.PumpB(context.Background(), r))

	resp, err := protocol.Parse(bytes.TrimSpace(clientOut.Bytes()))
	require.NoError(t, err)
	var result toolsListResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Len(t, result.Tools, 2)
}

func TestPumpBClaimedResponseNotForwardedToClient(t *testing.T) {
	var clientOut bytes.Buffer
	f, _, _, _ := newTestForwarder(&clientOut, nil)
	f.ResponseObserved = func(m *protocol.Message) bool { return m.IDString() == "1" }

	r := strings.NewReader(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}` + "\n")
	require.NoError(t, f.PumpB(context.Background(), r))

	assert.Empty(t, clientOut.Bytes())
}

type fakeMetricsRecorder struct {
	forwarded    map[string]int
	hookFailures map[string]int
}

func newFakeMetricsRecorder() *fakeMetricsRecorder {
	return &fakeMetricsRecorder{forwarded: map[string]int{}, hookFailures: map[string]int{}}
}

func (f *fakeMetricsRecorder) IncForwarded(direction string)  { f.forwarded[direction]++ }
func (f *fakeMetricsRecorder) IncHookFailure(stage string)    { f.hookFailures[stage]++ }

func TestForwarderRecordsForwardedMessageMetrics(t *testing.T) {
	var clientOut bytes.Buffer
	f, _, _, _ := newTestForwarder(&clientOut, nil)
	var childIn bytes.Buffer
	f.SetChildStdin(&childIn)
	rec := newFakeMetricsRecorder()
	f.Metrics = rec

	r := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"do"}` + "\n")
	require.NoError(t, f.PumpA(context.Background(), r))

	assert.Equal(t, 1, rec.forwarded["to_child"])
}

func TestForwarderRecordsHookFailureMetrics(t *testing.T) {
	var clientOut bytes.Buffer
	h := &hooks.Hooks{
		BeforeStdinForward: func(_ context.Context, _ *protocol.Message) (*protocol.Message, error) {
			return nil, assert.AnError
		},
	}
	f, _, _, _ := newTestForwarder(&clientOut, h)
	var childIn bytes.Buffer
	f.SetChildStdin(&childIn)
	rec := newFakeMetricsRecorder()
	f.Metrics = rec

	r := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"do"}` + "\n")
	require.NoError(t, f.PumpA(context.Background(), r))

	assert.Equal(t, 1, rec.hookFailures["beforeStdinForward"])
}

func TestPumpBPassThroughIdentityWithNoExtensions(t *testing.T) {
	var clientOut bytes.Buffer
	f, _, _, _ := newTestForwarder(&clientOut, nil)

	line := `{"jsonrpc":"2.0","id":5,"result":{"value":42}}`
	r := strings.NewReader(line + "\n")
	require.NoError(t, f.PumpB(context.Background(), r))

	got, err := protocol.Parse(bytes.TrimSpace(clientOut.Bytes()))
	require.NoError(t, err)
	want, err := protocol.Parse([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
