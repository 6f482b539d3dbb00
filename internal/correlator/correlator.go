// Package correlator assigns ids to proxy-originated requests, matches
// inbound responses by id, and times each one out after a fixed interval.
package correlator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mcperrors "github.com/neilopet/mcpmon/internal/errors"
	"github.com/neilopet/mcpmon/internal/logger"
	"github.com/neilopet/mcpmon/internal/protocol"
)

// Timeout is the fixed 5-second deadline for proxy-originated requests.
const Timeout = 5 * time.Second

// pendingEntry holds what Send needs to resolve one outstanding request: a
// channel to deliver the result on and a timer to cancel once it does.
type pendingEntry struct {
	resultCh chan *protocol.Message
	timer    *time.Timer
}

// Correlator owns the proxy's own monotonically increasing request id
// space (independent of client ids) and the pending-request table.
type Correlator struct {
	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[string]*pendingEntry
}

// New returns a Correlator with its id counter starting at 1.
func New() *Correlator {
	c := &Correlator{pending: make(map[string]*pendingEntry)}
	c.nextID.Store(0)
	return c
}

// Send writes a JSON-RPC request with method/params through write under a
// freshly minted proxy id, and returns a channel that will receive exactly
// one *protocol.Message: the matched response, a synthetic timeout error,
// or a synthetic write-failure error. write must be the proxy's single
// child-stdin writer (e.g. Forwarder.WriteToChild) so this request cannot
// interleave bytes with Pump A or a buffer drain on the same pipe; if
// write is nil (no current child), the channel is resolved immediately
// with a "Server not running" error.
func (c *Correlator) Send(ctx context.Context, write func([]byte) error, method string, params json.RawMessage) <-chan *protocol.Message {
	out := make(chan *protocol.Message, 1)

	if write == nil {
		out <- protocol.NewErrorResponse(nil, protocol.ErrCodeInternalError, "Server not running")
		close(out)
		return out
	}

	id := c.nextID.Add(1)
	idRaw := json.RawMessage(fmt.Sprintf("%d", id))
	key := string(idRaw)

	entry := &pendingEntry{resultCh: out}
	c.mu.Lock()
	c.pending[key] = entry
	c.mu.Unlock()

	entry.timer = time.AfterFunc(Timeout, func() {
		timeoutErr := mcperrors.NewRequestTimeoutError(fmt.Sprintf("%s request %s timed out after %s", method, key, Timeout), nil)
		logger.Debugf("%v", timeoutErr)
		c.resolve(key, protocol.NewErrorResponse(idRaw, protocol.ErrCodeInternalError, "Request timeout"))
	})

	req := protocol.Message{JSONRPC: "2.0", ID: idRaw, Method: method, Params: params}
	raw, err := protocol.Marshal(&req)
	if err != nil {
		logger.Warnf("%v", mcperrors.NewInternalError(fmt.Sprintf("marshal proxy-originated %s request", method), err))
		c.resolve(key, protocol.NewErrorResponse(idRaw, protocol.ErrCodeInternalError, err.Error()))
		return out
	}
	raw = append(raw, '\n')

	if err := write(raw); err != nil {
		c.resolve(key, protocol.NewErrorResponse(idRaw, protocol.ErrCodeInternalError, err.Error()))
		return out
	}

	_ = ctx
	return out
}

// Deliver matches an inbound response's id against the pending table; it
// reports whether the message was claimed by a pending entry (the caller
// should not also forward a claimed message to the client as a response to
// its own request, since it was the proxy, not the client, that asked).
func (c *Correlator) Deliver(m *protocol.Message) bool {
	key := m.IDString()
	if key == "" {
		return false
	}
	return c.resolve(key, m)
}

func (c *Correlator) resolve(key string, m *protocol.Message) bool {
	c.mu.Lock()
	entry, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	entry.timer.Stop()
	entry.resultCh <- m
	close(entry.resultCh)
	return true
}

// RejectAll resolves every outstanding entry with a synthetic
// "Proxy shutting down" error; invoked once on shutdown.
func (c *Correlator) RejectAll() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.pending))
	for k := range c.pending {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	for _, k := range keys {
		c.resolve(k, protocol.NewErrorResponse(json.RawMessage(k), protocol.ErrCodeInternalError, "Proxy shutting down"))
	}
}

// Pending reports the number of outstanding proxy-originated requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
