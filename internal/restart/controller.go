// Package restart implements the Restart Controller: a debounced trigger
// that serializes kill → wait → spawn → ready-wait → refresh-tools →
// notify-client → drain-buffer.
package restart

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	gopsutilprocess "github.com/shirou/gopsutil/v4/process"

	"github.com/neilopet/mcpmon/internal/buffer"
	"github.com/neilopet/mcpmon/internal/containerkill"
	"github.com/neilopet/mcpmon/internal/correlator"
	"github.com/neilopet/mcpmon/internal/hooks"
	"github.com/neilopet/mcpmon/internal/logger"
	"github.com/neilopet/mcpmon/internal/process"
	"github.com/neilopet/mcpmon/internal/protocol"
	"github.com/neilopet/mcpmon/internal/session"
	"github.com/neilopet/mcpmon/internal/transport"
)

// killWatchdog is the grace period before a graceful kill escalates to a
// force-kill.
const killWatchdog = 5 * time.Second

// toolsListResult mirrors transport's private shape for merging extension
// tools into the refreshed tool list (step 8).
type toolsListResult struct {
	Tools []json.RawMessage `json:"tools"`
}

// Controller runs restart cycles, debounced by restartDelay, and exposes a
// Shutdown seam used once at process exit.
type Controller struct {
	supervisor *process.Supervisor
	forwarder  *transport.Forwarder
	sess       *session.State
	buf        *buffer.Buffer
	corr       *correlator.Correlator
	killer     *containerkill.Killer
	hooks      *hooks.Hooks

	killDelay  time.Duration
	readyDelay time.Duration

	restarting        *atomic.Bool
	shutdownRequested *atomic.Bool

	debounce *Debounce

	restartCount atomic.Int64
	// OnRestartComplete, if set, is called after each completed restart
	// cycle (used to update metrics).
	OnRestartComplete func()
}

// New builds a Controller. restartDelay is the debounce window;
// killDelay/readyDelay are the configured pauses between kill/spawn/ready.
func New(
	supervisor *process.Supervisor,
	forwarder *transport.Forwarder,
	sess *session.State,
	buf *buffer.Buffer,
	corr *correlator.Correlator,
	killer *containerkill.Killer,
	h *hooks.Hooks,
	restartDelay, killDelay, readyDelay time.Duration,
	restarting, shutdownRequested *atomic.Bool,
) *Controller {
	c := &Controller{
		supervisor:        supervisor,
		forwarder:         forwarder,
		sess:              sess,
		buf:               buf,
		corr:              corr,
		killer:            killer,
		hooks:             h,
		killDelay:         killDelay,
		readyDelay:        readyDelay,
		restarting:        restarting,
		shutdownRequested: shutdownRequested,
	}
	c.debounce = NewDebounce(restartDelay, c.runCycle)
	forwarder.ResponseObserved = corr.Deliver
	return c
}

// Trigger schedules a restart cycle, debounced by restartDelay. Safe to
// call repeatedly; repeated calls within the window collapse to one run.
func (c *Controller) Trigger() {
	if c.shutdownRequested.Load() {
		return
	}
	c.debounce.Call()
}

// RestartCount reports how many restart cycles have completed, for
// metrics/testing.
func (c *Controller) RestartCount() int64 {
	return c.restartCount.Load()
}

func (c *Controller) runCycle() {
	if c.shutdownRequested.Load() {
		return
	}
	ctx := context.Background()

	c.restarting.Store(true)
	defer c.restarting.Store(false)

	c.killCurrentChild(ctx) // steps 2-3
	c.forwarder.SetChildStdin(nil)

	time.Sleep(c.killDelay) // step 4

	if err := c.supervisor.Spawn(ctx); err != nil { // step 5
		logger.Errorf("restart: spawn failed: %v", err)
		return
	}
	handle := c.supervisor.CurrentHandle()
	c.forwarder.SetChildStdin(handle.Stdin)

	time.Sleep(c.readyDelay) // step 6

	c.replayInitialize(ctx) // step 7
	tools := c.refreshTools(ctx) // step 8
	c.notifyClient(tools) // step 9
	c.drainBuffer() // step 10

	c.restartCount.Add(1)
	if c.OnRestartComplete != nil {
		c.OnRestartComplete()
	}
}

func (c *Controller) killCurrentChild(ctx context.Context) {
	handle := c.supervisor.CurrentHandle()
	if handle == nil {
		return
	}
	c.supervisor.MarkStopping()

	if handle.ContainerID != "" {
		c.killer.Stop(ctx, handle.ContainerID)
	}

	_ = handle.Kill("TERM")

	watchdog := time.NewTimer(killWatchdog)
	select {
	case <-handle.Status():
		watchdog.Stop()
	case <-watchdog.C:
		logger.Warnf("graceful kill timed out for pid %d; force-killing", handle.Pid)
		_ = handle.Kill("KILL")
		<-handle.Status()
	}

	if alive, _ := gopsutilprocess.PidExists(int32(handle.Pid)); alive {
		logger.Warnf("pid %d still alive after kill; forcing again", handle.Pid)
		_ = handle.Kill("KILL")
	}

	c.supervisor.ReleaseHandle()
}

func (c *Controller) replayInitialize(ctx context.Context) {
	params := c.sess.InitializeParams()
	if params == nil {
		return
	}
	ch := c.corr.Send(ctx, c.forwarder.WriteToChild, "initialize", params)
	resp := <-ch
	if resp.Error != nil {
		logger.Warnf("initialize replay failed: %s", resp.Error.Message)
	}
}

func (c *Controller) refreshTools(ctx context.Context) []json.RawMessage {
	ch := c.corr.Send(ctx, c.forwarder.WriteToChild, "tools/list", json.RawMessage(`{}`))
	resp := <-ch

	var result toolsListResult
	if resp.Error != nil {
		logger.Warnf("tools/list refresh failed: %s", resp.Error.Message)
	} else if len(resp.Result) > 0 {
		_ = json.Unmarshal(resp.Result, &result)
	}

	if c.hooks != nil && c.hooks.GetAdditionalTools != nil {
		extra, err := c.hooks.GetAdditionalTools(ctx)
		if err != nil {
			logger.Warnf("getAdditionalTools during refresh failed: %v", err)
		} else {
			result.Tools = append(result.Tools, extra...)
		}
	}
	return result.Tools
}

func (c *Controller) notifyClient(tools []json.RawMessage) {
	params, err := json.Marshal(map[string]any{"tools": tools})
	if err != nil {
		logger.Errorf("marshal tools_list_changed params failed: %v", err)
		return
	}
	notif := &protocol.Message{
		JSONRPC: "2.0",
		Method:  "notifications/tools/list_changed",
		Params:  params,
	}
	if err := c.forwarder.WriteToClient(notif); err != nil {
		logger.Warnf("write tools_list_changed failed: %v", err)
	}
}

func (c *Controller) drainBuffer() {
	for _, m := range c.buf.Drain() {
		raw, err := protocol.Marshal(m)
		if err != nil {
			logger.Warnf("drain buffer: marshal failed: %v", err)
			continue
		}
		raw = append(raw, '\n')
		if err := c.forwarder.WriteToChild(raw); err != nil {
			logger.Warnf("drain buffer: write failed: %v", err)
		}
	}
}

// Shutdown cancels any pending debounced restart, kills the current child
// synchronously, and rejects every outstanding proxy-originated request.
func (c *Controller) Shutdown(ctx context.Context) {
	c.debounce.Clear()
	c.killCurrentChild(ctx)
	c.forwarder.SetChildStdin(nil)
	c.corr.RejectAll()
}
