// Package proxy wires the Supervisor, Forwarder, Restart Controller,
// Change Source, and Extension Registry into a single top-level control
// loop: the Supervisor owns all other components.
package proxy

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neilopet/mcpmon/internal/buffer"
	"github.com/neilopet/mcpmon/internal/config"
	"github.com/neilopet/mcpmon/internal/containerkill"
	"github.com/neilopet/mcpmon/internal/correlator"
	"github.com/neilopet/mcpmon/internal/hooks"
	"github.com/neilopet/mcpmon/internal/logger"
	"github.com/neilopet/mcpmon/internal/metrics"
	"github.com/neilopet/mcpmon/internal/process"
	"github.com/neilopet/mcpmon/internal/restart"
	"github.com/neilopet/mcpmon/internal/session"
	"github.com/neilopet/mcpmon/internal/transport"
	"github.com/neilopet/mcpmon/internal/watch"
)

// handlePollInterval is how often the pump-B/C supervision loops check for
// a handle swap after a restart.
const handlePollInterval = 100 * time.Millisecond

// Proxy ties every component together for one run of `mcpmon run`.
type Proxy struct {
	cfg *config.ProxyConfig

	clientStdin  io.Reader
	clientStdout io.Writer
	clientStderr io.Writer

	supervisor *process.Supervisor
	forwarder  *transport.Forwarder
	sess       *session.State
	buf        *buffer.Buffer
	corr       *correlator.Correlator
	killer     *containerkill.Killer
	restartCtl *restart.Controller
	watchSrc   watch.Source
	metrics    *metrics.Metrics

	restarting        *atomic.Bool
	shutdownRequested *atomic.Bool
}

// New builds a Proxy from cfg. registry must already have had its
// extensions registered (not yet Initialize()'d — Run does that). watchSrc
// may be nil when cfg.WatchTargets is empty. m is the proxy's metrics
// instance, already registered against whatever registry the caller will
// expose on /metrics; callers that also wire metrics into an extension
// (e.g. the audit log) should build m once and share it, rather than
// registering a second instance against the same registry.
func New(
	cfg *config.ProxyConfig,
	clientStdin io.Reader,
	clientStdout, clientStderr io.Writer,
	registry *hooks.Registry,
	watchSrc watch.Source,
	m *metrics.Metrics,
) *Proxy {
	restarting := &atomic.Bool{}
	shutdownRequested := &atomic.Bool{}

	sess := session.New()
	buf := buffer.New(buffer.DefaultCeiling)
	corr := correlator.New()

	supervisor := process.NewSupervisor(
		process.NewExecManager(), cfg.Command, cfg.CommandArgs, cfg.Env, cfg.SessionID,
		restarting, shutdownRequested,
	)
	supervisor.OnUnexpectedExit = func(int) { m.RestartsTotal.Inc() }

	killer := containerkill.NewKiller()

	// The status provider is registered here, after any extensions the
	// caller already registered, rather than required of the caller's
	// registry setup; its restartCount field is filled in once restartCtl
	// exists below.
	status := &statusProvider{
		currentPID: func() int {
			if h := supervisor.CurrentHandle(); h != nil {
				return h.Pid
			}
			return 0
		},
		startedAt: time.Now(),
	}
	registry.Register(status)

	h := registry.Hooks()
	forwarder := transport.New(clientStdout, sess, buf, restarting, h)
	forwarder.Metrics = m

	restartCtl := restart.New(
		supervisor, forwarder, sess, buf, corr, killer, h,
		cfg.RestartDelay, cfg.KillDelay, cfg.ReadyDelay,
		restarting, shutdownRequested,
	)
	status.restartCount = restartCtl.RestartCount
	restartCtl.OnRestartComplete = func() {
		m.RestartsTotal.Inc()
		m.ChildRunning.Set(1)
	}

	return &Proxy{
		cfg:               cfg,
		clientStdin:       clientStdin,
		clientStdout:      clientStdout,
		clientStderr:      clientStderr,
		supervisor:        supervisor,
		forwarder:         forwarder,
		sess:              sess,
		buf:               buf,
		corr:              corr,
		killer:            killer,
		restartCtl:        restartCtl,
		watchSrc:          watchSrc,
		metrics:           m,
		restarting:        restarting,
		shutdownRequested: shutdownRequested,
	}
}

// Run spawns the initial child, starts every pump and loop under one
// cancellable errgroup, and blocks until ctx is canceled or a mandatory
// activity fails. On return, the child is killed synchronously.
func (p *Proxy) Run(ctx context.Context, registry *hooks.Registry) error {
	if err := registry.Initialize(ctx); err != nil {
		return err
	}
	defer func() {
		if err := registry.Shutdown(context.Background()); err != nil {
			logger.Warnf("proxy: extension shutdown failed: %v", err)
		}
	}()

	if err := p.supervisor.Spawn(ctx); err != nil {
		return err
	}
	p.forwarder.SetChildStdin(p.supervisor.CurrentHandle().Stdin)
	p.metrics.ChildRunning.Set(1)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	// Pump A's end (client EOF or error) should tear down every other
	// activity, not just itself; errgroup only cancels gctx on a non-nil
	// return, so cancel explicitly regardless of how PumpA finished. The
	// child is also signaled directly here (rather than waiting for the
	// post-Wait kill path) because Pump B/C are blocked reading its
	// stdout/stderr and only a closed pipe unblocks them.
	g.Go(func() error {
		defer p.signalChildOnClientDisconnect()
		defer cancel()
		return p.forwarder.PumpA(gctx, p.clientStdin)
	})
	g.Go(func() error { return p.runPumpBLoop(gctx) })
	g.Go(func() error { return p.runPumpCLoop(gctx) })
	g.Go(func() error { p.supervisor.PollLoop(gctx); return nil })
	if p.watchSrc != nil && len(p.cfg.WatchTargets) > 0 {
		g.Go(func() error { return p.runWatchLoop(gctx) })
	}

	err := g.Wait()

	p.shutdownRequested.Store(true)
	p.restartCtl.Shutdown(context.Background())
	p.metrics.ChildRunning.Set(0)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// signalChildOnClientDisconnect marks shutdown requested (so the poll loop
// does not treat the coming exit as unexpected and respawn) and sends the
// current child a graceful-kill signal, so Pump B/C's blocked stdout/stderr
// reads unblock with EOF instead of hanging until process exit naturally.
func (p *Proxy) signalChildOnClientDisconnect() {
	p.shutdownRequested.Store(true)
	if h := p.supervisor.CurrentHandle(); h != nil {
		_ = h.Kill("TERM")
	}
}

func (p *Proxy) runPumpBLoop(ctx context.Context) error {
	var last *process.Handle
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		h := p.supervisor.CurrentHandle()
		if h == nil || h == last {
			time.Sleep(handlePollInterval)
			continue
		}
		last = h

		if err := p.forwarder.PumpB(ctx, h.Stdout); err != nil && ctx.Err() == nil {
			logger.Debugf("pump B: child stdout reader ended: %v", err)
		}
	}
}

func (p *Proxy) runPumpCLoop(ctx context.Context) error {
	var last *process.Handle
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		h := p.supervisor.CurrentHandle()
		if h == nil || h == last {
			time.Sleep(handlePollInterval)
			continue
		}
		last = h

		if err := p.forwarder.PumpC(ctx, h.Stderr, p.clientStderr); err != nil && ctx.Err() == nil {
			logger.Debugf("pump C: child stderr reader ended: %v", err)
		}
	}
}

func (p *Proxy) runWatchLoop(ctx context.Context) error {
	events, err := p.watchSrc.Watch(ctx, p.cfg.WatchTargets)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Type.TriggersRestart() {
				logger.Infof("change detected (%s: %s); scheduling restart", ev.Type, ev.Path)
				p.restartCtl.Trigger()
			}
		}
	}
}
