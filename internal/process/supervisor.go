package process

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/neilopet/mcpmon/internal/dockerlabel"
	"github.com/neilopet/mcpmon/internal/logger"
)

func currentPid() int { return os.Getpid() }

// pollInterval is the supervisor's status-check cadence.
const pollInterval = 100 * time.Millisecond

// respawnBackoff is the fixed delay between spawn retries after an
// unexpected child exit; no exponential back-off is used, since there is
// no retry budget to exhaust.
const respawnBackoff = time.Second

// Supervisor owns the single current child Handle and runs the poll loop
// that detects unexpected exits and respawns without a restart cycle.
type Supervisor struct {
	mu      sync.Mutex
	manager Manager
	command string
	args    []string
	env     map[string]string
	handle  *Handle
	state   State

	sessionID string
	proxyPid  int

	restarting        *atomic.Bool
	shutdownRequested *atomic.Bool

	// OnUnexpectedExit, if set, is invoked after a respawn following an
	// unexpected child exit (for metrics/logging by the caller).
	OnUnexpectedExit func(exitCode int)
}

// NewSupervisor constructs a Supervisor. restarting and shutdownRequested
// are shared with the Restart Controller so both observe the same flags.
func NewSupervisor(manager Manager, command string, args []string, env map[string]string, sessionID string, restarting, shutdownRequested *atomic.Bool) *Supervisor {
	return &Supervisor{
		manager:           manager,
		command:           command,
		args:              args,
		env:               env,
		sessionID:         sessionID,
		proxyPid:          currentPid(),
		state:             StateNone,
		restarting:        restarting,
		shutdownRequested: shutdownRequested,
	}
}

// Spawn injects docker run labels if applicable, calls the Process
// Manager, records the handle, and transitions NONE/STOPPING → STARTING →
// RUNNING.
func (s *Supervisor) Spawn(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateStarting
	s.mu.Unlock()

	args := s.args
	if dockerlabel.IsDockerRun(s.command, s.args) {
		args = dockerlabel.InjectLabels(s.args, s.sessionID, s.proxyPid, time.Now().UnixMilli())
	}

	handle, err := s.manager.Spawn(ctx, s.command, args, s.env)
	if err != nil {
		s.mu.Lock()
		s.state = StateNone
		s.mu.Unlock()
		return err
	}

	if dockerlabel.IsDockerRun(s.command, s.args) {
		handle.ContainerID = dockerlabel.BestEffortContainerID(ctx, s.sessionID)
	}

	s.mu.Lock()
	s.handle = handle
	s.state = StateRunning
	s.mu.Unlock()
	return nil
}

// CurrentHandle returns the current child handle, or nil if none.
func (s *Supervisor) CurrentHandle() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ReleaseHandle transitions STOPPING → NONE, dropping the stored handle.
func (s *Supervisor) ReleaseHandle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = nil
	s.state = StateNone
}

// MarkStopping transitions RUNNING → STOPPING ahead of a kill.
func (s *Supervisor) MarkStopping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		s.state = StateStopping
	}
}

// PollLoop runs until ctx is done or shutdownRequested is set, watching for
// an unexpected child exit (one not caused by a deliberate restart) and
// respawning it directly, without the full restart cycle.
func (s *Supervisor) PollLoop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s.shutdownRequested.Load() {
			return
		}

		handle := s.CurrentHandle()
		if handle == nil {
			continue
		}

		select {
		case result := <-handle.Status():
			if s.restarting.Load() {
				// Expected: the restart controller is mid-kill and will
				// release/respawn itself.
				continue
			}
			logger.Warnf("child exited unexpectedly: code=%d signal=%s err=%v", result.Code, result.Signal, result.Err)
			s.MarkStopping()
			s.ReleaseHandle()
			s.respawnWithBackoff(ctx)
			if s.OnUnexpectedExit != nil {
				s.OnUnexpectedExit(result.Code)
			}
		default:
		}
	}
}

// respawnWithBackoff retries Spawn at a fixed ≈1s cadence until it
// succeeds or shutdown is requested.
func (s *Supervisor) respawnWithBackoff(ctx context.Context) {
	b := backoff.NewConstantBackOff(respawnBackoff)
	for {
		if s.shutdownRequested.Load() {
			return
		}
		if err := s.Spawn(ctx); err != nil {
			logger.Errorf("respawn failed: %v", err)
			select {
			case <-time.After(b.NextBackOff()):
			case <-ctx.Done():
				return
			}
			continue
		}
		return
	}
}
