package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	mcperrors "github.com/neilopet/mcpmon/internal/errors"
	"github.com/neilopet/mcpmon/internal/logger"
)

// ExecManager is the default Process Manager: spawns children with os/exec
// and wires their stdio to pipes the Forwarder pumps read/write.
type ExecManager struct{}

// NewExecManager returns the default os/exec-backed Process Manager.
func NewExecManager() *ExecManager { return &ExecManager{} }

// Spawn starts command with args and env (merged over the current
// process's environment) and returns a Handle wrapping its pipes.
func (m *ExecManager) Spawn(ctx context.Context, command string, args []string, env map[string]string) (*Handle, error) {
	cmd := exec.Command(command, args...)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, mcperrors.NewSpawnFailedError("failed to open child stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, mcperrors.NewSpawnFailedError("failed to open child stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, mcperrors.NewSpawnFailedError("failed to open child stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, mcperrors.NewSpawnFailedError(fmt.Sprintf("failed to start %q", command), err)
	}

	status := make(chan ExitResult, 1)
	go func() {
		err := cmd.Wait()
		result := ExitResult{}
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				result.Code = exitErr.ExitCode()
				if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
					result.Signal = ws.Signal().String()
				}
			} else {
				result.Err = err
			}
		}
		status <- result
		close(status)
	}()

	killFn := func(signal string) error {
		if cmd.Process == nil {
			return nil
		}
		sig := syscall.SIGTERM
		if signal == "KILL" {
			sig = syscall.SIGKILL
		}
		if err := cmd.Process.Signal(sig); err != nil {
			logger.Debugf("signal %s to pid %d: %v", signal, cmd.Process.Pid, err)
			return err
		}
		return nil
	}

	pid := 0
	if cmd.Process != nil {
		pid = cmd.Process.Pid
	}

	_ = ctx
	return NewHandle(pid, stdin, stdout, stderr, status, killFn), nil
}
