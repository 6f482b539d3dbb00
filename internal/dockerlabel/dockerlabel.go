// Package dockerlabel injects mcpmon tracking labels into a `docker run`
// argv and makes a best-effort lookup of the resulting container id.
//
// This mutates the argv of an opaque, caller-supplied `docker run` command
// before exec'ing it, rather than building a container.Config through the
// Docker SDK -- there is no creation-time API in hand to attach labels
// through.
package dockerlabel

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/neilopet/mcpmon/internal/logger"
)

// ManagedLabel, SessionLabel, PIDLabel, and StartedLabel are the exact
// label keys injected on every `docker run` child.
const (
	ManagedLabel = "mcpmon.managed"
	SessionLabel = "mcpmon.session"
	PIDLabel     = "mcpmon.pid"
	StartedLabel = "mcpmon.started"
)

// IsDockerRun reports whether command/args represent a `docker run`
// invocation: command is "docker" and the first non-flag argument is "run".
func IsDockerRun(command string, args []string) bool {
	if command != "docker" {
		return false
	}
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			continue
		}
		return a == "run"
	}
	return false
}

// InjectLabels returns a copy of args with four `--label k=v` pairs spliced
// in immediately after the literal "run" argument. No detach flag is added;
// stdio must remain attached for the proxy to forward it.
func InjectLabels(args []string, sessionID string, proxyPid int, startedUnixMs int64) []string {
	runIdx := -1
	for i, a := range args {
		if a == "run" {
			runIdx = i
			break
		}
	}
	if runIdx == -1 {
		return args
	}

	labels := []string{
		"--label", fmt.Sprintf("%s=true", ManagedLabel),
		"--label", fmt.Sprintf("%s=%s", SessionLabel, sessionID),
		"--label", fmt.Sprintf("%s=%d", PIDLabel, proxyPid),
		"--label", fmt.Sprintf("%s=%d", StartedLabel, startedUnixMs),
	}

	out := make([]string, 0, len(args)+len(labels))
	out = append(out, args[:runIdx+1]...)
	out = append(out, labels...)
	out = append(out, args[runIdx+1:]...)
	return out
}

// BestEffortContainerID runs `docker ps -q --latest --filter
// label=mcpmon.session=<sessionID>` to find the container id just started.
// Failure is logged and yields an empty string; a missing container id is
// not fatal to the restart cycle.
func BestEffortContainerID(ctx context.Context, sessionID string) string {
	queryCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	cmd := exec.CommandContext(queryCtx, "docker", "ps", "-q", "--latest",
		"--filter", fmt.Sprintf("label=%s=%s", SessionLabel, sessionID))
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		logger.Debugf("best-effort container id lookup failed: %v", err)
		return ""
	}
	return strings.TrimSpace(out.String())
}
