// Package containerkill implements the container-aware kill path: when the
// current child was started via `docker run` and a container id was
// captured, prefer stopping/killing the container over (in addition to)
// signaling the local process.
package containerkill

import (
	"context"
	"fmt"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	mcperrors "github.com/neilopet/mcpmon/internal/errors"
	"github.com/neilopet/mcpmon/internal/logger"
)

// stopTimeoutSeconds is the grace period given to `docker stop` before
// falling back to a hard kill.
const stopTimeoutSeconds = 10

// Killer stops or kills a tracked container by id using the Docker
// Engine API.
type Killer struct {
	newClient func() (APIClient, error)
}

// APIClient is the subset of the Docker SDK client this package uses,
// narrowed for mockability in tests.
type APIClient interface {
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerKill(ctx context.Context, containerID, signal string) error
	Close() error
}

// NewKiller returns a Killer that dials the Docker daemon from the
// environment (DOCKER_HOST, etc.) on each call.
func NewKiller() *Killer {
	return &Killer{
		newClient: func() (APIClient, error) {
			return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		},
	}
}

// Stop attempts `docker stop -t 10 <containerID>`, falling back to
// `docker kill` on failure. Both steps log but never return an error: the
// caller's local-process signal path and liveness check still apply
// regardless of container-stop outcome.
func (k *Killer) Stop(ctx context.Context, containerID string) {
	if containerID == "" {
		return
	}

	cli, err := k.newClient()
	if err != nil {
		logger.Warnf("%v", mcperrors.NewContainerRuntimeError("container kill: failed to create docker client", err))
		return
	}
	defer cli.Close()

	timeout := stopTimeoutSeconds
	stopErr := cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
	if stopErr == nil {
		return
	}
	if errdefs.IsNotFound(stopErr) {
		logger.Debugf("%v", mcperrors.NewContainerNotFoundError(fmt.Sprintf("container %s already gone", containerID), stopErr))
		return
	}
	logger.Warnf("%v", mcperrors.NewContainerRuntimeError(fmt.Sprintf("container stop failed for %s; attempting kill", containerID), stopErr))

	killCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.ContainerKill(killCtx, containerID, "KILL"); err != nil {
		if errdefs.IsNotFound(err) {
			logger.Debugf("%v", mcperrors.NewContainerNotFoundError(fmt.Sprintf("container %s gone before kill", containerID), err))
		} else {
			logger.Warnf("%v", mcperrors.NewContainerRuntimeError(fmt.Sprintf("container kill failed for %s", containerID), err))
		}
	}
}
