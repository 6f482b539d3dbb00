// Command mcpmon is a transparent hot-reload proxy for MCP servers.
package main

import (
	"fmt"
	"os"

	"github.com/neilopet/mcpmon/cmd/mcpmon/app"
	mcperrors "github.com/neilopet/mcpmon/internal/errors"
	"github.com/neilopet/mcpmon/internal/logger"
)

func main() {
	logger.Initialize()
	if err := app.NewRootCmd().Execute(); err != nil {
		reportAndExit(err)
	}
}

// reportAndExit prints a clearer message for the startup failures a user is
// most likely to hit directly, then exits 1. Cobra has already printed the
// raw error by this point; this only adds a hint for the common cases.
func reportAndExit(err error) {
	switch {
	case mcperrors.IsLockHeld(err):
		fmt.Fprintln(os.Stderr, "hint: another mcpmon instance is already using this archive database")
	case mcperrors.IsConfigInvalid(err):
		fmt.Fprintln(os.Stderr, "hint: run `mcpmon run -- <command> [args...]`")
	case mcperrors.IsSpawnFailed(err):
		fmt.Fprintln(os.Stderr, "hint: check that the child command exists and is executable")
	}
	os.Exit(1)
}
