package app

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/neilopet/mcpmon/internal/config"
	"github.com/neilopet/mcpmon/internal/lockfile"
	"github.com/neilopet/mcpmon/internal/logger"
	"github.com/neilopet/mcpmon/internal/metrics"
	"github.com/neilopet/mcpmon/internal/pidfile"
	"github.com/neilopet/mcpmon/internal/proxy"
	"github.com/neilopet/mcpmon/internal/watch"
)

// staleLockMaxAge is how long an archive lock file may sit untouched
// before a new run is willing to remove it as abandoned by a crashed
// instance (flock itself is released on process death, but the file
// on disk otherwise lingers).
const staleLockMaxAge = time.Hour

var (
	runWatch            string
	runDelayMs          int
	runVerbose          bool
	runMetricsAddr      string
	runArchiveDB        string
	runArchiveThreshold int
	runAuditLog         string
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command> [args...]",
	Short: "Run an MCP server behind the hot-reload proxy",
	Long: `run spawns <command> as a child MCP server, forwards stdio between it
and the calling client unmodified, and restarts it in place when a watched
file changes, replaying the initialize handshake so the client's session
survives the swap.

Everything after a literal -- is passed to the child verbatim, including
flags that would otherwise collide with mcpmon's own.`,
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: false,
	RunE:               runCmdFunc,
}

func init() {
	runCmd.Flags().StringVar(&runWatch, "watch", "", "Comma-separated paths to watch for changes")
	runCmd.Flags().IntVar(&runDelayMs, "delay", 0, "Debounce window in milliseconds before a restart (default 300ms)")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Enable verbose (debug) logging")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Address to serve Prometheus /metrics on (disabled if empty)")
	runCmd.Flags().StringVar(&runArchiveDB, "archive-db", "", "SQLite file to archive large tool results into (disabled if empty)")
	runCmd.Flags().IntVar(&runArchiveThreshold, "archive-threshold", 0, "Result size in bytes above which a response is archived (default 8KiB)")
	runCmd.Flags().StringVar(&runAuditLog, "audit-log", "", "File to append a JSON-lines audit trail to (disabled if empty)")
}

func runCmdFunc(cmd *cobra.Command, args []string) error {
	command, childArgs, err := splitCommand(cmd, args)
	if err != nil {
		return err
	}

	v := config.NewViper()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}

	cfg, err := config.Load(v, command, childArgs)
	if err != nil {
		return err
	}
	cfg.MetricsAddr = runMetricsAddr
	if cfg.Verbose {
		_ = os.Setenv("MCPMON_VERBOSE", "1")
		logger.Initialize()
	}

	if cfg.ArchiveDBPath != "" {
		lockfile.CleanupStaleLocks([]string{filepath.Dir(cfg.ArchiveDBPath)}, staleLockMaxAge)
	}

	if err := pidfile.WriteCurrentPIDFile(cfg.SessionID); err != nil {
		logger.Warnf("run: failed to write pid file: %v", err)
	}
	defer func() {
		if err := pidfile.RemovePIDFile(cfg.SessionID); err != nil {
			logger.Warnf("run: failed to remove pid file: %v", err)
		}
	}()
	// Final sweep: any lock a registered extension's Shutdown failed to
	// release (panic, early return) is still unlocked and removed here.
	defer lockfile.CleanupAllLocks()

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	registry := defaultExtensionRegistry(cfg, m)

	var watchSrc watch.Source
	if len(cfg.WatchTargets) > 0 {
		watchSrc = watch.NewFSSource()
	}

	p := proxy.New(cfg, os.Stdin, os.Stdout, os.Stderr, registry, watchSrc, m)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, promReg); err != nil {
				logger.Errorf("metrics server failed: %v", err)
			}
		}()
	}

	return p.Run(ctx, registry)
}

// splitCommand extracts the child command and its arguments from
// everything after the `--` separator (cobra's ArgsLenAtDash), falling
// back to treating all positional args as the command when no `--` was
// given.
func splitCommand(cmd *cobra.Command, args []string) (string, []string, error) {
	rest := args
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		rest = args[dash:]
	}
	if len(rest) == 0 {
		return "", nil, fmt.Errorf("run: no command given; usage: mcpmon run -- <command> [args...]")
	}
	return rest[0], rest[1:], nil
}
