package app

import (
	"github.com/spf13/cobra"

	"github.com/neilopet/mcpmon/extensions/archive"
	"github.com/neilopet/mcpmon/extensions/audit"
	"github.com/neilopet/mcpmon/internal/config"
	"github.com/neilopet/mcpmon/internal/hooks"
	"github.com/neilopet/mcpmon/internal/logger"
	"github.com/neilopet/mcpmon/internal/metrics"
)

var rootCmd = &cobra.Command{
	Use:   "mcpmon",
	Short: "mcpmon is a transparent hot-reload proxy for MCP servers",
	Long: `mcpmon sits between an MCP client and a real MCP server process. It
forwards every message unmodified, watches the server's source for changes,
and swaps the child process in place when something changes -- replaying
the initialize handshake and refreshing the tool list so the client never
has to reconnect.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd builds the mcpmon command tree.
func NewRootCmd() *cobra.Command {
	rootCmd.SilenceUsage = true
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
	return rootCmd
}

// defaultExtensionRegistry builds the Extension Registry with the bundled
// extensions wired in, configured from cfg. Each registrant treats an
// empty path as "disabled" and becomes a no-op. m is shared with the
// Proxy's own metrics so audited events are counted on the same
// Prometheus registry the /metrics endpoint exposes.
func defaultExtensionRegistry(cfg *config.ProxyConfig, m *metrics.Metrics) *hooks.Registry {
	reg := hooks.NewRegistry()
	reg.Register(archive.New(&archive.Config{
		Enabled:        cfg.ArchiveDBPath != "",
		Path:           cfg.ArchiveDBPath,
		ThresholdBytes: cfg.ArchiveThresholdBytes,
	}))
	reg.Register(audit.New(&audit.Config{
		Enabled:   cfg.AuditLogPath != "",
		Path:      cfg.AuditLogPath,
		Component: "mcpmon",
	}, m))
	return reg
}
