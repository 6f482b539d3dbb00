package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

// setupCmd is intentionally a thin stub. The upstream tools this proxy is
// modeled on rewrite specific client config files (e.g. an IDE's MCP
// server list) to point at a managed command; that per-client rewriting is
// out of scope here. This only prints the line a user needs to paste into
// their client's own configuration.
var setupCmd = &cobra.Command{
	Use:   "setup [client]",
	Short: "Print the command line to paste into an MCP client's config",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client := "your MCP client"
		if len(args) == 1 {
			client = args[0]
		}
		fmt.Printf("mcpmon does not rewrite %s's configuration automatically.\n", client)
		fmt.Println("Point its MCP server entry at:")
		fmt.Println("    mcpmon run -- <your-server-command> [args...]")
		return nil
	},
}
