// Package cli defines the toolgate command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the toolgate root command with all subcommands.
func NewRootCommand(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "toolgate",
		Short: "Toolgate - MCP tool aggregation proxy",
		Long: `Toolgate sits between an MCP client and a backend MCP server, speaking
JSON-RPC 2.0 over stdio on both sides. It forwards the backend's tools with
compressed descriptions, adds plugin management tools, and exposes tools from
locally installed plugins alongside the backend's own.

Point your MCP client at "toolgate serve -- <backend command>" instead of the
backend command itself.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.AddCommand(newServeCommand(version))
	rootCmd.AddCommand(newPluginsCommand())
	rootCmd.AddCommand(newStatsCommand())
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}
