package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"toolgate.dev/cli/internal/core/ports"
	"toolgate.dev/cli/internal/interfaces/di"
)

// newServeCommand creates the serve subcommand, the main proxy entry point.
func newServeCommand(version string) *cobra.Command {
	var noAnalytics bool

	cmd := &cobra.Command{
		Use:   "serve -- <backend-command> [args...]",
		Short: "Run the proxy in front of a backend MCP server",
		Long: `Serve starts the backend command, completes the MCP handshake with it,
and then answers the client on stdin/stdout until the client disconnects.

Examples:
  # Proxy the GitHub MCP server
  toolgate serve -- npx -y @modelcontextprotocol/server-github

  # Proxy a Python server with analytics disabled
  toolgate serve --no-analytics -- python -m my_mcp_server`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, args, version, noAnalytics)
		},
	}

	cmd.Flags().BoolVar(&noAnalytics, "no-analytics", false, "disable call analytics recording")
	return cmd
}

func runServe(cmd *cobra.Command, backendCmd []string, version string, noAnalytics bool) error {
	container, err := di.NewContainer()
	if err != nil {
		return err
	}
	container.Version = version
	defer container.Shutdown()

	if !noAnalytics {
		if err := container.OpenRecorder(); err != nil {
			// Analytics must never take the proxy down.
			container.Logger.LogError(err, "analytics disabled for this session", nil)
		}
	}

	session, err := container.NewSession(backendCmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container.Logger.Log(ports.LogLevelInfo, "starting proxy", map[string]interface{}{
		"backend_command": backendCmd[0],
	})

	return sessionExitError(session.Run(ctx, os.Stdin, os.Stdout))
}

// sessionExitError maps a session outcome to the command's exit error. A
// termination signal cancels the session context, and that stop is a
// clean shutdown; only real failures exit non-zero.
func sessionExitError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return fmt.Errorf("proxy session failed: %w", err)
}
