package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"toolgate.dev/cli/internal/core/domain"
	"toolgate.dev/cli/internal/interfaces/di"
)

var (
	pluginNameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	enabledStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46"))

	disabledStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// newPluginsCommand creates the plugins subcommand tree. These commands
// manage the local registry directly; no backend process is involved.
func newPluginsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Manage installed toolgate plugins",
	}

	cmd.AddCommand(
		newPluginsListCommand(),
		newPluginsInstallCommand(),
		newPluginsUninstallCommand(),
		newPluginsEnableCommand(),
		newPluginsDisableCommand(),
		newPluginsInfoCommand(),
	)
	return cmd
}

func newPluginsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := di.NewContainer()
			if err != nil {
				return err
			}

			records, err := container.Store.List()
			if err != nil {
				return fmt.Errorf("reading plugin registry: %w", err)
			}
			if len(records) == 0 {
				fmt.Println(dimStyle.Render("No plugins installed."))
				return nil
			}

			for _, record := range records {
				fmt.Println(renderPluginLine(record))
			}
			return nil
		},
	}
}

func renderPluginLine(record domain.PluginRecord) string {
	status := enabledStyle.Render("enabled")
	if !record.Enabled {
		status = disabledStyle.Render("disabled")
	}
	detail := fmt.Sprintf("v%s  %s  installed %s",
		record.Version,
		record.Spec,
		record.InstalledAt.Format("2006-01-02"),
	)
	return fmt.Sprintf("%s  [%s]  %s",
		pluginNameStyle.Render(record.Name),
		status,
		dimStyle.Render(detail),
	)
}

func newPluginsInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install <owner/repo[/subpath]>",
		Short: "Install a plugin from a GitHub repository",
		Long: `Install fetches a plugin from GitHub, validates its plugin.json manifest,
installs its npm dependencies if it has a package.json, and enables it.

Examples:
  toolgate plugins install example/weather-tools
  toolgate plugins install example/monorepo/plugins/search`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := di.NewContainer()
			if err != nil {
				return err
			}

			record, err := container.Installer.Install(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("installing %s: %w", args[0], err)
			}
			fmt.Printf("Installed %s v%s\n", pluginNameStyle.Render(record.Name), record.Version)
			return nil
		},
	}
}

func newPluginsUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <name>",
		Short: "Remove an installed plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := di.NewContainer()
			if err != nil {
				return err
			}

			if err := container.Installer.Uninstall(args[0]); err != nil {
				return fmt.Errorf("uninstalling %s: %w", args[0], err)
			}
			fmt.Printf("Uninstalled %s\n", args[0])
			return nil
		},
	}
}

func newPluginsEnableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <name>",
		Short: "Enable a plugin for future sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setPluginEnabled(args[0], true)
		},
	}
}

func newPluginsDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <name>",
		Short: "Disable a plugin without removing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setPluginEnabled(args[0], false)
		},
	}
}

func setPluginEnabled(name string, enabled bool) error {
	container, err := di.NewContainer()
	if err != nil {
		return err
	}

	action := container.Installer.Disable
	verb := "Disabled"
	if enabled {
		action = container.Installer.Enable
		verb = "Enabled"
	}
	if err := action(name); err != nil {
		return fmt.Errorf("%s %s: %w", strings.ToLower(verb), name, err)
	}
	fmt.Printf("%s %s\n", verb, name)
	return nil
}

func newPluginsInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Show an installed plugin's registry record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := di.NewContainer()
			if err != nil {
				return err
			}

			record, err := container.Store.Get(args[0])
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(record, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding record: %w", err)
			}
			fmt.Println(string(data))
			return nil
		},
	}
}
