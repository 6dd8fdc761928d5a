package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"toolgate.dev/cli/internal/infrastructure/config"
)

// newConfigCommand creates the config subcommand.
func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect toolgate configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Long: `Show prints the effective configuration after applying defaults, the
config file, and TOOLGATE_* environment overrides.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding configuration: %w", err)
			}
			fmt.Println(string(data))
			fmt.Println(dimStyle.Render("config file: " + config.DefaultFilePath()))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(config.DefaultFilePath())
		},
	})

	return cmd
}
