// Command courier relays inbound WhatsApp messages to Slack.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/courier/internal/config"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "courier",
		Short:         "courier - WhatsApp to Slack message relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config file (default: $"+config.EnvConfigPath+", ./config.yaml, then built-in)")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.LoadOrDefault(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}

	root.AddCommand(
		serveCmd(loadConfig),
		configCmd(loadConfig, &configPath),
		directoryCmd(loadConfig),
		eventCmd(loadConfig),
		watchCmd(loadConfig),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "courier version %s\n", version)
			return err
		},
	}
}
