package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/courier/internal/config"
	"github.com/mattjoyce/courier/internal/tui/watch"
)

const envAPIKey = "COURIER_API_KEY"

func watchCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var apiURL, apiKey string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live terminal view of the admin event stream",
		Long: `Connects to a running gateway's admin API and shows health, per-message
delivery state and the raw event stream. Keys: q quits, arrows scroll.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			url, key := resolveWatchTarget(cfg, apiURL, apiKey)
			if key == "" {
				return errors.New("API key required; pass --api-key, set $" + envAPIKey + " or configure api.auth.api_key")
			}

			p := tea.NewProgram(watch.New(url, key), tea.WithContext(cmd.Context()))
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "", "Admin API base URL (default from api.listen)")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv(envAPIKey), "Admin API bearer token")
	return cmd
}

// resolveWatchTarget fills unset flags from the loaded config.
func resolveWatchTarget(cfg *config.Config, apiURL, apiKey string) (string, string) {
	if apiURL == "" {
		host, port, err := net.SplitHostPort(cfg.API.Listen)
		if err != nil {
			host, port = "127.0.0.1", "8080"
		}
		if host == "" || host == "0.0.0.0" || host == "::" {
			host = "localhost"
		}
		apiURL = "http://" + net.JoinHostPort(host, port)
	}
	if apiKey == "" {
		apiKey = cfg.API.Auth.APIKey
	}
	return strings.TrimRight(apiURL, "/"), apiKey
}
