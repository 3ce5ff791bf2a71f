package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/courier/internal/config"
	"github.com/mattjoyce/courier/internal/directory"
	"github.com/mattjoyce/courier/internal/log"
	"github.com/mattjoyce/courier/internal/storage"
)

func directoryCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "directory",
		Short: "Manage client directory entries",
	}

	// withDirectory opens storage for one command. It does not take the
	// serve lock, so it can run next to a live gateway.
	withDirectory := func(cmd *cobra.Command, fn func(*directory.Directory) error) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := log.New(cmd.ErrOrStderr(), cfg.Service.LogLevel, cfg.Service.LogFormat)

		db, dialect, err := storage.Open(cmd.Context(), cfg.Storage.Driver, cfg.Storage.Path, cfg.Storage.DSN)
		if err != nil {
			return fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
		}
		defer db.Close()
		return fn(directory.New(db, dialect, logger))
	}

	var entry directory.Entry
	upsert := &cobra.Command{
		Use:   "upsert",
		Short: "Create or update a client entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd, func(dir *directory.Directory) error {
				stored, err := dir.Upsert(cmd.Context(), entry)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stored)
			})
		},
	}
	upsert.Flags().StringVar(&entry.ClientID, "client-id", "", "Client identifier (required)")
	upsert.Flags().StringVar(&entry.DisplayName, "display-name", "", "Human-readable client name")
	upsert.Flags().StringVar(&entry.NotificationChannel, "channel", "", "Slack channel id for this client (required)")
	upsert.Flags().StringSliceVar(&entry.FromIdentifiers, "sender", nil, "WhatsApp sender number (repeatable)")
	_ = upsert.MarkFlagRequired("client-id")
	_ = upsert.MarkFlagRequired("channel")

	show := &cobra.Command{
		Use:   "show <client-id>",
		Short: "Show one client entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd, func(dir *directory.Directory) error {
				e, err := dir.Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("client %q: %w", args[0], err)
				}
				return printJSON(cmd.OutOrStdout(), e)
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every client entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd, func(dir *directory.Directory) error {
				entries, err := dir.List(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), entries)
			})
		},
	}

	cmd.AddCommand(upsert, show, list)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
