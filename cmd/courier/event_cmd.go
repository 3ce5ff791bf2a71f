package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/courier/internal/config"
	"github.com/mattjoyce/courier/internal/inspect"
	"github.com/mattjoyce/courier/internal/log"
	"github.com/mattjoyce/courier/internal/queue"
	"github.com/mattjoyce/courier/internal/storage"
	"github.com/mattjoyce/courier/internal/store"
)

func eventCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Inspect stored events and their relay jobs",
	}

	withStore := func(cmd *cobra.Command, fn func(*store.Store, *queue.Queue) error) error {
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
		return fn(store.New(db, dialect, nil, nil, logger), queue.New(db, dialect, cfg.Trigger.Retry.MaxAttempts))
	}

	var jsonOut bool
	inspectCmd := &cobra.Command{
		Use:   "inspect <event-id>",
		Short: "Show one event with its delivery state and relay attempts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(st *store.Store, q *queue.Queue) error {
				build := inspect.BuildReport
				if jsonOut {
					build = inspect.BuildJSONReport
				}
				report, err := build(cmd.Context(), st, q, args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), strings.TrimRight(report, "\n")+"\n")
				return nil
			})
		},
	}
	inspectCmd.Flags().BoolVar(&jsonOut, "json", false, "Output report in JSON")

	var limit int
	recent := &cobra.Command{
		Use:   "recent",
		Short: "List the most recent events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(st *store.Store, _ *queue.Queue) error {
				list, err := st.Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), list)
			})
		},
	}
	recent.Flags().IntVar(&limit, "limit", 20, "Maximum number of events (1-500)")

	cmd.AddCommand(inspectCmd, recent)
	return cmd
}
