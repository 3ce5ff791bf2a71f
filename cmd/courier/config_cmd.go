package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/courier/internal/config"
	"github.com/mattjoyce/courier/internal/doctor"
)

func configCmd(loadConfig func() (*config.Config, error), configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and lock configuration",
	}
	cmd.AddCommand(configCheckCmd(loadConfig), configLockCmd(configPath))
	return cmd
}

func configCheckCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate syntax, integrity and delivery settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			result := doctor.New(cfg).Validate()
			out := cmd.OutOrStdout()
			if jsonOut {
				report, err := doctor.FormatJSON(result)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, report)
			} else {
				source := cfg.SourcePath
				if source == "" {
					source = "built-in defaults"
				}
				fmt.Fprintf(out, "Config: %s\n", source)
				fmt.Fprint(out, doctor.FormatHuman(result))
			}

			if !result.Valid {
				return errors.New("configuration check failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output report in JSON")
	return cmd
}

func configLockCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "Record the config file's BLAKE3 hash in the .checksums manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Discover(*configPath)
			if errors.Is(err, config.ErrNoConfigFile) {
				return errors.New("no config file to lock; pass --config or set $" + config.EnvConfigPath)
			}
			if err != nil {
				return err
			}

			manifest, hash, err := config.Lock(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Locked %s (blake3 %s) in %s\n", path, hash, manifest)
			return nil
		},
	}
}
