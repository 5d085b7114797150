package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/imageledger/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Validate, lock and display configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}
	cmd.AddCommand(newConfigCheckCommand(ctx))
	cmd.AddCommand(newConfigLockCommand(ctx))
	cmd.AddCommand(newConfigShowCommand(ctx))
	return cmd
}

func newConfigCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			rows := [][]string{
				{"config", cfg.File},
				{"ledger", cfg.State.Path},
				{"source_dir", cfg.Paths.SourceDir + dirNote(cfg.Paths.SourceDir)},
				{"derived_dir", cfg.Paths.DerivedDir + dirNote(cfg.Paths.DerivedDir)},
				{"api", apiSummary(cfg)},
				{"transform", fmt.Sprintf("%dx%d q%d", cfg.Transform.Width, cfg.Transform.Height, cfg.Transform.Quality)},
			}
			fmt.Fprintln(out, renderTable(out, []string{"Setting", "Value"}, rows, nil))
			fmt.Fprintln(out, "Configuration valid.")
			return nil
		},
	}
}

func dirNote(dir string) string {
	info, err := os.Stat(dir)
	switch {
	case err != nil:
		return " (missing)"
	case !info.IsDir():
		return " (not a directory)"
	default:
		return ""
	}
}

func apiSummary(cfg *config.Config) string {
	if !cfg.API.Enabled {
		return "disabled"
	}
	return cfg.API.Listen + ", auth " + strconv.FormatBool(cfg.API.Auth.APIKey != "")
}

func newConfigLockCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Record the config file's BLAKE3 hash in .checksums",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configFilePath(ctx.configPath())
			if err != nil {
				return err
			}
			report, err := config.Lock(path, dryRun)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s\n", report.Hash, filepath.Base(report.ConfigFile))
			if report.Written {
				fmt.Fprintf(out, "Wrote %s\n", report.ChecksumPath)
			} else {
				fmt.Fprintln(out, "Dry run, nothing written.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute the hash without writing .checksums")
	return cmd
}

// configFilePath resolves a directory to the config file inside it.
func configFilePath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s", path)
	}
	if info.IsDir() {
		return filepath.Join(path, config.DefaultFile), nil
	}
	return path, nil
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			shown := *cfg
			if shown.API.Auth.APIKey != "" {
				shown.API.Auth.APIKey = "***"
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(shown); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
