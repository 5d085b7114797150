package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/imageledger/internal/lock"
	"github.com/mattjoyce/imageledger/internal/log"
	"github.com/mattjoyce/imageledger/internal/processing"
	"github.com/mattjoyce/imageledger/internal/reconcile"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var (
		remoteURL string
		jsonOut   bool
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation sweep and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log.SetupWriter(cmd.ErrOrStderr(), cfg.Service.LogLevel, cfg.Service.LogFormat)
			logger := log.WithComponent("main")

			var intents processing.Intents
			if url := strings.TrimSpace(remoteURL); url != "" {
				client, err := newRemoteClient(cfg, url)
				if err != nil {
					return err
				}
				intents = client
			} else {
				pidLock, err := lock.Acquire(cfg.LockFile())
				if err != nil {
					return fmt.Errorf("another instance may be running: %w", err)
				}
				defer func() { _ = pidLock.Release() }()

				st, err := openStack(runCtx, cfg)
				if err != nil {
					return err
				}
				defer func() { _ = st.Close() }()
				if err := prepareLedger(runCtx, st, logger); err != nil {
					return err
				}
				intents = st.client
			}

			report, err := reconcile.New(intents, nil, log.WithComponent("reconcile")).
				Reconcile(runCtx, cfg.Paths.SourceDir, cfg.Paths.DerivedDir)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: resubmitted %d, removed %d, failed %d in %s\n",
				report.RunID, report.Resubmitted, report.Removed, report.Failed, report.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&remoteURL, "remote", "", "Base URL of a running imageledger server")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the report as JSON")
	return cmd
}
