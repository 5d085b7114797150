package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/imageledger/internal/artifact"
	"github.com/mattjoyce/imageledger/internal/config"
	"github.com/mattjoyce/imageledger/internal/events"
	"github.com/mattjoyce/imageledger/internal/lock"
	"github.com/mattjoyce/imageledger/internal/log"
	"github.com/mattjoyce/imageledger/internal/processing"
	"github.com/mattjoyce/imageledger/internal/reconcile"
	"github.com/mattjoyce/imageledger/internal/remote"
	"github.com/mattjoyce/imageledger/internal/watcher"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var remoteURL string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run only the watcher, in-process or against a running server",
		Long: "Watch the source directory and submit changes. With --remote (or watcher.remote_url)\n" +
			"intents go to a running imageledger server over HTTP and no local ledger is opened.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(remoteURL) == "" {
				remoteURL = cfg.Watcher.RemoteURL
			}
			sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(sigCtx, cfg, remoteURL)
		},
	}
	cmd.Flags().StringVar(&remoteURL, "remote", "", "Base URL of a running imageledger server")
	return cmd
}

func runWatch(ctx context.Context, cfg *config.Config, remoteURL string) error {
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")

	if remoteURL != "" {
		client, err := newRemoteClient(cfg, remoteURL)
		if err != nil {
			return err
		}
		logger.Info("watching against remote server", "url", remoteURL)
		return watchWith(ctx, cfg, client, nil, logger)
	}

	pidLock, err := lock.Acquire(cfg.LockFile())
	if err != nil {
		return fmt.Errorf("another instance may be running: %w", err)
	}
	defer func() { _ = pidLock.Release() }()

	st, err := openStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	if err := prepareLedger(ctx, st, logger); err != nil {
		return err
	}
	return watchWith(ctx, cfg, st.client, st, logger)
}

// watchWith optionally reconciles, then runs the watcher until ctx is done.
// st is nil in remote mode.
func watchWith(ctx context.Context, cfg *config.Config, intents processing.Intents, st *stack, logger *slog.Logger) error {
	w, err := watcher.New(watcherConfig(cfg), intents, log.WithComponent("watcher"))
	if err != nil {
		return err
	}
	if cfg.Watcher.ReconcileOnStart {
		var pub events.Publisher
		if st != nil {
			pub = st.hub
		}
		r := reconcile.New(intents, pub, log.WithComponent("reconcile"))
		if _, err := r.Reconcile(ctx, cfg.Paths.SourceDir, cfg.Paths.DerivedDir); err != nil {
			_ = w.Close()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("startup reconcile: %w", err)
		}
	}
	logger.Info("watcher running (press Ctrl+C to stop)")
	return w.Run(ctx)
}

func newRemoteClient(cfg *config.Config, remoteURL string) (*remote.Client, error) {
	store, err := artifact.NewStore(cfg.Paths.DerivedDir)
	if err != nil {
		return nil, err
	}
	return remote.New(remoteURL, log.WithComponent("remote"),
		remote.WithAPIKey(cfg.API.Auth.APIKey),
		remote.WithArtifacts(store),
	)
}
