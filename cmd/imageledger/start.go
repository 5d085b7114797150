package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/imageledger/internal/api"
	"github.com/mattjoyce/imageledger/internal/config"
	"github.com/mattjoyce/imageledger/internal/lock"
	"github.com/mattjoyce/imageledger/internal/log"
	"github.com/mattjoyce/imageledger/internal/reconcile"
	"github.com/mattjoyce/imageledger/internal/watcher"
)

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the watcher and HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runStart(sigCtx, cfg)
		},
	}
}

func runStart(ctx context.Context, cfg *config.Config) error {
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("imageledger starting", "version", version, "config", cfg.File)

	pidLock, err := lock.Acquire(cfg.LockFile())
	if err != nil {
		return fmt.Errorf("another instance may be running: %w", err)
	}
	defer func() { _ = pidLock.Release() }()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	st, err := openStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	logger.Info("ledger opened", "path", cfg.State.Path)

	if err := prepareLedger(ctx, st, logger); err != nil {
		return err
	}

	w, err := watcher.New(watcherConfig(cfg), st.client, log.WithComponent("watcher"))
	if err != nil {
		return err
	}

	return serve(ctx, cfg, st, w, logger)
}

// serve runs the API and the watcher until ctx is done or one of them fails.
// It returns only after both have stopped, so st may be closed afterwards
// without cutting off an intent that is still running.
func serve(ctx context.Context, cfg *config.Config, st *stack, w *watcher.Watcher, logger *slog.Logger) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.API.Enabled {
		server := api.New(api.Config{Listen: cfg.API.Listen, APIKey: cfg.API.Auth.APIKey}, st.client, st.hub, log.WithComponent("api"))
		g.Go(func() error {
			if err := server.Start(gctx); err != nil {
				return fmt.Errorf("api: %w", err)
			}
			return nil
		})
	}

	if cfg.Watcher.ReconcileOnStart {
		r := reconcile.New(st.client, st.hub, log.WithComponent("reconcile"))
		if _, err := r.Reconcile(gctx, cfg.Paths.SourceDir, cfg.Paths.DerivedDir); err != nil {
			_ = w.Close()
			cancel()
			werr := g.Wait()
			if errors.Is(err, context.Canceled) {
				return werr
			}
			return fmt.Errorf("startup reconcile: %w", err)
		}
	}

	g.Go(func() error {
		if err := w.Run(gctx); err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		return nil
	})

	logger.Info("imageledger running (press Ctrl+C to stop)")
	err := g.Wait()
	switch {
	case err != nil:
		logger.Error("component failed", "error", err)
	case ctx.Err() != nil:
		logger.Info("received shutdown signal")
	}
	logger.Info("imageledger stopped")
	return err
}

// prepareLedger settles rows left behind by a previous run before anything
// reads the directories.
func prepareLedger(ctx context.Context, st *stack, logger *slog.Logger) error {
	recovered, err := st.ledger.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted jobs: %w", err)
	}
	if recovered > 0 {
		logger.Warn("marked interrupted jobs as failed", "count", recovered)
	}

	pruned, err := st.client.PruneLedger(ctx)
	if err != nil {
		return fmt.Errorf("prune ledger: %w", err)
	}
	if pruned > 0 {
		logger.Info("pruned jobs for missing sources", "count", pruned)
	}
	return nil
}

func watcherConfig(cfg *config.Config) watcher.Config {
	return watcher.Config{
		SourceDir:     cfg.Paths.SourceDir,
		DerivedDir:    cfg.Paths.DerivedDir,
		Settle:        cfg.Watcher.Settle,
		SettleTimeout: cfg.Watcher.SettleTimeout,
	}
}
