package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mattjoyce/imageledger/internal/artifact"
	"github.com/mattjoyce/imageledger/internal/config"
	"github.com/mattjoyce/imageledger/internal/events"
	"github.com/mattjoyce/imageledger/internal/ledger"
	"github.com/mattjoyce/imageledger/internal/log"
	"github.com/mattjoyce/imageledger/internal/processing"
	"github.com/mattjoyce/imageledger/internal/storage"
	"github.com/mattjoyce/imageledger/internal/transform"
)

// stack is the in-process pipeline shared by start, watch, reconcile and the
// ledger commands.
type stack struct {
	db        *sql.DB
	ledger    *ledger.Ledger
	artifacts *artifact.Store
	hub       *events.Hub
	client    *processing.Client
}

func openStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	resizer, err := transform.NewResizer(transformOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("configure transform: %w", err)
	}
	return buildStack(ctx, cfg, resizer)
}

func buildStack(ctx context.Context, cfg *config.Config, t transform.Transformer) (*stack, error) {
	store, err := artifact.NewStore(cfg.Paths.DerivedDir)
	if err != nil {
		return nil, err
	}

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", cfg.State.Path, err)
	}

	l := ledger.New(db)
	hub := events.NewHub(256)
	client := processing.New(l, t, store, hub, cfg.Transform.Timeout, log.WithComponent("processing"))
	return &stack{
		db:        db,
		ledger:    l,
		artifacts: store,
		hub:       hub,
		client:    client,
	}, nil
}

func (s *stack) Close() error {
	return s.db.Close()
}

func transformOptions(cfg *config.Config) transform.Options {
	return transform.Options{
		Width:     cfg.Transform.Width,
		Height:    cfg.Transform.Height,
		Quality:   cfg.Transform.Quality,
		MaxPixels: cfg.Transform.MaxPixels,
	}
}
