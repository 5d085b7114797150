// Package watcher turns filesystem events in the source directory into
// submit and delete intents.
//
// One goroutine reads fsnotify events and handles them strictly in arrival
// order: the next event is not looked at until the current intent has fully
// resolved. The watch is not recursive.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mattjoyce/imageledger/internal/artifact"
	"github.com/mattjoyce/imageledger/internal/failure"
	"github.com/mattjoyce/imageledger/internal/processing"
)

// Config binds a watcher to its directories.
type Config struct {
	SourceDir  string
	DerivedDir string
	// Settle is the polling interval used to decide that a newly created file
	// stopped growing. Zero submits immediately.
	Settle time.Duration
	// SettleTimeout bounds the wait; the file is submitted anyway after it.
	SettleTimeout time.Duration
}

// Watcher is a single-consumer event loop over one directory.
type Watcher struct {
	cfg     Config
	intents processing.Intents
	store   *artifact.Store
	fsw     *fsnotify.Watcher
	logger  *slog.Logger
}

// New starts watching cfg.SourceDir. Events are buffered by fsnotify until
// Run consumes them.
func New(cfg Config, intents processing.Intents, logger *slog.Logger) (*Watcher, error) {
	info, err := os.Stat(cfg.SourceDir)
	if err != nil {
		return nil, failure.New(failure.KindIO, "watch source", err)
	}
	if !info.IsDir() {
		return nil, failure.Newf(failure.KindIO, "watch source", "%s is not a directory", cfg.SourceDir)
	}
	store, err := artifact.NewStore(cfg.DerivedDir)
	if err != nil {
		return nil, failure.New(failure.KindValidation, "watch", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(cfg.SourceDir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", cfg.SourceDir, err)
	}

	return &Watcher{
		cfg:     cfg,
		intents: intents,
		store:   store,
		fsw:     fsw,
		logger:  logger.With("source_dir", cfg.SourceDir),
	}, nil
}

// Run consumes events until ctx is done or the event source fails. An intent
// already running when ctx is cancelled is allowed to finish.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()
	w.logger.Info("watcher started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("fsnotify event channel closed")
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("fsnotify error channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("event queue overflowed, run reconcile to catch up", "error", err)
				continue
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// Close stops the event source without running the loop.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	name := ev.Name
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || !artifact.Recognized(name) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		w.onCreate(ctx, name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.onDelete(ctx, name)
	}
}

func (w *Watcher) onCreate(ctx context.Context, path string) {
	logger := w.logger.With("path", path)
	if w.store.Exists(path) {
		logger.Info("derived file already exists, skipping")
		return
	}

	if err := w.waitSettled(ctx, path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("file vanished before it settled")
			return
		}
		if ctx.Err() != nil {
			return
		}
		logger.Warn("file still changing, submitting anyway", "error", err)
	}

	res, err := w.intents.Submit(context.WithoutCancel(ctx), path)
	if err != nil {
		logger.Error("submit failed", "error", err)
		return
	}
	logger.Info("submitted", "fingerprint", res.Fingerprint, "status", string(res.Status), "outcome", string(res.Outcome))
}

func (w *Watcher) onDelete(ctx context.Context, path string) {
	logger := w.logger.With("path", path)
	if _, err := os.Lstat(path); err == nil {
		// Rename onto the same name, or re-created before we got here.
		return
	}

	// A failed job has no derived file but still owns its path, so the
	// delete goes through either way.
	hadArtifact := w.store.Exists(path)
	err := w.intents.Delete(context.WithoutCancel(ctx), path)
	switch {
	case err == nil:
		logger.Info("deleted", "artifact", hadArtifact)
	case failure.Is(err, failure.KindNotFound) && !hadArtifact:
		logger.Debug("removed source was never recorded")
	case failure.Is(err, failure.KindNotFound):
		logger.Warn("removed source had no ledger entry", "error", err)
	default:
		logger.Error("delete failed", "error", err)
	}
}
