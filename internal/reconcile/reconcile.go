// Package reconcile brings the derived directory back in line with the source
// directory after the watcher was offline.
//
// Files are matched on their NFC-normalized stem, the same key artifact.Name
// uses to name derived files. A source file without a derived counterpart is
// resubmitted; a derived file without a source counterpart is deleted. The
// ledger is only touched through the submit intent.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/imageledger/internal/artifact"
	"github.com/mattjoyce/imageledger/internal/events"
	"github.com/mattjoyce/imageledger/internal/failure"
	"github.com/mattjoyce/imageledger/internal/ledger"
	"github.com/mattjoyce/imageledger/internal/processing"
)

// Report summarizes one sweep.
type Report struct {
	RunID       uuid.UUID     `json:"run_id"`
	Resubmitted int           `json:"resubmitted"`
	Removed     int           `json:"removed"`
	Failed      int           `json:"failed"`
	Duration    time.Duration `json:"duration_ns"`
}

// Reconciler runs sweeps through an Intents implementation.
type Reconciler struct {
	intents processing.Intents
	events  events.Publisher
	logger  *slog.Logger
}

// New returns a Reconciler. pub may be nil.
func New(intents processing.Intents, pub events.Publisher, logger *slog.Logger) *Reconciler {
	if pub == nil {
		pub = (*events.Hub)(nil)
	}
	return &Reconciler{intents: intents, events: pub, logger: logger}
}

// Reconcile sweeps sourceDir against derivedDir once. Submissions run one at
// a time, so the call returns only after every resubmitted file reached a
// terminal status. A failing file is counted in Failed and does not stop the
// sweep; context cancellation does.
func (r *Reconciler) Reconcile(ctx context.Context, sourceDir, derivedDir string) (Report, error) {
	started := time.Now()
	report := Report{RunID: uuid.New()}
	logger := r.logger.With("run_id", report.RunID.String())

	info, err := os.Stat(sourceDir)
	if err != nil {
		return report, failure.New(failure.KindIO, "reconcile source", err)
	}
	if !info.IsDir() {
		return report, failure.Newf(failure.KindIO, "reconcile source", "%s is not a directory", sourceDir)
	}

	store, err := artifact.NewStore(derivedDir)
	if err != nil {
		return report, failure.New(failure.KindValidation, "reconcile", err)
	}
	sources, err := artifact.ListImages(sourceDir, artifact.Recognized)
	if err != nil {
		return report, err
	}
	derived, err := store.Names()
	if err != nil {
		return report, err
	}

	for _, key := range sortedKeys(sources) {
		if _, ok := derived[key]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		path := filepath.Join(sourceDir, sources[key])
		res, err := r.intents.Submit(ctx, path)
		report.Resubmitted++
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return report, err
		case err != nil:
			report.Failed++
			logger.Warn("resubmit failed", "path", path, "error", err)
		case res != nil && res.Status == ledger.StatusError:
			report.Failed++
			logger.Warn("resubmitted image failed processing", "path", path, "error", res.Error)
		default:
			logger.Debug("resubmitted missing image", "path", path)
		}
	}

	for _, key := range sortedKeys(derived) {
		if _, ok := sources[key]; ok {
			continue
		}
		removed, err := store.RemoveName(derived[key])
		if err != nil {
			report.Failed++
			logger.Warn("removing orphaned derived file failed", "file", derived[key], "error", err)
			continue
		}
		if removed {
			report.Removed++
			logger.Info("removed orphaned derived file", "file", derived[key])
		}
	}

	report.Duration = time.Since(started)
	logger.Info("reconcile completed",
		"resubmitted", report.Resubmitted,
		"removed", report.Removed,
		"failed", report.Failed,
		"duration", report.Duration.String(),
	)
	r.events.Publish(events.TypeReconcileCompleted, report)
	return report, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
