// Package processing executes submit and delete intents against the ledger,
// the transform and the derived directory.
package processing

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

	"github.com/mattjoyce/imageledger/internal/artifact"
	"github.com/mattjoyce/imageledger/internal/events"
	"github.com/mattjoyce/imageledger/internal/failure"
	"github.com/mattjoyce/imageledger/internal/fingerprint"
	"github.com/mattjoyce/imageledger/internal/ledger"
	"github.com/mattjoyce/imageledger/internal/transform"
)

// Client is the in-process Intents implementation.
type Client struct {
	ledger      LedgerService
	transformer transform.Transformer
	artifacts   *artifact.Store
	events      events.Publisher
	timeout     time.Duration
	logger      *slog.Logger
}

var _ Intents = (*Client)(nil)

// New wires a Client. timeout bounds each transform call; zero disables it.
// pub may be nil.
func New(l LedgerService, t transform.Transformer, store *artifact.Store, pub events.Publisher, timeout time.Duration, logger *slog.Logger) *Client {
	if pub == nil {
		pub = (*events.Hub)(nil)
	}
	return &Client{
		ledger:      l,
		transformer: t,
		artifacts:   store,
		events:      pub,
		timeout:     timeout,
		logger:      logger,
	}
}

// Submit fingerprints path, registers it and, when this call owns the
// Processing row, runs the transform and records a terminal status before
// returning. Transform failures are recorded on the job and reported in
// Result, not returned. Read failures return before the ledger is touched.
func (c *Client) Submit(ctx context.Context, path string) (*Result, error) {
	const op = "submit"
	path, err := absPath(path)
	if err != nil {
		return nil, failure.New(failure.KindValidation, op, err)
	}
	if !artifact.Recognized(path) {
		return nil, failure.Newf(failure.KindValidation, op, "%s: unsupported image extension", path)
	}

	fp, err := fingerprint.File(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, failure.New(failure.KindNotFound, op, err)
	}
	if err != nil {
		return nil, err
	}

	job, outcome, err := c.ledger.Register(ctx, fp, path)
	if err != nil {
		return nil, err
	}
	logger := c.logger.With("fingerprint", fp, "path", path, "outcome", string(outcome))
	res := &Result{Fingerprint: fp, Path: path, Status: job.Status, Outcome: outcome}

	switch outcome {
	case ledger.OutcomeInFlight:
		logger.Info("image already processing, skipping")
		return res, nil
	case ledger.OutcomeDuplicate:
		owner := job.SourcePath
		if owner != path && sourceGone(owner) {
			if _, err := c.ledger.Relocate(ctx, fp, path); err != nil {
				logger.Warn("relocating renamed image failed", "owner", owner, "error", err)
			} else {
				logger.Info("image renamed, job relocated", "from", owner)
			}
		}
		c.ensureDuplicateArtifact(ctx, owner, path, res, logger)
		return res, nil
	}

	return c.process(ctx, fp, path, res, logger)
}

// process runs the transform for a row this call owns. The terminal status is
// written on a context detached from ctx so cancellation cannot leave the row
// in Processing.
func (c *Client) process(ctx context.Context, fp, path string, res *Result, logger *slog.Logger) (*Result, error) {
	tctx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	terr := c.runTransform(tctx, path)

	wctx := context.WithoutCancel(ctx)
	payload := events.ImagePayload{Fingerprint: fp, Path: path}
	if terr != nil {
		msg := terr.Error()
		if err := c.ledger.Transition(wctx, fp, ledger.StatusError, msg); err != nil {
			return nil, fmt.Errorf("record transform failure: %w", err)
		}
		logger.Warn("image processing failed", "error", msg)
		res.Status, res.Error = ledger.StatusError, msg
		payload.Status, payload.Error = string(ledger.StatusError), msg
		c.events.Publish(events.TypeImageFailed, payload)
		return res, nil
	}

	if err := c.ledger.Transition(wctx, fp, ledger.StatusSuccess, ""); err != nil {
		_, _ = c.artifacts.Remove(path)
		if terr := c.ledger.Transition(wctx, fp, ledger.StatusError, "record success: "+err.Error()); terr != nil {
			logger.Error("recording failure status failed", "error", terr)
		}
		return nil, fmt.Errorf("record transform success: %w", err)
	}
	logger.Info("image processed", "artifact", c.artifacts.Path(path))
	res.Status = ledger.StatusSuccess
	payload.Status = string(ledger.StatusSuccess)
	c.events.Publish(events.TypeImageProcessed, payload)
	return res, nil
}

func (c *Client) runTransform(ctx context.Context, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = failure.Newf(failure.KindTransform, "transform", "panic: %v", r)
		}
	}()
	if err := c.artifacts.Ensure(); err != nil {
		return err
	}
	return c.transformer.Transform(ctx, path, c.artifacts.Path(path))
}

// ensureDuplicateArtifact makes sure a path whose content is already Success
// has its own derived file, so filename-based reconciliation converges. The
// artifact of owner is reused when present; otherwise the transform is rerun
// without touching the ledger.
func (c *Client) ensureDuplicateArtifact(ctx context.Context, owner, path string, res *Result, logger *slog.Logger) {
	if c.artifacts.Exists(path) {
		logger.Debug("duplicate content, artifact present")
		return
	}
	if owner != path && c.artifacts.Exists(owner) {
		err := c.artifacts.Materialize(ctx, owner, path)
		if err == nil {
			logger.Info("duplicate content, reused artifact", "owner", owner)
			return
		}
		logger.Warn("reusing artifact failed, regenerating", "owner", owner, "error", err)
	}

	tctx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.runTransform(tctx, path); err != nil {
		res.Error = err.Error()
		logger.Warn("regenerating missing artifact failed", "error", err)
		return
	}
	logger.Info("regenerated missing artifact")
}

// Delete drops the job registered at path and its derived file. The derived
// file is removed even when the ledger has no job for path; the lookup error
// is still returned so callers can log it. When another source file with the
// same content keeps its own derived file, the job moves to that file instead
// of being dropped.
func (c *Client) Delete(ctx context.Context, path string) error {
	path, err := absPath(path)
	if err != nil {
		return failure.New(failure.KindValidation, "delete", err)
	}

	fp, lookupErr := c.ledger.LookupByPath(ctx, path)
	if lookupErr == nil {
		job, err := c.ledger.LookupByFingerprint(ctx, fp)
		switch {
		case err == nil:
			if _, err := c.retire(ctx, job); err != nil {
				return err
			}
		case !failure.Is(err, failure.KindNotFound):
			return err
		}
	}

	removed, err := c.artifacts.Remove(path)
	if err != nil {
		return err
	}
	if lookupErr != nil {
		return lookupErr
	}
	c.logger.Info("image deleted", "fingerprint", fp, "path", path, "artifact_removed", removed)
	c.events.Publish(events.TypeImageDeleted, events.ImagePayload{Fingerprint: fp, Path: path})
	return nil
}

// DeleteByFingerprint drops the job for fp and the derived file of its path.
// Like Delete, the job survives at a same-content file that has a derived file.
func (c *Client) DeleteByFingerprint(ctx context.Context, fp string) error {
	job, err := c.ledger.LookupByFingerprint(ctx, fp)
	if err != nil {
		return err
	}
	if _, err := c.retire(ctx, job); err != nil {
		return err
	}
	removed, err := c.artifacts.Remove(job.SourcePath)
	if err != nil {
		return err
	}
	c.logger.Info("image deleted", "fingerprint", fp, "path", job.SourcePath, "artifact_removed", removed)
	c.events.Publish(events.TypeImageDeleted, events.ImagePayload{Fingerprint: fp, Path: job.SourcePath})
	return nil
}

// retire takes job off its current source path. A Success job is relocated to
// a duplicate of its content when one exists, so the duplicate's derived file
// stays accounted for; otherwise the row is removed. The returned path is the
// duplicate the job moved to, or "".
func (c *Client) retire(ctx context.Context, job *ledger.Job) (string, error) {
	if job.Status == ledger.StatusSuccess {
		if next := c.findDuplicate(ctx, job); next != "" {
			_, err := c.ledger.Relocate(ctx, job.Fingerprint, next)
			if err == nil {
				c.logger.Info("job handed to duplicate", "fingerprint", job.Fingerprint, "from", job.SourcePath, "to", next)
				return next, nil
			}
			c.logger.Warn("handing job to duplicate failed", "fingerprint", job.Fingerprint, "to", next, "error", err)
		}
	}
	if err := c.ledger.Remove(ctx, job.Fingerprint); err != nil && !failure.Is(err, failure.KindNotFound) {
		return "", err
	}
	return "", nil
}

// findDuplicate scans the directory of job's source for another image with the
// same fingerprint that has its own derived file and no job of its own.
func (c *Client) findDuplicate(ctx context.Context, job *ledger.Job) string {
	dir := filepath.Dir(job.SourcePath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	ownerKey := artifact.Key(job.SourcePath)
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ""
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !entry.Type().IsRegular() || !artifact.Recognized(name) {
			continue
		}
		candidate := filepath.Join(dir, name)
		// A file sharing the owner's stem shares its derived file too, and
		// that file is about to go.
		if candidate == job.SourcePath || artifact.Key(candidate) == ownerKey {
			continue
		}
		if !c.artifacts.Exists(candidate) {
			continue
		}
		if _, err := c.ledger.LookupByPath(ctx, candidate); !failure.Is(err, failure.KindNotFound) {
			continue
		}
		fp, err := fingerprint.File(candidate)
		if err != nil || fp != job.Fingerprint {
			continue
		}
		return candidate
	}
	return ""
}

// LookupPath returns the fingerprint registered at path.
func (c *Client) LookupPath(ctx context.Context, path string) (string, error) {
	path, err := absPath(path)
	if err != nil {
		return "", failure.New(failure.KindValidation, "lookup", err)
	}
	return c.ledger.LookupByPath(ctx, path)
}

// Job returns the job for fp.
func (c *Client) Job(ctx context.Context, fp string) (*ledger.Job, error) {
	return c.ledger.LookupByFingerprint(ctx, fp)
}

// Counts returns job counts per status.
func (c *Client) Counts(ctx context.Context) (map[ledger.Status]int, error) {
	return c.ledger.Counts(ctx)
}

// Random picks a Success job and returns it with its derived bytes.
func (c *Client) Random(ctx context.Context) (*ledger.Job, []byte, error) {
	job, err := c.ledger.SampleRandomSuccessful(ctx)
	if err != nil {
		return nil, nil, err
	}
	if job == nil {
		return nil, nil, failure.Newf(failure.KindNotFound, "random", "no processed images")
	}
	data, err := c.artifacts.Read(job.SourcePath)
	if err != nil {
		return nil, nil, err
	}
	return job, data, nil
}

// PruneLedger retires terminal jobs whose source file no longer exists and
// removes their derived files. It returns how many jobs were retired, counting
// those handed to a duplicate.
func (c *Client) PruneLedger(ctx context.Context) (int, error) {
	jobs, err := c.ledger.List(ctx, "")
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return pruned, err
		}
		if !job.Status.Terminal() {
			continue
		}
		if !sourceGone(job.SourcePath) {
			continue
		}
		next, err := c.retire(ctx, job)
		if err != nil {
			return pruned, err
		}
		if _, err := c.artifacts.Remove(job.SourcePath); err != nil {
			c.logger.Warn("removing derived file of pruned job failed", "path", job.SourcePath, "error", err)
		}
		if next == "" {
			c.logger.Info("pruned job for missing source", "fingerprint", job.Fingerprint, "path", job.SourcePath)
		}
		pruned++
	}
	return pruned, nil
}

func sourceGone(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}

func absPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("file path is empty")
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	return filepath.Abs(path)
}
