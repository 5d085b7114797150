package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattjoyce/imageledger/internal/failure"
)

const jobColumns = `id, original_path, file_hash, status, created_at, processed_at, error_message`

// Ledger owns every Job row.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New returns a Ledger over an already bootstrapped database (see storage.OpenSQLite).
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

func (l *Ledger) timestamp() string {
	return l.now().UTC().Format(time.RFC3339Nano)
}

// Register records that content fp was observed at path.
//
//   - unseen fp: inserts a Processing row (OutcomeCreated)
//   - fp in Success: returns the row unchanged (OutcomeDuplicate), whatever the path
//   - fp in Error: resets it to Processing at path (OutcomeRetried)
//   - fp in Processing: returns the row unchanged (OutcomeInFlight)
//
// A path already owned by a different fingerprint is rejected with ErrPathConflict.
func (l *Ledger) Register(ctx context.Context, fp, path string) (*Job, Outcome, error) {
	const op = "ledger register"
	if strings.TrimSpace(fp) == "" {
		return nil, "", failure.New(failure.KindValidation, op, fmt.Errorf("%w: fingerprint is empty", ErrInvalidInput))
	}
	if !filepath.IsAbs(path) {
		return nil, "", failure.New(failure.KindValidation, op, fmt.Errorf("%w: path %q is not absolute", ErrInvalidInput, path))
	}

	var (
		job     *Job
		outcome Outcome
	)
	err := withBusyRetry(ctx, func() error {
		var err error
		job, outcome, err = l.registerTx(ctx, fp, path)
		return err
	})
	if err != nil {
		return nil, "", classify(op, err)
	}
	return job, outcome, nil
}

func (l *Ledger) registerTx(ctx context.Context, fp, path string) (*Job, Outcome, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM processed_images WHERE file_hash = ?;`, fp))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := checkPathOwner(ctx, tx, path, fp); err != nil {
			return nil, "", err
		}
		job, err := scanJob(tx.QueryRowContext(ctx, `
INSERT INTO processed_images(original_path, file_hash, status, created_at)
VALUES(?, ?, ?, ?)
RETURNING `+jobColumns+`;
`, path, fp, StatusProcessing, l.timestamp()))
		if err != nil {
			return nil, "", fmt.Errorf("insert job: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, "", fmt.Errorf("commit tx: %w", err)
		}
		return job, OutcomeCreated, nil

	case err != nil:
		return nil, "", fmt.Errorf("load job: %w", err)
	}

	switch existing.Status {
	case StatusSuccess:
		return existing, OutcomeDuplicate, nil
	case StatusProcessing:
		return existing, OutcomeInFlight, nil
	}

	// Error: treat as a fresh attempt, possibly from a new path.
	if existing.SourcePath != path {
		if err := checkPathOwner(ctx, tx, path, fp); err != nil {
			return nil, "", err
		}
	}
	job, err := scanJob(tx.QueryRowContext(ctx, `
UPDATE processed_images
SET status = ?, original_path = ?, processed_at = NULL, error_message = NULL
WHERE file_hash = ?
RETURNING `+jobColumns+`;
`, StatusProcessing, path, fp))
	if err != nil {
		return nil, "", fmt.Errorf("reset job for retry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("commit tx: %w", err)
	}
	return job, OutcomeRetried, nil
}

// checkPathOwner fails when path already belongs to a fingerprint other than fp.
func checkPathOwner(ctx context.Context, tx *sql.Tx, path, fp string) error {
	var owner string
	err := tx.QueryRowContext(ctx, `SELECT file_hash FROM processed_images WHERE original_path = ?;`, path).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load path owner: %w", err)
	}
	if owner != fp {
		return fmt.Errorf("%w: %s is registered as %s", ErrPathConflict, path, owner)
	}
	return nil
}

// Transition moves fp from Processing to a terminal status. errMsg is stored
// only for StatusError and is never left empty there. processed_at is written
// on every transition.
func (l *Ledger) Transition(ctx context.Context, fp string, to Status, errMsg string) error {
	const op = "ledger transition"
	if !to.Valid() {
		return failure.New(failure.KindValidation, op, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, to))
	}

	var msg any
	if to == StatusError {
		if strings.TrimSpace(errMsg) == "" {
			errMsg = "unknown error"
		}
		msg = errMsg
	}

	err := withBusyRetry(ctx, func() error {
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var from Status
		err = tx.QueryRowContext(ctx, `SELECT status FROM processed_images WHERE file_hash = ?;`, fp).Scan(&from)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, fp)
		}
		if err != nil {
			return fmt.Errorf("load status: %w", err)
		}
		if !CanTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE processed_images
SET status = ?, processed_at = ?, error_message = ?
WHERE file_hash = ?;
`, to, l.timestamp(), msg, fp); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	return classify(op, err)
}

// Relocate points the job for fp at newPath. It is used when content already
// in the ledger reappears under a new name and its recorded path is gone.
func (l *Ledger) Relocate(ctx context.Context, fp, newPath string) (*Job, error) {
	const op = "ledger relocate"
	if !filepath.IsAbs(newPath) {
		return nil, failure.New(failure.KindValidation, op, fmt.Errorf("%w: path %q is not absolute", ErrInvalidInput, newPath))
	}

	var job *Job
	err := withBusyRetry(ctx, func() error {
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := checkPathOwner(ctx, tx, newPath, fp); err != nil {
			return err
		}
		job, err = scanJob(tx.QueryRowContext(ctx, `
UPDATE processed_images
SET original_path = ?
WHERE file_hash = ?
RETURNING `+jobColumns+`;
`, newPath, fp))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, fp)
		}
		if err != nil {
			return fmt.Errorf("update path: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, classify(op, err)
	}
	return job, nil
}

// LookupByPath returns the fingerprint registered at path.
func (l *Ledger) LookupByPath(ctx context.Context, path string) (string, error) {
	var fp string
	err := l.db.QueryRowContext(ctx, `SELECT file_hash FROM processed_images WHERE original_path = ?;`, path).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", classify("ledger lookup path", fmt.Errorf("%w: no job at %s", ErrNotFound, path))
	}
	if err != nil {
		return "", classify("ledger lookup path", err)
	}
	return fp, nil
}

// LookupByFingerprint returns the Job for fp.
func (l *Ledger) LookupByFingerprint(ctx context.Context, fp string) (*Job, error) {
	job, err := scanJob(l.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM processed_images WHERE file_hash = ?;`, fp))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, classify("ledger lookup fingerprint", fmt.Errorf("%w: %s", ErrNotFound, fp))
	}
	if err != nil {
		return nil, classify("ledger lookup fingerprint", err)
	}
	return job, nil
}

// Remove deletes the Job for fp.
func (l *Ledger) Remove(ctx context.Context, fp string) error {
	err := withBusyRetry(ctx, func() error {
		res, err := l.db.ExecContext(ctx, `DELETE FROM processed_images WHERE file_hash = ?;`, fp)
		if err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, fp)
		}
		return nil
	})
	return classify("ledger remove", err)
}

// SampleRandomSuccessful returns a uniformly chosen Success job, or (nil, nil)
// when there is none.
func (l *Ledger) SampleRandomSuccessful(ctx context.Context) (*Job, error) {
	job, err := scanJob(l.db.QueryRowContext(ctx, `
SELECT `+jobColumns+`
FROM processed_images
WHERE status = ?
ORDER BY RANDOM()
LIMIT 1;
`, StatusSuccess))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("ledger sample", err)
	}
	return job, nil
}

// List returns jobs ordered by id. An empty status lists everything.
func (l *Ledger) List(ctx context.Context, status Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM processed_images`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id ASC;`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("ledger list", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, classify("ledger list", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("ledger list", err)
	}
	return jobs, nil
}

// Counts returns the number of jobs per status. Missing statuses map to zero.
func (l *Ledger) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM processed_images GROUP BY status;`)
	if err != nil {
		return nil, classify("ledger counts", err)
	}
	defer rows.Close()

	out := map[Status]int{StatusProcessing: 0, StatusSuccess: 0, StatusError: 0}
	for rows.Next() {
		var (
			s Status
			n int
		)
		if err := rows.Scan(&s, &n); err != nil {
			return nil, classify("ledger counts", err)
		}
		out[s] = n
	}
	if err := rows.Err(); err != nil {
		return nil, classify("ledger counts", err)
	}
	return out, nil
}

// RecoverInterrupted moves rows left in Processing by a previous run to Error
// so the next submit retries them. Call before any submit is issued.
func (l *Ledger) RecoverInterrupted(ctx context.Context) (int64, error) {
	var n int64
	err := withBusyRetry(ctx, func() error {
		res, err := l.db.ExecContext(ctx, `
UPDATE processed_images
SET status = ?, processed_at = ?, error_message = ?
WHERE status = ?;
`, StatusError, l.timestamp(), interruptedMessage, StatusProcessing)
		if err != nil {
			return fmt.Errorf("recover interrupted jobs: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, classify("ledger recover", err)
	}
	return n, nil
}

// classify wraps err with the failure kind matching its sentinel.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case failure.KindOf(err) != failure.KindUnknown:
		return err
	case errors.Is(err, ErrNotFound):
		return failure.New(failure.KindNotFound, op, err)
	case errors.Is(err, ErrPathConflict), errors.Is(err, ErrInvalidTransition):
		return failure.New(failure.KindConflict, op, err)
	case errors.Is(err, ErrInvalidInput):
		return failure.New(failure.KindValidation, op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return failure.New(failure.KindStore, op, err)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		j            Job
		createdAtS   string
		processedAtS sql.NullString
		errorMessage sql.NullString
	)
	if err := row.Scan(&j.ID, &j.SourcePath, &j.Fingerprint, &j.Status, &createdAtS, &processedAtS, &errorMessage); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		j.CreatedAt = t
	}
	if processedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, processedAtS.String); err == nil {
			j.ProcessedAt = &t
		}
	}
	if errorMessage.Valid {
		j.ErrorMessage = &errorMessage.String
	}
	return &j, nil
}
