package processing

import (
	"context"

	"github.com/mattjoyce/imageledger/internal/ledger"
)

//go:generate mockgen -destination=mocks/mock_ledger.go -package=mocks github.com/mattjoyce/imageledger/internal/processing LedgerService

// LedgerService is the subset of *ledger.Ledger the client drives.
type LedgerService interface {
	Register(ctx context.Context, fp, path string) (*ledger.Job, ledger.Outcome, error)
	Transition(ctx context.Context, fp string, to ledger.Status, errMsg string) error
	LookupByPath(ctx context.Context, path string) (string, error)
	LookupByFingerprint(ctx context.Context, fp string) (*ledger.Job, error)
	Relocate(ctx context.Context, fp, newPath string) (*ledger.Job, error)
	Remove(ctx context.Context, fp string) error
	SampleRandomSuccessful(ctx context.Context) (*ledger.Job, error)
	List(ctx context.Context, status ledger.Status) ([]*ledger.Job, error)
	Counts(ctx context.Context) (map[ledger.Status]int, error)
}

var _ LedgerService = (*ledger.Ledger)(nil)

// Intents is what the watcher and the reconciler feed. Client executes
// intents in-process; remote.Client forwards them to a running server.
type Intents interface {
	Submit(ctx context.Context, path string) (*Result, error)
	Delete(ctx context.Context, path string) error
}

// Result reports what a submit did.
type Result struct {
	Fingerprint string         `json:"file_hash"`
	Path        string         `json:"file_path"`
	Status      ledger.Status  `json:"status"`
	Outcome     ledger.Outcome `json:"outcome"`
	// Error is the recorded failure when Status is error.
	Error string `json:"error,omitempty"`
}
