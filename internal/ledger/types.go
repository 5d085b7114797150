package ledger

import (
	"errors"
	"time"
)

// Status is the processing state of a Job. Values are stored verbatim.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Job is one row of processed_images.
type Job struct {
	ID           int64
	Fingerprint  string
	SourcePath   string
	Status       Status
	CreatedAt    time.Time
	ProcessedAt  *time.Time
	ErrorMessage *string
}

// Outcome describes what Register did.
type Outcome string

const (
	// OutcomeCreated: fingerprint was unseen, a Processing row was inserted.
	OutcomeCreated Outcome = "created"
	// OutcomeRetried: fingerprint was in Error and re-entered Processing.
	OutcomeRetried Outcome = "retried"
	// OutcomeDuplicate: fingerprint is already Success; nothing changed.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeInFlight: fingerprint is Processing under another submit; nothing changed.
	OutcomeInFlight Outcome = "in_flight"
)

// NeedsTransform reports whether the caller now owns the Processing row and
// must drive it to a terminal status.
func (o Outcome) NeedsTransform() bool {
	return o == OutcomeCreated || o == OutcomeRetried
}

var (
	ErrNotFound          = errors.New("image not found")
	ErrPathConflict      = errors.New("path already registered with different content")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidInput      = errors.New("invalid input")
)

// interruptedMessage is recorded on rows found Processing at startup.
const interruptedMessage = "interrupted before completion"
