// Package failure classifies errors crossing component boundaries.
//
// Packages keep their own sentinel errors (ledger.ErrNotFound, transform.ErrTooLarge)
// and wrap them in an *Error at the point where the caller needs to decide what to
// do with them: surface a 404, record a Job as failed, or abort a submit.
package failure

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the coarse classification of a failure.
type Kind string

const (
	KindUnknown    Kind = ""
	KindNotFound   Kind = "not_found"
	KindIO         Kind = "io_failure"
	KindTransform  Kind = "transform_failure"
	KindValidation Kind = "validation_failure"
	KindStore      Kind = "store_failure"
	KindConflict   Kind = "conflict"
)

// Error carries a Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a new classified error from a format string.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the outermost Kind found in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to the status code the API boundary responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
