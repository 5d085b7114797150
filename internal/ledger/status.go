package ledger

import "fmt"

// transitions lists the allowed moves. Success and Error are terminal; the
// only way out of them is Remove, or Register retrying an Error row.
var transitions = map[Status][]Status{
	StatusProcessing: {StatusSuccess, StatusError},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusSuccess, StatusError:
		return true
	}
	return false
}

// ParseStatus converts a stored or user supplied value.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, v)
	}
	return s, nil
}
