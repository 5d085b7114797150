package ledger

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusProcessing, StatusSuccess, true},
		{StatusProcessing, StatusError, true},
		{StatusProcessing, StatusProcessing, false},
		{StatusSuccess, StatusError, false},
		{StatusSuccess, StatusProcessing, false},
		{StatusError, StatusSuccess, false},
		{StatusError, StatusProcessing, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	if StatusProcessing.Terminal() {
		t.Error("processing must not be terminal")
	}
	if !StatusSuccess.Terminal() || !StatusError.Terminal() {
		t.Error("success and error must be terminal")
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("success")
	if err != nil || s != StatusSuccess {
		t.Fatalf("ParseStatus(success) = %q, %v", s, err)
	}
	if _, err := ParseStatus("done"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestOutcomeNeedsTransform(t *testing.T) {
	if !OutcomeCreated.NeedsTransform() || !OutcomeRetried.NeedsTransform() {
		t.Error("created and retried need a transform")
	}
	if OutcomeDuplicate.NeedsTransform() || OutcomeInFlight.NeedsTransform() {
		t.Error("duplicate and in-flight must not transform")
	}
}
