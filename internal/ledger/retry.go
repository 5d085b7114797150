package ledger

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	sqliteBusyCode    = 5
	busyRetryAttempts = 5
	busyBackoffStart  = 10 * time.Millisecond
	busyBackoffCap    = 200 * time.Millisecond
)

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withBusyRetry reruns op while SQLite reports the database as locked.
// busy_timeout covers most contention; this handles the rest (for example
// another process holding the WAL during a checkpoint).
func withBusyRetry(ctx context.Context, op func() error) error {
	delay := busyBackoffStart
	var err error
	for attempt := 1; ; attempt++ {
		err = op()
		if !isBusy(err) || attempt == busyRetryAttempts {
			return err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, busyBackoffCap)
	}
}
