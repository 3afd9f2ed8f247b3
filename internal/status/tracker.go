// internal/status/tracker.go
package status

import (
	"errors"
	"time"
)

// Tracker folds poll outcomes into a Snapshot.
// Not safe for concurrent use; the owner serializes access.
type Tracker struct {
	snap       Snapshot
	errorSince time.Time
}

// Success records a poll that produced fresh data.
func (t *Tracker) Success(now time.Time) {
	t.snap.Health = HealthOK
	t.snap.LastErrorCode = 0
	t.snap.ConsecutiveFailures = 0
	t.snap.LastSuccess = now
	t.errorSince = time.Time{}
}

// Failure records a failed poll. stale is true when last-known values are
// still being served.
func (t *Tracker) Failure(now time.Time, err error, stale bool) {
	if stale {
		t.snap.Health = HealthStale
	} else {
		t.snap.Health = HealthError
	}
	t.snap.LastErrorCode = ErrorCode(err)
	t.snap.ConsecutiveFailures++
	if t.errorSince.IsZero() {
		t.errorSince = now
	}
}

// Snapshot returns the current state with SecondsInError evaluated at now.
func (t *Tracker) Snapshot(now time.Time) Snapshot {
	s := t.snap
	s.SecondsInError = 0
	if s.Health != HealthOK && !t.errorSince.IsZero() {
		secs := now.Sub(t.errorSince) / time.Second
		if secs > SecondsInErrorMax {
			secs = SecondsInErrorMax
		}
		s.SecondsInError = uint16(secs)
	}
	return s
}

// ErrorCode extracts a best-effort uint16 code from an error without assuming concrete types.
// If the error does not expose a code, returns ErrorCodeGeneric.
func ErrorCode(err error) uint16 {
	if err == nil {
		return 0
	}

	type coderA interface{ Code() uint16 }
	type coderB interface{ ErrorCode() uint16 }

	var a coderA
	if errors.As(err, &a) {
		return a.Code()
	}
	var b coderB
	if errors.As(err, &b) {
		return b.ErrorCode()
	}

	return ErrorCodeGeneric
}
