// internal/poller/types.go
package poller

import (
	"time"

	"github.com/tamzrod/sdm-poller/internal/register"
)

// Batch is one contiguous wire read. Built fresh every cycle.
type Batch struct {
	Function register.Function
	Start    uint16
	Length   uint16
	Specs    []register.Spec // sorted by address
}

// End returns the first address after the batch.
func (b Batch) End() uint32 {
	return uint32(b.Start) + uint32(b.Length)
}

// DecodedValue is the latest value for one spec.
// Value is nil when the words could not be decoded.
type DecodedValue struct {
	Key     string
	Value   *float64
	Updated time.Time
}

// Result is a snapshot produced by one poll cycle.
type Result struct {
	DeviceID string
	At       time.Time
	Duration time.Duration
	Attempts int

	// Values is the full cache after the cycle.
	Values map[string]DecodedValue

	// Stale is set when every attempt failed and the previous cache is served.
	// LastError carries the cause.
	Stale     bool
	LastError error

	Err error // non-nil means the poll cycle failed and there is nothing to serve
}

// Success reports whether consumers have data to show.
func (r Result) Success() bool { return r.Err == nil }

// Stats are cumulative poll statistics.
type Stats struct {
	TotalPolls          uint64
	SuccessCount        uint64
	FailureCount        uint64
	StaleCount          uint64
	ConsecutiveFailures int
	LastUpdate          time.Time
	LastError           string
	TotalDuration       time.Duration
	AvgDuration         time.Duration
}
