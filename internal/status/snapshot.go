// internal/status/snapshot.go
package status

import "time"

// Snapshot is the device health as seen by readers.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health              uint16
	LastErrorCode       uint16
	SecondsInError      uint16
	ConsecutiveFailures int
	LastSuccess         time.Time
}

// HealthName is the name of s.Health.
func (s Snapshot) HealthName() string { return HealthName(s.Health) }
