// internal/status/constants.go
package status

// ---- HEALTH CODES ----

// HealthUnknown represents an unknown or boot state.
const HealthUnknown uint16 = 0

// HealthOK represents a healthy device.
const HealthOK uint16 = 1

// HealthError represents a device error state (no data to serve).
const HealthError uint16 = 2

// HealthStale represents a device serving last-known values after a failed poll.
const HealthStale uint16 = 3

// HealthName returns the lower-case name used in logs and the HTTP API.
func HealthName(h uint16) string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	case HealthStale:
		return "stale"
	}
	return "unknown"
}

// ErrorCodeGeneric is reported for errors that carry no code of their own.
const ErrorCodeGeneric uint16 = 1

// SecondsInErrorMax caps the seconds-in-error counter.
const SecondsInErrorMax = 65535
