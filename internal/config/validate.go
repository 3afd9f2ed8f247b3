// internal/config/validate.go
package config

import (
	"fmt"
	"strings"

	"github.com/tamzrod/sdm-poller/internal/register"
)

// Limits enforced by Validate.
const (
	MinScanIntervalSeconds = 5
	MaxScanIntervalSeconds = 3600
	MinNormalDivisor       = 2
	MaxDivisor             = 3600
	MinUnitID              = 1
	MaxUnitID              = 247
	MaxRetryAttempts       = 10
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format %q: must be console or json", cfg.Log.Format)
	}

	if len(cfg.Devices) == 0 {
		return fmt.Errorf("no devices configured")
	}

	ids := make(map[string]struct{}, len(cfg.Devices))
	endpoints := make(map[string]string, len(cfg.Devices))

	for i, d := range cfg.Devices {
		if d.ID == "" {
			return fmt.Errorf("device #%d: id is required", i)
		}
		if _, dup := ids[d.ID]; dup {
			return fmt.Errorf("device %q: duplicate id", d.ID)
		}
		ids[d.ID] = struct{}{}

		if err := validateDevice(d); err != nil {
			return fmt.Errorf("device %q: %w", d.ID, err)
		}

		// one session per meter: host:port|unit must be unique
		key := fmt.Sprintf("%s|%d", d.Endpoint(), d.UnitID)
		if prev, dup := endpoints[key]; dup {
			return fmt.Errorf(
				"device %q: endpoint=%s unit_id=%d already used by device %q",
				d.ID,
				d.Endpoint(),
				d.UnitID,
				prev,
			)
		}
		endpoints[key] = d.ID
	}

	return nil
}

func validateDevice(d Device) error {
	if d.Host == "" {
		return fmt.Errorf("host is required")
	}
	if d.Port < 1 || d.Port > 65535 {
		return fmt.Errorf("port %d out of range 1..65535", d.Port)
	}
	if d.UnitID < MinUnitID || d.UnitID > MaxUnitID {
		return fmt.Errorf("unit_id %d out of range %d..%d", d.UnitID, MinUnitID, MaxUnitID)
	}
	if _, ok := register.NormalizeModel(d.Model); !ok && !strings.EqualFold(d.Model, ModelAuto) {
		return fmt.Errorf("model %q: must be SDM120, SDM630 or auto", d.Model)
	}
	if d.TimeoutMs <= 0 {
		return fmt.Errorf("timeout_ms must be > 0")
	}

	if d.ScanIntervalSeconds < MinScanIntervalSeconds || d.ScanIntervalSeconds > MaxScanIntervalSeconds {
		return fmt.Errorf(
			"scan_interval_seconds %d out of range %d..%d",
			d.ScanIntervalSeconds,
			MinScanIntervalSeconds,
			MaxScanIntervalSeconds,
		)
	}
	if d.NormalDivisor < MinNormalDivisor || d.NormalDivisor > MaxDivisor {
		return fmt.Errorf("normal_divisor %d out of range %d..%d", d.NormalDivisor, MinNormalDivisor, MaxDivisor)
	}
	if d.SlowDivisor <= d.NormalDivisor || d.SlowDivisor > MaxDivisor {
		return fmt.Errorf(
			"slow_divisor %d must be greater than normal_divisor %d and at most %d",
			d.SlowDivisor,
			d.NormalDivisor,
			MaxDivisor,
		)
	}

	if d.Retry.Attempts < 1 || d.Retry.Attempts > MaxRetryAttempts {
		return fmt.Errorf("retry.attempts %d out of range 1..%d", d.Retry.Attempts, MaxRetryAttempts)
	}
	if d.Retry.BaseDelayMs < 0 {
		return fmt.Errorf("retry.base_delay_ms must be >= 0")
	}

	return nil
}
