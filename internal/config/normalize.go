// internal/config/normalize.go
package config

import (
	"fmt"
	"strings"

	"github.com/tamzrod/sdm-poller/internal/register"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	for i := range cfg.Devices {
		d := &cfg.Devices[i]

		// Canonical model names; aliases collapse to SDM120 / SDM630.
		if m, ok := register.NormalizeModel(d.Model); ok {
			d.Model = m
		} else if strings.EqualFold(d.Model, ModelAuto) {
			d.Model = ModelAuto
		}

		d.Host = strings.TrimSpace(d.Host)
	}
}

// ApplyOverrides replaces unit ids with runtime overrides keyed by device id.
// Unknown device ids are ignored. An out-of-range unit id rejects the whole set.
func ApplyOverrides(cfg *Config, unitIDs map[string]uint8) error {
	if cfg == nil {
		return nil
	}
	for id, unit := range unitIDs {
		if int(unit) < MinUnitID || int(unit) > MaxUnitID {
			return fmt.Errorf("unit id override for %q: %d out of range %d..%d", id, unit, MinUnitID, MaxUnitID)
		}
	}
	for i := range cfg.Devices {
		if id, ok := unitIDs[cfg.Devices[i].ID]; ok {
			cfg.Devices[i].UnitID = int(id)
		}
	}
	return nil
}
