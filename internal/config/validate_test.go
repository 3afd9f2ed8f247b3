// internal/config/validate_test.go
package config

import (
	"strings"
	"testing"
)

// helper to build a valid device quickly
func device(id, host string, unitID int) Device {
	return Device{
		ID:                  id,
		Host:                host,
		Port:                502,
		UnitID:              unitID,
		Model:               "SDM120",
		TimeoutMs:           3000,
		ScanIntervalSeconds: 10,
		NormalDivisor:       3,
		SlowDivisor:         30,
		Retry:               RetryConfig{Attempts: 3, BaseDelayMs: 1000},
	}
}

// ---- tests ----

func TestValidate_OK(t *testing.T) {
	cfg := &Config{
		Devices: []Device{
			device("a", "10.0.0.1", 1),
			device("b", "10.0.0.1", 2),
		},
	}

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Device)
		want   string
	}{
		{"missing host", func(d *Device) { d.Host = "" }, "host"},
		{"bad port", func(d *Device) { d.Port = 70000 }, "port"},
		{"unit id zero", func(d *Device) { d.UnitID = 0 }, "unit_id"},
		{"unit id too big", func(d *Device) { d.UnitID = 248 }, "unit_id"},
		{"unknown model", func(d *Device) { d.Model = "DDS238" }, "model"},
		{"scan too short", func(d *Device) { d.ScanIntervalSeconds = 4 }, "scan_interval_seconds"},
		{"normal divisor 1", func(d *Device) { d.NormalDivisor = 1 }, "normal_divisor"},
		{"slow not above normal", func(d *Device) { d.SlowDivisor = 3 }, "slow_divisor"},
		{"slow too big", func(d *Device) { d.SlowDivisor = 3601 }, "slow_divisor"},
		{"no attempts", func(d *Device) { d.Retry.Attempts = 0 }, "retry.attempts"},
	}

	for _, tt := range tests {
		d := device("a", "10.0.0.1", 1)
		tt.mutate(&d)
		err := Validate(&Config{Devices: []Device{d}})
		if err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: error %q does not mention %q", tt.name, err, tt.want)
		}
	}
}

func TestValidate_AutoModel(t *testing.T) {
	d := device("a", "10.0.0.1", 1)
	d.Model = "Auto"
	if err := Validate(&Config{Devices: []Device{d}}); err != nil {
		t.Fatalf("auto model rejected: %v", err)
	}
}

func TestValidate_DuplicateID(t *testing.T) {
	cfg := &Config{
		Devices: []Device{
			device("a", "10.0.0.1", 1),
			device("a", "10.0.0.2", 1),
		},
	}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestValidate_DuplicateEndpointUnit(t *testing.T) {
	cfg := &Config{
		Devices: []Device{
			device("a", "10.0.0.1", 1),
			device("b", "10.0.0.1", 1),
		},
	}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected endpoint collision error")
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	d := device("a", " 10.0.0.1 ", 1)
	d.Model = "sdm630m"
	cfg := &Config{Devices: []Device{d}}

	_ = Validate(cfg)
	if cfg.Devices[0].Model != "sdm630m" || cfg.Devices[0].Host != " 10.0.0.1 " {
		t.Fatalf("Validate mutated config: %+v", cfg.Devices[0])
	}

	Normalize(cfg)
	if cfg.Devices[0].Model != "SDM630" || cfg.Devices[0].Host != "10.0.0.1" {
		t.Fatalf("Normalize did not canonicalize: %+v", cfg.Devices[0])
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
devices:
  - id: house
    host: 192.168.1.50
    enable_config: true
`))
	if err != nil {
		t.Fatalf("Parse err=%v", err)
	}

	d := cfg.Devices[0]
	if d.Port != 502 || d.UnitID != 1 || d.ScanIntervalSeconds != 10 {
		t.Fatalf("defaults not applied: %+v", d)
	}
	if d.NormalDivisor != 3 || d.SlowDivisor != 30 || d.Retry.Attempts != 3 {
		t.Fatalf("divisor/retry defaults not applied: %+v", d)
	}
	if !d.Flags().Config || d.Flags().Advanced {
		t.Fatalf("flags not decoded: %+v", d.Flags())
	}
	if d.Endpoint() != "192.168.1.50:502" {
		t.Fatalf("endpoint=%s", d.Endpoint())
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaulted config invalid: %v", err)
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := &Config{Devices: []Device{device("a", "h", 1), device("b", "h", 2)}}
	if err := ApplyOverrides(cfg, map[string]uint8{"b": 9, "zzz": 4}); err != nil {
		t.Fatalf("ApplyOverrides err=%v", err)
	}

	if cfg.Devices[0].UnitID != 1 || cfg.Devices[1].UnitID != 9 {
		t.Fatalf("overrides not applied: %+v", cfg.Devices)
	}
}

func TestApplyOverrides_RejectsOutOfRange(t *testing.T) {
	for _, unit := range []uint8{0, 248, 255} {
		cfg := &Config{Devices: []Device{device("a", "h", 1), device("b", "h", 2)}}
		if err := ApplyOverrides(cfg, map[string]uint8{"b": unit}); err == nil {
			t.Fatalf("unit id %d accepted", unit)
		}
		if cfg.Devices[1].UnitID != 2 {
			t.Fatalf("rejected override %d applied: %+v", unit, cfg.Devices[1])
		}
	}
}
