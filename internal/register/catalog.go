// internal/register/catalog.go
package register

import (
	"errors"
	"fmt"
	"strings"
)

// Canonical model names.
const (
	ModelSDM120 = "SDM120"
	ModelSDM630 = "SDM630"
)

// Well-known keys the poller treats specially.
const (
	KeyMeterID      = "meter_id"
	KeySerialNumber = "serial_number"
)

// ErrNotFound is returned when a key is not part of a model's catalog.
var ErrNotFound = errors.New("register: spec not found")

// catalog is an immutable per-model register table.
type catalog struct {
	model string
	specs []Spec
	byKey map[string]int
}

// newCatalog validates the table and panics on programming errors.
func newCatalog(model string, specs []Spec) *catalog {
	c := &catalog{
		model: model,
		specs: specs,
		byKey: make(map[string]int, len(specs)),
	}
	for i, s := range specs {
		if s.Key == "" {
			panic(fmt.Sprintf("register: %s: spec #%d has no key", model, i))
		}
		if _, dup := c.byKey[s.Key]; dup {
			panic(fmt.Sprintf("register: %s: duplicate key %q", model, s.Key))
		}
		if w := s.DataType.Words(); w == 0 || w != s.Length {
			panic(fmt.Sprintf("register: %s: %q length %d does not match %s", model, s.Key, s.Length, s.DataType))
		}
		if s.End() > 0x10000 {
			panic(fmt.Sprintf("register: %s: %q exceeds address space", model, s.Key))
		}
		c.byKey[s.Key] = i
	}
	return c
}

var catalogs = map[string]*catalog{
	ModelSDM120: newCatalog(ModelSDM120, sdm120Specs),
	ModelSDM630: newCatalog(ModelSDM630, sdm630Specs),
}

// NormalizeModel maps a user-supplied model name to its canonical form.
// The second result is false when the model is not supported.
func NormalizeModel(model string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(model)) {
	case "SDM120", "SDM120M", "SDM120CT", "SDM120-MODBUS":
		return ModelSDM120, true
	case "SDM630", "SDM630M", "SDM630-MODBUS":
		return ModelSDM630, true
	}
	return "", false
}

func lookup(model string) *catalog {
	if m, ok := NormalizeModel(model); ok {
		return catalogs[m]
	}
	// Unknown models fall back to the single-phase map.
	return catalogs[ModelSDM120]
}

// ModelSpecs returns a copy of the full catalog for model.
// Unknown models get the SDM120 catalog.
func ModelSpecs(model string) []Spec {
	c := lookup(model)
	out := make([]Spec, len(c.specs))
	copy(out, c.specs)
	return out
}

// SpecByKey looks up one spec in a model's catalog.
func SpecByKey(model, key string) (Spec, error) {
	c := lookup(model)
	i, ok := c.byKey[key]
	if !ok {
		return Spec{}, fmt.Errorf("%w: model=%s key=%s", ErrNotFound, c.model, key)
	}
	return c.specs[i], nil
}

// Flags are the per-device category toggles.
type Flags struct {
	Advanced   bool
	Diagnostic bool
	TwoWay     bool
	Config     bool
}

// Enabled reports whether a spec should be polled/exposed under these flags.
// Specs enabled by default are always on.
func (f Flags) Enabled(s Spec) bool {
	if s.EnabledDefault {
		return true
	}
	switch s.Category {
	case Advanced:
		return f.Advanced
	case Diagnostic:
		return f.Diagnostic
	case TwoWay:
		return f.TwoWay
	case Config:
		return f.Config
	}
	return false
}

// Filter returns the specs enabled under flags, preserving order.
func Filter(specs []Spec, f Flags) []Spec {
	out := make([]Spec, 0, len(specs))
	for _, s := range specs {
		if f.Enabled(s) {
			out = append(out, s)
		}
	}
	return out
}
