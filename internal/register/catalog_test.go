// internal/register/catalog_test.go
package register

import (
	"errors"
	"testing"
)

func TestModelSpecs_LengthMatchesType(t *testing.T) {
	for _, model := range []string{ModelSDM120, ModelSDM630} {
		for _, s := range ModelSpecs(model) {
			if s.Length != s.DataType.Words() {
				t.Fatalf("%s: %s length=%d want %d", model, s.Key, s.Length, s.DataType.Words())
			}
		}
	}
}

func TestModelSpecs_Aliases(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SDM120", ModelSDM120},
		{"sdm120m", ModelSDM120},
		{" SDM630 ", ModelSDM630},
		{"SDM630M", ModelSDM630},
	}
	for _, tt := range tests {
		got, ok := NormalizeModel(tt.in)
		if !ok || got != tt.want {
			t.Fatalf("NormalizeModel(%q)=%q,%v want %q", tt.in, got, ok, tt.want)
		}
	}

	if _, ok := NormalizeModel("DDS238"); ok {
		t.Fatalf("expected unknown model")
	}
}

func TestModelSpecs_UnknownFallsBackToSDM120(t *testing.T) {
	got := ModelSpecs("XYZ")
	want := ModelSpecs(ModelSDM120)
	if len(got) != len(want) {
		t.Fatalf("fallback len=%d want %d", len(got), len(want))
	}
	for i := range got {
		if got[i].Key != want[i].Key {
			t.Fatalf("fallback[%d]=%s want %s", i, got[i].Key, want[i].Key)
		}
	}
}

func TestModelSpecs_ReturnsCopy(t *testing.T) {
	a := ModelSpecs(ModelSDM120)
	a[0].Key = "mutated"

	b := ModelSpecs(ModelSDM120)
	if b[0].Key == "mutated" {
		t.Fatalf("catalog was mutated through returned slice")
	}
}

func TestSpecByKey(t *testing.T) {
	s, err := SpecByKey(ModelSDM630, KeyMeterID)
	if err != nil {
		t.Fatalf("SpecByKey err=%v", err)
	}
	if s.Function != FunctionHolding || !s.Writable() {
		t.Fatalf("meter_id must be a writable holding register: %+v", s)
	}

	_, err = SpecByKey(ModelSDM120, "voltage_l3")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewCatalog_PanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	newCatalog("T", []Spec{
		identity("a", 0, Uint16),
		identity("a", 1, Uint16),
	})
}

func TestNewCatalog_PanicsOnLengthMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	s := identity("a", 0, Uint32)
	s.Length = 1
	newCatalog("T", []Spec{s})
}

func TestFilter_AllFlagsOff(t *testing.T) {
	specs := ModelSpecs(ModelSDM120)
	got := Filter(specs, Flags{})

	want := map[string]bool{}
	for _, s := range specs {
		if s.Category == Basic && s.EnabledDefault {
			want[s.Key] = true
		}
	}

	if len(got) != len(want) {
		t.Fatalf("filtered len=%d want %d", len(got), len(want))
	}
	for _, s := range got {
		if !want[s.Key] {
			t.Fatalf("unexpected key %s (%s)", s.Key, s.Category)
		}
		if s.Category != Basic {
			t.Fatalf("non-basic key %s leaked through", s.Key)
		}
	}
}

func TestFilter_ConfigFlag(t *testing.T) {
	got := Filter(ModelSpecs(ModelSDM120), Flags{Config: true})

	found := false
	for _, s := range got {
		if s.Key == KeyMeterID {
			found = true
		}
		if s.Category == Advanced || s.Category == Diagnostic {
			t.Fatalf("unexpected %s key %s", s.Category, s.Key)
		}
	}
	if !found {
		t.Fatalf("meter_id missing with config enabled")
	}
}

func TestWritableSpecsHaveControl(t *testing.T) {
	for _, model := range []string{ModelSDM120, ModelSDM630} {
		for _, s := range ModelSpecs(model) {
			if s.Category != Config {
				continue
			}
			if !s.Writable() {
				t.Fatalf("%s: config spec %s is not writable", model, s.Key)
			}
			if s.Control == ControlSelect && len(s.Options) == 0 {
				t.Fatalf("%s: select %s has no options", model, s.Key)
			}
		}
	}
}
