// internal/register/spec.go
package register

import "fmt"

// Function is the Modbus read function a register is served by.
// Values are the wire function codes.
type Function uint8

const (
	FunctionHolding Function = 0x03
	FunctionInput   Function = 0x04
)

func (f Function) String() string {
	switch f {
	case FunctionHolding:
		return "holding"
	case FunctionInput:
		return "input"
	}
	return fmt.Sprintf("function(0x%02x)", uint8(f))
}

// DataType is the on-wire encoding of a register value.
type DataType uint8

const (
	Float32 DataType = iota + 1
	Uint32
	Uint16
	Hex16 // decoded like Uint16, rendered as hex
)

// Words returns the number of 16-bit registers the type occupies, or 0 if unknown.
func (d DataType) Words() uint16 {
	switch d {
	case Float32, Uint32:
		return 2
	case Uint16, Hex16:
		return 1
	}
	return 0
}

// Integer reports whether the type only carries whole numbers.
func (d DataType) Integer() bool {
	return d == Uint32 || d == Uint16 || d == Hex16
}

func (d DataType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Uint32:
		return "uint32"
	case Uint16:
		return "uint16"
	case Hex16:
		return "hex16"
	}
	return "unknown"
}

// Category groups registers for the enable/disable toggles.
type Category uint8

const (
	Basic Category = iota + 1
	Advanced
	Diagnostic
	TwoWay
	Config
)

func (c Category) String() string {
	switch c {
	case Basic:
		return "basic"
	case Advanced:
		return "advanced"
	case Diagnostic:
		return "diagnostic"
	case TwoWay:
		return "two-way"
	case Config:
		return "config"
	}
	return "unknown"
}

// Tier is the polling frequency class.
type Tier uint8

const (
	Fast Tier = iota + 1
	Normal
	Slow
)

func (t Tier) String() string {
	switch t {
	case Fast:
		return "fast"
	case Normal:
		return "normal"
	case Slow:
		return "slow"
	}
	return "unknown"
}

// Control is how a writable register is exposed.
type Control uint8

const (
	ControlNone Control = iota
	ControlNumber
	ControlSelect
)

func (c Control) String() string {
	switch c {
	case ControlNumber:
		return "number"
	case ControlSelect:
		return "select"
	}
	return "none"
}

// NoPrecision marks a Spec without a display precision.
const NoPrecision = -1

// Spec describes one meter parameter. Specs are values; catalogs hand out copies.
type Spec struct {
	Key      string
	Address  uint16 // 0-based register offset
	Length   uint16 // in 16-bit words
	Function Function
	DataType DataType
	Category Category
	Tier     Tier

	EnabledDefault bool

	Unit        string
	DeviceClass string
	StateClass  string
	Precision   int

	// Writable registers only.
	Control Control
	Min     float64
	Max     float64
	Step    float64
	Options []float64
}

// Writable reports whether the spec accepts writes from callers.
func (s Spec) Writable() bool {
	return s.Function == FunctionHolding && s.Control != ControlNone
}

// End returns the first address after the spec.
func (s Spec) End() uint32 {
	return uint32(s.Address) + uint32(s.Length)
}

// HasOption reports whether v is one of the select options.
func (s Spec) HasOption(v float64) bool {
	for _, o := range s.Options {
		if o == v {
			return true
		}
	}
	return false
}

func (s Spec) String() string {
	return fmt.Sprintf("%s@%s:%d/%d", s.Key, s.Function, s.Address, s.Length)
}

// ---- catalog construction helpers ----

func float32Input(key string, addr uint16, unit, class, state string, cat Category, tier Tier, enabled bool) Spec {
	return Spec{
		Key:            key,
		Address:        addr,
		Length:         2,
		Function:       FunctionInput,
		DataType:       Float32,
		Category:       cat,
		Tier:           tier,
		EnabledDefault: enabled,
		Unit:           unit,
		DeviceClass:    class,
		StateClass:     state,
		Precision:      NoPrecision,
	}
}

func identity(key string, addr uint16, dt DataType) Spec {
	return Spec{
		Key:       key,
		Address:   addr,
		Length:    dt.Words(),
		Function:  FunctionHolding,
		DataType:  dt,
		Category:  Diagnostic,
		Tier:      Slow,
		Precision: NoPrecision,
	}
}

func selectReg(key string, addr uint16, dt DataType, options ...float64) Spec {
	return Spec{
		Key:       key,
		Address:   addr,
		Length:    dt.Words(),
		Function:  FunctionHolding,
		DataType:  dt,
		Category:  Config,
		Tier:      Slow,
		Precision: NoPrecision,
		Control:   ControlSelect,
		Options:   options,
	}
}

func numberReg(key string, addr uint16, dt DataType, min, max, step float64) Spec {
	return Spec{
		Key:       key,
		Address:   addr,
		Length:    dt.Words(),
		Function:  FunctionHolding,
		DataType:  dt,
		Category:  Config,
		Tier:      Slow,
		Precision: NoPrecision,
		Control:   ControlNumber,
		Min:       min,
		Max:       max,
		Step:      step,
	}
}

func (s Spec) withPrecision(p int) Spec {
	s.Precision = p
	return s
}

func (s Spec) withUnit(u string) Spec {
	s.Unit = u
	return s
}
