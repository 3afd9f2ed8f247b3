// internal/codec/codec.go
package codec

import (
	"errors"
	"fmt"
	"math"

	"github.com/tamzrod/sdm-poller/internal/register"
)

// Word order is high word first for every 32-bit type: value = w0<<16 | w1.
// No byte swap is applied inside a word.

var (
	// ErrRange is returned when a value cannot be represented by the register type
	// (fractional value for an integer type, NaN, Inf).
	ErrRange = errors.New("codec: value not representable")

	// ErrOutOfRange is returned when a value is outside the spec's declared bounds
	// or outside the numeric range of the register type.
	ErrOutOfRange = errors.New("codec: value out of range")
)

// Decode converts raw register words into an engineering value.
// ok is false when too few words are supplied or the data type is unknown.
func Decode(spec register.Spec, words []uint16) (v float64, ok bool) {
	switch spec.DataType {
	case register.Float32:
		if len(words) < 2 {
			return 0, false
		}
		return float64(WordsFloat32(words[0], words[1])), true

	case register.Uint32:
		if len(words) < 2 {
			return 0, false
		}
		return float64(uint32(words[0])<<16 | uint32(words[1])), true

	case register.Uint16, register.Hex16:
		if len(words) < 1 {
			return 0, false
		}
		return float64(words[0]), true
	}
	return 0, false
}

// Encode converts an engineering value into the words written to the device.
// Number controls are bounds-checked against Min/Max before encoding.
func Encode(spec register.Spec, value float64) ([]uint16, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("%w: %s=%v", ErrRange, spec.Key, value)
	}

	if spec.Control == register.ControlNumber && (value < spec.Min || value > spec.Max) {
		return nil, fmt.Errorf("%w: %s=%v not in [%v, %v]", ErrOutOfRange, spec.Key, value, spec.Min, spec.Max)
	}

	switch spec.DataType {
	case register.Float32:
		if math.Abs(value) > math.MaxFloat32 {
			return nil, fmt.Errorf("%w: %s=%v exceeds float32", ErrOutOfRange, spec.Key, value)
		}
		hi, lo := Float32Words(float32(value))
		return []uint16{hi, lo}, nil

	case register.Uint32:
		if err := checkInteger(spec, value, math.MaxUint32); err != nil {
			return nil, err
		}
		u := uint32(value)
		return []uint16{uint16(u >> 16), uint16(u)}, nil

	case register.Uint16, register.Hex16:
		if err := checkInteger(spec, value, math.MaxUint16); err != nil {
			return nil, err
		}
		return []uint16{uint16(value)}, nil
	}

	return nil, fmt.Errorf("codec: %s: unsupported data type %s", spec.Key, spec.DataType)
}

func checkInteger(spec register.Spec, value float64, max float64) error {
	if value != math.Trunc(value) {
		return fmt.Errorf("%w: %s=%v is not an integer", ErrRange, spec.Key, value)
	}
	if value < 0 || value > max {
		return fmt.Errorf("%w: %s=%v does not fit %s", ErrOutOfRange, spec.Key, value, spec.DataType)
	}
	return nil
}

// Float32Words splits an IEEE-754 binary32 into its high and low words.
func Float32Words(f float32) (hi, lo uint16) {
	b := math.Float32bits(f)
	return uint16(b >> 16), uint16(b)
}

// WordsFloat32 composes two words (high first) into an IEEE-754 binary32.
func WordsFloat32(hi, lo uint16) float32 {
	return math.Float32frombits(uint32(hi)<<16 | uint32(lo))
}
