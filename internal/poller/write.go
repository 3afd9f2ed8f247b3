// internal/poller/write.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/tamzrod/sdm-poller/internal/codec"
	"github.com/tamzrod/sdm-poller/internal/register"
)

var (
	// ErrValidation rejects a write before any I/O.
	ErrValidation = errors.New("poller: invalid write")

	// ErrVerification is returned when a meter_id change could not be read back.
	// The session is rolled back to the previous unit id.
	ErrVerification = errors.New("poller: write verification failed")
)

// UnitIDStore persists a verified unit id change. Owned by the caller.
type UnitIDStore interface {
	PersistUnitID(ctx context.Context, deviceID string, unitID uint8) error
}

// Write validates value against the spec for key, encodes it and writes it.
func (p *Poller) Write(ctx context.Context, key string, value float64) error {
	spec, err := register.SpecByKey(p.Model(), key)
	if err != nil {
		return err
	}
	if err := validateWrite(spec, value); err != nil {
		return err
	}

	words, err := codec.Encode(spec, value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	p.op.Lock()
	defer p.op.Unlock()
	return p.writeLocked(ctx, spec, words, value)
}

// WriteWords writes raw words. The word count must match the spec exactly.
func (p *Poller) WriteWords(ctx context.Context, key string, words []uint16) error {
	spec, err := register.SpecByKey(p.Model(), key)
	if err != nil {
		return err
	}
	if len(words) != int(spec.Length) {
		return fmt.Errorf("%w: %s takes %d words, got %d", ErrValidation, key, spec.Length, len(words))
	}

	value, ok := codec.Decode(spec, words)
	if !ok {
		return fmt.Errorf("%w: %s: undecodable words", ErrValidation, key)
	}
	if err := validateWrite(spec, value); err != nil {
		return err
	}

	p.op.Lock()
	defer p.op.Unlock()
	return p.writeLocked(ctx, spec, words, value)
}

func validateWrite(spec register.Spec, value float64) error {
	if spec.Function != register.FunctionHolding {
		return fmt.Errorf("%w: %s is a %s register", ErrValidation, spec.Key, spec.Function)
	}

	switch spec.Control {
	case register.ControlSelect:
		if !spec.HasOption(value) {
			return fmt.Errorf("%w: %s=%v not one of %v", ErrValidation, spec.Key, value, spec.Options)
		}
	case register.ControlNumber:
		if value < spec.Min || value > spec.Max {
			return fmt.Errorf("%w: %w: %s=%v not in [%v, %v]", ErrValidation, codec.ErrOutOfRange, spec.Key, value, spec.Min, spec.Max)
		}
		if spec.Step > 0 {
			n := (value - spec.Min) / spec.Step
			if math.Abs(n-math.Round(n)) > 1e-9 {
				return fmt.Errorf("%w: %s=%v not a multiple of step %v", ErrValidation, spec.Key, value, spec.Step)
			}
		}
	default:
		return fmt.Errorf("%w: %s is not writable", ErrValidation, spec.Key)
	}
	return nil
}

func (p *Poller) writeLocked(ctx context.Context, spec register.Spec, words []uint16, value float64) error {
	var err error
	if len(words) == 1 {
		err = p.tr.WriteHoldingRegister(ctx, spec.Address, words[0])
	} else {
		err = p.tr.WriteHoldingRegisters(ctx, spec.Address, words)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", spec.Key, err)
	}

	p.log.Info().Str("key", spec.Key).Float64("value", value).Msg("register written")

	if spec.Key == register.KeyMeterID {
		return p.changeUnitIDLocked(ctx, spec, uint8(value))
	}

	// Registers outside the enabled categories are written but not exposed.
	p.mu.Lock()
	if p.flags.Enabled(spec) {
		v := value
		p.cache[spec.Key] = DecodedValue{Key: spec.Key, Value: &v, Updated: p.now()}
	}
	p.mu.Unlock()
	return nil
}

// changeUnitIDLocked switches the session to the new unit id and reads the
// register back through it. A mismatch or failed read restores the old id.
func (p *Poller) changeUnitIDLocked(ctx context.Context, spec register.Spec, newID uint8) error {
	oldID := p.tr.UnitID()
	p.tr.SetUnitID(newID)

	words, err := p.tr.ReadHoldingRegisters(ctx, spec.Address, spec.Length)
	if err != nil {
		p.tr.SetUnitID(oldID)
		p.log.Warn().Err(err).Uint8("old", oldID).Uint8("new", newID).Msg("meter_id verify read failed, rolled back")
		return fmt.Errorf("%w: meter_id %d: %w", ErrVerification, newID, err)
	}
	got, ok := codec.Decode(spec, words)
	if !ok || got != float64(newID) {
		p.tr.SetUnitID(oldID)
		p.log.Warn().Float64("read", got).Uint8("old", oldID).Uint8("new", newID).Msg("meter_id mismatch, rolled back")
		return fmt.Errorf("%w: meter_id read back %v, want %d", ErrVerification, got, newID)
	}

	p.log.Info().Uint8("old", oldID).Uint8("new", newID).Msg("meter_id changed")

	var perr error
	if p.store != nil {
		if err := p.store.PersistUnitID(ctx, p.cfg.DeviceID, newID); err != nil {
			perr = fmt.Errorf("meter_id %d applied but not persisted: %w", newID, err)
			p.log.Error().Err(err).Msg("persist unit id failed")
		}
	}

	// Re-establish tier lists and values under the new address.
	p.built = false
	p.pollLocked(ctx)
	return perr
}
