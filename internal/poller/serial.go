// internal/poller/serial.go
package poller

import (
	"context"
	"strconv"

	"github.com/tamzrod/sdm-poller/internal/codec"
	"github.com/tamzrod/sdm-poller/internal/register"
)

// EnsureSerialNumber reads the serial number once and caches it.
// Failures are not fatal: the identifier stays unset and the next call retries.
func (p *Poller) EnsureSerialNumber(ctx context.Context) (uint32, bool) {
	p.mu.RLock()
	serial, ok := p.serial, p.hasSerial
	p.mu.RUnlock()
	if ok {
		return serial, true
	}

	spec, err := register.SpecByKey(p.Model(), register.KeySerialNumber)
	if err != nil {
		return 0, false
	}

	p.op.Lock()
	words, err := p.tr.ReadHoldingRegisters(ctx, spec.Address, spec.Length)
	p.op.Unlock()
	if err != nil {
		p.log.Debug().Err(err).Msg("serial number read failed")
		return 0, false
	}

	v, ok := codec.Decode(spec, words)
	if !ok || v == 0 {
		return 0, false
	}

	p.mu.Lock()
	p.serial, p.hasSerial = uint32(v), true
	p.mu.Unlock()

	p.log.Info().Uint32("serial", uint32(v)).Msg("serial number resolved")
	return uint32(v), true
}

// Identifier is the stable device identifier: sdm-<serial> when the serial
// number is known, otherwise the configured device id.
func (p *Poller) Identifier() string {
	p.mu.RLock()
	serial, ok := p.serial, p.hasSerial
	p.mu.RUnlock()
	if ok {
		return "sdm-" + strconv.FormatUint(uint64(serial), 10)
	}
	return p.cfg.DeviceID
}

// UniqueID builds the external key for one register of this device.
func (p *Poller) UniqueID(key string) string {
	return p.Identifier() + "_" + key
}
