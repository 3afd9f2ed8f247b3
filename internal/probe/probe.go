// internal/probe/probe.go
package probe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"

	"github.com/tamzrod/sdm-poller/internal/codec"
	"github.com/tamzrod/sdm-poller/internal/register"
)

// ErrUndetected is returned when neither model answers with a plausible voltage.
var ErrUndetected = errors.New("probe: model not detected")

// Voltages at or below this are treated as "not a live phase".
const minPlausibleVoltage = 50

// Register offsets used for detection.
const (
	addrVoltageL1 = 0x0000 // voltage on both models
	addrVoltageL2 = 0x0002 // only present on three-phase meters
)

type Config struct {
	Endpoint string
	UnitID   uint8
	Timeout  time.Duration
}

// Prober is a one-shot TCP connection used before a device's session exists.
// It serializes requests because it mutates SlaveId per request.
type Prober struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
	log     zerolog.Logger
}

func Dial(cfg Config, log zerolog.Logger) (*Prober, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("probe: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.UnitID

	if err := h.Connect(); err != nil {
		return nil, err
	}

	return &Prober{
		handler: h,
		client:  modbus.NewClient(h),
		log:     log.With().Str("endpoint", cfg.Endpoint).Logger(),
	}, nil
}

func (p *Prober) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handler.Close()
}

// DetectModel reads the phase-2 voltage first: only SDM630 meters have it.
// Otherwise a plausible phase-1 voltage means SDM120.
func (p *Prober) DetectModel(ctx context.Context, unitID uint8) (string, error) {
	// goburrow has no context support; closing the handler unblocks it.
	stop := context.AfterFunc(ctx, func() { _ = p.handler.Close() })
	defer stop()

	v2, err2 := p.readFloat(unitID, addrVoltageL2)
	if err2 == nil && v2 > minPlausibleVoltage {
		p.log.Info().Float64("voltage_l2", v2).Msg("detected three-phase meter")
		return register.ModelSDM630, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	v1, err1 := p.readFloat(unitID, addrVoltageL1)
	if err1 == nil && v1 > minPlausibleVoltage {
		p.log.Info().Float64("voltage", v1).Msg("detected single-phase meter")
		return register.ModelSDM120, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err1 != nil {
		return "", fmt.Errorf("%w: %w", ErrUndetected, err1)
	}
	return "", fmt.Errorf("%w: voltage %.1f", ErrUndetected, v1)
}

func (p *Prober) readFloat(unitID uint8, addr uint16) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.handler.SlaveId = unitID

	raw, err := p.client.ReadInputRegisters(addr, 2)
	if err != nil {
		return 0, err
	}
	regs := unpackRegisters(raw)
	if len(regs) != 2 {
		return 0, fmt.Errorf("probe: short response (%d bytes)", len(raw))
	}
	return float64(codec.WordsFloat32(regs[0], regs[1])), nil
}

// Detect dials, detects and closes.
func Detect(ctx context.Context, cfg Config, log zerolog.Logger) (string, error) {
	p, err := Dial(cfg, log)
	if err != nil {
		return "", fmt.Errorf("probe: dial %s: %w", cfg.Endpoint, err)
	}
	defer p.Close()
	return p.DetectModel(ctx, cfg.UnitID)
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}
