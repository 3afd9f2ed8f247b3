// internal/simulator/meter.go
package simulator

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/simonvetter/modbus"

	"github.com/tamzrod/sdm-poller/internal/codec"
	"github.com/tamzrod/sdm-poller/internal/register"
)

// Meter is an in-memory Eastron meter answering Modbus requests.
// Only addresses that belong to the model's register map are readable.
type Meter struct {
	log   zerolog.Logger
	model string

	mu      sync.Mutex
	unitID  uint8
	input   map[uint16]uint16
	holding map[uint16]uint16
	valid   map[register.Function]map[uint16]bool
}

// NewMeter builds a meter with plausible readings.
func NewMeter(model string, unitID uint8, serial uint32, log zerolog.Logger) (*Meter, error) {
	canon, ok := register.NormalizeModel(model)
	if !ok {
		return nil, fmt.Errorf("simulator: unknown model %q", model)
	}
	if unitID < 1 || unitID > 247 {
		return nil, fmt.Errorf("simulator: unit id %d out of range", unitID)
	}

	m := &Meter{
		log:     log.With().Str("model", canon).Logger(),
		model:   canon,
		unitID:  unitID,
		input:   make(map[uint16]uint16),
		holding: make(map[uint16]uint16),
		valid: map[register.Function]map[uint16]bool{
			register.FunctionInput:   {},
			register.FunctionHolding: {},
		},
	}

	for _, s := range register.ModelSpecs(canon) {
		for a := uint32(s.Address); a < s.End(); a++ {
			m.valid[s.Function][uint16(a)] = true
		}
	}

	m.seed(serial)
	return m, nil
}

func (m *Meter) seed(serial uint32) {
	defaults := map[string]float64{
		register.KeySerialNumber: float64(serial),
		register.KeyMeterID:      float64(m.unitID),
		"meter_code":             0x0020,
		"software_version":       0x0102,
	}

	readings := map[string]float64{
		"voltage": 230.0, "current": 5.0, "active_power": 1150.0,
		"apparent_power": 1160.0, "reactive_power": 150.0, "power_factor": 0.99,
		"frequency": 50.0, "import_active_energy": 1234.5, "total_active_energy": 1234.5,
	}
	if m.model == register.ModelSDM630 {
		readings = map[string]float64{
			"voltage_l1": 230.0, "voltage_l2": 231.0, "voltage_l3": 229.0,
			"current_l1": 5.0, "current_l2": 4.0, "current_l3": 3.0,
			"active_power_l1": 1150.0, "active_power_l2": 924.0, "active_power_l3": 687.0,
			"total_system_power": 2761.0, "frequency": 50.0,
			"total_import_active_energy": 9876.5, "total_active_energy": 9876.5,
		}
	}

	for _, s := range register.ModelSpecs(m.model) {
		v, ok := readings[s.Key]
		if !ok {
			v, ok = defaults[s.Key]
		}
		if !ok && s.Control == register.ControlSelect && len(s.Options) > 0 {
			v, ok = s.Options[0], true
		}
		if !ok && s.Control == register.ControlNumber {
			v, ok = s.Min, true
		}
		if !ok {
			continue
		}
		_ = m.setLocked(s, v)
	}
}

func (m *Meter) setLocked(s register.Spec, v float64) error {
	words, err := codec.Encode(s, v)
	if err != nil {
		return err
	}
	regs := m.input
	if s.Function == register.FunctionHolding {
		regs = m.holding
	}
	for i, w := range words {
		regs[s.Address+uint16(i)] = w
	}
	return nil
}

// Set stores a value for key in the meter's register map.
func (m *Meter) Set(key string, v float64) error {
	s, err := register.SpecByKey(m.model, key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLocked(s, v)
}

// Get decodes the current value for key.
func (m *Meter) Get(key string) (float64, bool) {
	s, err := register.SpecByKey(m.model, key)
	if err != nil {
		return 0, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	regs := m.input
	if s.Function == register.FunctionHolding {
		regs = m.holding
	}
	words := make([]uint16, s.Length)
	for i := range words {
		words[i] = regs[s.Address+uint16(i)]
	}
	return codec.Decode(s, words)
}

// Model returns the canonical model name.
func (m *Meter) Model() string { return m.model }

// UnitID returns the id the meter currently answers to.
func (m *Meter) UnitID() uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unitID
}

// Step advances energy counters by the active power over dt.
func (m *Meter) Step(dt time.Duration) {
	powerKey, energyKeys := "active_power", []string{"import_active_energy", "total_active_energy"}
	if m.model == register.ModelSDM630 {
		powerKey, energyKeys = "total_system_power", []string{"total_import_active_energy", "total_active_energy"}
	}

	p, ok := m.Get(powerKey)
	if !ok {
		return
	}
	kwh := p * dt.Hours() / 1000
	for _, k := range energyKeys {
		if e, ok := m.Get(k); ok {
			_ = m.Set(k, e+kwh)
		}
	}
}

// ---- modbus.RequestHandler ----

func (m *Meter) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (m *Meter) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (m *Meter) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.UnitId != m.unitID {
		return nil, modbus.ErrGWTargetFailedToRespond
	}
	return m.readLocked(register.FunctionInput, m.input, req.Addr, req.Quantity)
}

func (m *Meter) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.UnitId != m.unitID {
		return nil, modbus.ErrGWTargetFailedToRespond
	}
	if !req.IsWrite {
		return m.readLocked(register.FunctionHolding, m.holding, req.Addr, req.Quantity)
	}

	for i := range req.Args {
		if !m.valid[register.FunctionHolding][req.Addr+uint16(i)] {
			return nil, modbus.ErrIllegalDataAddress
		}
	}
	for i, v := range req.Args {
		m.holding[req.Addr+uint16(i)] = v
	}

	m.log.Debug().Uint16("addr", req.Addr).Int("words", len(req.Args)).Msg("holding registers written")

	// A new meter id takes effect after this response.
	if id, err := register.SpecByKey(m.model, register.KeyMeterID); err == nil && req.Addr == id.Address {
		v, ok := codec.Decode(id, []uint16{m.holding[id.Address], m.holding[id.Address+1]})
		if ok && v >= 1 && v <= 247 && v == float64(uint8(v)) {
			m.log.Info().Uint8("old", m.unitID).Uint8("new", uint8(v)).Msg("unit id changed")
			m.unitID = uint8(v)
		}
	}
	return req.Args, nil
}

func (m *Meter) readLocked(fn register.Function, regs map[uint16]uint16, addr, qty uint16) ([]uint16, error) {
	out := make([]uint16, qty)
	for i := range out {
		a := addr + uint16(i)
		if !m.valid[fn][a] {
			return nil, modbus.ErrIllegalDataAddress
		}
		out[i] = regs[a]
	}
	return out, nil
}
