// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/sdm-poller/internal/codec"
	"github.com/tamzrod/sdm-poller/internal/register"
	"github.com/tamzrod/sdm-poller/internal/status"
)

// Transport abstracts the Modbus session the poller drives.
type Transport interface {
	ReadHoldingRegisters(ctx context.Context, addr, qty uint16) ([]uint16, error) // FC 3
	ReadInputRegisters(ctx context.Context, addr, qty uint16) ([]uint16, error)   // FC 4
	WriteHoldingRegister(ctx context.Context, addr, value uint16) error          // FC 6
	WriteHoldingRegisters(ctx context.Context, addr uint16, values []uint16) error // FC 16
	UnitID() uint8
	SetUnitID(id uint8)
	Close() error
}

// Defaults applied by New for zero config fields.
const (
	DefaultNormalDivisor = 3
	DefaultSlowDivisor   = 30
	DefaultAttempts      = 3
	DefaultBackoffBase   = time.Second
)

// Config is the runtime config of one device poller.
type Config struct {
	DeviceID string
	Host     string // used for the fallback identifier
	Model    string
	Interval time.Duration

	NormalDivisor int
	SlowDivisor   int
	Flags         register.Flags

	Attempts    int
	BackoffBase time.Duration
}

// Poller runs tiered poll cycles against one device and owns its value cache.
type Poller struct {
	cfg   Config
	tr    Transport
	log   zerolog.Logger
	store UnitIDStore
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	// op serializes poll cycles, writes and identity reads.
	op sync.Mutex

	// guarded by op
	cycle      int
	fast       []register.Spec
	normal     []register.Spec
	slow       []register.Spec
	built      bool
	builtModel string
	builtFlags register.Flags

	mu          sync.RWMutex
	model       string
	flags       register.Flags
	cache       map[string]DecodedValue
	hasCache    bool
	lastSuccess bool
	stats       Stats
	health      status.Tracker
	serial      uint32
	hasSerial   bool
}

// Option configures optional Poller collaborators.
type Option func(*Poller)

// WithLogger sets the logger. The default discards output.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Poller) { p.log = l }
}

// WithUnitIDStore sets where a verified meter_id change is persisted.
func WithUnitIDStore(s UnitIDStore) Option {
	return func(p *Poller) { p.store = s }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// WithSleep replaces the backoff sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) { p.sleep = sleep }
}

// New creates a poller. The poller takes ownership of tr.
func New(cfg Config, tr Transport, opts ...Option) (*Poller, error) {
	if cfg.DeviceID == "" {
		return nil, errors.New("poller: device id required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if tr == nil {
		return nil, errors.New("poller: transport required")
	}
	if cfg.NormalDivisor == 0 {
		cfg.NormalDivisor = DefaultNormalDivisor
	}
	if cfg.SlowDivisor == 0 {
		cfg.SlowDivisor = DefaultSlowDivisor
	}
	if cfg.NormalDivisor < 1 || cfg.SlowDivisor < 1 {
		return nil, errors.New("poller: divisors must be >= 1")
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}

	model := register.ModelSDM120
	if m, ok := register.NormalizeModel(cfg.Model); ok {
		model = m
	}

	p := &Poller{
		cfg:   cfg,
		tr:    tr,
		log:   zerolog.Nop(),
		now:   time.Now,
		sleep: sleepCtx,
		model: model,
		flags: cfg.Flags,
		cache: make(map[string]DecodedValue),
	}
	for _, o := range opts {
		o(p)
	}
	p.log = p.log.With().Str("device", cfg.DeviceID).Logger()
	return p, nil
}

// Close releases the transport.
func (p *Poller) Close() error {
	return p.tr.Close()
}

// DeviceID returns the configured device id.
func (p *Poller) DeviceID() string { return p.cfg.DeviceID }

// Interval returns the base poll interval.
func (p *Poller) Interval() time.Duration { return p.cfg.Interval }

// Model returns the canonical model currently in use.
func (p *Poller) Model() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// SetModel switches the register map. Unknown models keep the current one.
// The change is picked up on the next cycle.
func (p *Poller) SetModel(model string) bool {
	m, ok := register.NormalizeModel(model)
	if !ok {
		return false
	}
	p.mu.Lock()
	p.model = m
	p.mu.Unlock()
	return true
}

// Flags returns the category toggles currently in use.
func (p *Poller) Flags() register.Flags {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.flags
}

// SetFlags changes the category toggles. Picked up on the next cycle.
func (p *Poller) SetFlags(f register.Flags) {
	p.mu.Lock()
	p.flags = f
	p.mu.Unlock()
}

// EnabledSpecs returns the specs exposed under the current model and flags.
func (p *Poller) EnabledSpecs() []register.Spec {
	p.mu.RLock()
	model, flags := p.model, p.flags
	p.mu.RUnlock()
	return register.Filter(register.ModelSpecs(model), flags)
}

// Snapshot returns a copy of the value cache.
func (p *Poller) Snapshot() map[string]DecodedValue {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

func (p *Poller) snapshotLocked() map[string]DecodedValue {
	out := make(map[string]DecodedValue, len(p.cache))
	for k, v := range p.cache {
		out[k] = v
	}
	return out
}

// LastUpdateSuccess reports whether the last cycle left data to serve.
func (p *Poller) LastUpdateSuccess() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSuccess
}

// ConsecutiveFailures returns the number of failed cycles since the last success.
func (p *Poller) ConsecutiveFailures() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats.ConsecutiveFailures
}

// Stats returns cumulative poll statistics.
func (p *Poller) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// Status returns the device health.
func (p *Poller) Status() status.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.health.Snapshot(p.now())
}

// PollOnce performs exactly one poll cycle, with retries.
func (p *Poller) PollOnce(ctx context.Context) Result {
	p.op.Lock()
	defer p.op.Unlock()
	return p.pollLocked(ctx)
}

// ---- cycle internals (op held) ----

// refreshTiersLocked rebuilds the tier lists when the model or flags changed.
func (p *Poller) refreshTiersLocked() {
	p.mu.RLock()
	model, flags := p.model, p.flags
	p.mu.RUnlock()

	if p.built && model == p.builtModel && flags == p.builtFlags {
		return
	}

	specs := register.Filter(register.ModelSpecs(model), flags)
	p.pruneCache(specs)

	p.fast, p.normal, p.slow = p.fast[:0], p.normal[:0], p.slow[:0]
	for _, s := range specs {
		switch s.Tier {
		case register.Fast:
			p.fast = append(p.fast, s)
		case register.Normal:
			p.normal = append(p.normal, s)
		case register.Slow:
			p.slow = append(p.slow, s)
		}
	}
	p.built, p.builtModel, p.builtFlags = true, model, flags

	p.log.Debug().
		Str("model", model).
		Int("fast", len(p.fast)).
		Int("normal", len(p.normal)).
		Int("slow", len(p.slow)).
		Msg("tier lists rebuilt")
}

// pruneCache drops cached keys that are no longer enabled.
func (p *Poller) pruneCache(enabled []register.Spec) {
	keep := make(map[string]struct{}, len(enabled))
	for _, s := range enabled {
		keep[s.Key] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.cache {
		if _, ok := keep[k]; !ok {
			delete(p.cache, k)
		}
	}
}

// dueSpecsLocked selects the specs for this cycle and advances the counter.
func (p *Poller) dueSpecsLocked() []register.Spec {
	due := make([]register.Spec, 0, len(p.fast)+len(p.normal)+len(p.slow))
	due = append(due, p.fast...)
	if p.cycle%p.cfg.NormalDivisor == 0 {
		due = append(due, p.normal...)
	}
	if p.cycle%p.cfg.SlowDivisor == 0 {
		due = append(due, p.slow...)
	}
	p.cycle = (p.cycle + 1) % (p.cfg.NormalDivisor * p.cfg.SlowDivisor)
	return due
}

func (p *Poller) pollLocked(ctx context.Context) Result {
	start := p.now()

	p.refreshTiersLocked()
	batches := BuildBatches(p.dueSpecsLocked())

	var (
		values   map[string]DecodedValue
		err      error
		attempts int
	)
	for attempts = 1; ; attempts++ {
		values, err = p.readAll(ctx, batches)
		if err == nil || attempts >= p.cfg.Attempts || ctx.Err() != nil {
			break
		}

		delay := p.cfg.BackoffBase << (attempts - 1)
		p.log.Debug().Err(err).Int("attempt", attempts).Dur("backoff", delay).Msg("poll attempt failed")
		if serr := p.sleep(ctx, delay); serr != nil {
			break
		}
	}

	end := p.now()
	res := Result{
		DeviceID: p.cfg.DeviceID,
		At:       end,
		Duration: end.Sub(start),
		Attempts: attempts,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.TotalPolls++
	p.stats.TotalDuration += res.Duration
	p.stats.AvgDuration = p.stats.TotalDuration / time.Duration(p.stats.TotalPolls)

	if err == nil {
		for k, v := range values {
			p.cache[k] = v
		}
		p.hasCache = true
		p.lastSuccess = true
		p.stats.SuccessCount++
		p.stats.ConsecutiveFailures = 0
		p.stats.LastUpdate = end
		p.health.Success(end)

		res.Values = p.snapshotLocked()
		return res
	}

	p.stats.FailureCount++
	p.stats.ConsecutiveFailures++
	p.stats.LastError = err.Error()

	if p.hasCache {
		p.stats.StaleCount++
		p.health.Failure(end, err, true)
		p.log.Warn().
			Err(err).
			Int("attempts", attempts).
			Int("consecutive_failures", p.stats.ConsecutiveFailures).
			Msg("poll failed, serving last known values")

		res.Values = p.snapshotLocked()
		res.Stale = true
		res.LastError = err
		return res
	}

	p.lastSuccess = false
	p.health.Failure(end, err, false)
	p.log.Error().
		Err(err).
		Int("attempts", attempts).
		Msg("poll failed, no data available")

	res.Values = p.snapshotLocked()
	res.Err = err
	return res
}

// readAll executes every batch and decodes member specs into a working copy.
// Any read failure aborts the pass; decode failures only null that spec.
func (p *Poller) readAll(ctx context.Context, batches []Batch) (map[string]DecodedValue, error) {
	working := make(map[string]DecodedValue)

	for _, b := range batches {
		words, err := p.read(ctx, b.Function, b.Start, b.Length)
		if err != nil {
			return nil, fmt.Errorf("read %s %d+%d: %w", b.Function, b.Start, b.Length, err)
		}

		now := p.now()
		for _, s := range b.Specs {
			dv := DecodedValue{Key: s.Key, Updated: now}
			off := int(s.Address - b.Start)
			if end := off + int(s.Length); end <= len(words) {
				if v, ok := codec.Decode(s, words[off:end]); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
					dv.Value = &v
				}
			}
			if dv.Value == nil {
				p.log.Debug().Str("key", s.Key).Msg("decode failed")
			}
			working[s.Key] = dv
		}
	}
	return working, nil
}

func (p *Poller) read(ctx context.Context, fn register.Function, addr, qty uint16) ([]uint16, error) {
	switch fn {
	case register.FunctionInput:
		return p.tr.ReadInputRegisters(ctx, addr, qty)
	case register.FunctionHolding:
		return p.tr.ReadHoldingRegisters(ctx, addr, qty)
	}
	return nil, fmt.Errorf("poller: unsupported function %s", fn)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
