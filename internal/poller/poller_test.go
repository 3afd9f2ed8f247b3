// internal/poller/poller_test.go
package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tamzrod/sdm-poller/internal/codec"
	"github.com/tamzrod/sdm-poller/internal/register"
	"github.com/tamzrod/sdm-poller/internal/status"
)

type readCall struct {
	fn   register.Function
	addr uint16
	qty  uint16
	unit uint8
}

// fakeTransport emulates one meter. Reads addressed to a unit other than the
// meter's current id fail like a silent device would.
type fakeTransport struct {
	mu sync.Mutex

	unit      uint8 // session unit id
	meterUnit uint8 // id the meter answers to

	input   map[uint16]uint16
	holding map[uint16]uint16

	failReads int  // fail the next n reads
	failAll   bool // fail every read
	verify    []uint16

	reads  []readCall
	writes int
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		unit:      1,
		meterUnit: 1,
		input:     map[uint16]uint16{},
		holding:   map[uint16]uint16{},
	}
}

func (f *fakeTransport) setFloat(regs map[uint16]uint16, addr uint16, v float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	regs[addr], regs[addr+1] = codec.Float32Words(v)
}

func (f *fakeTransport) read(fn register.Function, regs map[uint16]uint16, addr, qty uint16) ([]uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads = append(f.reads, readCall{fn: fn, addr: addr, qty: qty, unit: f.unit})
	if f.failAll {
		return nil, errors.New("i/o timeout")
	}
	if f.failReads > 0 {
		f.failReads--
		return nil, errors.New("i/o timeout")
	}
	if f.unit != f.meterUnit {
		return nil, errors.New("no response from unit")
	}
	if f.verify != nil && fn == register.FunctionHolding && addr == 0x0014 {
		return append([]uint16(nil), f.verify...), nil
	}

	out := make([]uint16, qty)
	for i := range out {
		out[i] = regs[addr+uint16(i)]
	}
	return out, nil
}

func (f *fakeTransport) ReadHoldingRegisters(ctx context.Context, addr, qty uint16) ([]uint16, error) {
	return f.read(register.FunctionHolding, f.holding, addr, qty)
}

func (f *fakeTransport) ReadInputRegisters(ctx context.Context, addr, qty uint16) ([]uint16, error) {
	return f.read(register.FunctionInput, f.input, addr, qty)
}

func (f *fakeTransport) WriteHoldingRegister(ctx context.Context, addr, value uint16) error {
	return f.WriteHoldingRegisters(ctx, addr, []uint16{value})
}

func (f *fakeTransport) WriteHoldingRegisters(ctx context.Context, addr uint16, values []uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	for i, v := range values {
		f.holding[addr+uint16(i)] = v
	}
	if addr == 0x0014 && len(values) == 2 {
		f.meterUnit = uint8(codec.WordsFloat32(values[0], values[1]))
	}
	return nil
}

func (f *fakeTransport) UnitID() uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unit
}

func (f *fakeTransport) SetUnitID(id uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unit = id
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) takeReads() []readCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.reads
	f.reads = nil
	return r
}

type fakeSleep struct {
	delays []time.Duration
}

func (s *fakeSleep) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

type fakeStore struct {
	calls []uint8
	err   error
}

func (s *fakeStore) PersistUnitID(ctx context.Context, deviceID string, unitID uint8) error {
	s.calls = append(s.calls, unitID)
	return s.err
}

func newTestPoller(t *testing.T, tr *fakeTransport, opts ...Option) (*Poller, *fakeSleep) {
	t.Helper()
	sl := &fakeSleep{}
	opts = append([]Option{WithSleep(sl.sleep)}, opts...)
	p, err := New(Config{
		DeviceID:      "house",
		Host:          "10.0.0.5",
		Model:         register.ModelSDM120,
		Interval:      time.Second,
		NormalDivisor: 3,
		SlowDivisor:   30,
	}, tr, opts...)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return p, sl
}

func value(t *testing.T, vals map[string]DecodedValue, key string) float64 {
	t.Helper()
	dv, ok := vals[key]
	if !ok {
		t.Fatalf("key %s missing", key)
	}
	if dv.Value == nil {
		t.Fatalf("key %s has no value", key)
	}
	return *dv.Value
}

func covers(reads []readCall, fn register.Function, addr uint16) bool {
	for _, r := range reads {
		if r.fn == fn && addr >= r.addr && uint32(addr) < uint32(r.addr)+uint32(r.qty) {
			return true
		}
	}
	return false
}

// ---- tests ----

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Interval: time.Second}, newFakeTransport()); err == nil {
		t.Fatalf("expected error for missing device id")
	}
	if _, err := New(Config{DeviceID: "x"}, newFakeTransport()); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if _, err := New(Config{DeviceID: "x", Interval: time.Second}, nil); err == nil {
		t.Fatalf("expected error for nil transport")
	}
}

func TestPollOnce_Success(t *testing.T) {
	tr := newFakeTransport()
	tr.setFloat(tr.input, 0x0000, 230.1)
	tr.setFloat(tr.input, 0x0046, 50)
	p, sl := newTestPoller(t, tr)

	res := p.PollOnce(context.Background())
	if res.Err != nil || res.Stale {
		t.Fatalf("PollOnce err=%v stale=%v", res.Err, res.Stale)
	}
	if res.Attempts != 1 || len(sl.delays) != 0 {
		t.Fatalf("attempts=%d delays=%v", res.Attempts, sl.delays)
	}
	if v := value(t, res.Values, "voltage"); v < 230.09 || v > 230.11 {
		t.Fatalf("voltage=%v", v)
	}
	if value(t, res.Values, "frequency") != 50 {
		t.Fatalf("frequency not decoded")
	}
	if _, ok := res.Values["apparent_power"]; ok {
		t.Fatalf("advanced key polled with advanced disabled")
	}
	if !p.LastUpdateSuccess() || p.Status().Health != status.HealthOK {
		t.Fatalf("unexpected status %+v", p.Status())
	}
}

func TestPollOnce_RetrySucceedsOnThirdAttempt(t *testing.T) {
	tr := newFakeTransport()
	tr.setFloat(tr.input, 0x0000, 231)
	tr.failReads = 2
	p, sl := newTestPoller(t, tr)

	res := p.PollOnce(context.Background())
	if res.Err != nil {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.Stale {
		t.Fatalf("stale fallback used on a successful retry")
	}
	if res.Attempts != 3 {
		t.Fatalf("attempts=%d want 3", res.Attempts)
	}
	if len(sl.delays) != 2 || sl.delays[0] != time.Second || sl.delays[1] != 2*time.Second {
		t.Fatalf("backoff delays=%v want [1s 2s]", sl.delays)
	}
	if p.ConsecutiveFailures() != 0 {
		t.Fatalf("failures=%d want 0", p.ConsecutiveFailures())
	}
}

func TestPollOnce_StaleFallback(t *testing.T) {
	tr := newFakeTransport()
	tr.setFloat(tr.input, 0x0000, 230.1)
	p, sl := newTestPoller(t, tr)

	if res := p.PollOnce(context.Background()); res.Err != nil {
		t.Fatalf("seed poll err=%v", res.Err)
	}
	before := p.Snapshot()

	tr.failAll = true
	res := p.PollOnce(context.Background())

	if res.Err != nil {
		t.Fatalf("stale fallback must not fail, got %v", res.Err)
	}
	if !res.Stale || res.LastError == nil {
		t.Fatalf("expected stale result with cause, got %+v", res)
	}
	if p.ConsecutiveFailures() != 1 {
		t.Fatalf("failures=%d want 1", p.ConsecutiveFailures())
	}
	if len(sl.delays) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %v", sl.delays)
	}
	if len(res.Values) != len(before) {
		t.Fatalf("cache changed size: %d -> %d", len(before), len(res.Values))
	}
	for k, v := range before {
		got := res.Values[k]
		if (v.Value == nil) != (got.Value == nil) || (v.Value != nil && *v.Value != *got.Value) || !v.Updated.Equal(got.Updated) {
			t.Fatalf("cache entry %s changed", k)
		}
	}
	if v := value(t, res.Values, "voltage"); v < 230.09 || v > 230.11 {
		t.Fatalf("voltage=%v want 230.1", v)
	}
	if !p.LastUpdateSuccess() {
		t.Fatalf("stale fallback must keep last update success")
	}
	if st := p.Status(); st.Health != status.HealthStale || st.ConsecutiveFailures != 1 {
		t.Fatalf("status=%+v", st)
	}

	stats := p.Stats()
	if stats.SuccessCount != 1 || stats.FailureCount != 1 || stats.StaleCount != 1 || stats.LastError == "" {
		t.Fatalf("stats=%+v", stats)
	}
}

func TestPollOnce_HardFailureWithoutCache(t *testing.T) {
	tr := newFakeTransport()
	tr.failAll = true
	p, _ := newTestPoller(t, tr)

	res := p.PollOnce(context.Background())
	if res.Err == nil {
		t.Fatalf("expected hard failure")
	}
	if res.Stale || len(res.Values) != 0 {
		t.Fatalf("nothing to serve, got %+v", res)
	}
	if p.LastUpdateSuccess() {
		t.Fatalf("last update success must be false")
	}
	if p.Status().Health != status.HealthError {
		t.Fatalf("health=%s", p.Status().HealthName())
	}
}

func TestPollOnce_CancelStopsBackoff(t *testing.T) {
	tr := newFakeTransport()
	tr.failAll = true
	p, sl := newTestPoller(t, tr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := p.PollOnce(ctx)
	if res.Err == nil {
		t.Fatalf("expected failure")
	}
	if res.Attempts != 1 || len(sl.delays) != 0 {
		t.Fatalf("cancelled poll kept retrying: attempts=%d delays=%v", res.Attempts, sl.delays)
	}
}

func TestPollOnce_TierSchedule(t *testing.T) {
	tr := newFakeTransport()
	p, err := New(Config{
		DeviceID:      "house",
		Model:         register.ModelSDM120,
		Interval:      time.Second,
		NormalDivisor: 2,
		SlowDivisor:   3,
	}, tr, WithSleep((&fakeSleep{}).sleep))
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	const (
		fastAddr   = 0x0000 // voltage
		normalAddr = 0x0046 // frequency
		slowAddr   = 0x0156 // total_active_energy
	)

	// cycle: normal due when c%2==0, slow when c%3==0, counter wraps at 6
	want := []struct{ normal, slow bool }{
		{true, true},
		{false, false},
		{true, false},
		{false, true},
		{true, false},
		{false, false},
		{true, true},
	}

	for c, w := range want {
		if res := p.PollOnce(context.Background()); res.Err != nil {
			t.Fatalf("cycle %d err=%v", c, res.Err)
		}
		reads := tr.takeReads()
		if !covers(reads, register.FunctionInput, fastAddr) {
			t.Fatalf("cycle %d: fast tier not polled", c)
		}
		if got := covers(reads, register.FunctionInput, normalAddr); got != w.normal {
			t.Fatalf("cycle %d: normal polled=%v want %v", c, got, w.normal)
		}
		if got := covers(reads, register.FunctionInput, slowAddr); got != w.slow {
			t.Fatalf("cycle %d: slow polled=%v want %v", c, got, w.slow)
		}
	}
}

func TestPollOnce_FlagChangeRebuildsTiers(t *testing.T) {
	tr := newFakeTransport()
	tr.setFloat(tr.input, 0x0012, 500)
	p, _ := newTestPoller(t, tr)

	res := p.PollOnce(context.Background())
	if _, ok := res.Values["apparent_power"]; ok {
		t.Fatalf("advanced key present before enabling")
	}

	p.SetFlags(register.Flags{Advanced: true})
	// cycle 1 and 2 skip the normal tier with divisor 3
	p.PollOnce(context.Background())
	p.PollOnce(context.Background())
	res = p.PollOnce(context.Background())

	if value(t, res.Values, "apparent_power") != 500 {
		t.Fatalf("advanced key not polled after enabling")
	}
}

func TestPollOnce_FlagChangeDropsDisabledKeys(t *testing.T) {
	tr := newFakeTransport()
	tr.setFloat(tr.input, 0x0012, 500)
	p, _ := newTestPoller(t, tr)
	p.SetFlags(register.Flags{Advanced: true})

	res := p.PollOnce(context.Background())
	if value(t, res.Values, "apparent_power") != 500 {
		t.Fatalf("advanced key not polled")
	}

	p.SetFlags(register.Flags{})
	res = p.PollOnce(context.Background())

	for _, s := range register.ModelSpecs(register.ModelSDM120) {
		if s.Category != register.Advanced {
			continue
		}
		if _, ok := res.Values[s.Key]; ok {
			t.Fatalf("disabled key %s still in result", s.Key)
		}
		if _, ok := p.Snapshot()[s.Key]; ok {
			t.Fatalf("disabled key %s still served", s.Key)
		}
	}
	if _, ok := res.Values["voltage"]; !ok {
		t.Fatalf("basic key dropped")
	}
}

func TestPollOnce_DecodeFailureContained(t *testing.T) {
	tr := newFakeTransport()
	tr.input[0x0000], tr.input[0x0001] = 0x7FC0, 0x0000 // NaN
	tr.setFloat(tr.input, 0x0006, 4.5)
	p, _ := newTestPoller(t, tr)

	res := p.PollOnce(context.Background())
	if res.Err != nil {
		t.Fatalf("decode failure must not fail the cycle: %v", res.Err)
	}
	dv, ok := res.Values["voltage"]
	if !ok || dv.Value != nil {
		t.Fatalf("voltage must be present with nil value, got %+v", dv)
	}
	if value(t, res.Values, "current") != 4.5 {
		t.Fatalf("current not decoded")
	}
}

func TestSetModel(t *testing.T) {
	tr := newFakeTransport()
	p, _ := newTestPoller(t, tr)

	if p.SetModel("nonsense") {
		t.Fatalf("unknown model accepted")
	}
	if !p.SetModel("sdm630m") || p.Model() != register.ModelSDM630 {
		t.Fatalf("model not switched: %s", p.Model())
	}

	res := p.PollOnce(context.Background())
	if _, ok := res.Values["voltage_l3"]; !ok {
		t.Fatalf("SDM630 keys not polled after model switch")
	}
}

func TestSetModel_DropsPreviousModelKeys(t *testing.T) {
	tr := newFakeTransport()
	p, _ := newTestPoller(t, tr)

	if _, ok := p.PollOnce(context.Background()).Values["voltage"]; !ok {
		t.Fatalf("SDM120 voltage not polled")
	}

	p.SetModel(register.ModelSDM630)
	res := p.PollOnce(context.Background())

	for _, key := range []string{"voltage", "current", "active_power"} {
		if _, ok := res.Values[key]; ok {
			t.Fatalf("SDM120 key %s still in result", key)
		}
		if _, ok := p.Snapshot()[key]; ok {
			t.Fatalf("SDM120 key %s still served", key)
		}
	}
}

func TestRun_EmitsAndStops(t *testing.T) {
	tr := newFakeTransport()
	p, _ := newTestPoller(t, tr)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Result)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, out)
		close(done)
	}()

	select {
	case res := <-out:
		if res.DeviceID != "house" {
			t.Fatalf("device id=%s", res.DeviceID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no immediate poll result")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
}

func TestClose(t *testing.T) {
	tr := newFakeTransport()
	p, _ := newTestPoller(t, tr)
	if err := p.Close(); err != nil || !tr.closed {
		t.Fatalf("transport not closed")
	}
}
