// internal/poller/modbus/client.go
package modbus

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Function codes.
const (
	FuncReadHolding   uint8 = 0x03
	FuncReadInput     uint8 = 0x04
	FuncWriteSingle   uint8 = 0x06
	FuncWriteMultiple uint8 = 0x10

	exceptionFlag uint8 = 0x80
)

// Protocol limits.
const (
	MaxReadQuantity  = 125
	MaxWriteQuantity = 123

	mbapLen   = 7
	maxPDULen = 253
)

const (
	defaultTimeout        = 3 * time.Second
	defaultConnectTimeout = 5 * time.Second
)

// DialFunc opens the underlying stream.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config is the session configuration.
type Config struct {
	Endpoint       string // host:port
	UnitID         uint8
	Timeout        time.Duration // per request/response exchange
	ConnectTimeout time.Duration
	Dial           DialFunc // optional
}

// Client is one Modbus-TCP session to one device.
// All exchanges are serialized; the socket is opened lazily and dropped on
// any connection or framing failure so the next call starts clean.
type Client struct {
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	conn   net.Conn
	used   bool // conn completed at least one exchange
	tid    uint16
	unitID uint8
}

// New creates a session. No connection is made until first use.
func New(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus client: endpoint required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.Dial == nil {
		d := &net.Dialer{}
		cfg.Dial = d.DialContext
	}

	c := &Client{
		cfg:    cfg,
		log:    log.With().Str("endpoint", cfg.Endpoint).Logger(),
		unitID: cfg.UnitID,
	}

	// Randomize starting TID (best effort).
	var b [2]byte
	if _, err := rand.Read(b[:]); err == nil {
		c.tid = binary.BigEndian.Uint16(b[:])
	}

	return c, nil
}

// UnitID returns the unit id used for subsequent requests.
func (c *Client) UnitID() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unitID
}

// SetUnitID changes the unit id used for subsequent requests.
func (c *Client) SetUnitID(id uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unitID = id
}

// Connected reports whether a socket is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// EnsureConnected opens the socket if needed.
func (c *Client) EnsureConnected(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

// Close releases the socket. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.used = false
	return err
}

// ---- public operations ----

func (c *Client) ReadHoldingRegisters(ctx context.Context, addr, qty uint16) ([]uint16, error) {
	return c.readRegisters(ctx, FuncReadHolding, addr, qty)
}

func (c *Client) ReadInputRegisters(ctx context.Context, addr, qty uint16) ([]uint16, error) {
	return c.readRegisters(ctx, FuncReadInput, addr, qty)
}

// WriteHoldingRegister writes one register (FC 0x06). The echoed address and
// value must match the request.
func (c *Client) WriteHoldingRegister(ctx context.Context, addr, value uint16) error {
	pdu := make([]byte, 5)
	pdu[0] = FuncWriteSingle
	binary.BigEndian.PutUint16(pdu[1:3], addr)
	binary.BigEndian.PutUint16(pdu[3:5], value)

	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.exchangeLocked(ctx, pdu)
	if err != nil {
		return err
	}
	if len(resp) != 5 {
		return c.failLocked(protoErr(FuncWriteSingle, "response length %d, want 5", len(resp)))
	}
	if got := binary.BigEndian.Uint16(resp[1:3]); got != addr {
		return c.failLocked(protoErr(FuncWriteSingle, "echoed address %d, want %d", got, addr))
	}
	if got := binary.BigEndian.Uint16(resp[3:5]); got != value {
		return c.failLocked(protoErr(FuncWriteSingle, "echoed value %d, want %d", got, value))
	}
	return nil
}

// WriteHoldingRegisters writes consecutive registers (FC 0x10). The echoed
// address and count must match the request.
func (c *Client) WriteHoldingRegisters(ctx context.Context, addr uint16, values []uint16) error {
	n := len(values)
	if n < 1 || n > MaxWriteQuantity {
		return ErrQuantity
	}

	pdu := make([]byte, 6+2*n)
	pdu[0] = FuncWriteMultiple
	binary.BigEndian.PutUint16(pdu[1:3], addr)
	binary.BigEndian.PutUint16(pdu[3:5], uint16(n))
	pdu[5] = byte(2 * n)
	for i, v := range values {
		binary.BigEndian.PutUint16(pdu[6+2*i:], v)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.exchangeLocked(ctx, pdu)
	if err != nil {
		return err
	}
	if len(resp) != 5 {
		return c.failLocked(protoErr(FuncWriteMultiple, "response length %d, want 5", len(resp)))
	}
	if got := binary.BigEndian.Uint16(resp[1:3]); got != addr {
		return c.failLocked(protoErr(FuncWriteMultiple, "echoed address %d, want %d", got, addr))
	}
	if got := binary.BigEndian.Uint16(resp[3:5]); got != uint16(n) {
		return c.failLocked(protoErr(FuncWriteMultiple, "echoed count %d, want %d", got, n))
	}
	return nil
}

// ---- internal request/response helpers ----

func (c *Client) readRegisters(ctx context.Context, fc uint8, addr, qty uint16) ([]uint16, error) {
	if qty < 1 || qty > MaxReadQuantity {
		return nil, ErrQuantity
	}

	pdu := make([]byte, 5)
	pdu[0] = fc
	binary.BigEndian.PutUint16(pdu[1:3], addr)
	binary.BigEndian.PutUint16(pdu[3:5], qty)

	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.exchangeLocked(ctx, pdu)
	if err != nil {
		return nil, err
	}

	// resp = FC(1) ByteCount(1) Data(2*qty)
	if len(resp) < 2 {
		return nil, c.failLocked(protoErr(fc, "short read response"))
	}
	byteCount := int(resp[1])
	if byteCount != 2*int(qty) {
		return nil, c.failLocked(protoErr(fc, "byte count %d, want %d", byteCount, 2*qty))
	}
	if len(resp)-2 != byteCount {
		return nil, c.failLocked(protoErr(fc, "payload %d bytes, byte count %d", len(resp)-2, byteCount))
	}

	out := make([]uint16, qty)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(resp[2+2*i:])
	}
	return out, nil
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	dctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := c.cfg.Dial(dctx, "tcp", c.cfg.Endpoint)
	if err != nil {
		return &ConnectionError{Op: "dial", Endpoint: c.cfg.Endpoint, Err: err}
	}

	c.conn = conn
	c.used = false
	c.log.Debug().Msg("connected")
	return nil
}

// resetLocked drops the socket after a connection or framing failure.
func (c *Client) resetLocked() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	c.used = false
}

func (c *Client) failLocked(err error) error {
	c.log.Debug().Err(err).Msg("session reset")
	c.resetLocked()
	return err
}

func (c *Client) nextTID() uint16 {
	c.tid++
	return c.tid
}

// exchangeLocked sends one PDU and returns the response PDU (function code first).
// A socket that already served an exchange gets one transparent reconnect if the
// peer turns out to have dropped it.
func (c *Client) exchangeLocked(ctx context.Context, pdu []byte) ([]byte, error) {
	reused := c.conn != nil && c.used

	resp, stale, err := c.roundTripLocked(ctx, pdu)
	if err != nil && stale && reused && ctx.Err() == nil {
		c.log.Debug().Err(err).Msg("stale connection, reconnecting")
		resp, _, err = c.roundTripLocked(ctx, pdu)
	}
	return resp, err
}

// roundTripLocked performs one framed exchange. stale is true when the failure
// happened before any response byte arrived, so the request can be resent.
func (c *Client) roundTripLocked(ctx context.Context, pdu []byte) (resp []byte, stale bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, false, &ConnectionError{Op: "request", Endpoint: c.cfg.Endpoint, Err: err}
	}
	if err := c.connectLocked(ctx); err != nil {
		return nil, false, err
	}

	conn := c.conn
	fc := pdu[0]

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	// Cancellation unblocks pending I/O by expiring the deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	ioErr := func(op string, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
		}
		return c.failLocked(&ConnectionError{Op: op, Endpoint: c.cfg.Endpoint, Err: err})
	}

	// MBAP: TID(2) PID(2=0) LEN(2) UID(1), then PDU.
	tid := c.nextTID()
	unit := c.unitID

	adu := make([]byte, mbapLen+len(pdu))
	binary.BigEndian.PutUint16(adu[0:2], tid)
	binary.BigEndian.PutUint16(adu[2:4], 0)
	binary.BigEndian.PutUint16(adu[4:6], uint16(1+len(pdu)))
	adu[6] = unit
	copy(adu[mbapLen:], pdu)

	if _, err := conn.Write(adu); err != nil {
		return nil, true, ioErr("write", err)
	}

	var head [mbapLen]byte
	if n, err := io.ReadFull(conn, head[:]); err != nil {
		return nil, n == 0 && errors.Is(err, io.EOF), ioErr("read", err)
	}

	if got := binary.BigEndian.Uint16(head[0:2]); got != tid {
		return nil, false, c.failLocked(protoErr(fc, "transaction mismatch: got=%d want=%d", got, tid))
	}
	if got := binary.BigEndian.Uint16(head[2:4]); got != 0 {
		return nil, false, c.failLocked(protoErr(fc, "protocol id mismatch: got=%d want=0", got))
	}
	if head[6] != unit {
		return nil, false, c.failLocked(protoErr(fc, "unit id mismatch: got=%d want=%d", head[6], unit))
	}

	length := int(binary.BigEndian.Uint16(head[4:6]))
	if length < 2 || length-1 > maxPDULen {
		return nil, false, c.failLocked(protoErr(fc, "invalid MBAP length %d", length))
	}

	resp = make([]byte, length-1)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return nil, false, ioErr("read", err)
	}

	switch resp[0] {
	case fc:
	case fc | exceptionFlag:
		if len(resp) != 2 {
			return nil, false, c.failLocked(protoErr(fc, "exception response length %d", len(resp)))
		}
		c.used = true
		return nil, false, &DeviceError{Function: fc, Exception: Exception(resp[1])}
	default:
		return nil, false, c.failLocked(protoErr(fc, "function mismatch: got=0x%02x", resp[0]))
	}

	c.used = true
	return resp, false, nil
}
