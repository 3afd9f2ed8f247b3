// internal/poller/modbus/errors.go
package modbus

import (
	"errors"
	"fmt"
)

// Exception is a Modbus exception code returned by the device.
type Exception uint8

// Standard exception codes.
const (
	ExIllegalFunction    Exception = 0x01
	ExIllegalAddress     Exception = 0x02
	ExIllegalValue       Exception = 0x03
	ExDeviceFailure      Exception = 0x04
	ExAcknowledge        Exception = 0x05
	ExDeviceBusy         Exception = 0x06
	ExMemoryParity       Exception = 0x08
	ExGatewayPath        Exception = 0x0A
	ExGatewayTargetNoRsp Exception = 0x0B
)

func (e Exception) Error() string {
	switch e {
	case ExIllegalFunction:
		return "modbus exception 0x01: illegal function"
	case ExIllegalAddress:
		return "modbus exception 0x02: illegal data address"
	case ExIllegalValue:
		return "modbus exception 0x03: illegal data value"
	case ExDeviceFailure:
		return "modbus exception 0x04: server device failure"
	case ExAcknowledge:
		return "modbus exception 0x05: acknowledge"
	case ExDeviceBusy:
		return "modbus exception 0x06: server device busy"
	case ExMemoryParity:
		return "modbus exception 0x08: memory parity error"
	case ExGatewayPath:
		return "modbus exception 0x0A: gateway path unavailable"
	case ExGatewayTargetNoRsp:
		return "modbus exception 0x0B: gateway target device failed to respond"
	}
	return fmt.Sprintf("modbus exception 0x%02X", uint8(e))
}

// ErrQuantity rejects a request before any I/O when the register count is
// outside what one frame can carry.
var ErrQuantity = errors.New("modbus: register quantity out of range")

// ConnectionError is a socket-level failure: dial, read, write or timeout.
// The session is disconnected when it is returned.
type ConnectionError struct {
	Op       string
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("modbus %s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError is a framing failure: transaction, protocol or unit id
// mismatch, unexpected function code, bad length or echo.
// The session is disconnected when it is returned.
type ProtocolError struct {
	Function uint8
	Msg      string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("modbus fc=0x%02x: %s", e.Function, e.Msg)
}

func protoErr(fc uint8, format string, args ...any) *ProtocolError {
	return &ProtocolError{Function: fc, Msg: fmt.Sprintf(format, args...)}
}

// DeviceError is an exception response. The stream stays in sync, so the
// session is kept open.
type DeviceError struct {
	Function  uint8
	Exception Exception
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("modbus fc=0x%02x: %v", e.Function, e.Exception)
}

func (e *DeviceError) Unwrap() error { return e.Exception }

// Code exposes the exception code for status reporting.
func (e *DeviceError) Code() uint16 { return uint16(e.Exception) }
