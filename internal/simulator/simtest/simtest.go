// internal/simulator/simtest/simtest.go
package simtest

import (
	"net"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tamzrod/sdm-poller/internal/simulator"
)

// Start starts a simulator on a free loopback port and stops it when the
// test ends.
func Start(t testing.TB, model string, unitID uint8, serial uint32) *simulator.Server {
	t.Helper()

	m, err := simulator.NewMeter(model, unitID, serial, zerolog.Nop())
	if err != nil {
		t.Fatalf("simulator meter: %v", err)
	}

	s, err := simulator.NewServer(freeAddr(t), m, zerolog.Nop())
	if err != nil {
		t.Fatalf("simulator server: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("simulator start: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func freeAddr(t testing.TB) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}
