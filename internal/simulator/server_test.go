// internal/simulator/server_test.go
package simulator_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	pmodbus "github.com/tamzrod/sdm-poller/internal/poller/modbus"
	"github.com/tamzrod/sdm-poller/internal/register"
	"github.com/tamzrod/sdm-poller/internal/simulator/simtest"
)

func TestServer_ServesOverTCP(t *testing.T) {
	srv := simtest.Start(t, register.ModelSDM630, 3, 1001)

	c, err := pmodbus.New(pmodbus.Config{Endpoint: srv.Addr(), UnitID: 3, Timeout: 2 * time.Second}, zerolog.Nop())
	if err != nil {
		t.Fatalf("client err=%v", err)
	}
	defer c.Close()

	words, err := c.ReadHoldingRegisters(context.Background(), 0xFC00, 2)
	if err != nil {
		t.Fatalf("read err=%v", err)
	}
	if serial := uint32(words[0])<<16 | uint32(words[1]); serial != 1001 {
		t.Fatalf("serial=%d want 1001", serial)
	}
}
