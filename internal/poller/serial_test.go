// internal/poller/serial_test.go
package poller

import (
	"context"
	"testing"
)

func TestEnsureSerialNumber(t *testing.T) {
	tr := newFakeTransport()
	tr.holding[0xFC00], tr.holding[0xFC01] = 0x0141, 0x2345
	tr.failReads = 1
	p, _ := newTestPoller(t, tr)

	if _, ok := p.EnsureSerialNumber(context.Background()); ok {
		t.Fatalf("failed read must leave serial unset")
	}
	if got := p.Identifier(); got != "house" {
		t.Fatalf("fallback identifier=%s", got)
	}

	serial, ok := p.EnsureSerialNumber(context.Background())
	if !ok || serial != 0x01412345 {
		t.Fatalf("serial=%d,%v", serial, ok)
	}
	if got := p.UniqueID("voltage"); got != "sdm-21046085_voltage" {
		t.Fatalf("unique id=%s", got)
	}

	// cached: no further reads
	tr.takeReads()
	p.EnsureSerialNumber(context.Background())
	if n := len(tr.takeReads()); n != 0 {
		t.Fatalf("cached serial re-read %d times", n)
	}
}
