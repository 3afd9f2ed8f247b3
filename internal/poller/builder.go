// internal/poller/builder.go
package poller

import (
	"github.com/rs/zerolog"

	cfg "github.com/tamzrod/sdm-poller/internal/config"
	pmodbus "github.com/tamzrod/sdm-poller/internal/poller/modbus"
)

// Build constructs a Poller and its Modbus session for one device.
// The session connects lazily on the first cycle and reconnects on its own
// after failures. The returned closer releases the session.
func Build(d cfg.Device, log zerolog.Logger, opts ...Option) (*Poller, func() error, error) {
	client, err := pmodbus.New(pmodbus.Config{
		Endpoint: d.Endpoint(),
		UnitID:   uint8(d.UnitID),
		Timeout:  d.Timeout(),
	}, log.With().Str("device", d.ID).Logger())
	if err != nil {
		return nil, nil, err
	}

	opts = append([]Option{WithLogger(log)}, opts...)

	p, err := New(
		Config{
			DeviceID:      d.ID,
			Host:          d.Host,
			Model:         d.Model,
			Interval:      d.Interval(),
			NormalDivisor: d.NormalDivisor,
			SlowDivisor:   d.SlowDivisor,
			Flags:         d.Flags(),
			Attempts:      d.Retry.Attempts,
			BackoffBase:   d.RetryBaseDelay(),
		},
		client,
		opts...,
	)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	return p, p.Close, nil
}
