// cmd/sdmpoller/watch.go
package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tamzrod/sdm-poller/internal/poller"
	"github.com/tamzrod/sdm-poller/internal/status"
)

// watch consumes poll results for one device. It logs health transitions
// and resolves the serial number after the first successful contact.
func watch(ctx context.Context, p *poller.Poller, in <-chan poller.Result, log zerolog.Logger) {
	health := status.HealthUnknown
	serialKnown := false

	for {
		select {
		case <-ctx.Done():
			return

		case res := <-in:
			snap := p.Status()

			if snap.Health != health {
				ev := log.Info()
				if snap.Health == status.HealthError || snap.Health == status.HealthStale {
					ev = log.Warn().Err(firstErr(res.Err, res.LastError)).Uint16("error_code", snap.LastErrorCode)
				}
				ev.Str("from", status.HealthName(health)).
					Str("to", snap.HealthName()).
					Int("attempts", res.Attempts).
					Msg("device health changed")
				health = snap.Health
			}

			if res.Success() && !res.Stale && !serialKnown {
				if serial, ok := p.EnsureSerialNumber(ctx); ok {
					serialKnown = true
					log.Info().Uint32("serial", serial).Str("identifier", p.Identifier()).Msg("device identified")
				}
			}

			log.Debug().
				Dur("duration", res.Duration).
				Int("values", len(res.Values)).
				Bool("stale", res.Stale).
				Msg("poll done")
		}
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
