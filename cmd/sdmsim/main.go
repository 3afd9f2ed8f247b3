// cmd/sdmsim/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/sdm-poller/internal/register"
	"github.com/tamzrod/sdm-poller/internal/simulator"
)

func main() {
	listen := flag.String("listen", "127.0.0.1:5020", "Modbus-TCP listen address")
	model := flag.String("model", register.ModelSDM120, "meter model (SDM120 | SDM630)")
	unitID := flag.Uint("unit-id", 1, "initial unit id (1-247)")
	serial := flag.Uint("serial", 21046085, "serial number")
	step := flag.Duration("step", time.Second, "energy counter update period")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if *unitID < 1 || *unitID > 247 {
		log.Fatal().Uint("unit_id", *unitID).Msg("unit id must be 1-247")
	}

	meter, err := simulator.NewMeter(*model, uint8(*unitID), uint32(*serial), log)
	if err != nil {
		log.Fatal().Err(err).Msg("meter")
	}

	srv, err := simulator.NewServer(*listen, meter, log)
	if err != nil {
		log.Fatal().Err(err).Msg("server")
	}
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = srv.Stop()
			log.Info().Msg("simulator stopped")
			return
		case <-ticker.C:
			meter.Step(*step)
		}
	}
}
