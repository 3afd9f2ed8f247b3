// cmd/sdmpoller/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tamzrod/sdm-poller/internal/api"
	"github.com/tamzrod/sdm-poller/internal/config"
	"github.com/tamzrod/sdm-poller/internal/configstore"
	"github.com/tamzrod/sdm-poller/internal/metrics"
	"github.com/tamzrod/sdm-poller/internal/poller"
	"github.com/tamzrod/sdm-poller/internal/probe"
	"github.com/tamzrod/sdm-poller/internal/register"
)

func main() {
	cfgPath := flag.String("config", "sdm-poller.yaml", "path to the YAML config")
	flag.Parse()
	if flag.NArg() > 0 {
		*cfgPath = flag.Arg(0)
	}

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config validation failed: %v\n", err)
		os.Exit(1)
	}
	config.Normalize(cfg)

	log := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *cfgPath, log); err != nil {
		log.Fatal().Err(err).Msg("sdm-poller stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, cfgPath string, log zerolog.Logger) error {
	// --------------------
	// Unit id persistence
	// --------------------

	var store poller.UnitIDStore
	if cfg.State.SQLitePath != "" {
		db, err := configstore.OpenSQLite(cfg.State.SQLitePath)
		if err != nil {
			return fmt.Errorf("open state: %w", err)
		}
		defer db.Close()

		overrides, err := db.Overrides(ctx)
		if err != nil {
			return fmt.Errorf("load unit id overrides: %w", err)
		}
		if err := config.ApplyOverrides(cfg, overrides); err != nil {
			return err
		}
		store = db
	} else {
		store = configstore.NewYAMLStore(cfgPath)
	}

	// --------------------
	// Build per-device pollers
	// --------------------

	var (
		wg      sync.WaitGroup
		devices []api.Device
		sources []metrics.Source
	)

	for _, d := range cfg.Devices {
		dlog := log.With().Str("device", d.ID).Logger()

		if d.Model == config.ModelAuto {
			d.Model = detectModel(ctx, d, dlog)
		}

		p, closePoller, err := poller.Build(d, log, poller.WithUnitIDStore(store))
		if err != nil {
			return fmt.Errorf("poller build failed (device=%s): %w", d.ID, err)
		}
		defer closePoller()

		devices = append(devices, p)
		sources = append(sources, p)

		out := make(chan poller.Result)

		wg.Add(2)
		go func() {
			defer wg.Done()
			p.Run(ctx, out)
		}()
		go func() {
			defer wg.Done()
			watch(ctx, p, out, dlog)
		}()

		dlog.Info().
			Str("endpoint", d.Endpoint()).
			Int("unit_id", d.UnitID).
			Str("model", d.Model).
			Dur("interval", d.Interval()).
			Msg("device started")
	}

	// --------------------
	// HTTP surface
	// --------------------

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics.NewCollector(sources...),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler := api.New(devices, log.With().Str("component", "api").Logger())
	handler.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", srv.Addr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	if runErr != nil {
		return runErr
	}
	wg.Wait()
	return nil
}

// detectModel probes the meter once. An undetectable meter falls back to SDM120.
func detectModel(ctx context.Context, d config.Device, log zerolog.Logger) string {
	pctx, cancel := context.WithTimeout(ctx, 2*d.Timeout())
	defer cancel()

	model, err := probe.Detect(pctx, probe.Config{
		Endpoint: d.Endpoint(),
		UnitID:   uint8(d.UnitID),
		Timeout:  d.Timeout(),
	}, log)
	if err != nil {
		log.Warn().Err(err).Str("fallback", register.ModelSDM120).Msg("model detection failed")
		return register.ModelSDM120
	}
	return model
}

func newLogger(c config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var l zerolog.Logger
	if c.Format == "json" {
		l = zerolog.New(os.Stderr)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return l.Level(level).With().Timestamp().Logger()
}
