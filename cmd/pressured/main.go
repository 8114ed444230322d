package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jadujoel/pressure-observer/internal/config"
	"github.com/jadujoel/pressure-observer/internal/errors"
	"github.com/jadujoel/pressure-observer/internal/logger"
	"github.com/jadujoel/pressure-observer/internal/pid"
	"github.com/jadujoel/pressure-observer/internal/pressure"
	"github.com/jadujoel/pressure-observer/internal/sampler"
	"github.com/jadujoel/pressure-observer/internal/telemetry"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.SetLogLevel(cfg.ToLogLevel())
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("failed to write PID file")
	}
	defer pid.Remove()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}
	logger.Info().Msg("Exiting...")
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func run(ctx context.Context) error {
	samplerCfg := sampler.DefaultConfig()
	for _, name := range cfg.Allowed {
		samplerCfg.Allowed = append(samplerCfg.Allowed, pressure.Source(name))
	}

	provider, err := sampler.New(samplerCfg)
	if err != nil {
		if pressure.IsUnavailable(err) {
			// No observation capability on this host: nothing to run.
			logger.Warn().Msg("Pressure observation is not available on this host")
			return nil
		}
		return err
	}
	defer provider.Close()

	collector, err := telemetry.NewService(telemetry.Config{
		Enabled: cfg.Telemetry,
		DBPath:  cfg.TelemetryDB,
	})
	if err != nil {
		return err
	}
	defer collector.Close()

	obs := pressure.NewObserver(onBatch(collector), provider)

	interval := time.Duration(cfg.Interval) * time.Millisecond
	observed := 0
	for _, name := range cfg.Sources {
		source := pressure.Source(name)
		err := obs.Observe(ctx, source, &pressure.ObserveOptions{SampleInterval: interval})
		switch {
		case err == nil:
			observed++
			logger.Info().Str("source", name).Dur("interval", interval).Msg("Observing")
		case pressure.IsNotSupported(err):
			logger.Warn().Str("source", name).Msg("Source not supported on this host")
		case pressure.IsNotAllowed(err):
			logger.Warn().Str("source", name).Msg("Source not allowed by policy")
		default:
			return err
		}
	}
	if observed == 0 {
		return errors.New().New(errors.ErrInitObserver)
	}

	<-ctx.Done()

	obs.Disconnect()

	// Claim not-yet-delivered history instead of losing it.
	if remaining := obs.TakeRecords(); len(remaining) > 0 {
		logBatch(remaining)
		if err := collector.Record(context.Background(), remaining); err != nil {
			logger.Error().Err(err).Msg("failed to persist remaining records")
		}
	}

	return nil
}

func onBatch(collector telemetry.Collector) pressure.Callback {
	return func(records []pressure.Record, _ *pressure.Observer) {
		logBatch(records)
		if err := collector.Record(context.Background(), records); err != nil {
			logger.Error().Err(err).Msg("failed to persist pressure records")
		}
	}
}

// logBatch reports the most recent state per source; batches preserve
// arrival order, so the last record for a source wins.
func logBatch(records []pressure.Record) {
	latest := make(map[pressure.Source]pressure.Record)
	for _, record := range records {
		latest[record.Source] = record
	}

	for _, source := range pressure.Sources() {
		record, ok := latest[source]
		if !ok {
			continue
		}
		logger.Info().
			Str("source", record.Source.String()).
			Str("state", record.State.String()).
			Float64("time", record.Time).
			Msg("Pressure changed")
	}
}
