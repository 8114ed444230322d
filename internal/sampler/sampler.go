// Package sampler provides the host-backed pressure provider. It reads
// CPU utilization and temperature sensors through gopsutil, classifies the
// readings into pressure states, and reports a record only when a source's
// state changes from the previously reported value.
package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/jadujoel/pressure-observer/internal/errors"
	"github.com/jadujoel/pressure-observer/internal/logger"
	"github.com/jadujoel/pressure-observer/internal/pressure"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
)

type readFunc func(ctx context.Context) (pressure.State, error)

// Sampler implements pressure.Provider against the local host. Capability
// is probed once at construction; each active subscription runs its own
// worker goroutine.
type Sampler struct {
	cfg     Config
	readers map[pressure.Source]readFunc

	mu      sync.Mutex
	workers map[pressure.Source]*worker
}

type worker struct {
	retune chan time.Duration
	stop   chan struct{}
	done   chan struct{}
}

// New probes the host and returns a sampler for the sources it can read.
// When neither CPU utilization nor temperature sensors are readable, the
// environment cannot observe pressure at all and New fails with
// pressure_observer_unavailable, so callers can short-circuit instead of
// constructing an observer.
func New(cfg Config) (*Sampler, error) {
	readers := make(map[pressure.Source]readFunc)

	ctx := context.Background()
	if probeCPU(ctx) {
		readers[pressure.SourceCPU] = cpuReader(cfg)
	}
	if probeThermals(ctx) {
		readers[pressure.SourceThermals] = thermalReader(cfg)
	}

	return newWithReaders(cfg, readers)
}

func newWithReaders(cfg Config, readers map[pressure.Source]readFunc) (*Sampler, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}
	if len(readers) == 0 {
		return nil, errFactory.WithMessage(pressure.ErrUnavailable, "no pressure source readable on this host")
	}

	return &Sampler{
		cfg:     cfg,
		readers: readers,
		workers: make(map[pressure.Source]*worker),
	}, nil
}

// SupportedSources reports the probed capability of the host.
func (s *Sampler) SupportedSources() []pressure.Source {
	sources := make([]pressure.Source, 0, len(s.readers))
	for _, source := range pressure.Sources() {
		if _, ok := s.readers[source]; ok {
			sources = append(sources, source)
		}
	}

	return sources
}

// Subscribe starts (or retunes) the worker for a source and returns once
// it is running. Subscribing to an already-subscribed source only updates
// the sample interval.
func (s *Sampler) Subscribe(
	ctx context.Context, source pressure.Source, interval time.Duration, emit func(pressure.Record),
) error {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return errFactory.Wrap(errors.ErrOperationFailed, err)
	}

	read, ok := s.readers[source]
	if !ok {
		return errFactory.WithData(pressure.ErrNotSupported, source)
	}
	if !s.allowed(source) {
		return errFactory.WithData(pressure.ErrNotAllowed, source)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.workers[source]; ok {
		retune(w, interval)
		return nil
	}

	w := &worker{
		retune: make(chan time.Duration, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.workers[source] = w
	go s.run(source, read, w, s.effective(interval), emit)

	logger.Debug().
		Str("source", source.String()).
		Dur("interval", s.effective(interval)).
		Msg("pressure subscription started")

	return nil
}

// Unsubscribe stops the worker for a source and waits for it to exit, so
// no record is emitted after Unsubscribe returns. Unknown sources are a
// no-op.
func (s *Sampler) Unsubscribe(source pressure.Source) {
	s.mu.Lock()
	w := s.workers[source]
	delete(s.workers, source)
	s.mu.Unlock()

	if w == nil {
		return
	}

	close(w.stop)
	<-w.done

	logger.Debug().Str("source", source.String()).Msg("pressure subscription stopped")
}

// Close stops every worker.
func (s *Sampler) Close() {
	for _, source := range pressure.Sources() {
		s.Unsubscribe(source)
	}
}

func (s *Sampler) allowed(source pressure.Source) bool {
	if len(s.cfg.Allowed) == 0 {
		return true
	}
	for _, allowed := range s.cfg.Allowed {
		if allowed == source {
			return true
		}
	}

	return false
}

func (s *Sampler) effective(interval time.Duration) time.Duration {
	if interval < s.cfg.MinInterval {
		return s.cfg.MinInterval
	}

	return interval
}

// retune replaces any pending interval update without blocking.
func retune(w *worker, interval time.Duration) {
	for {
		select {
		case w.retune <- interval:
			return
		default:
			select {
			case <-w.retune:
			default:
			}
		}
	}
}

func (s *Sampler) run(
	source pressure.Source, read readFunc, w *worker, interval time.Duration, emit func(pressure.Record),
) {
	defer close(w.done)

	ctx := context.Background()
	var last pressure.State
	have := false

	sample := func() {
		state, err := read(ctx)
		if err != nil {
			logger.Debug().Err(err).Str("source", source.String()).Msg("pressure reading failed")
			return
		}
		if have && state == last {
			return
		}
		last = state
		have = true
		emit(pressure.NewRecord(source, state, pressure.Now()))
	}

	sample()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case d := <-w.retune:
			ticker.Reset(s.effective(d))
		case <-ticker.C:
			sample()
		}
	}
}

func probeCPU(ctx context.Context) bool {
	_, err := cpu.PercentWithContext(ctx, 0, false)

	return err == nil
}

func probeThermals(ctx context.Context) bool {
	stats, err := host.SensorsTemperaturesWithContext(ctx)

	return err == nil && len(stats) > 0
}

func cpuReader(cfg Config) readFunc {
	return func(ctx context.Context) (pressure.State, error) {
		errFactory := errors.New()

		percentages, err := cpu.PercentWithContext(ctx, 0, false)
		if err != nil {
			return 0, errFactory.Wrap(ErrReadFailed, err)
		}
		if len(percentages) == 0 {
			return 0, errFactory.New(ErrNoReadings)
		}

		return cfg.CPU.Classify(percentages[0] / 100), nil
	}
}

func thermalReader(cfg Config) readFunc {
	return func(ctx context.Context) (pressure.State, error) {
		errFactory := errors.New()

		stats, err := host.SensorsTemperaturesWithContext(ctx)
		if err != nil {
			return 0, errFactory.Wrap(ErrReadFailed, err)
		}
		if len(stats) == 0 {
			return 0, errFactory.New(ErrNoReadings)
		}

		hottest := 0.0
		for _, stat := range stats {
			limit := stat.Critical
			if limit <= 0 {
				limit = cfg.FallbackLimit
			}
			if ratio := stat.Temperature / limit; ratio > hottest {
				hottest = ratio
			}
		}

		return cfg.Thermal.Classify(hottest), nil
	}
}
