package telemetry

import (
	"context"

	"github.com/jadujoel/pressure-observer/internal/errors"
	"github.com/jadujoel/pressure-observer/internal/logger"
	"github.com/jadujoel/pressure-observer/internal/pressure"
)

type service struct {
	repo Repository
	cfg  Config
}

// No-op implementation used when telemetry is disabled
type noopCollector struct{}

func NewService(cfg Config) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		logger.Debug().Msg("Telemetry disabled, using no-op collector")
		return &noopCollector{}, nil
	}

	repo, err := NewRepository(cfg)
	if err != nil {
		return nil, err // Already wrapped with appropriate error
	}

	logger.Debug().
		Str("db_path", cfg.DBPath).
		Msg("Telemetry service initialized")

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

func (s *service) Record(ctx context.Context, records []pressure.Record) error {
	errFactory := errors.New()

	if len(records) == 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Store(ctx, records); err != nil {
			return errFactory.Wrap(ErrRecordFailed, err)
		}
	}

	return nil
}

func (s *service) Close() error {
	errFactory := errors.New()

	if err := s.repo.Close(); err != nil {
		return errFactory.Wrap(ErrServiceShutdown, err)
	}
	return nil
}

func (*noopCollector) Record(context.Context, []pressure.Record) error { return nil }

func (*noopCollector) Close() error { return nil }
