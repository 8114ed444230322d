package sampler

import (
	"time"

	"github.com/jadujoel/pressure-observer/internal/errors"
	"github.com/jadujoel/pressure-observer/internal/pressure"
)

const (
	defaultMinInterval   = time.Second
	defaultFallbackLimit = 90.0
)

// Thresholds maps a normalized load value onto the ordered pressure states.
// Each bound is the fraction at which the next state begins.
type Thresholds struct {
	Fair     float64
	Serious  float64
	Critical float64
}

// Classify returns the state for a normalized value in [0, 1].
func (t Thresholds) Classify(value float64) pressure.State {
	switch {
	case value >= t.Critical:
		return pressure.StateCritical
	case value >= t.Serious:
		return pressure.StateSerious
	case value >= t.Fair:
		return pressure.StateFair
	default:
		return pressure.StateNominal
	}
}

func (t Thresholds) validate() bool {
	return t.Fair > 0 && t.Fair < t.Serious && t.Serious < t.Critical
}

type Config struct {
	// Allowed is the permission policy: sources that may be observed.
	// Empty allows every supported source.
	Allowed []pressure.Source

	// MinInterval is the floor applied to requested sample intervals.
	MinInterval time.Duration

	// CPU classifies total CPU utilization as a fraction in [0, 1].
	CPU Thresholds

	// Thermal classifies the hottest sensor's temperature as a fraction
	// of its critical threshold.
	Thermal Thresholds

	// FallbackLimit is the critical temperature in degrees Celsius used
	// for sensors that report none.
	FallbackLimit float64
}

func DefaultConfig() Config {
	return Config{
		MinInterval:   defaultMinInterval,
		CPU:           Thresholds{Fair: 0.6, Serious: 0.8, Critical: 0.9},
		Thermal:       Thresholds{Fair: 0.75, Serious: 0.85, Critical: 0.95},
		FallbackLimit: defaultFallbackLimit,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.MinInterval <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "min interval must be positive")
	}
	if !c.CPU.validate() {
		return errFactory.WithMessage(ErrInvalidConfig, "cpu thresholds must ascend")
	}
	if !c.Thermal.validate() {
		return errFactory.WithMessage(ErrInvalidConfig, "thermal thresholds must ascend")
	}
	if c.FallbackLimit <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "fallback temperature limit must be positive")
	}
	for _, source := range c.Allowed {
		if !source.Valid() {
			return errFactory.WithData(ErrInvalidConfig, source)
		}
	}

	return nil
}
