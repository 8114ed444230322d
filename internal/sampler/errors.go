package sampler

import "github.com/jadujoel/pressure-observer/internal/errors"

const (
	// Configuration errors
	ErrInvalidConfig = errors.ErrorCode("sampler_invalid_config")

	// Reading errors
	ErrReadFailed = errors.ErrorCode("sampler_read_failed")
	ErrNoReadings = errors.ErrorCode("sampler_no_readings")
)
