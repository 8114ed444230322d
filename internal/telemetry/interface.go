package telemetry

import (
	"context"

	"github.com/jadujoel/pressure-observer/internal/pressure"
)

// Collector persists delivered pressure batches.
type Collector interface {
	Record(ctx context.Context, records []pressure.Record) error
	Close() error
}
