package pressure

import (
	"context"
	"time"
)

// Source identifies the subsystem being monitored.
type Source string

const (
	SourceThermals Source = "thermals"
	SourceCPU      Source = "cpu"
)

// Sources lists every source the package knows about.
func Sources() []Source {
	return []Source{SourceThermals, SourceCPU}
}

// Valid reports whether the source is one the package knows about.
func (s Source) Valid() bool {
	switch s {
	case SourceThermals, SourceCPU:
		return true
	default:
		return false
	}
}

func (s Source) String() string {
	return string(s)
}

// State is the severity of a source's pressure, in ascending order.
type State int

const (
	StateNominal State = iota
	StateFair
	StateSerious
	StateCritical
)

var stateNames = map[State]string{
	StateNominal:  "nominal",
	StateFair:     "fair",
	StateSerious:  "serious",
	StateCritical: "critical",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return "unknown"
}

// ParseState converts a state name back into a State.
func ParseState(name string) (State, bool) {
	for state, n := range stateNames {
		if n == name {
			return state, true
		}
	}

	return 0, false
}

// Callback receives each delivered batch together with the observer that
// produced it. Batches preserve arrival order, so the most recent reading
// for a batch is its last element.
type Callback func(records []Record, obs *Observer)

// ObserveOptions carries per-subscription settings.
type ObserveOptions struct {
	// SampleInterval is the requested minimum time between upstream
	// evaluations. Zero means as fast as possible. The provider may
	// coalesce or ignore it.
	SampleInterval time.Duration
}

// Provider is the upstream collaborator an observer subscribes to. It
// reports which sources the host can observe, enforces the permission
// gate, and emits a record only when a source's state changes from the
// previously reported value.
type Provider interface {
	// SupportedSources returns the sources this host can report.
	SupportedSources() []Source

	// Subscribe registers interest in a source and returns once the
	// subscription is confirmed. Subscribing to a source that already
	// has an active subscription replaces its sample interval without
	// creating a duplicate. The emit function may be called from the
	// provider's own goroutines until Unsubscribe returns.
	Subscribe(ctx context.Context, source Source, interval time.Duration, emit func(Record)) error

	// Unsubscribe removes the subscription for a source if present.
	Unsubscribe(source Source)
}
