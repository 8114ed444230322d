package pressure

import (
	"context"
	"sync"
	"time"

	"github.com/jadujoel/pressure-observer/internal/errors"
)

// Observer multiplexes pressure subscriptions over a single callback.
// Records reported by the provider accumulate in a pending buffer that a
// delivery goroutine drains into the callback, one batch per drain, in
// arrival order. An observer does nothing until Observe is called.
//
// Observe, Unobserve, Disconnect and TakeRecords are meant to be driven
// from one control flow; the pending buffer itself is safe against the
// provider emitting from its own goroutines.
type Observer struct {
	provider Provider
	callback Callback

	mu        sync.Mutex
	pending   []Record
	scheduled bool
	intervals map[Source]time.Duration
}

// NewObserver creates an observer with no active subscriptions.
func NewObserver(callback Callback, provider Provider) *Observer {
	return &Observer{
		provider:  provider,
		callback:  callback,
		intervals: make(map[Source]time.Duration),
	}
}

// Observe subscribes to a source and returns once the provider confirms
// the subscription. A failure is reported through the returned error,
// never a panic: pressure_source_not_supported when the host cannot
// report the source, pressure_not_allowed when the provider's policy
// denies observation. A failed Observe leaves every other subscription
// untouched. Observing an already-observed source replaces its sample
// interval; buffered records are preserved.
func (o *Observer) Observe(ctx context.Context, source Source, opts *ObserveOptions) error {
	errFactory := errors.New()

	if !source.Valid() {
		return errFactory.WithData(ErrInvalidSource, source)
	}

	if !o.supported(source) {
		return errFactory.WithData(ErrNotSupported, source)
	}

	var interval time.Duration
	if opts != nil {
		interval = opts.SampleInterval
	}

	if err := o.provider.Subscribe(ctx, source, interval, o.enqueue); err != nil {
		return err
	}

	o.mu.Lock()
	o.intervals[source] = interval
	o.mu.Unlock()

	return nil
}

// Unobserve removes the subscription for a source. It never fails: a
// source without a subscription is a no-op. Records the source already
// contributed to the pending buffer remain and are still delivered.
func (o *Observer) Unobserve(source Source) {
	o.mu.Lock()
	_, active := o.intervals[source]
	delete(o.intervals, source)
	o.mu.Unlock()

	if active {
		o.provider.Unsubscribe(source)
	}
}

// Disconnect removes every active subscription. Idempotent.
func (o *Observer) Disconnect() {
	for _, source := range o.Observed() {
		o.Unobserve(source)
	}
}

// Observed returns the sources with an active subscription.
func (o *Observer) Observed() []Source {
	o.mu.Lock()
	defer o.mu.Unlock()

	sources := make([]Source, 0, len(o.intervals))
	for _, source := range Sources() {
		if _, ok := o.intervals[source]; ok {
			sources = append(sources, source)
		}
	}

	return sources
}

// TakeRecords atomically empties the pending buffer and returns its prior
// contents in insertion order, without invoking the callback. An empty
// buffer yields an empty result.
func (o *Observer) TakeRecords() []Record {
	o.mu.Lock()
	records := o.pending
	o.pending = nil
	o.mu.Unlock()

	return records
}

func (o *Observer) supported(source Source) bool {
	for _, s := range o.provider.SupportedSources() {
		if s == source {
			return true
		}
	}

	return false
}

// enqueue is handed to the provider as the emit function. The first
// record appended while no delivery is in flight schedules one.
func (o *Observer) enqueue(record Record) {
	o.mu.Lock()
	o.pending = append(o.pending, record)
	if !o.scheduled {
		o.scheduled = true
		go o.deliver()
	}
	o.mu.Unlock()
}

// deliver drains the pending buffer into the callback until the buffer
// stays empty. Draining and appending are serialized on the mutex, so a
// record ends up in exactly one batch (or one TakeRecords result), and
// batches are handed to the callback one at a time.
func (o *Observer) deliver() {
	for {
		o.mu.Lock()
		if len(o.pending) == 0 {
			o.scheduled = false
			o.mu.Unlock()
			return
		}
		batch := o.pending
		o.pending = nil
		o.mu.Unlock()

		o.callback(batch, o)
	}
}
