package pressure_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jadujoel/pressure-observer/internal/errors"
	"github.com/jadujoel/pressure-observer/internal/pressure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider implements pressure.Provider with scripted capability and
// permission behavior, so tests drive the observer without a host sensor.
type fakeProvider struct {
	supported []pressure.Source
	denied    map[pressure.Source]bool

	mu         sync.Mutex
	emits      map[pressure.Source]func(pressure.Record)
	intervals  map[pressure.Source]time.Duration
	subscribes int
}

func newFakeProvider(supported ...pressure.Source) *fakeProvider {
	return &fakeProvider{
		supported: supported,
		denied:    make(map[pressure.Source]bool),
		emits:     make(map[pressure.Source]func(pressure.Record)),
		intervals: make(map[pressure.Source]time.Duration),
	}
}

func (p *fakeProvider) SupportedSources() []pressure.Source {
	return p.supported
}

func (p *fakeProvider) Subscribe(
	_ context.Context, source pressure.Source, interval time.Duration, emit func(pressure.Record),
) error {
	if p.denied[source] {
		return errors.New().WithData(pressure.ErrNotAllowed, source)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribes++
	p.emits[source] = emit
	p.intervals[source] = interval

	return nil
}

func (p *fakeProvider) Unsubscribe(source pressure.Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.emits, source)
	delete(p.intervals, source)
}

func (p *fakeProvider) emit(t *testing.T, source pressure.Source, state pressure.State, timestamp float64) {
	t.Helper()

	p.mu.Lock()
	emit := p.emits[source]
	p.mu.Unlock()

	require.NotNil(t, emit, "no active subscription for %s", source)
	emit(pressure.NewRecord(source, state, timestamp))
}

// emitter returns the registered emit function so producer goroutines can
// report records without touching testing.T.
func (p *fakeProvider) emitter(t *testing.T, source pressure.Source) func(pressure.Record) {
	t.Helper()

	p.mu.Lock()
	emit := p.emits[source]
	p.mu.Unlock()

	require.NotNil(t, emit, "no active subscription for %s", source)

	return emit
}

func (p *fakeProvider) interval(source pressure.Source) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.intervals[source]
}

func (p *fakeProvider) activeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.emits)
}

func TestObserveUnsupportedSource(t *testing.T) {
	provider := newFakeProvider(pressure.SourceCPU)
	obs := pressure.NewObserver(func([]pressure.Record, *pressure.Observer) {}, provider)

	err := obs.Observe(context.Background(), pressure.SourceThermals, nil)
	require.Error(t, err)
	assert.True(t, pressure.IsNotSupported(err))
	assert.False(t, pressure.IsNotAllowed(err))
	assert.Zero(t, provider.activeCount(), "failed observe must not create a subscription")

	// The same client can still observe a supported source afterwards.
	require.NoError(t, obs.Observe(context.Background(), pressure.SourceCPU, nil))
	assert.Equal(t, []pressure.Source{pressure.SourceCPU}, obs.Observed())
}

func TestObserveNotAllowed(t *testing.T) {
	provider := newFakeProvider(pressure.SourceCPU, pressure.SourceThermals)
	provider.denied[pressure.SourceThermals] = true
	obs := pressure.NewObserver(func([]pressure.Record, *pressure.Observer) {}, provider)

	require.NoError(t, obs.Observe(context.Background(), pressure.SourceCPU, nil))

	err := obs.Observe(context.Background(), pressure.SourceThermals, nil)
	require.Error(t, err)
	assert.True(t, pressure.IsNotAllowed(err))

	// The denial leaves the cpu subscription untouched.
	assert.Equal(t, []pressure.Source{pressure.SourceCPU}, obs.Observed())
	assert.Equal(t, 1, provider.activeCount())
}

func TestObserveInvalidSource(t *testing.T) {
	provider := newFakeProvider(pressure.SourceCPU)
	obs := pressure.NewObserver(func([]pressure.Record, *pressure.Observer) {}, provider)

	err := obs.Observe(context.Background(), pressure.Source("gpu"), nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, pressure.ErrInvalidSource))
}

func TestObserveReplacesSampleInterval(t *testing.T) {
	provider := newFakeProvider(pressure.SourceCPU)
	obs := pressure.NewObserver(func([]pressure.Record, *pressure.Observer) {}, provider)

	require.NoError(t, obs.Observe(context.Background(), pressure.SourceCPU, nil))
	assert.Equal(t, time.Duration(0), provider.interval(pressure.SourceCPU))

	opts := &pressure.ObserveOptions{SampleInterval: 2 * time.Second}
	require.NoError(t, obs.Observe(context.Background(), pressure.SourceCPU, opts))

	assert.Equal(t, 2*time.Second, provider.interval(pressure.SourceCPU))
	assert.Equal(t, []pressure.Source{pressure.SourceCPU}, obs.Observed(), "no duplicate subscription")
	assert.Equal(t, 1, provider.activeCount())
}

func TestDeliveryBatchesPendingRecords(t *testing.T) {
	provider := newFakeProvider(pressure.SourceCPU, pressure.SourceThermals)
	delivered := make(chan []pressure.Record)
	release := make(chan struct{})

	var obs *pressure.Observer
	obs = pressure.NewObserver(func(records []pressure.Record, o *pressure.Observer) {
		assert.Same(t, obs, o, "callback receives the owning observer")
		delivered <- records
		<-release
	}, provider)

	require.NoError(t, obs.Observe(context.Background(), pressure.SourceCPU, nil))
	require.NoError(t, obs.Observe(context.Background(), pressure.SourceThermals, nil))

	provider.emit(t, pressure.SourceCPU, pressure.StateNominal, 1)
	first := <-delivered
	assert.Equal(t, []pressure.Record{
		pressure.NewRecord(pressure.SourceCPU, pressure.StateNominal, 1),
	}, first)

	// While the callback is busy, records from both sources accumulate
	// and arrive later as one batch, interleaved in arrival order.
	provider.emit(t, pressure.SourceCPU, pressure.StateFair, 2)
	provider.emit(t, pressure.SourceThermals, pressure.StateSerious, 3)
	release <- struct{}{}

	second := <-delivered
	assert.Equal(t, []pressure.Record{
		pressure.NewRecord(pressure.SourceCPU, pressure.StateFair, 2),
		pressure.NewRecord(pressure.SourceThermals, pressure.StateSerious, 3),
	}, second)
	release <- struct{}{}
}

func TestNoEmptyBatches(t *testing.T) {
	provider := newFakeProvider(pressure.SourceCPU)
	delivered := make(chan []pressure.Record, 1)
	obs := pressure.NewObserver(func(records []pressure.Record, _ *pressure.Observer) {
		delivered <- records
	}, provider)

	require.NoError(t, obs.Observe(context.Background(), pressure.SourceCPU, nil))

	select {
	case batch := <-delivered:
		t.Fatalf("unexpected delivery without records: %v", batch)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTakeRecordsClaimsUndelivered(t *testing.T) {
	provider := newFakeProvider(pressure.SourceCPU)
	delivered := make(chan []pressure.Record)
	release := make(chan struct{})
	obs := pressure.NewObserver(func(records []pressure.Record, _ *pressure.Observer) {
		delivered <- records
		<-release
	}, provider)

	require.NoError(t, obs.Observe(context.Background(), pressure.SourceCPU, nil))

	provider.emit(t, pressure.SourceCPU, pressure.StateNominal, 1)
	<-delivered

	provider.emit(t, pressure.SourceCPU, pressure.StateFair, 2)
	provider.emit(t, pressure.SourceCPU, pressure.StateSerious, 3)

	taken := obs.TakeRecords()
	assert.Equal(t, []pressure.Record{
		pressure.NewRecord(pressure.SourceCPU, pressure.StateFair, 2),
		pressure.NewRecord(pressure.SourceCPU, pressure.StateSerious, 3),
	}, taken)

	// The in-flight delivery finds an empty buffer and must not fire.
	release <- struct{}{}
	select {
	case batch := <-delivered:
		t.Fatalf("records delivered twice: %v", batch)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTakeRecordsEmpty(t *testing.T) {
	provider := newFakeProvider(pressure.SourceCPU)
	obs := pressure.NewObserver(func([]pressure.Record, *pressure.Observer) {}, provider)

	assert.Empty(t, obs.TakeRecords())
	assert.Empty(t, obs.TakeRecords())
}

func TestUnobserveKeepsBufferedRecords(t *testing.T) {
	provider := newFakeProvider(pressure.SourceCPU)
	delivered := make(chan []pressure.Record)
	release := make(chan struct{})
	obs := pressure.NewObserver(func(records []pressure.Record, _ *pressure.Observer) {
		delivered <- records
		<-release
	}, provider)

	require.NoError(t, obs.Observe(context.Background(), pressure.SourceCPU, nil))

	provider.emit(t, pressure.SourceCPU, pressure.StateNominal, 1)
	<-delivered

	provider.emit(t, pressure.SourceCPU, pressure.StateFair, 2)
	obs.Unobserve(pressure.SourceCPU)
	assert.Empty(t, obs.Observed())
	assert.Zero(t, provider.activeCount())

	// History buffered before Unobserve is still delivered.
	release <- struct{}{}
	batch := <-delivered
	assert.Equal(t, []pressure.Record{
		pressure.NewRecord(pressure.SourceCPU, pressure.StateFair, 2),
	}, batch)
	release <- struct{}{}
}

func TestDisconnectIdempotent(t *testing.T) {
	provider := newFakeProvider(pressure.SourceCPU, pressure.SourceThermals)
	obs := pressure.NewObserver(func([]pressure.Record, *pressure.Observer) {}, provider)

	require.NoError(t, obs.Observe(context.Background(), pressure.SourceCPU, nil))
	require.NoError(t, obs.Observe(context.Background(), pressure.SourceThermals, nil))
	require.Equal(t, 2, provider.activeCount())

	obs.Disconnect()
	assert.Empty(t, obs.Observed())
	assert.Zero(t, provider.activeCount())

	obs.Disconnect()
	obs.Unobserve(pressure.SourceCPU)
	assert.Empty(t, obs.Observed())
	assert.Zero(t, provider.activeCount())
}

func TestCoalescedTransitionsScenario(t *testing.T) {
	provider := newFakeProvider(pressure.SourceCPU)

	var mu sync.Mutex
	var got []pressure.Record
	obs := pressure.NewObserver(func(records []pressure.Record, _ *pressure.Observer) {
		mu.Lock()
		got = append(got, records...)
		mu.Unlock()
	}, provider)

	opts := &pressure.ObserveOptions{SampleInterval: time.Second}
	require.NoError(t, obs.Observe(context.Background(), pressure.SourceCPU, opts))
	assert.Equal(t, time.Second, provider.interval(pressure.SourceCPU))

	provider.emit(t, pressure.SourceCPU, pressure.StateFair, 100)
	// A repeated "fair" at t=1100 is suppressed upstream: the provider
	// only reports transitions, so nothing is emitted here.
	provider.emit(t, pressure.SourceCPU, pressure.StateSerious, 2100)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []pressure.Record{
		pressure.NewRecord(pressure.SourceCPU, pressure.StateFair, 100),
		pressure.NewRecord(pressure.SourceCPU, pressure.StateSerious, 2100),
	}, got)
}

func TestConcurrentEmitExactlyOnce(t *testing.T) {
	const perSource = 250

	provider := newFakeProvider(pressure.SourceCPU, pressure.SourceThermals)

	var mu sync.Mutex
	seen := make(map[pressure.Source]map[float64]int)
	seen[pressure.SourceCPU] = make(map[float64]int)
	seen[pressure.SourceThermals] = make(map[float64]int)
	count := 0

	obs := pressure.NewObserver(func(records []pressure.Record, _ *pressure.Observer) {
		mu.Lock()
		for _, r := range records {
			seen[r.Source][r.Time]++
			count++
		}
		mu.Unlock()
	}, provider)

	require.NoError(t, obs.Observe(context.Background(), pressure.SourceCPU, nil))
	require.NoError(t, obs.Observe(context.Background(), pressure.SourceThermals, nil))

	emitCPU := provider.emitter(t, pressure.SourceCPU)
	emitThermals := provider.emitter(t, pressure.SourceThermals)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < perSource; i++ {
			// Alternating states keep the upstream dedup contract intact.
			emitCPU(pressure.NewRecord(pressure.SourceCPU, pressure.State(i%2), float64(i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < perSource; i++ {
			emitThermals(pressure.NewRecord(pressure.SourceThermals, pressure.State(i%2), float64(i)))
		}
	}()
	wg.Wait()

	// Whatever is still pending is claimed instead of delivered.
	assert.Eventually(t, func() bool {
		taken := obs.TakeRecords()
		mu.Lock()
		for _, r := range taken {
			seen[r.Source][r.Time]++
			count++
		}
		done := count == 2*perSource
		mu.Unlock()
		return done
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for source, times := range seen {
		assert.Len(t, times, perSource, "source %s", source)
		for timestamp, n := range times {
			assert.Equal(t, 1, n, "record (%s, %v) seen %d times", source, timestamp, n)
		}
	}
}
