package looper

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/looper/internal/perf"
	"github.com/arloliu/looper/sink"
	loopertest "github.com/arloliu/looper/testing"
)

// fakeClock advances only when slept on or told to.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration

	// onSleep, when set, returns how far a Sleep actually advances the clock.
	onSleep func(ctx context.Context, d time.Duration) time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.now
}

func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) {
	advance := d
	if f.onSleep != nil {
		advance = f.onSleep(ctx, d)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(advance)
	f.slept = append(f.slept, d)
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)
}

func (f *fakeClock) Slept() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]time.Duration(nil), f.slept...)
}

// testBody implements Body, SetupHook and TeardownHook with optional overrides.
type testBody struct {
	setup    func(ctx context.Context) error
	iterate  func(ctx context.Context, it *Iteration) error
	teardown func(ctx context.Context) error

	setups     atomic.Int32
	iterations atomic.Int32
	teardowns  atomic.Int32
}

func (b *testBody) Setup(ctx context.Context) error {
	b.setups.Add(1)
	if b.setup != nil {
		return b.setup(ctx)
	}

	return nil
}

func (b *testBody) Iterate(ctx context.Context, it *Iteration) error {
	b.iterations.Add(1)
	if b.iterate != nil {
		return b.iterate(ctx, it)
	}

	return nil
}

func (b *testBody) Teardown(ctx context.Context) error {
	b.teardowns.Add(1)
	if b.teardown != nil {
		return b.teardown(ctx)
	}

	return nil
}

// newTestController builds a controller on a memory sink driven by a fake clock.
func newTestController(t *testing.T, body Body, cfg *Config, opts ...Option) (*Controller, *sink.Memory[*FatalError], *fakeClock) {
	t.Helper()

	errs := sink.NewMemory[*FatalError]()
	opts = append([]Option{WithLogger(loopertest.NewTestLogger(t))}, opts...)

	c, err := NewController(body, errs, cfg, opts...)
	require.NoError(t, err)

	clk := newFakeClock()
	c.clock = clk
	c.tracker = perf.New(c.cfg.LongestIterationsCapacity, clk.Now())

	return c, errs, clk
}
