package looper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/looper/flags"
	"github.com/arloliu/looper/internal/metrics"
	"github.com/arloliu/looper/sink"
	loopertest "github.com/arloliu/looper/testing"
)

func TestNewController_Validation(t *testing.T) {
	t.Run("nil sink", func(t *testing.T) {
		_, err := NewController(nil, nil, nil)
		require.ErrorIs(t, err, ErrSinkRequired)
	})

	t.Run("incomplete flags", func(t *testing.T) {
		f := flags.NewAtomicFlags()
		f.TeardownComplete = nil

		_, err := NewController(nil, sink.NewMemory[*FatalError](), nil, WithFlags(f))
		require.ErrorIs(t, err, ErrFlagRequired)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.LogLevel = "verbose"

		_, err := NewController(nil, sink.NewMemory[*FatalError](), &cfg)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("defaults", func(t *testing.T) {
		c, err := NewController(nil, sink.NewMemory[*FatalError](), nil)
		require.NoError(t, err)
		require.Equal(t, DefaultName, c.Name())
		require.Equal(t, StateCreated, c.State())
		require.Equal(t, 10*time.Millisecond, c.Config().MinIterationDuration)
		require.NotNil(t, c.Logger())
	})

	t.Run("nil body runs no-op iterations", func(t *testing.T) {
		c, errs, _ := newTestController(t, nil, nil)

		require.NoError(t, c.Run(t.Context(), WithMaxIterations(3)))
		require.True(t, errs.IsEmpty())
		require.Equal(t, StateStopped, c.State())
	})
}

func TestController_IdleTime(t *testing.T) {
	body := &testBody{}
	c, _, clk := newTestController(t, body, nil)
	body.iterate = func(context.Context, *Iteration) error {
		clk.Advance(time.Millisecond)
		return nil
	}

	require.NoError(t, c.Run(t.Context(), WithMaxIterations(3)))

	require.Equal(t, int32(3), body.iterations.Load())
	require.Equal(t, []time.Duration{9 * time.Millisecond, 9 * time.Millisecond}, clk.Slept())
	require.Equal(t, 18*time.Millisecond, c.IdleTime())
	require.Equal(t, []time.Duration{time.Millisecond, time.Millisecond}, c.LongestIterations())

	windowStart := c.PerformanceWindowStart()
	report := c.ResetPerformanceTracker()
	require.Equal(t, windowStart, report.WindowStart)
	require.Equal(t, 18*time.Millisecond, report.IdleTime)
	require.InDelta(t, 100*(1-18.0/21.0), report.PercentUse, 1e-9)

	require.Zero(t, c.IdleTime())
	require.Empty(t, c.LongestIterations())
	require.Equal(t, clk.Now(), c.PerformanceWindowStart())
}

func TestController_SlowIterationsDoNotSleep(t *testing.T) {
	body := &testBody{}
	c, _, clk := newTestController(t, body, nil)
	body.iterate = func(context.Context, *Iteration) error {
		clk.Advance(15 * time.Millisecond)
		return nil
	}

	require.NoError(t, c.Run(t.Context(), WithMaxIterations(4)))

	require.Empty(t, clk.Slept())
	require.Zero(t, c.IdleTime())

	report := c.ResetPerformanceTracker()
	require.InDelta(t, 100.0, report.PercentUse, 1e-9)
}

func TestController_LongestIterations(t *testing.T) {
	durations := []time.Duration{5, 1, 7, 3, 9, 2, 0}

	cfg := DefaultConfig()
	cfg.LongestIterationsCapacity = 3

	body := &testBody{}
	c, _, clk := newTestController(t, body, &cfg)
	body.iterate = func(_ context.Context, it *Iteration) error {
		clk.Advance(durations[it.Index()] * time.Millisecond)
		return nil
	}

	require.NoError(t, c.Run(t.Context(), WithMaxIterations(len(durations))))

	require.Equal(t,
		[]time.Duration{5 * time.Millisecond, 7 * time.Millisecond, 9 * time.Millisecond},
		c.LongestIterations(),
	)
}

func TestController_PercentUseHistory(t *testing.T) {
	c, _, clk := newTestController(t, nil, nil)

	_, ok := c.PercentUseStats()
	require.False(t, ok)

	// Empty window.
	report := c.ResetPerformanceTracker()
	require.Zero(t, report.PercentUse)

	clk.Advance(10 * time.Millisecond)
	report = c.ResetPerformanceTracker()
	require.InDelta(t, 100.0, report.PercentUse, 1e-9)

	require.Equal(t, []float64{0, 100}, c.PercentUseValues())

	stats, ok := c.PercentUseStats()
	require.True(t, ok)
	require.Equal(t, 0.0, stats.Min)
	require.Equal(t, 100.0, stats.Max)
	require.Equal(t, 50.0, stats.Mean)
	require.InDelta(t, 70.710678, stats.Stdev, 1e-6)
}

func TestController_SoftStop(t *testing.T) {
	t.Run("honored after first iteration allowing it", func(t *testing.T) {
		body := &testBody{}
		c, _, _ := newTestController(t, body, nil)
		c.SoftStop()
		body.iterate = func(_ context.Context, it *Iteration) error {
			if it.Index() < 2 {
				it.PreventSoftStop()
			}
			return nil
		}

		require.NoError(t, c.Run(t.Context()))

		require.Equal(t, int32(3), body.iterations.Load())
		require.True(t, c.IsPreparingForSoftStop())
		require.True(t, c.IsStopped())
		require.Equal(t, int32(1), body.teardowns.Load())
		require.True(t, c.IsTeardownComplete())
	})

	t.Run("set before run ends after one iteration", func(t *testing.T) {
		body := &testBody{}
		c, _, _ := newTestController(t, body, nil)
		c.SoftStop()

		require.NoError(t, c.Run(t.Context()))

		require.Equal(t, int32(1), body.iterations.Load())
		require.True(t, c.IsStopped())
		require.True(t, c.IsTeardownComplete())
	})

	t.Run("always prevented runs until max iterations", func(t *testing.T) {
		body := &testBody{}
		c, _, _ := newTestController(t, body, nil)
		body.iterate = func(_ context.Context, it *Iteration) error {
			it.PreventSoftStop()
			return nil
		}
		c.SoftStop()

		require.NoError(t, c.Run(t.Context(), WithMaxIterations(4)))

		require.Equal(t, int32(4), body.iterations.Load())
		require.True(t, c.IsPreparingForSoftStop())
		require.False(t, c.IsStopped())
	})

	t.Run("prevention resets every iteration", func(t *testing.T) {
		body := &testBody{}
		c, _, _ := newTestController(t, body, nil)
		body.iterate = func(_ context.Context, it *Iteration) error {
			if it.Index() == 0 {
				it.PreventSoftStop()
			}
			if it.Index() == 3 {
				c.SoftStop()
			}
			return nil
		}

		require.NoError(t, c.Run(t.Context()))
		require.Equal(t, int32(4), body.iterations.Load())
	})

	t.Run("hard stop wins over prevention", func(t *testing.T) {
		body := &testBody{}
		c, _, _ := newTestController(t, body, nil)
		body.iterate = func(_ context.Context, it *Iteration) error {
			it.PreventSoftStop()
			c.SoftStop()
			if it.Index() == 1 {
				c.Stop()
			}
			return nil
		}

		require.NoError(t, c.Run(t.Context()))
		require.Equal(t, int32(2), body.iterations.Load())
	})
}

func TestController_StopBeforeRun(t *testing.T) {
	body := &testBody{}
	c, _, _ := newTestController(t, body, nil)
	c.Stop()

	require.NoError(t, c.Run(t.Context()))

	require.Equal(t, int32(1), body.setups.Load())
	require.Equal(t, int32(1), body.iterations.Load())
	require.Equal(t, int32(1), body.teardowns.Load())
	require.True(t, c.IsStartupComplete())
	require.True(t, c.IsTeardownComplete())
}

func TestController_MaxIterations(t *testing.T) {
	body := &testBody{}
	c, _, _ := newTestController(t, body, nil)

	require.NoError(t, c.Run(t.Context(), WithMaxIterations(5)))

	require.Equal(t, int32(5), body.iterations.Load())
	require.False(t, c.IsStopped())
	require.Equal(t, StateStopped, c.State())

	// Sequential runs are allowed.
	require.NoError(t, c.Run(t.Context(), WithMaxIterations(2), WithoutSetup(), WithoutTeardown()))
	require.Equal(t, int32(7), body.iterations.Load())
	require.Equal(t, int32(1), body.setups.Load())
	require.Equal(t, int32(1), body.teardowns.Load())
}

func TestController_SetupFailure(t *testing.T) {
	setupErr := errors.New("cannot connect")
	body := &testBody{setup: func(context.Context) error { return setupErr }}
	c, errs, _ := newTestController(t, body, nil)

	require.NoError(t, c.Run(t.Context()))

	require.Zero(t, body.iterations.Load())
	require.Zero(t, body.teardowns.Load())
	require.False(t, c.IsStartupComplete())
	require.False(t, c.IsTeardownComplete())
	require.Equal(t, StateStopped, c.State())

	fe, ok, err := errs.TryGet()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, PhaseSetup, fe.Phase)
	require.ErrorIs(t, fe, setupErr)
	require.True(t, errs.IsEmpty())
}

func TestController_IterationError(t *testing.T) {
	boom := errors.New("boom")
	body := &testBody{}
	body.iterate = func(_ context.Context, it *Iteration) error {
		if it.Index() == 2 {
			return boom
		}
		return nil
	}
	c, errs, _ := newTestController(t, body, nil)

	require.NoError(t, c.Run(t.Context()))

	require.Equal(t, int32(3), body.iterations.Load())
	require.Equal(t, int32(1), body.teardowns.Load())
	require.True(t, c.IsStopped())
	require.True(t, c.IsTeardownComplete())

	fe, ok, err := errs.TryGet()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, PhaseIteration, fe.Phase)
	require.Equal(t, "*errors.errorString", fe.Kind)
	require.Equal(t, "boom", fe.Message)
	require.ErrorIs(t, fe, boom)
	require.Contains(t, fe.Trace, "(*Controller).loop")
	require.Contains(t, fe.Trace, "\n  *errors.errorString boom")
	require.NotZero(t, fe.Fingerprint)
}

func TestController_IterationPanic(t *testing.T) {
	body := &testBody{}
	body.iterate = func(context.Context, *Iteration) error {
		panic("kaboom")
	}
	c, errs, _ := newTestController(t, body, nil)

	require.NoError(t, c.Run(t.Context()))

	require.Equal(t, int32(1), body.iterations.Load())
	require.Equal(t, int32(1), body.teardowns.Load())

	fe, ok, err := errs.TryGet()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, PhaseIteration, fe.Phase)
	require.Equal(t, "string", fe.Kind)
	require.Equal(t, "kaboom", fe.Message)
	require.Contains(t, fe.Trace, "TestController_IterationPanic")
	require.Contains(t, fe.Trace, "\n  string kaboom")
}

func TestController_TeardownFailure(t *testing.T) {
	iterErr := errors.New("iteration failed")
	tearErr := errors.New("teardown failed")
	body := &testBody{
		iterate:  func(context.Context, *Iteration) error { return iterErr },
		teardown: func(context.Context) error { return tearErr },
	}
	c, errs, _ := newTestController(t, body, nil)

	require.NoError(t, c.Run(t.Context()))
	require.True(t, c.IsTeardownComplete())

	items, err := sink.Drain[*FatalError](errs)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, PhaseIteration, items[0].Phase)
	require.Equal(t, PhaseTeardown, items[1].Phase)
	require.ErrorIs(t, items[1], tearErr)
}

func TestController_SinkFailureIsLogged(t *testing.T) {
	errs := sink.NewMemory[*FatalError]()
	errs.Close()

	log := loopertest.NewTestLogger(t)
	rec := &recordingMetrics{NopMetrics: metrics.NewNop()}
	body := &testBody{iterate: func(context.Context, *Iteration) error { return errors.New("lost") }}

	c, err := NewController(body, errs, nil, WithLogger(log), WithMetrics(rec))
	require.NoError(t, err)

	require.NoError(t, c.Run(t.Context()))
	require.True(t, c.IsStopped())
	require.Equal(t, int32(1), rec.sinkFailures.Load())
	require.Equal(t, int32(1), rec.fatalErrors.Load())

	var found bool
	for _, e := range log.EntriesAt("ERROR") {
		if e.Message == "failed to report fatal error to sink" {
			found = true
			require.Contains(t, e.Fields["trace"], "lost")
		}
	}
	require.True(t, found)
}

func TestController_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	body := &testBody{}
	body.iterate = func(_ context.Context, it *Iteration) error {
		if it.Index() == 1 {
			cancel()
		}
		return nil
	}
	var teardownCtxErr error
	body.teardown = func(ctx context.Context) error {
		teardownCtxErr = ctx.Err()
		return nil
	}
	c, _, _ := newTestController(t, body, nil)

	require.NoError(t, c.Run(ctx))

	require.Equal(t, int32(2), body.iterations.Load())
	require.True(t, c.IsStopped())
	require.Equal(t, int32(1), body.teardowns.Load())
	require.NoError(t, teardownCtxErr, "teardown must get a live context after cancellation")
}

func TestController_IdleTimeInterruptedSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	body := &testBody{}
	c, _, clk := newTestController(t, body, nil)
	body.iterate = func(context.Context, *Iteration) error {
		clk.Advance(time.Millisecond)
		return nil
	}
	sleeps := 0
	clk.onSleep = func(_ context.Context, d time.Duration) time.Duration {
		sleeps++
		if sleeps == 2 {
			cancel()
			return 4 * time.Millisecond
		}
		return d
	}

	require.NoError(t, c.Run(ctx))

	require.Equal(t, int32(2), body.iterations.Load())
	require.True(t, c.IsStopped())
	require.Equal(t, []time.Duration{9 * time.Millisecond, 9 * time.Millisecond}, clk.Slept())
	require.Equal(t, 13*time.Millisecond, c.IdleTime())
}

func TestController_AlreadyRunning(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	var once sync.Once
	body := &testBody{}
	body.iterate = func(context.Context, *Iteration) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	}
	c, _, _ := newTestController(t, body, nil)

	done := make(chan error, 1)
	go func() { done <- c.Run(t.Context(), WithMaxIterations(1)) }()

	<-entered
	require.ErrorIs(t, c.Run(t.Context()), ErrAlreadyRunning)

	close(release)
	require.NoError(t, <-done)
}

func TestController_HardStop(t *testing.T) {
	t.Run("waits for teardown and drains queues", func(t *testing.T) {
		pending := sink.NewMemory[string]()
		require.NoError(t, pending.Put("a"))
		require.NoError(t, pending.Put("b"))

		body := &testBody{teardown: func(context.Context) error { return errors.New("flush failed") }}
		c, _, _ := newTestController(t, body, nil, WithDrainer("pending", pending))

		done := make(chan error, 1)
		go func() { done <- c.Run(t.Context()) }()

		report := c.HardStop(0)
		require.NoError(t, <-done)

		require.True(t, c.IsTeardownComplete())
		require.Len(t, report.FatalErrors, 1)
		require.Equal(t, PhaseTeardown, report.FatalErrors[0].Phase)
		require.Equal(t, []any{"a", "b"}, report.Queues["pending"])
		require.True(t, pending.IsEmpty())
	})

	t.Run("gives up after timeout", func(t *testing.T) {
		log := loopertest.NewTestLogger(t)
		c, _, _ := newTestController(t, nil, nil, WithLogger(log))

		require.NoError(t, c.Run(t.Context(), WithMaxIterations(1), WithoutTeardown()))

		report := c.HardStop(50 * time.Millisecond)
		require.False(t, c.IsTeardownComplete())
		require.Empty(t, report.FatalErrors)
		require.Len(t, log.EntriesAt("WARN"), 1)
	})
}

func TestController_StatesAndHooks(t *testing.T) {
	type transition struct{ from, to State }

	var mu sync.Mutex
	var transitions []transition
	fatal := make(chan *FatalError, 1)

	h := &Hooks{
		OnStateChanged: func(_ context.Context, from, to State) error {
			mu.Lock()
			transitions = append(transitions, transition{from, to})
			mu.Unlock()
			return nil
		},
		OnFatalError: func(_ context.Context, fe *FatalError) error {
			fatal <- fe
			return nil
		},
	}

	body := &testBody{iterate: func(context.Context, *Iteration) error { return errors.New("boom") }}
	c, _, _ := newTestController(t, body, nil, WithHooks(h))

	require.NoError(t, c.Run(t.Context()))
	require.Equal(t, StateStopped, c.State())

	select {
	case fe := <-fatal:
		require.Equal(t, "boom", fe.Message)
	case <-time.After(time.Second):
		t.Fatal("OnFatalError not called")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) == 4
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []transition{
		{StateCreated, StateSettingUp},
		{StateSettingUp, StateLooping},
		{StateLooping, StateTearingDown},
		{StateTearingDown, StateStopped},
	}, transitions)
}

// recordingMetrics counts the calls the controller tests care about.
type recordingMetrics struct {
	*metrics.NopMetrics

	fatalErrors  atomic.Int32
	sinkFailures atomic.Int32
}

func (r *recordingMetrics) RecordFatalError(string, Phase) {
	r.fatalErrors.Add(1)
}

func (r *recordingMetrics) RecordSinkFailure(string) {
	r.sinkFailures.Add(1)
}
