package heartbeat

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	loopertest "github.com/arloliu/looper/testing"
)

func TestPublisher_Start(t *testing.T) {
	t.Run("starts successfully and publishes heartbeat", func(t *testing.T) {
		ctx := t.Context()

		_, nc := loopertest.StartEmbeddedNATS(t)
		kv := loopertest.CreateJetStreamKV(t, nc, "test-hb-start-1")

		publisher := New(kv, "worker-1", 100*time.Millisecond)
		publisher.SetLogger(loopertest.NewTestLogger(t))

		require.NoError(t, publisher.Start(ctx))
		require.True(t, publisher.IsStarted())

		entry, err := kv.Get(ctx, "worker-1.heartbeat")
		require.NoError(t, err)
		require.NotNil(t, entry)

		require.NoError(t, publisher.Stop())
	})

	t.Run("returns error if namespace not set", func(t *testing.T) {
		_, nc := loopertest.StartEmbeddedNATS(t)
		kv := loopertest.CreateJetStreamKV(t, nc, "test-hb-start-2")

		publisher := New(kv, "", 2*time.Second)

		require.ErrorIs(t, publisher.Start(t.Context()), ErrNoNamespace)
		require.False(t, publisher.IsStarted())
	})

	t.Run("returns error if already started", func(t *testing.T) {
		ctx := t.Context()

		_, nc := loopertest.StartEmbeddedNATS(t)
		kv := loopertest.CreateJetStreamKV(t, nc, "test-hb-start-3")

		publisher := New(kv, "worker-1", 2*time.Second)
		require.NoError(t, publisher.Start(ctx))
		require.ErrorIs(t, publisher.Start(ctx), ErrAlreadyStarted)

		require.NoError(t, publisher.Stop())
	})
}

func TestPublisher_Stop(t *testing.T) {
	t.Run("stops and deletes the key", func(t *testing.T) {
		ctx := t.Context()

		_, nc := loopertest.StartEmbeddedNATS(t)
		kv := loopertest.CreateJetStreamKV(t, nc, "test-hb-stop-1")

		publisher := New(kv, "worker-1", 2*time.Second)
		require.NoError(t, publisher.Start(ctx))

		require.NoError(t, publisher.Stop())
		require.False(t, publisher.IsStarted())

		_, ok, err := Last(ctx, kv, "worker-1")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("returns error if not started", func(t *testing.T) {
		_, nc := loopertest.StartEmbeddedNATS(t)
		kv := loopertest.CreateJetStreamKV(t, nc, "test-hb-stop-2")

		publisher := New(kv, "worker-1", 2*time.Second)
		require.ErrorIs(t, publisher.Stop(), ErrNotStarted)
	})
}

func TestPublisher_PeriodicHeartbeats(t *testing.T) {
	ctx := t.Context()

	_, nc := loopertest.StartEmbeddedNATS(t)
	kv := loopertest.CreateJetStreamKV(t, nc, "test-hb-periodic")

	publisher := New(kv, "worker-1", 100*time.Millisecond)
	require.NoError(t, publisher.Start(ctx))
	defer func() { _ = publisher.Stop() }()

	first, ok, err := Last(ctx, kv, "worker-1")
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		next, ok, err := Last(ctx, kv, "worker-1")
		return err == nil && ok && next.After(first)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestPublisher_MultipleWorkers(t *testing.T) {
	ctx := t.Context()

	_, nc := loopertest.StartEmbeddedNATS(t)
	kv := loopertest.CreateJetStreamKV(t, nc, "test-hb-multiple")

	publishers := make([]*Publisher, 3)
	for i := range publishers {
		publishers[i] = New(kv, fmt.Sprintf("worker-%d", i+1), 100*time.Millisecond)
		require.NoError(t, publishers[i].Start(ctx))
	}

	for i := range publishers {
		_, ok, err := Last(ctx, kv, fmt.Sprintf("worker-%d", i+1))
		require.NoError(t, err)
		require.True(t, ok)
	}

	for _, publisher := range publishers {
		require.NoError(t, publisher.Stop())
	}
}

func TestLast_Malformed(t *testing.T) {
	ctx := t.Context()

	_, nc := loopertest.StartEmbeddedNATS(t)
	kv := loopertest.CreateJetStreamKV(t, nc, "test-hb-malformed")

	_, err := kv.Put(ctx, Key("worker-1"), []byte("yesterday"))
	require.NoError(t, err)

	_, _, err = Last(ctx, kv, "worker-1")
	require.Error(t, err)
}
