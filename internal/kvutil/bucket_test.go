package kvutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	loopertest "github.com/arloliu/looper/testing"
)

func TestEnsureKVBucketWithRetry(t *testing.T) {
	_, nc := loopertest.StartEmbeddedNATS(t)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	t.Run("successful creation on first try", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
		defer cancel()

		kv, err := EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{Bucket: "first-try", History: 1}, 3)
		require.NoError(t, err)
		require.NotNil(t, kv)
	})

	t.Run("bucket exists - should open it", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
		defer cancel()

		cfg := jetstream.KeyValueConfig{Bucket: "existing", History: 1}
		first, err := EnsureKVBucketWithRetry(ctx, js, cfg, 3)
		require.NoError(t, err)

		_, err = first.Put(ctx, "stop", []byte("1"))
		require.NoError(t, err)

		second, err := EnsureKVBucketWithRetry(ctx, js, cfg, 0)
		require.NoError(t, err)

		entry, err := second.Get(ctx, "stop")
		require.NoError(t, err)
		require.Equal(t, []byte("1"), entry.Value())
	})

	t.Run("concurrent creates - 10 workers", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
		defer cancel()

		const numWorkers = 10
		var wg sync.WaitGroup
		errs := make([]error, numWorkers)

		for i := range numWorkers {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				_, errs[idx] = EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{Bucket: "concurrent", History: 1}, 5)
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			require.NoError(t, err, "worker %d", i)
		}
	})

	t.Run("cancelled context - should fail gracefully", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{Bucket: "cancelled"}, 3)
		require.Error(t, err)
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		_, err := EnsureKVBucketWithRetry(t.Context(), js, jetstream.KeyValueConfig{Bucket: "bad name"}, 3)
		require.ErrorIs(t, err, jetstream.ErrInvalidBucketName)
		require.NotContains(t, err.Error(), "attempts")
	})
}

func TestEnsureStreamWithRetry(t *testing.T) {
	_, nc := loopertest.StartEmbeddedNATS(t)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	cfg := jetstream.StreamConfig{
		Name:      "LOOPER_TEST",
		Subjects:  []string{"looper.test.>"},
		Retention: jetstream.WorkQueuePolicy,
	}

	t.Run("creates then reopens", func(t *testing.T) {
		first, err := EnsureStreamWithRetry(ctx, js, cfg, 3)
		require.NoError(t, err)

		second, err := EnsureStreamWithRetry(ctx, js, cfg, 3)
		require.NoError(t, err)
		require.Equal(t, first.CachedInfo().Config.Name, second.CachedInfo().Config.Name)
	})
}
