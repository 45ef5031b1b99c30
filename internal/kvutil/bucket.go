// Package kvutil creates or opens the JetStream resources looper workers share:
// the flag KV bucket and the per-worker fatal error streams.
package kvutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/looper/internal/natsutil"
)

// DefaultMaxRetries is used when a caller passes maxRetries <= 0.
const DefaultMaxRetries = 3

// EnsureKVBucketWithRetry creates or opens a KV bucket with retry logic.
//
// A parent and its child process may race to create the same bucket; losing
// the race is not an error, the existing bucket is opened instead. Only
// connectivity failures are retried.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - config: KV bucket configuration
//   - maxRetries: Maximum number of attempts (default: 3)
//
// Returns:
//   - jetstream.KeyValue: The KV bucket instance
//   - error: Any error that occurred after all retries
//
// Example:
//
//	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
//	    Bucket:  "looper-flags",
//	    History: 1,
//	}, 3)
func EnsureKVBucketWithRetry(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.KeyValueConfig,
	maxRetries int,
) (jetstream.KeyValue, error) {
	kv, err := withRetry(ctx, maxRetries,
		func() (jetstream.KeyValue, error) { return js.CreateKeyValue(ctx, config) },
		func() (jetstream.KeyValue, error) { return js.KeyValue(ctx, config.Bucket) },
		jetstream.ErrBucketExists,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create/open KV bucket %s: %w", config.Bucket, err)
	}

	return kv, nil
}

// EnsureStreamWithRetry creates or opens a stream with the same retry policy as
// EnsureKVBucketWithRetry.
//
// An existing stream is opened as-is; its configuration is not updated.
func EnsureStreamWithRetry(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.StreamConfig,
	maxRetries int,
) (jetstream.Stream, error) {
	stream, err := withRetry(ctx, maxRetries,
		func() (jetstream.Stream, error) { return js.CreateStream(ctx, config) },
		func() (jetstream.Stream, error) { return js.Stream(ctx, config.Name) },
		jetstream.ErrStreamNameAlreadyInUse,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create/open stream %s: %w", config.Name, err)
	}

	return stream, nil
}

func withRetry[T any](
	ctx context.Context,
	maxRetries int,
	create func() (T, error),
	open func() (T, error),
	existsErr error,
) (T, error) {
	var zero T
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		res, err := create()
		if err == nil {
			return res, nil
		}

		if errors.Is(err, existsErr) {
			res, err = open()
			if err == nil {
				return res, nil
			}
			lastErr = fmt.Errorf("exists but failed to open: %w", err)
		} else {
			lastErr = err
			if !natsutil.IsConnectivityError(err) {
				return zero, err
			}
		}

		if ctx.Err() != nil {
			return zero, fmt.Errorf("context cancelled: %w", ctx.Err())
		}

		// Exponential backoff: 10ms, 20ms, 40ms...
		if attempt < maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * 10 * time.Millisecond //nolint:gosec // attempt is bounded by maxRetries
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return zero, fmt.Errorf("after %d attempts: %w", maxRetries, lastErr)
}
