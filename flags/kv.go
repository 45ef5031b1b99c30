package flags

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/looper/internal/kvutil"
	"github.com/arloliu/looper/types"
)

// Flag key suffixes within a worker's KV namespace.
const (
	KeyStop             = "stop"
	KeySoftStop         = "soft-stop"
	KeyStartupComplete  = "startup-complete"
	KeyTeardownComplete = "teardown-complete"
)

// KV is a set-once flag stored in a NATS KV bucket so it is visible across
// processes. Once observed set, the value is cached and the bucket is no longer
// queried.
type KV struct {
	kv      jetstream.KeyValue
	key     string
	timeout time.Duration

	cached atomic.Bool

	mu      sync.Mutex
	lastErr error
}

var _ types.Flag = (*KV)(nil)

// NewKV creates a flag stored under key.
func NewKV(kv jetstream.KeyValue, key string, timeout time.Duration) *KV {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &KV{kv: kv, key: key, timeout: timeout}
}

// Key returns the KV key backing the flag.
func (f *KV) Key() string { return f.key }

// Set marks the flag locally and persists it. A persistence failure is kept
// for Err; the local view stays set.
func (f *KV) Set() {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	if err := f.SetContext(ctx); err != nil {
		f.mu.Lock()
		f.lastErr = err
		f.mu.Unlock()
	}
}

// SetContext marks the flag locally and persists it.
func (f *KV) SetContext(ctx context.Context) error {
	f.cached.Store(true)

	if _, err := f.kv.Put(ctx, f.key, []byte("1")); err != nil {
		return fmt.Errorf("%w %s: %w", types.ErrFlagWriteFailed, f.key, err)
	}

	return nil
}

// IsSet reports whether the flag was set by any process.
// Lookup failures read as not set.
func (f *KV) IsSet() bool {
	if f.cached.Load() {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	if _, err := f.kv.Get(ctx, f.key); err != nil {
		if !errors.Is(err, jetstream.ErrKeyNotFound) {
			f.mu.Lock()
			f.lastErr = err
			f.mu.Unlock()
		}

		return false
	}
	f.cached.Store(true)

	return true
}

// Err returns the last persistence or lookup failure, if any.
func (f *KV) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.lastErr
}

// KVConfig locates the flags of one worker instance.
type KVConfig struct {
	// Bucket is the KV bucket shared by all workers.
	Bucket string

	// Namespace prefixes every key, usually the worker instance ID.
	Namespace string

	// OperationTimeout bounds each KV call.
	OperationTimeout time.Duration
}

// OpenBucket creates or opens the flag bucket.
func OpenBucket(ctx context.Context, js jetstream.JetStream, bucket string) (jetstream.KeyValue, error) {
	return kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "looper worker flags",
		History:     1,
	}, 0)
}

// NewKVFlags creates or opens the bucket and returns the four flags of one
// worker instance.
func NewKVFlags(ctx context.Context, js jetstream.JetStream, cfg KVConfig) (types.Flags, error) {
	kv, err := OpenBucket(ctx, js, cfg.Bucket)
	if err != nil {
		return types.Flags{}, err
	}

	return FromBucket(kv, cfg.Namespace, cfg.OperationTimeout), nil
}

// FromBucket returns the four flags of one worker instance stored in kv.
func FromBucket(kv jetstream.KeyValue, namespace string, timeout time.Duration) types.Flags {
	key := func(name string) string { return namespace + "." + name }

	return types.Flags{
		Stop:             NewKV(kv, key(KeyStop), timeout),
		SoftStop:         NewKV(kv, key(KeySoftStop), timeout),
		StartupComplete:  NewKV(kv, key(KeyStartupComplete), timeout),
		TeardownComplete: NewKV(kv, key(KeyTeardownComplete), timeout),
	}
}

// PurgeKVFlags removes the keys of one worker instance.
func PurgeKVFlags(ctx context.Context, f types.Flags) error {
	var errs []error
	for _, flag := range []types.Flag{f.Stop, f.SoftStop, f.StartupComplete, f.TeardownComplete} {
		kvFlag, ok := flag.(*KV)
		if !ok {
			continue
		}
		if err := kvFlag.kv.Purge(ctx, kvFlag.key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
