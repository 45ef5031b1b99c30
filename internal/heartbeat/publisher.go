package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/looper/internal/logger"
	"github.com/arloliu/looper/types"
)

// KeySuffix is appended to a worker namespace to form its heartbeat key.
const KeySuffix = "heartbeat"

// Common errors for heartbeat operations.
var (
	ErrNotStarted     = errors.New("publisher not started")
	ErrAlreadyStarted = errors.New("publisher already started")
	ErrNoNamespace    = errors.New("heartbeat namespace not set")
)

// Key returns the heartbeat key of a worker namespace.
func Key(namespace string) string {
	return namespace + "." + KeySuffix
}

// Publisher publishes periodic heartbeats to a NATS KV bucket.
type Publisher struct {
	kv        jetstream.KeyValue
	namespace string
	interval  time.Duration
	logger    types.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	ticker  *time.Ticker
}

// New creates a heartbeat publisher for one worker namespace.
//
// Parameters:
//   - kv: KV bucket holding the worker's flags
//   - namespace: Worker instance ID
//   - interval: Heartbeat interval
//
// Returns:
//   - *Publisher: New heartbeat publisher instance
func New(kv jetstream.KeyValue, namespace string, interval time.Duration) *Publisher {
	return &Publisher{
		kv:        kv,
		namespace: namespace,
		interval:  interval,
		logger:    logger.NewNop(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// SetLogger sets the logger publish failures are reported to. Must be called before Start.
func (p *Publisher) SetLogger(l types.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger = l
}

// Start publishes the first heartbeat immediately, then one per interval until Stop.
//
// Returns:
//   - error: ErrAlreadyStarted if already running, ErrNoNamespace if namespace is empty,
//     or the failure of the first publish
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	if p.namespace == "" {
		return ErrNoNamespace
	}

	if err := p.publish(ctx); err != nil {
		return fmt.Errorf("failed to publish initial heartbeat: %w", err)
	}

	p.started = true
	p.ticker = time.NewTicker(p.interval)
	go p.publishLoop()

	return nil
}

// Stop stops publishing and deletes the heartbeat key so the parent sees the
// child gone without waiting for the heartbeat to age.
//
// Returns:
//   - error: ErrNotStarted if not running, or the delete failure
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}

	p.ticker.Stop()
	close(p.stopCh)
	p.started = false
	p.mu.Unlock()

	<-p.doneCh

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := p.kv.Delete(ctx, Key(p.namespace)); err != nil {
		return fmt.Errorf("stopped but failed to delete heartbeat: %w", err)
	}

	return nil
}

func (p *Publisher) publishLoop() {
	defer close(p.doneCh)

	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), p.interval)
			err := p.publish(ctx)
			cancel()

			if err != nil {
				p.mu.Lock()
				l := p.logger
				p.mu.Unlock()
				l.Warn("failed to publish heartbeat", "namespace", p.namespace, "error", err)
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context) error {
	value := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	if _, err := p.kv.Put(ctx, Key(p.namespace), value); err != nil {
		return fmt.Errorf("failed to publish heartbeat for %s: %w", p.namespace, err)
	}

	return nil
}

// IsStarted returns whether the publisher is currently running.
func (p *Publisher) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.started
}

// Last returns the time of the most recent heartbeat of namespace.
// ok is false when no heartbeat is stored.
func Last(ctx context.Context, kv jetstream.KeyValue, namespace string) (last time.Time, ok bool, err error) {
	entry, err := kv.Get(ctx, Key(namespace))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read heartbeat for %s: %w", namespace, err)
	}

	last, err = time.Parse(time.RFC3339Nano, string(entry.Value()))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed heartbeat for %s: %w", namespace, err)
	}

	return last, true, nil
}
