package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/looper/internal/kvutil"
	"github.com/arloliu/looper/internal/logger"
	"github.com/arloliu/looper/types"
)

// JetStreamConfig locates a JetStream sink.
//
// Several sinks share one work-queue stream; each owns the subject
// "<Stream>.<Channel>.<ID>" and a durable consumer filtered on it.
type JetStreamConfig struct {
	// Stream is the stream name and the subject prefix, e.g. "LOOPER".
	Stream string

	// Channel separates unrelated queues of the same worker, e.g. "errors".
	Channel string

	// ID scopes the sink to one worker instance.
	ID string

	// OperationTimeout bounds every JetStream call made by TryGet and IsEmpty.
	OperationTimeout time.Duration

	// Logger receives warnings about calls that cannot report an error.
	// Nil discards them.
	Logger types.Logger
}

func (c JetStreamConfig) subject() string {
	return c.Stream + "." + c.Channel + "." + c.ID
}

func (c JetStreamConfig) durable() string {
	return c.Channel + "-" + c.ID
}

// JetStream is a cross-process queue backed by a NATS JetStream work-queue
// stream. Items are JSON encoded.
type JetStream[T any] struct {
	js       jetstream.JetStream
	stream   jetstream.Stream
	consumer jetstream.Consumer
	cfg      JetStreamConfig
	logger   types.Logger
}

var (
	_ types.ErrorSink            = (*JetStream[*types.FatalError])(nil)
	_ types.Drainer              = (*JetStream[any])(nil)
	_ types.EventuallyConsistent = (*JetStream[any])(nil)
)

// NewJetStream creates or opens the stream and the sink's durable consumer.
//
// Parameters:
//   - ctx: Context for stream and consumer creation
//   - js: JetStream context
//   - cfg: Sink location; OperationTimeout defaults to 5s
//
// Returns:
//   - *JetStream[T]: Ready to use sink
//   - error: Stream or consumer creation failure
func NewJetStream[T any](ctx context.Context, js jetstream.JetStream, cfg JetStreamConfig) (*JetStream[T], error) {
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}

	stream, err := kvutil.EnsureStreamWithRetry(ctx, js, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Stream + ".>"},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	}, 0)
	if err != nil {
		return nil, err
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       cfg.durable(),
		FilterSubject: cfg.subject(),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer %s: %w", cfg.durable(), err)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &JetStream[T]{js: js, stream: stream, consumer: consumer, cfg: cfg, logger: log}, nil
}

// Subject returns the subject items are published on.
func (s *JetStream[T]) Subject() string {
	return s.cfg.subject()
}

// Put publishes item asynchronously. Call Flush before the process exits.
func (s *JetStream[T]) Put(item T) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrEncodeFailed, err)
	}

	if _, err := s.js.PublishAsync(s.cfg.subject(), data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", s.cfg.subject(), err)
	}

	return nil
}

// TryGet fetches and acknowledges the oldest stored item.
//
// The item is double-acked, so once TryGet returns it the server will not
// redeliver it.
func (s *JetStream[T]) TryGet() (T, bool, error) {
	var zero T

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OperationTimeout)
	defer cancel()

	batch, err := s.consumer.FetchNoWait(1)
	if err != nil {
		return zero, false, fmt.Errorf("failed to fetch from %s: %w", s.cfg.subject(), err)
	}

	for msg := range batch.Messages() {
		var item T
		if err := json.Unmarshal(msg.Data(), &item); err != nil {
			// Poison message: drop it so the queue keeps moving.
			_ = msg.Term()
			return zero, false, fmt.Errorf("%w: %w", types.ErrDecodeFailed, err)
		}
		if err := msg.DoubleAck(ctx); err != nil {
			return zero, false, fmt.Errorf("failed to ack item on %s: %w", s.cfg.subject(), err)
		}

		return item, true, nil
	}

	if err := batch.Error(); err != nil && !errors.Is(err, jetstream.ErrNoMessages) {
		return zero, false, fmt.Errorf("failed to fetch from %s: %w", s.cfg.subject(), err)
	}

	return zero, false, nil
}

// IsEmpty reports whether the consumer has nothing pending.
//
// A consumer that cannot be reached is reported as empty and a warning is
// logged, so an empty answer on a broken link does not prove that nothing was
// written. Use TryGet or SafeGet when the error matters.
func (s *JetStream[T]) IsEmpty() bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OperationTimeout)
	defer cancel()

	info, err := s.consumer.Info(ctx)
	if err != nil {
		s.logger.Warn("sink state unknown, reporting empty", "subject", s.cfg.subject(), "error", err)
		return true
	}

	return info.NumPending == 0 && info.NumAckPending == 0
}

// EventuallyConsistent marks the sink as lagging behind cross-process writes.
func (s *JetStream[T]) EventuallyConsistent() {}

// DrainItems fetches items until none is immediately available.
func (s *JetStream[T]) DrainItems() []any {
	var out []any
	for {
		item, ok, err := s.TryGet()
		if err != nil || !ok {
			return out
		}
		out = append(out, item)
	}
}

// Flush waits until every asynchronous Put has been acknowledged by the server.
func (s *JetStream[T]) Flush(ctx context.Context) error {
	select {
	case <-s.js.PublishAsyncComplete():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush of %s interrupted: %w", s.cfg.subject(), ctx.Err())
	}
}

// Delete removes the sink's consumer and purges its subject.
func (s *JetStream[T]) Delete(ctx context.Context) error {
	if err := s.stream.DeleteConsumer(ctx, s.cfg.durable()); err != nil && !errors.Is(err, jetstream.ErrConsumerNotFound) {
		return fmt.Errorf("failed to delete consumer %s: %w", s.cfg.durable(), err)
	}
	if err := s.stream.Purge(ctx, jetstream.WithPurgeSubject(s.cfg.subject())); err != nil {
		return fmt.Errorf("failed to purge %s: %w", s.cfg.subject(), err)
	}

	return nil
}
