package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"planhub/internal/platform/config"
)

// Message is one record delivered to a handler.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	// Attempt counts deliveries of this record to the handler, starting at 1.
	Attempt int
}

// Handler processes one message. Returning an error triggers redelivery.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }

// Consumer reads one or more topics within a consumer group and commits
// offsets only after the handler succeeds, giving at-least-once delivery.
// A failing message is retried in place with exponential backoff; by default
// retries are unbounded, so a poison message blocks its partition rather than
// being dropped.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *slog.Logger

	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxAttempts    int // 0 = unbounded
	onRetry        func(topic string)
	onDead         func(ctx context.Context, msg *Message, err error)
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithMaxAttempts bounds redelivery. After n failed attempts the message is
// handed to the dead handler (if any) and committed.
func WithMaxAttempts(n int) Option {
	return func(c *Consumer) { c.maxAttempts = n }
}

// WithBackoff overrides the retry backoff bounds.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Consumer) {
		c.initialBackoff = initial
		c.maxBackoff = max
	}
}

// WithRetryObserver registers a callback invoked on every failed attempt.
func WithRetryObserver(fn func(topic string)) Option {
	return func(c *Consumer) { c.onRetry = fn }
}

// WithDeadHandler registers a callback for messages that exhausted their
// attempts. Only meaningful together with WithMaxAttempts.
func WithDeadHandler(fn func(ctx context.Context, msg *Message, err error)) Option {
	return func(c *Consumer) { c.onDead = fn }
}

// New connects a consumer group member subscribed to the given topics.
func New(cfg config.KafkaConfig, topics []string, handler Handler, logger *slog.Logger, opts ...Option) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	c := &Consumer{
		client:         client,
		handler:        handler,
		logger:         logger,
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run polls until the context is cancelled. It returns ctx.Err() on shutdown.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.Close()
	for {
		fetches := c.client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var failed bool
		fetches.EachRecord(func(record *kgo.Record) {
			if failed {
				return // re-polled after the failing record is resolved
			}
			if err := c.process(ctx, record); err != nil {
				failed = true
				return
			}
			if err := c.client.CommitRecords(ctx, record); err != nil {
				c.logger.Error("commit failed",
					"topic", record.Topic,
					"offset", record.Offset,
					"error", err,
				)
			}
		})
	}
}

// process retries the handler in place until it succeeds, the attempts are
// exhausted, or the context ends. Handlers must be idempotent: a crash between
// handling and commit redelivers the record.
func (c *Consumer) process(ctx context.Context, record *kgo.Record) error {
	backoff := c.initialBackoff
	for attempt := 1; ; attempt++ {
		msg := &Message{
			Topic:     record.Topic,
			Partition: record.Partition,
			Offset:    record.Offset,
			Key:       record.Key,
			Value:     record.Value,
			Attempt:   attempt,
		}
		err := c.handler.Handle(ctx, msg)
		if err == nil {
			return nil
		}
		if c.onRetry != nil {
			c.onRetry(record.Topic)
		}
		c.logger.Warn("message handling failed, will retry",
			"topic", record.Topic,
			"partition", record.Partition,
			"offset", record.Offset,
			"attempt", attempt,
			"error", err,
		)

		if c.maxAttempts > 0 && attempt >= c.maxAttempts {
			if c.onDead != nil {
				c.onDead(ctx, msg, err)
			}
			c.logger.Error("message exhausted attempts, committing past it",
				"topic", record.Topic,
				"offset", record.Offset,
				"attempts", attempt,
			)
			if err := c.client.CommitRecords(ctx, record); err != nil {
				return err
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}
