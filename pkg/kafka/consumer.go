// Package kafka carries document events between the ingestion service and
// the indexer over segmentio/kafka-go. Values are JSON; keys are document
// IDs so every event for one document lands on the same partition, in order.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/resilience"
)

// handlerAttempts bounds how often one message is handed to the handler
// before it is skipped.
const handlerAttempts = 5

const finalCommitTimeout = 5 * time.Second

// MessageHandler is called once per message. A nil return lets the message
// be committed; an error makes the consumer retry it with backoff.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  messageReader
	logger  *slog.Logger
	handler MessageHandler
	retry   resilience.RetryConfig

	checkpoint      func() error
	checkpointEvery time.Duration
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithCheckpoint holds back offset commits until checkpoint has made the
// handled messages durable. Pending messages are checkpointed and committed
// together every interval and once more on shutdown; a failed checkpoint
// leaves them uncommitted so they are redelivered after a crash.
func WithCheckpoint(interval time.Duration, checkpoint func() error) ConsumerOption {
	return func(c *Consumer) {
		if interval > 0 && checkpoint != nil {
			c.checkpoint = checkpoint
			c.checkpointEvery = interval
		}
	}
}

// NewConsumer creates a group consumer for topic. A new group starts from
// the oldest retained event so an empty index can be rebuilt from the log.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(r, topic, handler, opts...)
}

func newConsumer(r messageReader, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
		retry: resilience.RetryConfig{
			MaxAttempts:  handlerAttempts,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start fetches and handles messages until ctx is cancelled, then commits
// what it can and closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started", "checkpoint_every", c.checkpointEvery)
	defer c.reader.Close()
	var pending []kafka.Message
	lastCheckpoint := time.Now()
	for {
		msg, err := c.fetch(ctx, lastCheckpoint)
		switch {
		case ctx.Err() != nil:
			c.logger.Info("consumer stopping", "reason", ctx.Err(), "pending", len(pending))
			c.finish(pending)
			return nil
		case errors.Is(err, context.DeadlineExceeded):
		case err != nil:
			c.logger.Error("failed to fetch message", "error", err)
		default:
			if !c.handle(ctx, msg) {
				c.logger.Info("consumer stopping with message uncommitted", "offset", msg.Offset)
				c.finish(pending)
				return nil
			}
			pending = append(pending, msg)
		}
		if c.checkpoint == nil || time.Since(lastCheckpoint) >= c.checkpointEvery {
			pending = c.commit(ctx, pending)
			lastCheckpoint = time.Now()
		}
	}
}

// fetch waits for the next message, giving up at the next checkpoint so
// pending offsets do not wait on new traffic.
func (c *Consumer) fetch(ctx context.Context, lastCheckpoint time.Time) (kafka.Message, error) {
	if c.checkpoint == nil {
		return c.reader.FetchMessage(ctx)
	}
	fetchCtx, cancel := context.WithDeadline(ctx, lastCheckpoint.Add(c.checkpointEvery))
	defer cancel()
	return c.reader.FetchMessage(fetchCtx)
}

// handle runs the handler with retries. It returns false only when ctx was
// cancelled first; a message that keeps failing is logged and skipped.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	c.logger.Debug("message received",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"value_size", len(msg.Value),
	)
	err := resilience.Retry(ctx, "handle "+string(msg.Key), c.retry, func() error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
	if err == nil {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	c.logger.Error("skipping message after repeated failures",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"error", err,
	)
	return true
}

// commit checkpoints and then commits msgs, returning the messages still
// uncommitted.
func (c *Consumer) commit(ctx context.Context, msgs []kafka.Message) []kafka.Message {
	if len(msgs) == 0 {
		return msgs
	}
	if c.checkpoint != nil {
		if err := c.checkpoint(); err != nil {
			c.logger.Error("checkpoint failed, offsets stay uncommitted",
				"pending", len(msgs),
				"error", err,
			)
			return msgs
		}
	}
	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		if ctx.Err() == nil {
			c.logger.Error("failed to commit messages",
				"count", len(msgs),
				"last_offset", msgs[len(msgs)-1].Offset,
				"error", err,
			)
		}
		return msgs
	}
	return msgs[:0]
}

func (c *Consumer) finish(pending []kafka.Message) {
	if len(pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), finalCommitTimeout)
	defer cancel()
	if left := c.commit(ctx, pending); len(left) > 0 {
		c.logger.Warn("messages left uncommitted, they will be redelivered", "count", len(left))
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
