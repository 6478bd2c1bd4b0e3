// Package kafka publishes JSON events with a type header and consumes them
// through a MessageHandler with at-least-once commits.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

const fetchBackoff = time.Second

// ErrSkip tells the consumer to commit a message it could not process
// (e.g. undecodable payloads) instead of redelivering it forever.
var ErrSkip = errors.New("kafka: skip message")

// Message is the consumer-side view of a record.
type Message struct {
	Key       []byte
	Value     []byte
	Type      string
	Partition int
	Offset    int64
	Time      time.Time
}

// MessageHandler is a callback invoked for each Kafka message.
type MessageHandler func(ctx context.Context, msg Message) error

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler MessageHandler
	retry   resilience.RetryConfig
}

// NewConsumer creates a Consumer for the given topic and handler.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
	})

	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
		retry:   resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second},
	}
}

// Start consumes until ctx is cancelled. A failing handler is retried with
// backoff; a message is committed once the handler succeeds, returns ErrSkip
// or exhausts its retries, since committing a later offset would commit it
// anyway.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			select {
			case <-time.After(fetchBackoff):
			case <-ctx.Done():
			}
			continue
		}

		m := toMessage(msg)
		err = resilience.Retry(ctx, "kafka.handle", c.retry, func(ctx context.Context) error {
			err := c.handler(ctx, m)
			if errors.Is(err, ErrSkip) {
				return resilience.Permanent(err)
			}
			return err
		})
		switch {
		case ctx.Err() != nil:
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return nil
		case err != nil && !errors.Is(err, ErrSkip):
			c.logger.Error("dropping message after failed retries",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"type", m.Type,
				"error", err,
			)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func toMessage(msg kafka.Message) Message {
	m := Message{
		Key:       msg.Key,
		Value:     msg.Value,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Time:      msg.Time,
	}
	for _, h := range msg.Headers {
		if h.Key == HeaderEventType {
			m.Type = string(h.Value)
		}
	}
	return m
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
