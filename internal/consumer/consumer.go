// Package consumer feeds trade batches from Kafka into the deduplicator.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tickfold/internal/models"
	"github.com/navid-fn/tickfold/internal/wire"
)

const DefaultPollTimeout = time.Second

// MessageReader is the subset of *kafka.Consumer the loop needs.
type MessageReader interface {
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	CommitMessage(m *kafka.Message) ([]kafka.TopicPartition, error)
	Close() error
}

// Ingester accepts a batch for deduplication.
type Ingester interface {
	Ingest(ctx context.Context, b models.Batch) error
}

type Config struct {
	Broker      string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
}

// NewKafkaReader creates a subscribed consumer with manual commits.
func NewKafkaReader(cfg Config) (*kafka.Consumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Broker,
		"group.id":           cfg.GroupID,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}
	if err := c.SubscribeTopics([]string{cfg.Topic}, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", cfg.Topic, err)
	}
	return c, nil
}

// Consumer reads messages one at a time so that a key's batches reach the
// deduplicator in partition order. An offset is committed once its batch
// is accepted. Malformed messages are logged and committed.
type Consumer struct {
	reader      MessageReader
	ingester    Ingester
	pollTimeout time.Duration
	logger      logrus.FieldLogger
}

func NewConsumer(reader MessageReader, ingester Ingester, pollTimeout time.Duration, logger logrus.FieldLogger) *Consumer {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	return &Consumer{
		reader:      reader,
		ingester:    ingester,
		pollTimeout: pollTimeout,
		logger:      logger.WithField("component", "consumer"),
	}
}

// Start runs the read loop until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting Kafka consumer")
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.WithError(err).Error("Error closing reader")
			return
		}
		c.logger.Info("Kafka consumer shut down cleanly")
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		msg, err := c.reader.ReadMessage(c.pollTimeout)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			c.logger.WithError(err).Error("Error fetching message")
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// handle decodes and ingests one message. It returns an error only when the
// batch could not be handed to the ingester, leaving the offset uncommitted.
func (c *Consumer) handle(ctx context.Context, msg *kafka.Message) error {
	b, err := wire.DecodeBatch(msg.Value)
	if err != nil {
		c.logger.WithError(err).WithField("key", string(msg.Key)).Warn("Dropping malformed message")
		c.commit(msg)
		return nil
	}

	if err := c.ingester.Ingest(ctx, b); err != nil {
		return fmt.Errorf("ingest %s: %w", b.Key, err)
	}
	c.commit(msg)
	return nil
}

func (c *Consumer) commit(msg *kafka.Message) {
	if _, err := c.reader.CommitMessage(msg); err != nil {
		c.logger.WithError(err).Error("Error committing message")
	}
}

func isTimeout(err error) bool {
	var kerr kafka.Error
	return errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut
}
