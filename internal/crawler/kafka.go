package crawler

import (
	"context"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tickfold/internal/models"
	"github.com/navid-fn/tickfold/internal/wire"
)

// KafkaPublisher publishes encoded batches to one topic. Messages are keyed
// by "exchange/pair" so one key's batches stay ordered within a partition.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
	logger   logrus.FieldLogger
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates the producer and starts its delivery report loop.
func NewKafkaPublisher(broker, topic string, logger logrus.FieldLogger) (*KafkaPublisher, error) {
	if broker == "" {
		broker = DefaultKafkaBroker
	}
	if topic == "" {
		topic = DefaultKafkaTopic
	}

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": broker,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	p := &KafkaPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger.WithField("topic", topic),
	}
	p.startDeliveryReport()
	p.logger.Info("Kafka Producer initialized successfully")
	return p, nil
}

// Check Events channel of kafka. if error is occurred, it will send error to our logger
func (p *KafkaPublisher) startDeliveryReport() {
	go func() {
		for e := range p.producer.Events() {
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					p.logger.WithError(ev.TopicPartition.Error).
						WithField("key", string(ev.Key)).
						Error("Message delivery failed")
				}
			case kafka.Error:
				p.logger.WithError(ev).Warn("Kafka producer error")
			}
		}
	}()
}

// Publish encodes b and queues it for delivery.
func (p *KafkaPublisher) Publish(ctx context.Context, b models.Batch) error {
	if len(b.Trades) == 0 {
		return nil
	}
	data, err := wire.EncodeBatch(b)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	return p.Send(BatchKey(b.Key), data)
}

// Send queues a raw message on the publisher's topic.
func (p *KafkaPublisher) Send(key string, value []byte) error {
	return p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          value,
	}, nil)
}

// Close flushes outstanding messages for up to five seconds and closes the
// producer.
func (p *KafkaPublisher) Close() {
	if remaining := p.producer.Flush(5000); remaining > 0 {
		p.logger.WithField("remaining", remaining).Warn("Kafka Producer closed with undelivered messages")
	}
	p.producer.Close()
	p.logger.Info("Kafka Producer closed")
}

// BatchKey is the partition key of a batch.
func BatchKey(k models.Key) string {
	return k.Exchange.String() + "/" + k.Pair.String()
}
