package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

// KafkaConfiguration is the environment configuration of the kafka notifier
type KafkaConfiguration struct {
	Brokers []string `env:"KAFKA_BROKERS,default="`
	Topic   string   `env:"KAFKA_TOPIC,default=ghcrawler.changes"`
}

// Kafka publishes change notifications to a kafka topic, keyed by URN so
// that per-document ordering survives partitioning
type Kafka struct {
	writer *kafka.Writer
}

// NewKafka creates a kafka notifier
func NewKafka(config KafkaConfiguration) (*Kafka, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("notify kafka: no brokers configured")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Kafka{writer: writer}, nil
}

// Notify publishes one message
func (k *Kafka) Notify(ctx context.Context, msg Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify %s: %w", msg.URN, err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.URN),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("notify %s: %w", msg.URN, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer
func (k *Kafka) Close() error {
	return k.writer.Close()
}
