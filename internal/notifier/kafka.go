package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaChannel publishes notification events as JSON to a Kafka topic, keyed
// by alert condition so one condition's events stay on one partition.
type KafkaChannel struct {
	name   string
	writer *kafka.Writer
}

// NewKafkaChannel creates a Kafka channel
func NewKafkaChannel(name string, brokers []string, topic string) *KafkaChannel {
	return &KafkaChannel{
		name: name,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Name implements Channel
func (c *KafkaChannel) Name() string { return c.name }

// Send implements Channel
func (c *KafkaChannel) Send(ctx context.Context, event Event) error {
	msg, err := kafkaMessage(event)
	if err != nil {
		return err
	}
	if err := c.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write to topic %s: %w", c.writer.Topic, err)
	}
	return nil
}

// Close flushes and closes the writer
func (c *KafkaChannel) Close() error {
	return c.writer.Close()
}

func kafkaMessage(event Event) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.Alert.Key()),
		Value: value,
		Time:  event.Alert.Timestamp,
		Headers: []kafka.Header{
			{Key: "state", Value: []byte(event.State)},
			{Key: "severity", Value: []byte(event.Alert.Severity)},
		},
	}, nil
}
