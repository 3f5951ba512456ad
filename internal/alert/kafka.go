package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/Veraticus/the-price-must-flow/internal/model"
)

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes alerts as JSON, keyed by product so one product's
// alerts stay ordered within a partition.
type KafkaSink struct {
	writer kafkaMessageWriter
}

// NewKafkaSink creates a sink writing to topic. brokers is a comma-separated
// list of host:port.
func NewKafkaSink(brokers, topic string) *KafkaSink {
	var addrs []string
	for _, a := range strings.Split(brokers, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return &KafkaSink{writer: &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}
}

// newKafkaSinkWith injects a writer.
func newKafkaSinkWith(w kafkaMessageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

// Emit publishes a.
func (k *KafkaSink) Emit(ctx context.Context, a model.Alert) error {
	b, err := json.Marshal(&a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(a.ProductID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "alert_type", Value: []byte(a.Type)},
			{Key: "priority", Value: []byte(a.Priority)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
