// Package kafkanotify dispatches alert notifications to a Kafka broadcast
// topic. Downstream push gateways fan the messages out to subscribed
// clients; from this service's perspective delivery is fire-and-forget.
package kafkanotify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/flood-watch-service/internal/ingest"
)

// Notifier produces alert notifications to the configured topic.
// It implements ingest.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// New creates a Kafka producer for the alert broadcast topic.
func New(brokers []string, topic string, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger}
}

// NotifyAlert serializes and publishes one notification.
func (n *Notifier) NotifyAlert(ctx context.Context, notification ingest.Notification) error {
	msg, err := serializeToMessage(notification)
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, msg)
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a notification into a Kafka message keyed by
// device so consumers see one device's alerts in order.
func serializeToMessage(notification ingest.Notification) (kafkago.Message, error) {
	data, err := json.Marshal(notification)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize notification: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(notification.DeviceID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "status", Value: []byte(notification.Status)},
			{Key: "triggered_at", Value: []byte(notification.TriggeredAt.Format(time.RFC3339))},
		},
	}, nil
}
