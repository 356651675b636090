package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/grid-outage-forecast/internal/config"
	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces prediction events to a Kafka topic.
// It implements forecast.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured prediction topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaPredictionTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: cfg.BatchFlushInterval,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes and writes prediction events in a single
// WriteMessages call.
func (w *Writer) Publish(ctx context.Context, events ...domain.PredictionEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a PredictionEvent into a Kafka message.
func serializeToMessage(event domain.PredictionEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize prediction event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "risk_level", Value: []byte(event.RiskLevel)},
			{Key: "predicted_at", Value: []byte(event.PredictedAt.Format(time.RFC3339))},
		},
	}, nil
}

// NopPublisher discards events. It stands in for Writer when Kafka is
// disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...domain.PredictionEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
