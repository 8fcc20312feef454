package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/heat-forecast/internal/config"
	"github.com/couchcryptid/heat-forecast/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes forecast reports to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured report topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger.With("component", "kafka_writer", "topic", cfg.KafkaTopic)}
}

// Publish writes reports in one WriteMessages call. Reports for the same
// location share a key, so they land on the same partition in order.
func (w *Writer) Publish(ctx context.Context, reports []domain.ForecastReport) error {
	if len(reports) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(reports))
	for i := range reports {
		msg, err := serializeToMessage(reports[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d reports: %w", len(msgs), err)
	}
	w.logger.Debug("reports published", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a ForecastReport into a Kafka message.
func serializeToMessage(report domain.ForecastReport) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize forecast report: %w", err)
	}
	headers := []kafkago.Header{
		{Key: "run_id", Value: []byte(report.RunID)},
		{Key: "generated_at", Value: []byte(report.GeneratedAt.UTC().Format(time.RFC3339))},
	}
	if report.PeakLevel != "" {
		headers = append(headers, kafkago.Header{Key: "peak_level", Value: []byte(report.PeakLevel)})
	}
	return kafkago.Message{
		Key:     []byte(report.Label),
		Value:   data,
		Headers: headers,
	}, nil
}
