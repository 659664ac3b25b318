package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/mechanic-dispatch/internal/models"
	"github.com/example/mechanic-dispatch/internal/observability"
)

// KafkaProducer writes mechanic location reports and booking events. Each message names its
// own topic so one writer serves both streams.
type KafkaProducer struct {
	writer        *kafka.Writer
	locationTopic string
	eventTopic    string
	timeout       time.Duration
	logger        *slog.Logger
}

func NewKafkaProducer(brokers []string, locationTopic, eventTopic string, logger *slog.Logger) *KafkaProducer {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaProducer{
		writer:        w,
		locationTopic: locationTopic,
		eventTopic:    eventTopic,
		timeout:       2 * time.Second,
		logger:        logger,
	}
}

// PublishLocation is keyed by mechanic id so one mechanic's reports stay ordered on a partition.
func (k *KafkaProducer) PublishLocation(ctx context.Context, u models.LocationUpdate) error {
	if err := k.write(ctx, k.locationTopic, u.MechanicID, u); err != nil {
		observability.LocationPublishErrors.Inc()
		return err
	}
	return nil
}

// PublishEvent appends a committed booking event to the audit topic, keyed by booking id.
func (k *KafkaProducer) PublishEvent(ctx context.Context, ev models.Event) error {
	if err := k.write(ctx, k.eventTopic, ev.BookingID, ev); err != nil {
		observability.EventPublishErrors.Inc()
		return err
	}
	return nil
}

func (k *KafkaProducer) write(ctx context.Context, topic, key string, v any) error {
	if topic == "" {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: []byte(key), Value: b}); err != nil {
		k.logger.Warn("kafka publish failed", "topic", topic, "key", key, "error", err)
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
