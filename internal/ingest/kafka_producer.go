package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/backhaul-matching/internal/models"
)

const publishTimeout = 2 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes route lifecycle and booking events. Messages are
// keyed by route id so every event for a route lands on one partition in order.
type KafkaProducer struct {
	routes   messageWriter
	bookings messageWriter
}

func NewKafkaProducer(brokers []string, routeTopic, bookingTopic string) *KafkaProducer {
	return &KafkaProducer{
		routes:   kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: routeTopic, Balancer: &kafka.Hash{}}),
		bookings: kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: bookingTopic, Balancer: &kafka.Hash{}}),
	}
}

func (k *KafkaProducer) PublishRouteEvent(ctx context.Context, ev models.RouteEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	return k.publish(ctx, k.routes, ev.Route.ID, ev)
}

func (k *KafkaProducer) PublishBookingEvent(ctx context.Context, ev models.BookingEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	return k.publish(ctx, k.bookings, ev.Booking.RouteID, ev)
}

func (k *KafkaProducer) publish(ctx context.Context, w messageWriter, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b})
}

func (k *KafkaProducer) Close() error {
	var errs []error
	for _, w := range []messageWriter{k.routes, k.bookings} {
		if w != nil {
			errs = append(errs, w.Close())
		}
	}
	return errors.Join(errs...)
}

// DecodeRouteEvent parses a message produced by PublishRouteEvent.
func DecodeRouteEvent(m kafka.Message) (models.RouteEvent, error) {
	var ev models.RouteEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return ev, fmt.Errorf("decode route event at offset %d: %w", m.Offset, err)
	}
	if ev.Route.ID == "" {
		return ev, fmt.Errorf("route event at offset %d has no route id", m.Offset)
	}
	return ev, nil
}
