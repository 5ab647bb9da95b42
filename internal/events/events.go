// Package events publishes trip-stop changes for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type Kind string

const (
	StopAdded      Kind = "stop_added"
	StopRemoved    Kind = "stop_removed"
	StopsReordered Kind = "stops_reordered"
	OrderAdded     Kind = "order_added"
	StopUpdated    Kind = "stop_updated"
)

// StopPosition is a trip stop and the sequence it holds after the change.
type StopPosition struct {
	TripStopID uint `json:"trip_stop_id"`
	Sequence   int  `json:"sequence"`
}

type TripEvent struct {
	Kind       Kind           `json:"kind"`
	TripID     uint           `json:"trip_id"`
	OrderID    *uint          `json:"order_id,omitempty"`
	Stops      []StopPosition `json:"stops"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher emits trip events. Publish failures never undo the change that
// produced the event; callers log and carry on.
type Publisher interface {
	Publish(ctx context.Context, ev TripEvent) error
	Close() error
}

// Writer is the subset of *kafka.Writer used here.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Kafka struct {
	writer Writer
}

func NewKafka(brokers []string, topic string) *Kafka {
	return NewKafkaWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	})
}

func NewKafkaWithWriter(w Writer) *Kafka {
	return &Kafka{writer: w}
}

// Publish keys each message by trip so one trip's events stay ordered.
func (k *Kafka) Publish(ctx context.Context, ev TripEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", ev.Kind, err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(ev.TripID), 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: write %s for trip %d: %w", ev.Kind, ev.TripID, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(ctx context.Context, ev TripEvent) error {
	logrus.WithFields(logrus.Fields{"kind": ev.Kind, "trip_id": ev.TripID}).Debug("trip event dropped (no broker)")
	return nil
}

func (Nop) Close() error { return nil }
