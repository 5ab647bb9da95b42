// Package notify hands driver itineraries to the outbound mail pipeline.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"dispatch_tracker/internal/itinerary"
	"dispatch_tracker/internal/planning"
)

// Notifier delivers a rendered itinerary for a trip.
type Notifier interface {
	Notify(ctx context.Context, tripID uint, msg itinerary.Message) error
}

// Notice is the queued payload. A mailer outside this service consumes it.
// ID is unique per attempt; DedupeKey is the same for every attempt on a
// trip and is also the AMQP message id.
type Notice struct {
	ID        string            `json:"id"`
	DedupeKey string            `json:"dedupe_key"`
	TripID    uint              `json:"trip_id"`
	SentAt    time.Time         `json:"sent_at"`
	Email     itinerary.Message `json:"email"`
}

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes notices to a durable RabbitMQ queue.
type AMQP struct {
	conn  *amqp.Connection
	ch    channel
	queue string
}

func DialAMQP(url, queue string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notify: dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify: open channel: %w", err)
	}
	a, err := newAMQP(ch, queue)
	if err != nil {
		conn.Close()
		return nil, err
	}
	a.conn = conn
	return a, nil
}

func newAMQP(ch channel, queue string) (*AMQP, error) {
	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("notify: declare queue %s: %w", queue, err)
	}
	return &AMQP{ch: ch, queue: queue}, nil
}

func (a *AMQP) Notify(ctx context.Context, tripID uint, msg itinerary.Message) error {
	notice := Notice{
		ID:        uuid.NewString(),
		DedupeKey: planning.NotifyKey(tripID),
		TripID:    tripID,
		SentAt:    time.Now().UTC(),
		Email:     msg,
	}
	body, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("notify: encode notice: %w", err)
	}
	err = a.ch.PublishWithContext(ctx,
		"",      // default exchange
		a.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    notice.DedupeKey,
			Timestamp:    notice.SentAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("notify: publish trip %d: %w", tripID, err)
	}
	logrus.WithFields(logrus.Fields{"trip_id": tripID, "to": msg.To, "notice_id": notice.ID}).
		Info("driver notice queued")
	return nil
}

func (a *AMQP) Close() error {
	if err := a.ch.Close(); err != nil {
		return err
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

// LogNotifier writes notices to the log instead of a queue.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, tripID uint, msg itinerary.Message) error {
	logrus.WithFields(logrus.Fields{
		"trip_id": tripID,
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("driver notice (no queue configured)\n" + msg.Body)
	return nil
}
