package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch_tracker/internal/itinerary"
)

type fakeChannel struct {
	declared   []string
	published  []amqp.Publishing
	keys       []string
	publishErr error
	closed     bool
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPNotify(t *testing.T) {
	ch := &fakeChannel{}
	a, err := newAMQP(ch, "driver_notifications")
	require.NoError(t, err)
	assert.Equal(t, []string{"driver_notifications"}, ch.declared)

	msg := itinerary.Message{To: "sam@acme.test", Subject: "Trip Assignment: run", Body: "Hello Sam"}
	require.NoError(t, a.Notify(context.Background(), 8, msg))

	require.Len(t, ch.published, 1)
	pub := ch.published[0]
	assert.Equal(t, "driver_notifications", ch.keys[0])
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)
	assert.Equal(t, "application/json", pub.ContentType)

	var notice Notice
	require.NoError(t, json.Unmarshal(pub.Body, &notice))
	assert.Equal(t, uint(8), notice.TripID)
	assert.Equal(t, msg, notice.Email)
	assert.Equal(t, "trip-8-notify", notice.DedupeKey)
	assert.Equal(t, notice.DedupeKey, pub.MessageId)
	assert.NotEmpty(t, notice.ID)

	require.NoError(t, a.Close())
	assert.True(t, ch.closed)
}

func TestAMQPNotifyError(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	a, err := newAMQP(ch, "q")
	require.NoError(t, err)
	err = a.Notify(context.Background(), 1, itinerary.Message{})
	assert.ErrorContains(t, err, "channel closed")
}

func TestAMQPNotifyRetryKeepsDedupeKey(t *testing.T) {
	ch := &fakeChannel{}
	a, err := newAMQP(ch, "q")
	require.NoError(t, err)

	msg := itinerary.Message{To: "sam@acme.test"}
	require.NoError(t, a.Notify(context.Background(), 3, msg))
	require.NoError(t, a.Notify(context.Background(), 3, msg))
	require.Len(t, ch.published, 2)

	var first, second Notice
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &first))
	require.NoError(t, json.Unmarshal(ch.published[1].Body, &second))
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.DedupeKey, second.DedupeKey)
	assert.Equal(t, ch.published[0].MessageId, ch.published[1].MessageId)
}
