package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sicklecare/internal/crisis"
)

type fakeChannel struct {
	exchange, key string
	msgs          []amqp091.Publishing
	err           error
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	f.exchange, f.key = exchange, key
	f.msgs = append(f.msgs, msg)
	return f.err
}

func (f *fakeChannel) Close() error { return nil }

func TestEventPublisher_PublishCrisis(t *testing.T) {
	ch := &fakeChannel{}
	p := &EventPublisher{channel: ch}

	require.NoError(t, p.PublishCrisis(context.Background(), testEvent()))
	assert.Equal(t, CrisisExchange, ch.exchange)
	assert.Equal(t, CrisisRoutingKey, ch.key)
	require.Len(t, ch.msgs, 1)
	assert.Equal(t, amqp091.Persistent, ch.msgs[0].DeliveryMode)
	assert.NotEmpty(t, ch.msgs[0].MessageId)

	var decoded crisis.Event
	require.NoError(t, json.Unmarshal(ch.msgs[0].Body, &decoded))
	assert.Equal(t, "+254700000001", decoded.Address)
	assert.Equal(t, 1, decoded.Notified)
}

func TestEventPublisher_PublishError(t *testing.T) {
	boom := errors.New("channel closed")
	p := &EventPublisher{channel: &fakeChannel{err: boom}}
	assert.ErrorIs(t, p.PublishCrisis(context.Background(), testEvent()), boom)

	_, err := NewEventPublisher("")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
