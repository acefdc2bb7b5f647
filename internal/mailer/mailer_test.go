package mailer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mmeshcher/clubhub/internal/model"
)

type fakeChannel struct {
	declared   []string
	durable    bool
	published  []amqp.Publishing
	keys       []string
	publishErr error
	closed     bool
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.declared = append(f.declared, name)
	f.durable = durable
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

// dialSequence отдаёт каналы по очереди и считает открытые сессии.
type dialSequence struct {
	channels []*fakeChannel
	dials    int
	closed   chan *amqp.Error
}

func (d *dialSequence) dial() (Session, error) {
	if d.dials >= len(d.channels) {
		return Session{}, errors.New("broker unavailable")
	}
	ch := d.channels[d.dials]
	d.dials++
	return Session{Channel: ch, Closed: d.closed}, nil
}

func TestRabbitMQ_Dispatch(t *testing.T) {
	ch := &fakeChannel{}
	d := &dialSequence{channels: []*fakeChannel{ch}}
	m, err := NewRabbitMQWithDialer(d.dial, "email_jobs")
	require.NoError(t, err)
	assert.Equal(t, []string{"email_jobs"}, ch.declared)
	assert.True(t, ch.durable)

	msg := model.OutboxMessage{ID: uuid.New(), Topic: model.TopicEmail, Payload: []byte(`{"to":"a@uni.edu"}`)}
	require.NoError(t, m.Dispatch(context.Background(), msg))

	require.Len(t, ch.published, 1)
	pub := ch.published[0]
	assert.Equal(t, "email_jobs", ch.keys[0])
	assert.Equal(t, uint8(amqp.Persistent), pub.DeliveryMode)
	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, msg.ID.String(), pub.MessageId)
	assert.Equal(t, msg.Payload, pub.Body)
	assert.Equal(t, 1, d.dials)

	require.NoError(t, m.Close())
	assert.True(t, ch.closed)
}

func TestRabbitMQ_DispatchError(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("queue overflow")}
	d := &dialSequence{channels: []*fakeChannel{ch}}
	m, err := NewRabbitMQWithDialer(d.dial, "email_jobs")
	require.NoError(t, err)

	err = m.Dispatch(context.Background(), model.OutboxMessage{ID: uuid.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue overflow")
	assert.Equal(t, 1, d.dials, "non-closed errors must not reopen the session")
}

func TestRabbitMQ_ReconnectsAfterChannelClosed(t *testing.T) {
	dead := &fakeChannel{publishErr: amqp.ErrClosed}
	fresh := &fakeChannel{}
	d := &dialSequence{channels: []*fakeChannel{dead, fresh}}
	m, err := NewRabbitMQWithDialer(d.dial, "email_jobs")
	require.NoError(t, err)

	msg := model.OutboxMessage{ID: uuid.New(), Topic: model.TopicEmail, Payload: []byte(`{}`)}
	require.NoError(t, m.Dispatch(context.Background(), msg))

	assert.Equal(t, 2, d.dials)
	assert.True(t, dead.closed)
	assert.Equal(t, []string{"email_jobs"}, fresh.declared)
	require.Len(t, fresh.published, 1)
	assert.Equal(t, msg.ID.String(), fresh.published[0].MessageId)

	require.NoError(t, m.Dispatch(context.Background(), msg))
	assert.Equal(t, 2, d.dials)
	assert.Len(t, fresh.published, 2)
}

func TestRabbitMQ_ReconnectsAfterConnectionClosed(t *testing.T) {
	first := &fakeChannel{}
	second := &fakeChannel{}
	d := &dialSequence{
		channels: []*fakeChannel{first, second},
		closed:   make(chan *amqp.Error, 1),
	}
	m, err := NewRabbitMQWithDialer(d.dial, "email_jobs")
	require.NoError(t, err)

	d.closed <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "broker restart"}
	require.NoError(t, m.Dispatch(context.Background(), model.OutboxMessage{ID: uuid.New()}))

	assert.True(t, first.closed)
	assert.Empty(t, first.published)
	assert.Len(t, second.published, 1)
}

func TestRabbitMQ_BrokerStillDown(t *testing.T) {
	dead := &fakeChannel{publishErr: amqp.ErrClosed}
	d := &dialSequence{channels: []*fakeChannel{dead}}
	m, err := NewRabbitMQWithDialer(d.dial, "email_jobs")
	require.NoError(t, err)

	err = m.Dispatch(context.Background(), model.OutboxMessage{ID: uuid.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")

	dead.publishErr = nil
	d.channels = append(d.channels, dead)
	require.NoError(t, m.Dispatch(context.Background(), model.OutboxMessage{ID: uuid.New()}))
}

func TestNewRabbitMQWithDialer_Error(t *testing.T) {
	d := &dialSequence{}
	_, err := NewRabbitMQWithDialer(d.dial, "email_jobs")
	require.Error(t, err)
}

func TestLog_Dispatch(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewLog(zap.New(core))

	err := m.Dispatch(context.Background(), model.OutboxMessage{
		ID:      uuid.New(),
		Payload: []byte(`{"to":"a@uni.edu","subject":"Welcome","html":"<p>hi</p>"}`),
	})
	require.NoError(t, err)

	entries := logs.FilterField(zap.String("to", "a@uni.edu")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "email", entries[0].Message)

	require.Error(t, m.Dispatch(context.Background(), model.OutboxMessage{Payload: []byte("not json")}))
}
