package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forum-digest/internal/domain"
)

var job = domain.DigestBatchJob{
	ID:    "job-1",
	Users: []domain.User{{ID: "1", Preferences: map[string]string{}}},
	From:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	To:    time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	Mode:  domain.ModeBroad,
}

type memList struct{ items []string }

func (m *memList) LPush(_ context.Context, _ string, values ...any) *redis.IntCmd {
	for _, v := range values {
		m.items = append([]string{string(v.([]byte))}, m.items...)
	}
	return redis.NewIntResult(int64(len(m.items)), nil)
}

func (m *memList) BRPop(_ context.Context, _ time.Duration, keys ...string) *redis.StringSliceCmd {
	if len(m.items) == 0 {
		return redis.NewStringSliceResult(nil, redis.Nil)
	}
	last := m.items[len(m.items)-1]
	m.items = m.items[:len(m.items)-1]
	return redis.NewStringSliceResult([]string{keys[0], last}, nil)
}

func TestRedisQueueRoundTripAndRequeue(t *testing.T) {
	list := &memList{}
	q := NewRedisBatchQueue(list, "digest_jobs")
	require.NoError(t, q.Enqueue(context.Background(), job))

	got, ack, err := q.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.Window(), got.Window())
	assert.Equal(t, domain.ModeBroad, got.Mode)
	assert.Empty(t, list.items)

	require.NoError(t, ack(false))
	assert.Len(t, list.items, 1)

	_, ack, err = q.Receive(context.Background())
	require.NoError(t, err)
	require.NoError(t, ack(true))
	assert.Empty(t, list.items)
}

func TestRedisQueueReceiveHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewRedisBatchQueue(&memList{}, "k").Receive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeChannel struct {
	published  []amqp.Publishing
	deliveries chan amqp.Delivery
	consumed   int
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	f.consumed++
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error { return nil }

type fakeAcker struct {
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error {
	return errors.New("not used")
}

func TestRabbitQueuePublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	q := NewRabbitBatchQueueWithChannel(ch, "digest_jobs")
	require.NoError(t, q.Enqueue(context.Background(), job))
	require.Len(t, ch.published, 1)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
	assert.Equal(t, "job-1", ch.published[0].MessageId)

	var decoded domain.DigestBatchJob
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &decoded))
	assert.Equal(t, job.ID, decoded.ID)
}

func TestRabbitQueueAckAndNack(t *testing.T) {
	body, err := json.Marshal(job)
	require.NoError(t, err)
	acker := &fakeAcker{}
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 3)}
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: body}
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, Body: body}
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 3, Body: []byte("{broken")}
	q := NewRabbitBatchQueueWithChannel(ch, "digest_jobs")

	_, ack, err := q.Receive(context.Background())
	require.NoError(t, err)
	require.NoError(t, ack(true))

	_, ack, err = q.Receive(context.Background())
	require.NoError(t, err)
	require.NoError(t, ack(false))

	_, _, err = q.Receive(context.Background())
	assert.Error(t, err)

	assert.Equal(t, []uint64{1}, acker.acked)
	assert.Equal(t, []uint64{2, 3}, acker.nacked)
	assert.Equal(t, []bool{true, false}, acker.requeue)
}

func TestRabbitQueueClosedDeliveriesAreReconsumed(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery)}
	close(ch.deliveries)
	q := NewRabbitBatchQueueWithChannel(ch, "digest_jobs")

	_, _, err := q.Receive(context.Background())
	require.ErrorIs(t, err, domain.ErrQueueClosed)
	assert.Equal(t, 1, ch.consumed)

	body, err := json.Marshal(job)
	require.NoError(t, err)
	ch.deliveries = make(chan amqp.Delivery, 1)
	ch.deliveries <- amqp.Delivery{Acknowledger: &fakeAcker{}, DeliveryTag: 1, Body: body}

	got, _, err := q.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, 2, ch.consumed)
}
