package events

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	p := &KafkaPublisher{w: w}

	err := p.Publish(context.Background(), "product_events", "7", map[string]any{"type": "product_created", "productID": 3})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "product_events", msg.Topic)
	assert.Equal(t, "7", string(msg.Key))

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "product_created", body["type"])
	assert.EqualValues(t, 3, body["productID"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_Errors(t *testing.T) {
	t.Parallel()

	p := &KafkaPublisher{w: &fakeWriter{err: errors.New("broker down")}}
	err := p.Publish(context.Background(), "user_events", "1", map[string]any{"type": "user_created"})
	assert.ErrorContains(t, err, "broker down")

	err = p.Publish(context.Background(), "user_events", "1", make(chan int))
	assert.ErrorContains(t, err, "json.Marshal")
}

func TestNoop(t *testing.T) {
	t.Parallel()

	var n Noop
	assert.NoError(t, n.Publish(context.Background(), "t", "k", nil))
	assert.NoError(t, n.Close())
}

func TestKafkaPublisher_Integration(t *testing.T) {
	brokers := os.Getenv("KAFKA_TEST_BROKERS")
	if brokers == "" {
		t.Skip("KAFKA_TEST_BROKERS not set")
	}
	addrs := strings.Split(brokers, ",")
	topic := "anbarinoo_test_events"

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p := NewKafkaPublisher(addrs)
	defer p.Close()
	require.NoError(t, p.Publish(ctx, topic, "warmup", map[string]any{"type": "warmup"}))

	conn, err := kafka.DialLeader(ctx, "tcp", addrs[0], topic, 0)
	require.NoError(t, err)
	end, err := conn.ReadLastOffset()
	require.NoError(t, err)
	_ = conn.Close()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   addrs,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
		MaxWait:   time.Second,
	})
	defer r.Close()
	require.NoError(t, r.SetOffset(end))

	require.NoError(t, p.Publish(ctx, topic, "1", map[string]any{"type": "user_created"}))

	m, err := r.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", string(m.Key))
	assert.Contains(t, string(m.Value), "user_created")
}
