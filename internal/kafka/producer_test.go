package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
	err    error
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *memWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestProducerFlushesOnClose(t *testing.T) {
	w := &memWriter{}
	p := newProducer(w, 8)

	assert.True(t, p.Publish([]byte("k1"), []byte("v1")))
	assert.True(t, p.Publish([]byte("k2"), []byte("v2")))

	p.Start(context.Background())
	p.Close()
	p.WaitClosed()

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "k1", string(w.msgs[0].Key))
	assert.True(t, w.closed)
	assert.False(t, p.Publish([]byte("k3"), []byte("v3")), "closed producer drops")
}

func TestProducerDropsWhenInboxFull(t *testing.T) {
	p := newProducer(&memWriter{}, 1)

	assert.True(t, p.Publish(nil, []byte("a")))
	assert.False(t, p.Publish(nil, []byte("b")))
}

func TestProducerStopsOnContextAndSurvivesWriteErrors(t *testing.T) {
	w := &memWriter{err: errors.New("broker down")}
	p := newProducer(w, 4)
	ctx, cancel := context.WithCancel(context.Background())

	p.Publish(nil, []byte("a"))
	p.Start(ctx)
	cancel()
	p.WaitClosed()

	assert.True(t, w.closed)
	assert.False(t, p.Publish(nil, []byte("b")), "cancelled producer drops")
}

func TestProducerWritesEveryAcceptedMessageWhenClosedMidPublish(t *testing.T) {
	const publishers, each = 8, 200
	w := &memWriter{}
	p := newProducer(w, publishers*each)
	p.Start(context.Background())

	var accepted atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range publishers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for range each {
				if p.Publish(nil, []byte("m")) {
					accepted.Add(1)
				}
			}
		}()
	}
	close(start)
	p.Close()
	wg.Wait()
	p.WaitClosed()

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Equal(t, int(accepted.Load()), len(w.msgs), "an accepted message was never written")
	assert.True(t, w.closed)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	type payload struct {
		OrderID string `json:"order_id"`
	}
	env, err := NewEnvelope("NotificationRequested", "storefront-orders", payload{OrderID: "o-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, 1, env.EventVersion)

	got, err := UnwrapPayload[payload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "o-1", got.OrderID)

	_, err = UnwrapPayload[payload]([]byte("{"))
	assert.Error(t, err)
}
