package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages in an inbox and writes them from a single
// goroutine, so Publish never blocks a request.
type Producer struct {
	w        messageWriter
	inbox    chan kafka.Message
	stop     chan struct{}
	stopOnce sync.Once
	closeCh  chan struct{}

	// mu orders Publish against shutdown: once closed is set under the
	// write lock no send is in flight, so the final flush sees every
	// accepted message.
	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, topic string, buf int) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				slog.Error("kafka write failed", "topic", topic, "messages", len(msgs), "err", err)
			}
		},
	}, buf)
}

func newProducer(w messageWriter, buf int) *Producer {
	return &Producer{
		w:       w,
		inbox:   make(chan kafka.Message, buf),
		stop:    make(chan struct{}),
		closeCh: make(chan struct{}),
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				p.markClosed()
				p.flush()
				return
			case <-p.stop:
				p.flush()
				return
			case m := <-p.inbox:
				p.write(m)
			}
		}
	}()
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		slog.Error("kafka publish failed", "key", string(m.Key), "err", err)
	}
}

// flush writes whatever is still buffered, then closes the writer.
func (p *Producer) flush() {
	for {
		select {
		case m := <-p.inbox:
			p.write(m)
		default:
			if err := p.w.Close(); err != nil {
				slog.Error("kafka writer close failed", "err", err)
			}
			return
		}
	}
}

// Publish enqueues a message. It returns false, dropping the message, when
// the producer is closed or its inbox is full.
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.inbox <- kafka.Message{Key: key, Value: value, Time: time.Now(), Headers: headers}:
		return true
	default:
		return false
	}
}

// Close stops the producer; buffered messages are still flushed.
func (p *Producer) Close() {
	p.stopOnce.Do(func() {
		p.markClosed()
		close(p.stop)
	})
}

func (p *Producer) markClosed() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// WaitClosed blocks until the flush finished.
func (p *Producer) WaitClosed() { <-p.closeCh }
