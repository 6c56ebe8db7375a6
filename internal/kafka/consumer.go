package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler must return nil only when the message was processed and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers}
}

// Start reads until ctx is cancelled, fanning messages out to a worker pool.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	jobs := make(chan kafka.Message, 1024)
	errs := make(chan error, c.workers)

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				if err := h(ctx, m); err != nil {
					report(errs, err)
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil {
					report(errs, err)
				}
			}
		}()
	}
	defer func() {
		close(jobs)
		wg.Wait()
		_ = c.r.Close()
	}()

	for {
		// committed by the worker once the handler succeeds
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			return nil
		}

		select {
		case e := <-errs:
			slog.WarnContext(ctx, "consumer worker error", "topic", m.Topic, "err", e)
			time.Sleep(200 * time.Millisecond)
		default:
		}
	}
}

func report(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
		slog.Warn("consumer worker error dropped", "err", err)
	}
}
