package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// Mailer performs the actual delivery.
type Mailer interface {
	Send(ctx context.Context, n Notification) error
}

// LogMailer records deliveries in the log instead of sending them.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, n Notification) error {
	slog.InfoContext(ctx, "notification delivered", "type", n.Type, "email", n.Email)
	return nil
}

type Worker struct {
	Redis   redis.Cmdable
	Mailer  Mailer
	Service string
}

// Handle is the consumer handler. Each event id is delivered at most once
// unless the mailer fails, in which case the dedup mark is released and the
// error keeps the offset uncommitted.
func (w *Worker) Handle(ctx context.Context, m kafka.Message) error {
	var env kafkax.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		slog.WarnContext(ctx, "skipping malformed message", "offset", m.Offset, "err", err)
		return nil
	}
	if env.EventType != EventNotificationRequested {
		return nil
	}

	first, err := redisx.FirstDelivery(ctx, w.Redis, w.Service, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		slog.InfoContext(ctx, "duplicate notification skipped", "event_id", env.EventID)
		return nil
	}

	n, err := kafkax.UnwrapPayload[Notification](env.Payload)
	if err != nil {
		slog.WarnContext(ctx, "skipping undecodable notification", "event_id", env.EventID, "err", err)
		return nil
	}
	if err := w.Mailer.Send(ctx, n); err != nil {
		if ferr := redisx.ForgetDelivery(ctx, w.Redis, w.Service, env.EventID); ferr != nil {
			slog.WarnContext(ctx, "dedup release failed", "event_id", env.EventID, "err", ferr)
		}
		return err
	}
	return nil
}
