// Package notify queues outbound customer notifications on Kafka and
// delivers them from a consumer process.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

const (
	TypeOrderConfirmation = "order_confirmation"
	TypeCreateAccount     = "create_account"

	EventNotificationRequested = "NotificationRequested"
)

type Notification struct {
	Type    string         `json:"type"`
	Email   string         `json:"email"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafka.Header) bool
}

// Dispatcher is the fire-and-forget enqueue side. Enqueue never fails the
// caller; anything that cannot be queued is logged and dropped.
type Dispatcher struct {
	Pub      Publisher
	Producer string
}

func (d *Dispatcher) Enqueue(ctx context.Context, n Notification) {
	env, err := kafkax.NewEnvelope(EventNotificationRequested, d.Producer, n)
	if err != nil {
		slog.WarnContext(ctx, "notification not queued", "type", n.Type, "err", err)
		return
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	if id, ok := n.Payload["order_id"].(string); ok {
		env.CorrelationID = id
	}

	b, err := json.Marshal(env)
	if err != nil {
		slog.WarnContext(ctx, "notification not queued", "type", n.Type, "err", err)
		return
	}
	if !d.Pub.Publish([]byte(n.Email), b) {
		slog.WarnContext(ctx, "notification dropped, producer busy", "type", n.Type, "event_id", env.EventID)
	}
}
