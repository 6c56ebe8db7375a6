package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/ariefcatur/go-storefront-orders/internal/search"
	"github.com/redis/go-redis/v9"
)

type StatusStore interface {
	UpdateStatus(ctx context.Context, id string, next Status, at time.Time) (Order, bool, error)
}

// StatusService applies status transitions and propagates them to the index
// and the status cache.
type StatusService struct {
	Store StatusStore
	Index search.Indexer
	Cache redis.Cmdable
	Now   func() time.Time
}

func (s *StatusService) Transition(ctx context.Context, id, status string) (Order, error) {
	next, err := ParseStatus(status)
	if err != nil {
		return Order{}, err
	}
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}

	o, found, err := s.Store.UpdateStatus(ctx, id, next, now)
	if err != nil {
		return Order{}, err
	}
	if !found {
		return Order{}, apperr.ErrOrderNotFound
	}

	search.Mirror(ctx, s.Index, search.Orders, o.ID, o)
	CacheStatus(ctx, s.Cache, o)
	slog.InfoContext(ctx, "order status updated", "order_id", o.ID, "status", o.Status, "payment_status", o.PaymentStatus)
	return o.Public(), nil
}

// CacheStatus refreshes the status fast path. Failures are logged only.
func CacheStatus(ctx context.Context, rdb redis.Cmdable, o Order) {
	if rdb == nil {
		return
	}
	err := redisx.CacheOrderStatus(ctx, rdb, o.ID, redisx.OrderStatus{
		UserID:        o.UserID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		UpdatedAt:     o.UpdatedAt,
	})
	if err != nil {
		slog.WarnContext(ctx, "status cache write failed", "order_id", o.ID, "err", err)
	}
}
