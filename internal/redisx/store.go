package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RememberOrder binds a caller's idempotency key to the order it created.
// Keys are namespaced by caller so two customers never share an entry.
func RememberOrder(ctx context.Context, rdb redis.Cmdable, caller, key, orderID string) error {
	return rdb.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, caller, key), orderID, TTLIdempotency).Err()
}

// RecallOrder returns the order the caller created earlier under key, if any.
func RecallOrder(ctx context.Context, rdb redis.Cmdable, caller, key string) (string, bool, error) {
	id, err := rdb.Get(ctx, fmt.Sprintf(KeyIdemOrderCreate, caller, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

type OrderStatus struct {
	UserID        string    `json:"user_id,omitempty"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func CacheOrderStatus(ctx context.Context, rdb redis.Cmdable, orderID string, st OrderStatus) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), string(b), TTLStatusCache).Err()
}

func CachedOrderStatus(ctx context.Context, rdb redis.Cmdable, orderID string) (OrderStatus, bool, error) {
	raw, err := rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return OrderStatus{}, false, nil
	}
	if err != nil {
		return OrderStatus{}, false, err
	}
	var st OrderStatus
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return OrderStatus{}, false, fmt.Errorf("decode cached status: %w", err)
	}
	return st, true, nil
}

// FirstDelivery marks (service, id) as seen and reports whether this call
// was the first to do so.
func FirstDelivery(ctx context.Context, rdb redis.Cmdable, service, id string) (bool, error) {
	return rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, service, id), "1", TTLDedup).Result()
}

// ForgetDelivery clears a dedup mark so a failed delivery can be retried.
func ForgetDelivery(ctx context.Context, rdb redis.Cmdable, service, id string) error {
	return rdb.Del(ctx, fmt.Sprintf(KeyDedup, service, id)).Err()
}
