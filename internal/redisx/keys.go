package redisx

import "time"

const (
	// Idempotent order creation: idem:order:create:{caller}:{idempotency_key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Order status cache: order_status:{order_id} -> {"user_id": "...", "status": "...", "payment_status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Event dedup: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
