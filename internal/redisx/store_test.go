package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRememberAndRecallOrder(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.ExpectSet("idem:order:create:user:u-1:abc", "order-1", TTLIdempotency).SetVal("OK")
	mock.ExpectGet("idem:order:create:user:u-1:abc").SetVal("order-1")
	mock.ExpectGet("idem:order:create:user:u-2:abc").RedisNil()
	mock.ExpectGet("idem:order:create:user:u-1:missing").RedisNil()

	require.NoError(t, RememberOrder(ctx, db, "user:u-1", "abc", "order-1"))

	id, found, err := RecallOrder(ctx, db, "user:u-1", "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "order-1", id)

	// same key, different caller
	_, found, err = RecallOrder(ctx, db, "user:u-2", "abc")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = RecallOrder(ctx, db, "user:u-1", "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderStatusCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	st := OrderStatus{Status: "DELIVERED", PaymentStatus: "PAID", UpdatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	b, err := json.Marshal(st)
	require.NoError(t, err)

	mock.ExpectSet("order_status:o-1", string(b), TTLStatusCache).SetVal("OK")
	mock.ExpectGet("order_status:o-1").SetVal(string(b))
	mock.ExpectGet("order_status:o-2").SetErr(errors.New("connection refused"))

	require.NoError(t, CacheOrderStatus(ctx, db, "o-1", st))

	got, found, err := CachedOrderStatus(ctx, db, "o-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, st, got)

	_, _, err = CachedOrderStatus(ctx, db, "o-2")
	assert.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFirstDelivery(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.ExpectSetNX("dedup:notifier:evt-1", "1", TTLDedup).SetVal(true)
	mock.ExpectSetNX("dedup:notifier:evt-1", "1", TTLDedup).SetVal(false)
	mock.ExpectDel("dedup:notifier:evt-1").SetVal(1)

	first, err := FirstDelivery(ctx, db, "notifier", "evt-1")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = FirstDelivery(ctx, db, "notifier", "evt-1")
	require.NoError(t, err)
	assert.False(t, first)

	require.NoError(t, ForgetDelivery(ctx, db, "notifier", "evt-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
