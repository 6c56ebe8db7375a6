package coupons

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func couponRow(used int, orders []string) *pgxmock.Rows {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return pgxmock.NewRows([]string{"id", "code", "discount_amount", "usage_count", "usage_limit", "orders_used",
		"is_active", "created_at", "updated_at"}).
		AddRow("cp-1", "HEMAT50", int64(50000), used, 5, orders, true, at, at)
}

var claimSQL = regexp.QuoteMeta(`WHERE code = $1 AND is_active AND usage_count < usage_limit`)

func TestClaim(t *testing.T) {
	t.Run("below the limit", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectQuery(claimSQL).WithArgs("HEMAT50", "o-1").WillReturnRows(couponRow(1, []string{"o-1"}))

		c, ok, err := (&Repo{DB: mock}).Claim(context.Background(), "HEMAT50", "o-1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, c.UsageCount)
		assert.Equal(t, []string{"o-1"}, c.OrdersUsed)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("limit reached or inactive", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectQuery(claimSQL).WithArgs("HEMAT50", "o-6").WillReturnError(pgx.ErrNoRows)

		_, ok, err := (&Repo{DB: mock}).Claim(context.Background(), "HEMAT50", "o-6")
		require.NoError(t, err)
		assert.False(t, ok)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReleaseOnlyUndoesItsOwnClaim(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.ExpectQuery(regexp.QuoteMeta(`array_remove(orders_used, $2)`) + `[\s\S]*` +
		regexp.QuoteMeta(`WHERE code = $1 AND $2 = ANY(orders_used)`)).
		WithArgs("HEMAT50", "o-1").
		WillReturnRows(couponRow(0, []string{}))

	c, err := (&Repo{DB: mock}).Release(context.Background(), "HEMAT50", "o-1")
	require.NoError(t, err)
	assert.Zero(t, c.UsageCount)
	assert.Empty(t, c.OrdersUsed)
	require.NoError(t, mock.ExpectationsWereMet())
}
