package users

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

func userRow(points int64) *pgxmock.Rows {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return pgxmock.NewRows([]string{"id", "email", "full_name", "password_hash", "address", "loyalty_points",
		"created_at", "updated_at"}).
		AddRow("u-1", "ann@example.com", "Ann", "hash", []string{"Jl. Merdeka 1"}, points, at, at)
}

var settleSQL = regexp.QuoteMeta(`SET loyalty_points = loyalty_points - $2 + $3`) + `[\s\S]*` +
	regexp.QuoteMeta(`WHERE id = $1 AND loyalty_points >= $2`)

func TestSettle(t *testing.T) {
	t.Run("balance covers the redemption", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectQuery(settleSQL).WithArgs("u-1", int64(134), int64(20)).WillReturnRows(userRow(886))

		u, ok, err := (&Repo{DB: mock}).Settle(context.Background(), "u-1", 134, 20)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.EqualValues(t, 886, u.LoyaltyPoints)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("balance spent concurrently", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectQuery(settleSQL).WithArgs("u-1", int64(134), int64(20)).WillReturnError(pgx.ErrNoRows)

		_, ok, err := (&Repo{DB: mock}).Settle(context.Background(), "u-1", 134, 20)
		require.NoError(t, err)
		assert.False(t, ok)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUnsettleFloorsAtZero(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.ExpectQuery(regexp.QuoteMeta(`GREATEST(loyalty_points + $2 - $3, 0)`)).
		WithArgs("u-1", int64(134), int64(20)).
		WillReturnRows(userRow(1000))

	u, err := (&Repo{DB: mock}).Unsettle(context.Background(), "u-1", 134, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, u.LoyaltyPoints)
	require.NoError(t, mock.ExpectationsWereMet())
}
