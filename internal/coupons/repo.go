// Package coupons is the coupon ledger: flat-amount codes with a usage cap.
package coupons

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type Coupon struct {
	ID             string    `json:"id" bson:"-"`
	Code           string    `json:"code" bson:"code"`
	DiscountAmount int64     `json:"discount_amount" bson:"discount_amount"`
	UsageCount     int       `json:"usage_count" bson:"usage_count"`
	UsageLimit     int       `json:"usage_limit" bson:"usage_limit"`
	OrdersUsed     []string  `json:"orders_used" bson:"orders_used"`
	IsActive       bool      `json:"is_active" bson:"is_active"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" bson:"updated_at"`
}

// Exhausted reports whether the coupon hit its usage cap.
func (c Coupon) Exhausted() bool { return c.UsageCount >= c.UsageLimit }

type Repo struct{ DB postgres.DB }

const couponColumns = `id, code, discount_amount, usage_count, usage_limit, orders_used, is_active, created_at, updated_at`

func scanCoupon(row pgx.Row) (Coupon, error) {
	var c Coupon
	err := row.Scan(&c.ID, &c.Code, &c.DiscountAmount, &c.UsageCount, &c.UsageLimit, &c.OrdersUsed,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// FindActive looks a code up; found is false for unknown or inactive codes.
func (r *Repo) FindActive(ctx context.Context, code string) (c Coupon, found bool, err error) {
	c, err = scanCoupon(r.DB.QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE code=$1 AND is_active`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return Coupon{}, false, nil
	}
	if err != nil {
		return Coupon{}, false, fmt.Errorf("find coupon %s: %w", code, err)
	}
	return c, true, nil
}

// Claim records one use of the coupon by orderID, only while the coupon is
// active and below its limit. ok is false when the claim lost the race.
func (r *Repo) Claim(ctx context.Context, code, orderID string) (c Coupon, ok bool, err error) {
	c, err = scanCoupon(r.DB.QueryRow(ctx, `
		UPDATE coupons
		SET usage_count = usage_count + 1,
		    orders_used = array_append(orders_used, $2),
		    updated_at  = now()
		WHERE code = $1 AND is_active AND usage_count < usage_limit
		RETURNING `+couponColumns, code, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Coupon{}, false, nil
	}
	if err != nil {
		return Coupon{}, false, fmt.Errorf("claim coupon %s: %w", code, err)
	}
	return c, true, nil
}

// Release undoes a Claim made for orderID.
func (r *Repo) Release(ctx context.Context, code, orderID string) (Coupon, error) {
	c, err := scanCoupon(r.DB.QueryRow(ctx, `
		UPDATE coupons
		SET usage_count = usage_count - 1,
		    orders_used = array_remove(orders_used, $2),
		    updated_at  = now()
		WHERE code = $1 AND $2 = ANY(orders_used)
		RETURNING `+couponColumns, code, orderID))
	if err != nil {
		return Coupon{}, fmt.Errorf("release coupon %s for %s: %w", code, orderID, err)
	}
	return c, nil
}

func (r *Repo) Stream(ctx context.Context, fn func(id string, doc any) error) error {
	rows, err := r.DB.Query(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY created_at`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var all []Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return err
		}
		all = append(all, c)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, c := range all {
		if err := fn(c.ID, c); err != nil {
			return err
		}
	}
	return nil
}
