package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type Repo struct{ DB postgres.DB }

const orderColumns = `id, COALESCE(user_id, ''), user_name, email, COALESCE(coupon_code, ''), address, items,
	total_amount, discount_amount, loyalty_points_used, loyalty_points_earned,
	status, payment_method, payment_status, order_tracking, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                 Order
		items, tracking   []byte
		st, method, paySt string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.UserName, &o.Email, &o.CouponCode, &o.Address, &items,
		&o.TotalAmount, &o.DiscountAmount, &o.LoyaltyPointsUsed, &o.LoyaltyPointsEarned,
		&st, &method, &paySt, &tracking, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	o.Status, o.PaymentMethod, o.PaymentStatus = Status(st), PaymentMethod(method), PaymentStatus(paySt)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return Order{}, fmt.Errorf("decode order items: %w", err)
	}
	if err := json.Unmarshal(tracking, &o.Tracking); err != nil {
		return Order{}, fmt.Errorf("decode order tracking: %w", err)
	}
	return o, nil
}

// Insert persists a new order and returns it as stored.
func (r *Repo) Insert(ctx context.Context, o Order) (Order, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return Order{}, err
	}
	tracking := o.Tracking
	if tracking == nil {
		tracking = []Tracking{}
	}
	trackingJSON, err := json.Marshal(tracking)
	if err != nil {
		return Order{}, err
	}

	out, err := scanOrder(r.DB.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, user_name, email, coupon_code, address, items,
		                    total_amount, discount_amount, loyalty_points_used, loyalty_points_earned,
		                    status, payment_method, payment_status, order_tracking, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), $6, $7,
		        $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		RETURNING `+orderColumns,
		o.ID, o.UserID, o.UserName, o.Email, o.CouponCode, o.Address, items,
		o.TotalAmount, o.DiscountAmount, o.LoyaltyPointsUsed, o.LoyaltyPointsEarned,
		string(o.Status), string(o.PaymentMethod), string(o.PaymentStatus), trackingJSON, o.CreatedAt))
	if err != nil {
		return Order{}, fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return out, nil
}

// Delete removes an order. Used only to compensate a failed checkout.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if _, err := r.DB.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (Order, bool, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, false, nil
	}
	if err != nil {
		return Order{}, false, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, true, nil
}

// UpdateStatus locks the order row, applies Transition and writes the
// mutable fields back. found is false for an unknown id.
func (r *Repo) UpdateStatus(ctx context.Context, id string, next Status, at time.Time) (o Order, found bool, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err = scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, false, nil
	}
	if err != nil {
		return Order{}, false, fmt.Errorf("lock order %s: %w", id, err)
	}

	o.Transition(next, at)
	entry, err := json.Marshal([]Tracking{o.Tracking[len(o.Tracking)-1]})
	if err != nil {
		return Order{}, false, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, order_tracking = order_tracking || $4::jsonb, updated_at = $5
		WHERE id = $1`, id, string(o.Status), string(o.PaymentStatus), entry, at); err != nil {
		return Order{}, false, fmt.Errorf("update order status %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, false, err
	}
	return o, true, nil
}

func (r *Repo) Stream(ctx context.Context, fn func(id string, doc any) error) error {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var all []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return err
		}
		all = append(all, o)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, o := range all {
		if err := fn(o.ID, o); err != nil {
			return err
		}
	}
	return nil
}
