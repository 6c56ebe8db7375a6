package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Repo struct{ DB postgres.DB }

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func load(ctx context.Context, q querier, where string, arg any) (*Cart, error) {
	var c Cart
	err := q.QueryRow(ctx, `SELECT id, user_id, created_at, updated_at FROM carts WHERE `+where, arg).
		Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT variant_id, variant_name, attributes, quantity, original_price, unit_price, discount, image
		FROM cart_items WHERE cart_id=$1 ORDER BY position`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()
	c.Items = []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.VariantID, &it.VariantName, &it.Attributes, &it.Quantity,
			&it.OriginalPrice, &it.UnitPrice, &it.Discount, &it.Image); err != nil {
			return nil, err
		}
		c.Items = append(c.Items, it)
	}
	return &c, rows.Err()
}

// GetByUser returns the user's cart or nil when the user has none.
func (r *Repo) GetByUser(ctx context.Context, userID string) (*Cart, error) {
	return load(ctx, r.DB, `user_id=$1`, userID)
}

// AddItem increments the quantity of an existing line or inserts the line,
// creating the cart on first use, in one statement.
func (r *Repo) AddItem(ctx context.Context, userID string, it Item) (*Cart, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		WITH c AS (
			INSERT INTO carts (id, user_id) VALUES ($1, $2)
			ON CONFLICT (user_id) DO UPDATE SET updated_at = now()
			RETURNING id
		)
		INSERT INTO cart_items (cart_id, variant_id, variant_name, attributes, quantity,
		                        original_price, unit_price, discount, image)
		SELECT c.id, $3, $4, $5, $6, $7, $8, $9, $10 FROM c
		ON CONFLICT (cart_id, variant_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		uuid.NewString(), userID, it.VariantID, it.VariantName, it.Attributes, it.Quantity,
		it.OriginalPrice, it.UnitPrice, it.Discount, it.Image)
	if err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}

	c, err := load(ctx, tx, `user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// SetQuantity overwrites the quantity of one line. It reports whether the
// cart and the line exist so callers can tell the two misses apart.
func (r *Repo) SetQuantity(ctx context.Context, userID, variantID string, qty int) (c *Cart, cartFound, itemFound bool, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE cart_items ci SET quantity = $3
		FROM carts c
		WHERE c.id = ci.cart_id AND c.user_id = $1 AND ci.variant_id = $2`, userID, variantID, qty)
	if err != nil {
		return nil, false, false, fmt.Errorf("set cart quantity: %w", err)
	}

	c, err = load(ctx, tx, `user_id=$1`, userID)
	if err != nil {
		return nil, false, false, err
	}
	if c == nil {
		return nil, false, false, nil
	}
	if ct.RowsAffected() == 0 {
		return c, true, false, nil
	}
	if _, err := tx.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id=$1`, c.ID); err != nil {
		return nil, false, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, false, err
	}
	return c, true, true, nil
}

// RemoveItem pulls a line out of the cart. A missing line is not an error;
// a nil cart means the user has no cart.
func (r *Repo) RemoveItem(ctx context.Context, userID, variantID string) (*Cart, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		DELETE FROM cart_items ci USING carts c
		WHERE c.id = ci.cart_id AND c.user_id = $1 AND ci.variant_id = $2`, userID, variantID)
	if err != nil {
		return nil, fmt.Errorf("remove cart item: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE user_id=$1`, userID); err != nil {
		return nil, err
	}
	c, err := load(ctx, tx, `user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteByUser drops the user's cart, returning its id ("" when absent).
func (r *Repo) DeleteByUser(ctx context.Context, userID string) (string, error) {
	var id string
	err := r.DB.QueryRow(ctx, `DELETE FROM carts WHERE user_id=$1 RETURNING id`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("delete cart: %w", err)
	}
	return id, nil
}

// Delete drops a cart by id. Deleting an absent cart is a no-op.
func (r *Repo) Delete(ctx context.Context, cartID string) error {
	if _, err := r.DB.Exec(ctx, `DELETE FROM carts WHERE id=$1`, cartID); err != nil {
		return fmt.Errorf("delete cart %s: %w", cartID, err)
	}
	return nil
}

// ReplacePrices writes corrected price fields for the given lines.
func (r *Repo) ReplacePrices(ctx context.Context, cartID string, items []Item) (*Cart, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			UPDATE cart_items SET unit_price=$3, discount=$4, original_price=$5
			WHERE cart_id=$1 AND variant_id=$2`,
			cartID, it.VariantID, it.UnitPrice, it.Discount, it.OriginalPrice); err != nil {
			return nil, fmt.Errorf("replace cart prices: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id=$1`, cartID); err != nil {
		return nil, err
	}
	c, err := load(ctx, tx, `id=$1`, cartID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Stream feeds every cart to fn, used by the index resync.
func (r *Repo) Stream(ctx context.Context, fn func(id string, doc any) error) error {
	rows, err := r.DB.Query(ctx, `SELECT user_id FROM carts ORDER BY created_at`)
	if err != nil {
		return err
	}
	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return err
		}
		users = append(users, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, u := range users {
		c, err := r.GetByUser(ctx, u)
		if err != nil {
			return err
		}
		if c == nil {
			continue
		}
		if err := fn(c.ID, *c); err != nil {
			return err
		}
	}
	return nil
}
