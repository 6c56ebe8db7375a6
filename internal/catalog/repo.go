package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type Repo struct{ DB postgres.DB }

const variantColumns = `id, variant_name, attributes, image, original_price, price, discount,
	quantity, is_active, created_at, updated_at`

func scanVariant(row pgx.Row) (Variant, error) {
	var v Variant
	err := row.Scan(&v.ID, &v.Name, &v.Attributes, &v.Image, &v.OriginalPrice, &v.Price, &v.Discount,
		&v.Quantity, &v.IsActive, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

// Get returns a single variant; found is false when the id is unknown.
func (r *Repo) Get(ctx context.Context, id string) (v Variant, found bool, err error) {
	v, err = scanVariant(r.DB.QueryRow(ctx, `SELECT `+variantColumns+` FROM product_variants WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Variant{}, false, nil
	}
	if err != nil {
		return Variant{}, false, fmt.Errorf("get variant %s: %w", id, err)
	}
	return v, true, nil
}

// Snapshot reads the live state of every requested variant. Unknown ids are
// simply absent from the result.
func (r *Repo) Snapshot(ctx context.Context, ids []string) (map[string]Variant, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+variantColumns+` FROM product_variants WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("snapshot variants: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Variant, len(ids))
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		out[v.ID] = v
	}
	return out, rows.Err()
}

// Decrement takes qty units of stock only if at least qty are on hand.
// ok is false when the condition did not hold (or the variant is gone).
func (r *Repo) Decrement(ctx context.Context, id string, qty int) (v Variant, ok bool, err error) {
	v, err = scanVariant(r.DB.QueryRow(ctx, `
		UPDATE product_variants
		SET quantity = quantity - $2, updated_at = now()
		WHERE id = $1 AND quantity >= $2
		RETURNING `+variantColumns, id, qty))
	if errors.Is(err, pgx.ErrNoRows) {
		return Variant{}, false, nil
	}
	if err != nil {
		return Variant{}, false, fmt.Errorf("decrement variant %s: %w", id, err)
	}
	return v, true, nil
}

// Restore gives back stock taken by Decrement.
func (r *Repo) Restore(ctx context.Context, id string, qty int) (Variant, error) {
	v, err := scanVariant(r.DB.QueryRow(ctx, `
		UPDATE product_variants
		SET quantity = quantity + $2, updated_at = now()
		WHERE id = $1
		RETURNING `+variantColumns, id, qty))
	if err != nil {
		return Variant{}, fmt.Errorf("restore variant %s: %w", id, err)
	}
	return v, nil
}

// Stream feeds every variant to fn, used by the index resync.
func (r *Repo) Stream(ctx context.Context, fn func(id string, doc any) error) error {
	rows, err := r.DB.Query(ctx, `SELECT `+variantColumns+` FROM product_variants ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var all []Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return err
		}
		all = append(all, v)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, v := range all {
		if err := fn(v.ID, v); err != nil {
			return err
		}
	}
	return nil
}
