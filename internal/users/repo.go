// Package users holds the loyalty ledger and guest account provisioning.
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID            string    `json:"id" bson:"-"`
	Email         string    `json:"email" bson:"email"`
	FullName      string    `json:"full_name" bson:"full_name"`
	PasswordHash  string    `json:"-" bson:"-"`
	Address       []string  `json:"address" bson:"address"`
	LoyaltyPoints int64     `json:"loyalty_points" bson:"loyalty_points"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" bson:"updated_at"`
}

type Signup struct {
	Email    string
	FullName string
	Password string
	Address  string
}

type Repo struct{ DB postgres.DB }

const userColumns = `id, email, full_name, password_hash, address, loyalty_points, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.Address, &u.LoyaltyPoints,
		&u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *Repo) one(ctx context.Context, where string, arg any) (User, bool, error) {
	u, err := scanUser(r.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("get user: %w", err)
	}
	return u, true, nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (User, bool, error) {
	return r.one(ctx, `id=$1`, id)
}

func (r *Repo) FindByEmail(ctx context.Context, email string) (User, bool, error) {
	return r.one(ctx, `lower(email)=lower($1)`, email)
}

// Settle applies one order's loyalty movement: used points leave the balance
// and earned points join it. The update only applies while the balance still
// covers used; ok is false otherwise.
func (r *Repo) Settle(ctx context.Context, id string, used, earned int64) (u User, ok bool, err error) {
	u, err = scanUser(r.DB.QueryRow(ctx, `
		UPDATE users
		SET loyalty_points = loyalty_points - $2 + $3, updated_at = now()
		WHERE id = $1 AND loyalty_points >= $2
		RETURNING `+userColumns, id, used, earned))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("settle loyalty for %s: %w", id, err)
	}
	return u, true, nil
}

// Unsettle reverses Settle. The balance is floored at zero in case the
// earned points were already spent elsewhere.
func (r *Repo) Unsettle(ctx context.Context, id string, used, earned int64) (User, error) {
	u, err := scanUser(r.DB.QueryRow(ctx, `
		UPDATE users
		SET loyalty_points = GREATEST(loyalty_points + $2 - $3, 0), updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, id, used, earned))
	if err != nil {
		return User{}, fmt.Errorf("unsettle loyalty for %s: %w", id, err)
	}
	return u, nil
}

// Signup provisions an account for a guest checkout.
func (r *Repo) Signup(ctx context.Context, in Signup) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	address := []string{}
	if in.Address != "" {
		address = []string{in.Address}
	}
	u, err := scanUser(r.DB.QueryRow(ctx, `
		INSERT INTO users (id, email, full_name, password_hash, address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns, uuid.NewString(), in.Email, in.FullName, string(hash), address))
	if err != nil {
		return User{}, fmt.Errorf("signup %s: %w", in.Email, err)
	}
	return u, nil
}

func (r *Repo) Stream(ctx context.Context, fn func(id string, doc any) error) error {
	rows, err := r.DB.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var all []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return err
		}
		all = append(all, u)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, u := range all {
		if err := fn(u.ID, u); err != nil {
			return err
		}
	}
	return nil
}
