package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrInsufficientBalance is returned by Decrement when the balance would go
// negative.
var ErrInsufficientBalance = errors.New("insufficient balance")

// EnsureUser creates the user with an initial credit balance if it does not
// exist yet. Existing balances are left untouched.
func (d *DB) EnsureUser(ctx context.Context, userID string, initialCredits int) error {
	if initialCredits < 0 {
		initialCredits = 0
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO users (id, credits, created_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		userID, initialCredits, d.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("ensuring user: %w", err)
	}
	return nil
}

// Balance returns the user's credit balance.
func (d *DB) Balance(ctx context.Context, userID string) (int, error) {
	var credits int
	err := d.db.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = ?`, userID).Scan(&credits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("reading balance: %w", err)
	}
	return credits, nil
}

// Decrement atomically subtracts n credits. The balance never goes negative:
// when fewer than n credits remain nothing changes and ErrInsufficientBalance
// is returned.
func (d *DB) Decrement(ctx context.Context, userID string, n int) error {
	if n < 0 {
		return fmt.Errorf("decrement by negative amount %d", n)
	}
	res, err := d.db.ExecContext(ctx,
		`UPDATE users SET credits = credits - ? WHERE id = ? AND credits >= ?`,
		n, userID, n,
	)
	if err != nil {
		return fmt.Errorf("decrementing credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if affected == 0 {
		if _, err := d.Balance(ctx, userID); err != nil {
			return err
		}
		return ErrInsufficientBalance
	}
	return nil
}

// Grant adds n credits to the user's balance.
func (d *DB) Grant(ctx context.Context, userID string, n int) error {
	if n < 0 {
		return fmt.Errorf("grant of negative amount %d", n)
	}
	res, err := d.db.ExecContext(ctx, `UPDATE users SET credits = credits + ? WHERE id = ?`, n, userID)
	if err != nil {
		return fmt.Errorf("granting credits: %w", err)
	}
	return expectOne(res, "user", userID)
}
