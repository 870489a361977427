package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"storefront/internal/domain"
)

// Carts implements repository.CartRepository.
type Carts struct{ pool *pgxpool.Pool }

func NewCarts(pool *pgxpool.Pool) *Carts { return &Carts{pool: pool} }

func (r *Carts) Snapshot(ctx context.Context, userID string) ([]domain.CartLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_id, quantity FROM cart_lines WHERE user_id = $1 ORDER BY added_at, product_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		var l domain.CartLine
		if err := rows.Scan(&l.ProductID, &l.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *Carts) SetLine(ctx context.Context, userID string, line domain.CartLine) error {
	if line.Quantity <= 0 {
		_, err := r.pool.Exec(ctx, `DELETE FROM cart_lines WHERE user_id = $1 AND product_id = $2`, userID, line.ProductID)
		if err != nil {
			return fmt.Errorf("failed to remove cart line: %w", err)
		}
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO cart_lines (user_id, product_id, quantity, added_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity
	`, userID, line.ProductID, line.Quantity)
	if err != nil {
		return fmt.Errorf("failed to upsert cart line: %w", err)
	}
	return nil
}

func (r *Carts) Clear(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM cart_lines WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
