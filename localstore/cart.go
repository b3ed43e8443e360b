// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AhmedSalahALghzaly/lats-go/catalog"
)

// Cart operations. The cart is purely local: it never enters the
// pending queue and is never overwritten by a pull. A quantity reaching
// zero removes the row, quantity-0 items must not linger.

// CartItems returns the cart contents.
func (s *Store) CartItems(ctx context.Context) ([]catalog.CartItem, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT product_id, quantity, updated_at FROM cart_items ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart: %w", err)
	}
	defer rows.Close()

	var items []catalog.CartItem
	for rows.Next() {
		var item catalog.CartItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart: %w", err)
	}
	return items, nil
}

// AddToCart adds quantity units of a product, merging with any existing
// line.
func (s *Store) AddToCart(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", quantity)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.DB.ExecContext(ctx, `
		INSERT INTO cart_items (product_id, quantity, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET quantity = quantity + excluded.quantity, updated_at = excluded.updated_at
	`, productID, quantity, s.nowMillis()); err != nil {
		return fmt.Errorf("failed to add to cart: %w", err)
	}
	return nil
}

// SetCartQuantity sets the exact quantity of a cart line. Zero (or
// less) removes the line.
func (s *Store) SetCartQuantity(ctx context.Context, productID string, quantity int) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if quantity <= 0 {
		if _, err := s.DB.ExecContext(ctx,
			`DELETE FROM cart_items WHERE product_id = ?`, productID); err != nil {
			return fmt.Errorf("failed to remove cart item: %w", err)
		}
		return nil
	}
	if _, err := s.DB.ExecContext(ctx, `
		INSERT INTO cart_items (product_id, quantity, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET quantity = excluded.quantity, updated_at = excluded.updated_at
	`, productID, quantity, s.nowMillis()); err != nil {
		return fmt.Errorf("failed to set cart quantity: %w", err)
	}
	return nil
}

// DecrementCart lowers a cart line by one unit, deleting the row when
// it hits zero.
func (s *Store) DecrementCart(ctx context.Context, productID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var quantity int
	err = tx.QueryRowContext(ctx,
		`SELECT quantity FROM cart_items WHERE product_id = ?`, productID).Scan(&quantity)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read cart item: %w", err)
	}

	if quantity <= 1 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM cart_items WHERE product_id = ?`, productID); err != nil {
			return fmt.Errorf("failed to remove cart item: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			UPDATE cart_items SET quantity = quantity - 1, updated_at = ? WHERE product_id = ?
		`, s.nowMillis(), productID); err != nil {
			return fmt.Errorf("failed to decrement cart item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cart change: %w", err)
	}
	return nil
}

// RemoveFromCart drops a cart line regardless of quantity.
func (s *Store) RemoveFromCart(ctx context.Context, productID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.DB.ExecContext(ctx,
		`DELETE FROM cart_items WHERE product_id = ?`, productID); err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	return nil
}

// ClearCart empties the cart.
func (s *Store) ClearCart(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.DB.ExecContext(ctx, `DELETE FROM cart_items`); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
