// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"context"
	"database/sql"
	"fmt"
)

// Cursor returns the pull watermark for a table in Unix milliseconds.
// A table that has never been pulled reports 0, which forces a full
// pull.
func (s *Store) Cursor(ctx context.Context, table string) (int64, error) {
	var lastPulledAt int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT last_pulled_at FROM _sync_cursor WHERE table_name = ?`, table).Scan(&lastPulledAt)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query cursor for %s: %w", table, err)
	}
	return lastPulledAt, nil
}

// AdvanceCursorInTx moves a table's watermark forward. It runs inside
// the pull batch transaction so the cursor never outruns durably
// applied records; it never moves backwards.
func (s *Store) AdvanceCursorInTx(ctx context.Context, tx *sql.Tx, table string, lastPulledAt int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO _sync_cursor (table_name, last_pulled_at) VALUES (?, ?)
		ON CONFLICT(table_name) DO UPDATE SET last_pulled_at = excluded.last_pulled_at
		WHERE excluded.last_pulled_at > _sync_cursor.last_pulled_at
	`, table, lastPulledAt); err != nil {
		return fmt.Errorf("failed to advance cursor for %s: %w", table, err)
	}
	return nil
}

// WriteTx runs fn inside a write transaction while holding the store's
// write lock. The pull reconciler uses this to apply a whole batch and
// its cursor advance atomically.
func (s *Store) WriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}
