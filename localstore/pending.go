// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/AhmedSalahALghzaly/lats-go/catalog"
)

// PendingOp is one queued local mutation awaiting push.
type PendingOp struct {
	Seq      int64
	Table    string
	RecordID string
	Op       string
	Payload  json.RawMessage // nil for deletes
	Attempts int
	LastErr  string
	QueuedAt int64

	// ChangeID counts coalesced edits on this queue row. CompletePush
	// compares it against the row to detect an edit that landed while
	// the push was in flight.
	ChangeID int64
}

// PendingOps returns queued operations for one table in the order the
// mutations were made (seq order preserves causality: a create always
// precedes a later update to a record it references).
func (s *Store) PendingOps(ctx context.Context, table string, limit int) ([]PendingOp, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT seq, table_name, record_id, op, payload, attempts, COALESCE(last_error, ''), queued_at, change_id
		FROM _sync_pending
		WHERE table_name = ?
		ORDER BY seq
		LIMIT ?
	`, table, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending ops: %w", err)
	}
	defer rows.Close()

	var ops []PendingOp
	for rows.Next() {
		var op PendingOp
		var payload sql.NullString
		if err := rows.Scan(&op.Seq, &op.Table, &op.RecordID, &op.Op, &payload, &op.Attempts, &op.LastErr, &op.QueuedAt, &op.ChangeID); err != nil {
			return nil, fmt.Errorf("failed to scan pending op: %w", err)
		}
		if payload.Valid {
			op.Payload = json.RawMessage(payload.String)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending ops: %w", err)
	}
	return ops, nil
}

// PendingCount reports the queue depth for a table.
func (s *Store) PendingCount(ctx context.Context, table string) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM _sync_pending WHERE table_name = ?`, table).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending ops: %w", err)
	}
	return count, nil
}

// CompletePush removes a confirmed operation from the queue and settles
// the record's state: updates go clean, deletes purge the tombstone.
//
// The dequeue matches the change counter captured when the op was read.
// A mismatch means the user edited the record while the push was in
// flight: the newer queue row survives, the record stays dirty, and a
// confirmed create downgrades the row to an update since the record
// now exists on the server.
func (s *Store) CompletePush(ctx context.Context, op PendingOp) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM _sync_pending WHERE seq = ? AND change_id = ?`, op.Seq, op.ChangeID)
	if err != nil {
		return fmt.Errorf("failed to dequeue pending op: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check dequeue result: %w", err)
	}
	if affected == 0 {
		if op.Op == OpCreate {
			if _, err := tx.ExecContext(ctx,
				`UPDATE _sync_pending SET op = ? WHERE seq = ?`, OpUpdate, op.Seq); err != nil {
				return fmt.Errorf("failed to downgrade confirmed create: %w", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit push completion: %w", err)
		}
		return nil
	}
	if op.Op == OpDelete {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM _sync_row_state WHERE table_name = ? AND record_id = ?`, op.Table, op.RecordID); err != nil {
			return fmt.Errorf("failed to purge tombstone: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			UPDATE _sync_row_state SET dirty = 0 WHERE table_name = ? AND record_id = ?
		`, op.Table, op.RecordID); err != nil {
			return fmt.Errorf("failed to mark record clean: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit push completion: %w", err)
	}
	return nil
}

// RecordPushAttempt increments the attempt counter after a transient
// failure so the push loop can enforce its retry bound.
func (s *Store) RecordPushAttempt(ctx context.Context, seq int64, pushErr error) error {
	msg := ""
	if pushErr != nil {
		msg = pushErr.Error()
	}
	if _, err := s.DB.ExecContext(ctx, `
		UPDATE _sync_pending SET attempts = attempts + 1, last_error = ? WHERE seq = ?
	`, msg, seq); err != nil {
		return fmt.Errorf("failed to record push attempt: %w", err)
	}
	return nil
}

// DiscardPending cancels a queued operation without pushing it, used
// when the user explicitly abandons an offline change.
func (s *Store) DiscardPending(ctx context.Context, table, id string) error {
	if _, err := s.DB.ExecContext(ctx,
		`DELETE FROM _sync_pending WHERE table_name = ? AND record_id = ?`, table, id); err != nil {
		return fmt.Errorf("failed to discard pending op: %w", err)
	}
	return nil
}

// RemapID atomically replaces a temporary local identifier with the
// server-assigned one after a successful create push. The rewrite
// covers the business row, its sync state, queued operations keyed by
// the old id, every foreign-key column referencing the record in other
// business tables, and the same foreign keys inside not-yet-flushed
// pending payloads. Callers never observe both identifiers at once.
func (s *Store) RemapID(ctx context.Context, table, tempID, serverID string) error {
	if tempID == serverID {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin remap transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE "`+table+`" SET id = ? WHERE id = ?`, serverID, tempID); err != nil {
		return fmt.Errorf("failed to rekey %s row: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE _sync_row_state SET record_id = ? WHERE table_name = ? AND record_id = ?
	`, serverID, table, tempID); err != nil {
		return fmt.Errorf("failed to rekey row state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE _sync_pending SET record_id = ? WHERE table_name = ? AND record_id = ?
	`, serverID, table, tempID); err != nil {
		return fmt.Errorf("failed to rekey pending ops: %w", err)
	}

	for refTable, fks := range catalog.ReferencingKeys(table) {
		for _, fk := range fks {
			if err := s.rewriteForeignKeyInTx(ctx, tx, refTable, fk, tempID, serverID); err != nil {
				return err
			}
		}
	}

	// The id inside the record's own queued payload must match too.
	if err := s.rewritePendingPayloadIDInTx(ctx, tx, table, serverID, tempID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit remap: %w", err)
	}
	return nil
}

// rewriteForeignKeyInTx updates one FK column, both in the business
// table and in any pending payloads for that table.
func (s *Store) rewriteForeignKeyInTx(ctx context.Context, tx *sql.Tx, table string, fk catalog.ForeignKey, oldID, newID string) error {
	if fk.JSONArray {
		// JSON array columns store ids as a serialized list; rewrite
		// each affected row's document.
		rows, err := tx.QueryContext(ctx,
			`SELECT id, `+fk.Column+` FROM "`+table+`" WHERE `+fk.Column+` LIKE '%' || ? || '%'`, oldID)
		if err != nil {
			return fmt.Errorf("failed to scan %s.%s for remap: %w", table, fk.Column, err)
		}
		type rewrite struct{ id, doc string }
		var rewrites []rewrite
		for rows.Next() {
			var id string
			var doc sql.NullString
			if err := rows.Scan(&id, &doc); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan row for remap: %w", err)
			}
			if !doc.Valid {
				continue
			}
			updated, changed, err := rewriteIDArray(doc.String, oldID, newID)
			if err != nil {
				rows.Close()
				return fmt.Errorf("failed to rewrite %s.%s: %w", table, fk.Column, err)
			}
			if changed {
				rewrites = append(rewrites, rewrite{id: id, doc: updated})
			}
		}
		rows.Close()
		for _, rw := range rewrites {
			if _, err := tx.ExecContext(ctx,
				`UPDATE "`+table+`" SET `+fk.Column+` = ? WHERE id = ?`, rw.doc, rw.id); err != nil {
				return fmt.Errorf("failed to apply %s.%s remap: %w", table, fk.Column, err)
			}
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			`UPDATE "`+table+`" SET `+fk.Column+` = ? WHERE `+fk.Column+` = ?`, newID, oldID); err != nil {
			return fmt.Errorf("failed to rewrite %s.%s: %w", table, fk.Column, err)
		}
	}

	return s.rewritePendingFKInTx(ctx, tx, table, fk, oldID, newID)
}

// rewritePendingFKInTx patches queued payloads whose FK still carries
// the temporary id. These operations have not been sent yet; they must
// reference the server id once it exists.
func (s *Store) rewritePendingFKInTx(ctx context.Context, tx *sql.Tx, table string, fk catalog.ForeignKey, oldID, newID string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT seq, payload FROM _sync_pending
		WHERE table_name = ? AND payload IS NOT NULL AND payload LIKE '%' || ? || '%'
	`, table, oldID)
	if err != nil {
		return fmt.Errorf("failed to scan pending payloads for remap: %w", err)
	}
	type rewrite struct {
		seq     int64
		payload string
	}
	var rewrites []rewrite
	for rows.Next() {
		var seq int64
		var payload string
		if err := rows.Scan(&seq, &payload); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan pending payload: %w", err)
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(payload), &fields); err != nil {
			rows.Close()
			return fmt.Errorf("failed to parse pending payload: %w", err)
		}
		changed := false
		if fk.JSONArray {
			if list, ok := fields[fk.Column].([]any); ok {
				for i, v := range list {
					if sv, ok := v.(string); ok && sv == oldID {
						list[i] = newID
						changed = true
					}
				}
			}
		} else if sv, ok := fields[fk.Column].(string); ok && sv == oldID {
			fields[fk.Column] = newID
			changed = true
		}
		if changed {
			raw, err := json.Marshal(fields)
			if err != nil {
				rows.Close()
				return fmt.Errorf("failed to re-serialize pending payload: %w", err)
			}
			rewrites = append(rewrites, rewrite{seq: seq, payload: string(raw)})
		}
	}
	rows.Close()
	for _, rw := range rewrites {
		if _, err := tx.ExecContext(ctx,
			`UPDATE _sync_pending SET payload = ? WHERE seq = ?`, rw.payload, rw.seq); err != nil {
			return fmt.Errorf("failed to apply pending payload remap: %w", err)
		}
	}
	return nil
}

// rewritePendingPayloadIDInTx fixes the "id" field of the remapped
// record's own still-queued payload, if any.
func (s *Store) rewritePendingPayloadIDInTx(ctx context.Context, tx *sql.Tx, table, serverID, tempID string) error {
	var payload sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT payload FROM _sync_pending WHERE table_name = ? AND record_id = ?`,
		table, serverID).Scan(&payload)
	if err == sql.ErrNoRows || (err == nil && !payload.Valid) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load pending payload: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(payload.String), &fields); err != nil {
		return fmt.Errorf("failed to parse pending payload: %w", err)
	}
	if id, ok := fields["id"].(string); !ok || id != tempID {
		return nil
	}
	fields["id"] = serverID
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to re-serialize pending payload: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE _sync_pending SET payload = ? WHERE table_name = ? AND record_id = ?
	`, string(raw), table, serverID); err != nil {
		return fmt.Errorf("failed to update pending payload id: %w", err)
	}
	return nil
}

func rewriteIDArray(doc, oldID, newID string) (string, bool, error) {
	var list []any
	if err := json.Unmarshal([]byte(doc), &list); err != nil {
		return "", false, err
	}
	changed := false
	for i, v := range list {
		if sv, ok := v.(string); ok && sv == oldID {
			list[i] = newID
			changed = true
		}
	}
	if !changed {
		return doc, false, nil
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return "", false, err
	}
	return string(raw), true, nil
}
