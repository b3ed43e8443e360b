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

// RowState is the sync bookkeeping attached to one record.
type RowState struct {
	Dirty     bool
	Deleted   bool
	Failed    bool
	FailMsg   string
	UpdatedAt int64
}

// Put inserts or replaces a record by its "id" field and marks it dirty
// and queued for push. Records written by the pull reconciler go
// through ApplyRemoteInTx instead, which marks them clean.
//
// The record's updated_at is bumped to now (never backwards; a clock
// that jumped behind the previous write keeps the previous value).
func (s *Store) Put(ctx context.Context, table string, fields map[string]any) error {
	id, ok := fields["id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("record for table %s is missing id", table)
	}
	tbl, ok := catalog.TableByName(table)
	if !ok {
		return fmt.Errorf("unknown table %s", table)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var prevUpdated int64
	_ = tx.QueryRowContext(ctx,
		`SELECT updated_at FROM _sync_row_state WHERE table_name = ? AND record_id = ?`,
		table, id).Scan(&prevUpdated)

	updatedAt := s.nowMillis()
	if updatedAt < prevUpdated {
		updatedAt = prevUpdated
	}
	// Stamp a copy; the caller's map stays untouched.
	stamped := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		stamped[k] = v
	}
	stamped["updated_at"] = updatedAt
	fields = stamped

	if err := s.upsertRowInTx(ctx, tx, table, fields); err != nil {
		return err
	}

	if !tbl.Syncable {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit put: %w", err)
		}
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO _sync_row_state (table_name, record_id, dirty, deleted, failed, fail_msg, updated_at)
		VALUES (?, ?, 1, 0,
			COALESCE((SELECT failed FROM _sync_row_state WHERE table_name = ? AND record_id = ?), 0),
			(SELECT fail_msg FROM _sync_row_state WHERE table_name = ? AND record_id = ?),
			?)
	`, table, id, table, id, table, id, updatedAt); err != nil {
		return fmt.Errorf("failed to update row state: %w", err)
	}

	if err := s.queueMutationInTx(ctx, tx, table, id, fields); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit put: %w", err)
	}
	return nil
}

// queueMutationInTx records a create/update operation in the pending
// queue, coalescing with any operation already queued for the record:
// a second write on top of a pending create stays a create, anything
// else becomes (or stays) an update with the fresh payload.
func (s *Store) queueMutationInTx(ctx context.Context, tx *sql.Tx, table, id string, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to serialize payload for %s.%s: %w", table, id, err)
	}

	var pendingOp string
	err = tx.QueryRowContext(ctx,
		`SELECT op FROM _sync_pending WHERE table_name = ? AND record_id = ?`,
		table, id).Scan(&pendingOp)
	switch {
	case err == sql.ErrNoRows:
		op := OpUpdate
		if IsTempID(id) {
			op = OpCreate
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO _sync_pending (table_name, record_id, op, payload, queued_at)
			VALUES (?, ?, ?, ?, ?)
		`, table, id, op, string(payload), s.nowMillis()); err != nil {
			return fmt.Errorf("failed to queue %s for %s.%s: %w", op, table, id, err)
		}
	case err != nil:
		return fmt.Errorf("failed to check pending op: %w", err)
	default:
		// Keep the original op and seq, refresh the payload. A pending
		// delete followed by a write means the record was re-added. The
		// change counter tells an in-flight push its payload is stale.
		op := pendingOp
		if op == OpDelete {
			op = OpUpdate
			if IsTempID(id) {
				op = OpCreate
			}
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE _sync_pending SET op = ?, payload = ?, last_error = NULL, change_id = change_id + 1
			WHERE table_name = ? AND record_id = ?
		`, op, string(payload), table, id); err != nil {
			return fmt.Errorf("failed to coalesce pending op: %w", err)
		}
	}
	return nil
}

// Get returns one record by id. Tombstoned records are gone from the
// business table and therefore report ErrNotFound.
func (s *Store) Get(ctx context.Context, table, id string) (map[string]any, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT * FROM "`+table+`" WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", table, err)
		}
		return nil, ErrNotFound
	}
	fields, err := scanRowToMap(rows)
	if err != nil {
		return nil, err
	}
	return catalog.DecodeRow(table, fields)
}

// List returns every record of a table, optionally filtered by a
// predicate over the decoded field map. Reads never block on network.
func (s *Store) List(ctx context.Context, table string, pred func(map[string]any) bool) ([]map[string]any, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT * FROM "`+table+`"`)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		fields, err := scanRowToMap(rows)
		if err != nil {
			return nil, err
		}
		decoded, err := catalog.DecodeRow(table, fields)
		if err != nil {
			return nil, err
		}
		if pred == nil || pred(decoded) {
			out = append(out, decoded)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", table, err)
	}
	return out, nil
}

// Delete tombstones a syncable record: the business row disappears from
// reads immediately while the row state keeps a deleted marker and the
// pending queue carries the delete until the server confirms it. A
// record that only ever existed locally (pending create) is purged
// outright, the server never heard of it.
func (s *Store) Delete(ctx context.Context, table, id string) error {
	tbl, ok := catalog.TableByName(table)
	if !ok {
		return fmt.Errorf("unknown table %s", table)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM "`+table+`" WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}

	if tbl.Syncable {
		var pendingOp string
		err := tx.QueryRowContext(ctx,
			`SELECT op FROM _sync_pending WHERE table_name = ? AND record_id = ?`,
			table, id).Scan(&pendingOp)
		switch {
		case err == nil && pendingOp == OpCreate:
			// Never pushed: cancel the create and forget the record.
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM _sync_pending WHERE table_name = ? AND record_id = ?`, table, id); err != nil {
				return fmt.Errorf("failed to cancel pending create: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM _sync_row_state WHERE table_name = ? AND record_id = ?`, table, id); err != nil {
				return fmt.Errorf("failed to purge row state: %w", err)
			}
		case err == nil || err == sql.ErrNoRows:
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO _sync_pending (table_name, record_id, op, payload, queued_at)
				VALUES (?, ?, 'delete', NULL, ?)
				ON CONFLICT(table_name, record_id) DO UPDATE SET op = 'delete', payload = NULL, last_error = NULL, change_id = change_id + 1
			`, table, id, s.nowMillis()); err != nil {
				return fmt.Errorf("failed to queue delete: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO _sync_row_state (table_name, record_id, dirty, deleted, failed, fail_msg, updated_at)
				VALUES (?, ?, 1, 1, 0, NULL, ?)
			`, table, id, s.nowMillis()); err != nil {
				return fmt.Errorf("failed to tombstone row state: %w", err)
			}
		default:
			return fmt.Errorf("failed to check pending op: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// RowState returns the sync flags of one record.
func (s *Store) RowState(ctx context.Context, table, id string) (RowState, bool, error) {
	var st RowState
	var failMsg sql.NullString
	err := s.DB.QueryRowContext(ctx, `
		SELECT dirty, deleted, failed, fail_msg, updated_at
		FROM _sync_row_state WHERE table_name = ? AND record_id = ?
	`, table, id).Scan(&st.Dirty, &st.Deleted, &st.Failed, &failMsg, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return RowState{}, false, nil
	}
	if err != nil {
		return RowState{}, false, fmt.Errorf("failed to query row state: %w", err)
	}
	st.FailMsg = failMsg.String
	return st, true, nil
}

// RowStateTx is RowState inside an existing transaction; the pull
// reconciler uses it so conflict decisions and writes stay atomic.
func (s *Store) RowStateTx(ctx context.Context, tx *sql.Tx, table, id string) (RowState, bool, error) {
	var st RowState
	var failMsg sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT dirty, deleted, failed, fail_msg, updated_at
		FROM _sync_row_state WHERE table_name = ? AND record_id = ?
	`, table, id).Scan(&st.Dirty, &st.Deleted, &st.Failed, &failMsg, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return RowState{}, false, nil
	}
	if err != nil {
		return RowState{}, false, fmt.Errorf("failed to query row state: %w", err)
	}
	st.FailMsg = failMsg.String
	return st, true, nil
}

// MarkFailed flags a record as inconsistent after a permanent push
// failure. The pending operation is dropped (it will not be retried)
// and the record keeps its dirty local content, shielded from pull
// overwrite, until the user resolves it.
func (s *Store) MarkFailed(ctx context.Context, table, id, msg string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM _sync_pending WHERE table_name = ? AND record_id = ?`, table, id); err != nil {
		return fmt.Errorf("failed to drop failed pending op: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE _sync_row_state SET failed = 1, fail_msg = ? WHERE table_name = ? AND record_id = ?
	`, msg, table, id); err != nil {
		return fmt.Errorf("failed to flag record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit failure flag: %w", err)
	}
	return nil
}

// ResolveFailed clears the inconsistent flag of a record. With
// keepLocal the current local content is re-queued for push; otherwise
// the local edit is abandoned and the next pull overwrites the record.
func (s *Store) ResolveFailed(ctx context.Context, table, id string, keepLocal bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if keepLocal {
		rows, err := tx.QueryContext(ctx, `SELECT * FROM "`+table+`" WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to load record: %w", err)
		}
		if !rows.Next() {
			rows.Close()
			return ErrNotFound
		}
		fields, err := scanRowToMap(rows)
		rows.Close()
		if err != nil {
			return err
		}
		decoded, err := catalog.DecodeRow(table, fields)
		if err != nil {
			return err
		}
		if err := s.queueMutationInTx(ctx, tx, table, id, decoded); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE _sync_row_state SET failed = 0, fail_msg = NULL, dirty = 1
			WHERE table_name = ? AND record_id = ?
		`, table, id); err != nil {
			return fmt.Errorf("failed to clear failure flag: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM _sync_pending WHERE table_name = ? AND record_id = ?`, table, id); err != nil {
			return fmt.Errorf("failed to drop pending op: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE _sync_row_state SET failed = 0, fail_msg = NULL, dirty = 0
			WHERE table_name = ? AND record_id = ?
		`, table, id); err != nil {
			return fmt.Errorf("failed to clear failure flag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resolve: %w", err)
	}
	return nil
}

// ApplyRemoteInTx materializes a server record locally, marking it
// clean. Only the pull reconciler calls this, inside its batch
// transaction, after it has decided the server copy wins.
func (s *Store) ApplyRemoteInTx(ctx context.Context, tx *sql.Tx, table string, fields map[string]any) error {
	id, ok := fields["id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("server record for table %s is missing id", table)
	}
	if err := s.upsertRowInTx(ctx, tx, table, fields); err != nil {
		return err
	}
	var updatedAt int64
	if v, ok := fields["updated_at"]; ok {
		updatedAt = toInt64(v)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO _sync_row_state (table_name, record_id, dirty, deleted, failed, fail_msg, updated_at)
		VALUES (?, ?, 0, 0, 0, NULL, ?)
	`, table, id, updatedAt); err != nil {
		return fmt.Errorf("failed to mark row clean: %w", err)
	}
	// The server copy superseded whatever was queued for this record.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM _sync_pending WHERE table_name = ? AND record_id = ?`, table, id); err != nil {
		return fmt.Errorf("failed to drop superseded pending op: %w", err)
	}
	return nil
}

// ApplyRemoteDeleteInTx removes a record the server reports deleted,
// along with its sync bookkeeping.
func (s *Store) ApplyRemoteDeleteInTx(ctx context.Context, tx *sql.Tx, table, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM "`+table+`" WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM _sync_row_state WHERE table_name = ? AND record_id = ?`, table, id); err != nil {
		return fmt.Errorf("failed to purge row state: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM _sync_pending WHERE table_name = ? AND record_id = ?`, table, id); err != nil {
		return fmt.Errorf("failed to drop pending op: %w", err)
	}
	return nil
}

// upsertRowInTx builds an INSERT OR REPLACE from the field map. JSON
// document fields are flattened to strings first.
func (s *Store) upsertRowInTx(ctx context.Context, tx *sql.Tx, table string, fields map[string]any) error {
	encoded, err := catalog.EncodeRow(table, fields)
	if err != nil {
		return err
	}

	colStr := ""
	phStr := ""
	values := make([]any, 0, len(encoded))
	for col, val := range encoded {
		if colStr != "" {
			colStr += ", "
			phStr += ", "
		}
		colStr += col
		phStr += "?"
		values = append(values, val)
	}

	query := fmt.Sprintf(`INSERT OR REPLACE INTO "%s" (%s) VALUES (%s)`, table, colStr, phStr)
	if _, err := tx.ExecContext(ctx, query, values...); err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", table, err)
	}
	return nil
}

// scanRowToMap scans the current row of a SELECT * result into a field
// map, converting []byte values to strings.
func scanRowToMap(rows *sql.Rows) (map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}
	fields := make(map[string]any, len(columns))
	for i, col := range columns {
		val := values[i]
		if b, ok := val.([]byte); ok {
			fields[col] = string(b)
		} else {
			fields[col] = val
		}
	}
	return fields, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
