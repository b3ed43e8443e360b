// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/AhmedSalahALghzaly/lats-go/catalog"
)

// PullTable fetches every server change for one table past the table's
// watermark and merges it into the local store. The whole batch and the
// cursor advance commit in a single transaction, so a failure mid-batch
// leaves the cursor untouched and the next pull retries from the same
// watermark. Applying the same batch twice is a no-op (overwrite or
// skip, never additive).
//
// Merge rules per record:
//   - no local copy            -> insert
//   - local copy, clean        -> overwrite
//   - local copy, dirty        -> server wins only with a strictly newer
//     updated_at; ties keep the local copy (it has not been pushed yet)
//   - local copy flagged failed -> never overwritten, the user's edit is
//     preserved for manual resolution
//
// The cursor advances to the maximum updated_at observed in the batch,
// never to wall-clock time, so client/server clock skew cannot skip
// changes. It also stays below any server copy a failed record held
// back, so resolving the failure with "discard" re-fetches that copy.
func (e *Engine) PullTable(ctx context.Context, table string) (applied int, err error) {
	mu := e.lockTable(table)
	mu.Lock()
	defer mu.Unlock()

	cursor, err := e.store.Cursor(ctx, table)
	if err != nil {
		return 0, err
	}

	resp, err := e.remote.Pull(ctx, cursor, []string{table})
	if err != nil {
		return 0, fmt.Errorf("failed to pull %s: %w", table, err)
	}
	changes, ok := resp.Changes[table]
	if !ok {
		return 0, nil
	}
	records := make([]json.RawMessage, 0, len(changes.Created)+len(changes.Updated))
	records = append(records, changes.Created...)
	records = append(records, changes.Updated...)
	if len(records) == 0 && len(changes.Deleted) == 0 {
		return 0, nil
	}

	// The parent-structure snapshot is taken before the batch
	// transaction opens; it reads through the store's own connection.
	guard, err := e.newCycleGuard(ctx, table, records)
	if err != nil {
		return 0, err
	}

	err = e.store.WriteTx(ctx, func(tx *sql.Tx) error {
		var maxUpdated int64
		var shieldAt int64 // lowest updated_at held back by a failed record

		for _, raw := range records {
			var fields map[string]any
			if err := json.Unmarshal(raw, &fields); err != nil {
				return fmt.Errorf("failed to parse pulled %s record: %w", table, err)
			}
			id, _ := fields["id"].(string)
			if id == "" {
				return fmt.Errorf("pulled %s record is missing id", table)
			}
			remoteUpdated := fieldInt64(fields, "updated_at")

			if guard != nil && !guard.admissible(id, fields) {
				e.logger.Warn("rejecting pulled record, parent chain forms a cycle",
					"table", table, "id", id)
				if remoteUpdated > maxUpdated {
					maxUpdated = remoteUpdated
				}
				continue
			}

			ok, shielded, err := e.shouldApply(ctx, tx, table, id, remoteUpdated)
			if err != nil {
				return err
			}
			if shielded {
				// The server copy was held back by a failed record. The
				// cursor must stay below it so a later pull can re-fetch
				// it once the user resolves the failure.
				if shieldAt == 0 || remoteUpdated < shieldAt {
					shieldAt = remoteUpdated
				}
				continue
			}
			if remoteUpdated > maxUpdated {
				maxUpdated = remoteUpdated
			}
			if !ok {
				continue
			}
			if err := e.store.ApplyRemoteInTx(ctx, tx, table, fields); err != nil {
				return err
			}
			applied++
		}

		for _, id := range changes.Deleted {
			ok, err := e.shouldApplyDelete(ctx, tx, table, id)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := e.store.ApplyRemoteDeleteInTx(ctx, tx, table, id); err != nil {
				return err
			}
			applied++
		}

		// Deletions carry no timestamps; when a batch holds nothing
		// else, the server's stamp is the only watermark available.
		if maxUpdated == 0 && len(changes.Deleted) > 0 {
			maxUpdated = resp.Timestamp
		}
		if shieldAt > 0 && maxUpdated >= shieldAt {
			maxUpdated = shieldAt - 1
		}
		if maxUpdated > cursor {
			if err := e.store.AdvanceCursorInTx(ctx, tx, table, maxUpdated); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if applied > 0 {
		e.invalidate(table)
	}
	return applied, nil
}

// shouldApply decides whether a pulled record overwrites the local row.
// shielded reports a skip caused by the record's failed flag; such a
// skip must also keep the cursor from passing the server copy, because
// discarding the failed edit later relies on re-pulling it.
func (e *Engine) shouldApply(ctx context.Context, tx *sql.Tx, table, id string, remoteUpdated int64) (apply, shielded bool, err error) {
	state, exists, err := e.store.RowStateTx(ctx, tx, table, id)
	if err != nil {
		return false, false, err
	}
	if !exists {
		return true, false, nil
	}
	if state.Failed {
		// A permanently failed push means the user has an unsynced edit
		// under review; a pull must not silently discard it.
		return false, true, nil
	}
	if !state.Dirty {
		return true, false, nil
	}
	// Conflict: last write wins, ties favor the unpushed local copy.
	if remoteUpdated > state.UpdatedAt {
		e.logger.Debug("remote edit is newer, overwriting dirty local copy",
			"table", table, "id", id, "local", state.UpdatedAt, "remote", remoteUpdated)
		return true, false, nil
	}
	return false, false, nil
}

// shouldApplyDelete guards remote deletions: a record with queued local
// work or a failure flag survives until its push settles.
func (e *Engine) shouldApplyDelete(ctx context.Context, tx *sql.Tx, table, id string) (bool, error) {
	state, exists, err := e.store.RowStateTx(ctx, tx, table, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return true, nil
	}
	if state.Failed || state.Dirty {
		return false, nil
	}
	return true, nil
}

// cycleGuard rejects pulled records whose parent chain would loop. Only
// self-referential tables (categories) need one.
type cycleGuard struct {
	parentCol string
	parents   map[string]string // id -> parent id over (local ∪ incoming)
}

func (e *Engine) newCycleGuard(ctx context.Context, table string, incoming []json.RawMessage) (*cycleGuard, error) {
	tbl, ok := catalog.TableByName(table)
	if !ok {
		return nil, fmt.Errorf("unknown table %s", table)
	}
	parentCol := ""
	for _, fk := range tbl.ForeignKeys {
		if fk.RefTable == table && !fk.JSONArray {
			parentCol = fk.Column
			break
		}
	}
	if parentCol == "" {
		return nil, nil
	}

	guard := &cycleGuard{parentCol: parentCol, parents: make(map[string]string)}

	existing, err := e.store.List(ctx, table, nil)
	if err != nil {
		return nil, err
	}
	for _, fields := range existing {
		id, _ := fields["id"].(string)
		parent, _ := fields[parentCol].(string)
		guard.parents[id] = parent
	}
	for _, raw := range incoming {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			continue // surfaced later by the main parse
		}
		id, _ := fields["id"].(string)
		parent, _ := fields[parentCol].(string)
		if id != "" {
			guard.parents[id] = parent
		}
	}
	return guard, nil
}

// admissible walks the record's parent chain; revisiting any node means
// the incoming structure would introduce a cycle and the record is
// rejected rather than silently looping at display time.
func (g *cycleGuard) admissible(id string, fields map[string]any) bool {
	parent, _ := fields[g.parentCol].(string)
	seen := map[string]bool{id: true}
	for parent != "" {
		if seen[parent] {
			return false
		}
		seen[parent] = true
		parent = g.parents[parent]
	}
	return true
}

func fieldInt64(fields map[string]any, key string) int64 {
	switch n := fields[key].(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
