// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AhmedSalahALghzaly/lats-go/catalog"
	"github.com/AhmedSalahALghzaly/lats-go/localstore"
	"github.com/AhmedSalahALghzaly/lats-go/remote"
)

// PushTable replays queued local mutations for one table against the
// remote API, in the order the mutations were made.
//
// Operations are dequeued one at a time so every send observes the
// latest payload: a create in another table may have just remapped a
// temporary foreign key inside this table's queued payloads. An
// operation whose payload still references a temporary id owned by a
// different table is deferred to a later pass; its parent create has
// not been confirmed yet.
//
// Failure handling follows the error taxonomy: permanent (validation)
// failures flag the record inconsistent immediately and are never
// retried; transient failures abort the pass (the caller's backoff
// retries the whole table) and are bounded per operation, after which
// the operation is marked failed too.
func (e *Engine) PushTable(ctx context.Context, table string) error {
	mu := e.lockTable(table)
	mu.Lock()
	defer mu.Unlock()

	for drained := 0; drained < e.config.PushLimit; {
		ops, err := e.store.PendingOps(ctx, table, e.config.PushLimit)
		if err != nil {
			return err
		}
		progressed := false
		for _, op := range ops {
			deferred, err := e.processOp(ctx, op)
			if err != nil {
				return err
			}
			if deferred {
				continue
			}
			progressed = true
			drained++
			break // re-read the queue, payloads may have been remapped
		}
		if !progressed {
			return nil
		}
	}
	return nil
}

// processOp sends one queued operation. Returns deferred=true when the
// operation cannot be sent yet because it references an unconfirmed
// temporary id of another table.
func (e *Engine) processOp(ctx context.Context, op localstore.PendingOp) (deferred bool, err error) {
	if op.Op != localstore.OpDelete {
		unresolved, err := e.hasUnresolvedRefs(op)
		if err != nil {
			return false, err
		}
		if unresolved {
			e.logger.Debug("deferring push, payload references unconfirmed id",
				"table", op.Table, "id", op.RecordID)
			return true, nil
		}
	}

	if op.Attempts >= e.config.MaxAttempts {
		e.logger.Warn("push retries exhausted, flagging record",
			"table", op.Table, "id", op.RecordID, "attempts", op.Attempts, "error", op.LastErr)
		return false, e.store.MarkFailed(ctx, op.Table, op.RecordID,
			fmt.Sprintf("push failed after %d attempts: %s", op.Attempts, op.LastErr))
	}

	switch op.Op {
	case localstore.OpCreate:
		created, err := e.remote.Create(ctx, op.Table, op.Payload)
		if err != nil {
			return false, e.handlePushError(ctx, op, err)
		}
		// Replace the temporary id everywhere, including foreign keys
		// inside not-yet-flushed pending operations, before anything
		// dependent is dequeued.
		if err := e.store.RemapID(ctx, op.Table, op.RecordID, created.ID); err != nil {
			return false, err
		}
		op.RecordID = created.ID
		if err := e.store.CompletePush(ctx, op); err != nil {
			return false, err
		}
		e.invalidate(op.Table)
		return false, nil

	case localstore.OpUpdate:
		if err := e.remote.Update(ctx, op.Table, op.RecordID, op.Payload); err != nil {
			return false, e.handlePushError(ctx, op, err)
		}
		return false, e.store.CompletePush(ctx, op)

	case localstore.OpDelete:
		if err := e.remote.Delete(ctx, op.Table, op.RecordID); err != nil {
			return false, e.handlePushError(ctx, op, err)
		}
		return false, e.store.CompletePush(ctx, op)

	default:
		return false, fmt.Errorf("unknown pending operation %q", op.Op)
	}
}

// handlePushError classifies a push failure. Permanent failures flag
// the record and let the pass continue with nil; transient failures
// bump the attempt counter and abort the pass with the error.
func (e *Engine) handlePushError(ctx context.Context, op localstore.PendingOp, pushErr error) error {
	if remote.IsPermanent(pushErr) {
		e.logger.Warn("push rejected permanently, flagging record",
			"table", op.Table, "id", op.RecordID, "error", pushErr)
		return e.store.MarkFailed(ctx, op.Table, op.RecordID, pushErr.Error())
	}
	if err := e.store.RecordPushAttempt(ctx, op.Seq, pushErr); err != nil {
		return err
	}
	return fmt.Errorf("failed to push %s.%s: %w", op.Table, op.RecordID, pushErr)
}

// hasUnresolvedRefs reports whether the payload still references a
// temporary id through a foreign key owned by another table.
func (e *Engine) hasUnresolvedRefs(op localstore.PendingOp) (bool, error) {
	tbl, ok := catalog.TableByName(op.Table)
	if !ok || len(tbl.ForeignKeys) == 0 || op.Payload == nil {
		return false, nil
	}
	var fields map[string]any
	if err := json.Unmarshal(op.Payload, &fields); err != nil {
		return false, fmt.Errorf("failed to parse pending payload for %s.%s: %w", op.Table, op.RecordID, err)
	}
	for _, fk := range tbl.ForeignKeys {
		if fk.RefTable == op.Table {
			continue // self references are created by this very push
		}
		if fk.JSONArray {
			if list, ok := fields[fk.Column].([]any); ok {
				for _, v := range list {
					if sv, ok := v.(string); ok && localstore.IsTempID(sv) {
						return true, nil
					}
				}
			}
		} else if sv, ok := fields[fk.Column].(string); ok && localstore.IsTempID(sv) {
			return true, nil
		}
	}
	return false, nil
}
