// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AhmedSalahALghzaly/lats-go/catalog"
)

func TestPutAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := NewLocalID()
	require.NoError(t, store.Put(ctx, catalog.TableCategories, map[string]any{
		"id": id, "name": "Engine", "name_ar": "محرك", "sort_order": 3,
	}))

	fields, err := store.Get(ctx, catalog.TableCategories, id)
	require.NoError(t, err)
	require.Equal(t, "Engine", fields["name"])
	require.Equal(t, int64(3), fields["sort_order"])
	require.Greater(t, fields["updated_at"], int64(0))

	state, exists, err := store.RowState(ctx, catalog.TableCategories, id)
	require.NoError(t, err)
	require.True(t, exists)
	require.True(t, state.Dirty)
	require.False(t, state.Deleted)
	require.False(t, state.Failed)
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), catalog.TableCategories, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPutRequiresID(t *testing.T) {
	store := newTestStore(t)
	err := store.Put(context.Background(), catalog.TableCategories, map[string]any{"name": "x"})
	require.Error(t, err)
}

// TestPutMonotonicUpdatedAt verifies that a clock jumping backwards
// cannot produce a write stamped older than the previous one.
func TestPutMonotonicUpdatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := NewLocalID()

	base := time.Now()
	store.now = func() time.Time { return base }
	require.NoError(t, store.Put(ctx, catalog.TableCategories, map[string]any{
		"id": id, "name": "Engine", "name_ar": "",
	}))

	state, _, err := store.RowState(ctx, catalog.TableCategories, id)
	require.NoError(t, err)
	first := state.UpdatedAt

	// Clock jumps two minutes into the past.
	store.now = func() time.Time { return base.Add(-2 * time.Minute) }
	require.NoError(t, store.Put(ctx, catalog.TableCategories, map[string]any{
		"id": id, "name": "Engine v2", "name_ar": "",
	}))

	state, _, err = store.RowState(ctx, catalog.TableCategories, id)
	require.NoError(t, err)
	require.GreaterOrEqual(t, state.UpdatedAt, first)
}

func TestPutLeavesCallerFieldsUntouched(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fields := map[string]any{"id": "srv-1", "name": "Engine", "name_ar": ""}
	require.NoError(t, store.Put(ctx, catalog.TableCategories, fields))

	require.NotContains(t, fields, "updated_at", "the timestamp goes on an internal copy")
	require.Len(t, fields, 3)
}

func pendingFor(t *testing.T, store *Store, table, id string) (PendingOp, bool) {
	t.Helper()
	ops, err := store.PendingOps(context.Background(), table, 100)
	require.NoError(t, err)
	for _, op := range ops {
		if op.RecordID == id {
			return op, true
		}
	}
	return PendingOp{}, false
}

func TestQueueCoalescesCreateThenUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := NewLocalID()

	require.NoError(t, store.Put(ctx, catalog.TableCategories, map[string]any{
		"id": id, "name": "v1", "name_ar": "",
	}))
	require.NoError(t, store.Put(ctx, catalog.TableCategories, map[string]any{
		"id": id, "name": "v2", "name_ar": "",
	}))

	op, ok := pendingFor(t, store, catalog.TableCategories, id)
	require.True(t, ok)
	require.Equal(t, OpCreate, op.Op, "never-pushed record stays a create")

	var payload map[string]any
	require.NoError(t, json.Unmarshal(op.Payload, &payload))
	require.Equal(t, "v2", payload["name"], "payload must carry the latest content")

	count, err := store.PendingCount(ctx, catalog.TableCategories)
	require.NoError(t, err)
	require.Equal(t, 1, count, "one record, one queued op")
}

func TestQueueServerIDWriteIsUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, catalog.TableCategories, map[string]any{
		"id": "srv-1", "name": "Engine", "name_ar": "",
	}))

	op, ok := pendingFor(t, store, catalog.TableCategories, "srv-1")
	require.True(t, ok)
	require.Equal(t, OpUpdate, op.Op)
}

func TestDeleteCancelsPendingCreate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := NewLocalID()

	require.NoError(t, store.Put(ctx, catalog.TableCategories, map[string]any{
		"id": id, "name": "Engine", "name_ar": "",
	}))
	require.NoError(t, store.Delete(ctx, catalog.TableCategories, id))

	// Server never heard of the record: no tombstone, no queued op.
	count, err := store.PendingCount(ctx, catalog.TableCategories)
	require.NoError(t, err)
	require.Zero(t, count)

	_, exists, err := store.RowState(ctx, catalog.TableCategories, id)
	require.NoError(t, err)
	require.False(t, exists)

	_, err = store.Get(ctx, catalog.TableCategories, id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteTombstonesSyncedRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedRemote(t, store, catalog.TableCategories, map[string]any{
		"id": "srv-1", "name": "Engine", "name_ar": "", "updated_at": int64(100),
	})
	require.NoError(t, store.Delete(ctx, catalog.TableCategories, "srv-1"))

	_, err := store.Get(ctx, catalog.TableCategories, "srv-1")
	require.ErrorIs(t, err, ErrNotFound, "tombstoned record must vanish from reads")

	op, ok := pendingFor(t, store, catalog.TableCategories, "srv-1")
	require.True(t, ok)
	require.Equal(t, OpDelete, op.Op)
	require.Nil(t, op.Payload)

	state, exists, err := store.RowState(ctx, catalog.TableCategories, "srv-1")
	require.NoError(t, err)
	require.True(t, exists)
	require.True(t, state.Deleted)
	require.True(t, state.Dirty)
}

func TestWriteAfterPendingDeleteRequeues(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedRemote(t, store, catalog.TableCategories, map[string]any{
		"id": "srv-1", "name": "Engine", "name_ar": "", "updated_at": int64(100),
	})
	require.NoError(t, store.Delete(ctx, catalog.TableCategories, "srv-1"))
	require.NoError(t, store.Put(ctx, catalog.TableCategories, map[string]any{
		"id": "srv-1", "name": "Engine again", "name_ar": "",
	}))

	op, ok := pendingFor(t, store, catalog.TableCategories, "srv-1")
	require.True(t, ok)
	require.Equal(t, OpUpdate, op.Op, "re-added server record pushes as update")

	fields, err := store.Get(ctx, catalog.TableCategories, "srv-1")
	require.NoError(t, err)
	require.Equal(t, "Engine again", fields["name"])
}

func TestMarkFailed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := NewLocalID()

	require.NoError(t, store.Put(ctx, catalog.TableCategories, map[string]any{
		"id": id, "name": "Engine", "name_ar": "",
	}))
	require.NoError(t, store.MarkFailed(ctx, catalog.TableCategories, id, "validation: name too short"))

	count, err := store.PendingCount(ctx, catalog.TableCategories)
	require.NoError(t, err)
	require.Zero(t, count, "failed op must leave the queue")

	state, exists, err := store.RowState(ctx, catalog.TableCategories, id)
	require.NoError(t, err)
	require.True(t, exists)
	require.True(t, state.Failed)
	require.Equal(t, "validation: name too short", state.FailMsg)

	// Local content survives, readable for the resolution screen.
	fields, err := store.Get(ctx, catalog.TableCategories, id)
	require.NoError(t, err)
	require.Equal(t, "Engine", fields["name"])
}

func TestPutPreservesFailedFlag(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := NewLocalID()

	require.NoError(t, store.Put(ctx, catalog.TableCategories, map[string]any{
		"id": id, "name": "Engine", "name_ar": "",
	}))
	require.NoError(t, store.MarkFailed(ctx, catalog.TableCategories, id, "rejected"))
	require.NoError(t, store.Put(ctx, catalog.TableCategories, map[string]any{
		"id": id, "name": "Engine v2", "name_ar": "",
	}))

	state, _, err := store.RowState(ctx, catalog.TableCategories, id)
	require.NoError(t, err)
	require.True(t, state.Failed, "an ordinary edit does not clear the failure flag")
}

func TestResolveFailedKeepLocal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := NewLocalID()

	require.NoError(t, store.Put(ctx, catalog.TableCategories, map[string]any{
		"id": id, "name": "Engine", "name_ar": "",
	}))
	require.NoError(t, store.MarkFailed(ctx, catalog.TableCategories, id, "rejected"))
	require.NoError(t, store.ResolveFailed(ctx, catalog.TableCategories, id, true))

	state, _, err := store.RowState(ctx, catalog.TableCategories, id)
	require.NoError(t, err)
	require.False(t, state.Failed)
	require.True(t, state.Dirty)

	op, ok := pendingFor(t, store, catalog.TableCategories, id)
	require.True(t, ok, "keeping the local edit re-queues it")
	require.Equal(t, OpCreate, op.Op)
}

func TestResolveFailedDiscardLocal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedRemote(t, store, catalog.TableCategories, map[string]any{
		"id": "srv-1", "name": "Engine", "name_ar": "", "updated_at": int64(100),
	})
	require.NoError(t, store.Put(ctx, catalog.TableCategories, map[string]any{
		"id": "srv-1", "name": "Edited", "name_ar": "",
	}))
	require.NoError(t, store.MarkFailed(ctx, catalog.TableCategories, "srv-1", "rejected"))
	require.NoError(t, store.ResolveFailed(ctx, catalog.TableCategories, "srv-1", false))

	state, _, err := store.RowState(ctx, catalog.TableCategories, "srv-1")
	require.NoError(t, err)
	require.False(t, state.Failed)
	require.False(t, state.Dirty, "abandoned edit goes clean so the next pull overwrites it")

	count, err := store.PendingCount(ctx, catalog.TableCategories)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestApplyRemoteMarksClean(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// A dirty local edit superseded by an applied server record goes
	// clean and its queued op disappears.
	require.NoError(t, store.Put(ctx, catalog.TableCategories, map[string]any{
		"id": "srv-1", "name": "Local edit", "name_ar": "",
	}))
	seedRemote(t, store, catalog.TableCategories, map[string]any{
		"id": "srv-1", "name": "Server copy", "name_ar": "", "updated_at": int64(999),
	})

	fields, err := store.Get(ctx, catalog.TableCategories, "srv-1")
	require.NoError(t, err)
	require.Equal(t, "Server copy", fields["name"])

	state, _, err := store.RowState(ctx, catalog.TableCategories, "srv-1")
	require.NoError(t, err)
	require.False(t, state.Dirty)
	require.Equal(t, int64(999), state.UpdatedAt)

	count, err := store.PendingCount(ctx, catalog.TableCategories)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestListWithPredicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Engine", "Brakes", "Body"} {
		require.NoError(t, store.Put(ctx, catalog.TableCategories, map[string]any{
			"id": NewLocalID(), "name": name, "name_ar": "",
		}))
	}

	rows, err := store.List(ctx, catalog.TableCategories, func(fields map[string]any) bool {
		name, _ := fields["name"].(string)
		return name[0] == 'B'
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

// seedRemote applies a server record the way the pull reconciler does.
func seedRemote(t *testing.T, store *Store, table string, fields map[string]any) {
	t.Helper()
	err := store.WriteTx(context.Background(), func(tx *sql.Tx) error {
		return store.ApplyRemoteInTx(context.Background(), tx, table, fields)
	})
	require.NoError(t, err)
}
