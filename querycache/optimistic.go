// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package querycache

import (
	"context"
	"sync"
	"time"
)

// Coordinator applies optimistic mutations against cache collections:
// the change is visible immediately, a snapshot of the pre-mutation
// state is kept, and a failed remote call restores exactly that
// snapshot. Mutations against the same collection serialize, so a
// rollback of one mutation can never clobber another's applied state.
type Coordinator struct {
	cache *Cache

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCoordinator creates a coordinator over a cache.
func NewCoordinator(cache *Cache) *Coordinator {
	return &Coordinator{
		cache: cache,
		locks: make(map[string]*sync.Mutex),
	}
}

func (co *Coordinator) collectionLock(collection string) *sync.Mutex {
	co.mu.Lock()
	defer co.mu.Unlock()
	lock, ok := co.locks[collection]
	if !ok {
		lock = &sync.Mutex{}
		co.locks[collection] = lock
	}
	return lock
}

// Mutate runs one optimistic mutation:
//
//  1. snapshot the collection's current cache entry
//  2. apply the local change so readers see it immediately
//  3. issue the remote call
//  4. on failure restore the exact snapshot and return the error;
//     on success invalidate the collection so the next read reflects
//     authoritative server state (never "restore" on success).
//
// apply receives the snapshot value and returns the optimistically
// mutated value. When the collection is not cached there is nothing to
// mutate optimistically: apply is not called, readers keep loading
// authoritative state, and the cache entry stays absent throughout.
func (co *Coordinator) Mutate(
	ctx context.Context,
	collection string,
	ttl time.Duration,
	apply func(current any) any,
	remoteCall func(ctx context.Context) error,
) error {
	lock := co.collectionLock(collection)
	lock.Lock()
	defer lock.Unlock()

	snapshot, existed := co.cache.Snapshot(collection)
	if existed {
		co.cache.Set(collection, apply(snapshot), ttl)
	}

	if err := remoteCall(ctx); err != nil {
		if existed {
			co.cache.restore(collection, snapshot, existed, ttl)
		}
		return err
	}

	co.cache.Invalidate(collection)
	return nil
}
