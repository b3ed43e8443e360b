// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

// Package querycache provides a short-lived in-memory cache over the
// local store and remote fetches, keyed by logical collection, plus the
// optimistic mutation coordinator that keeps UI state consistent when a
// remote call fails after the local state already changed.
package querycache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fetcher loads the authoritative value of one collection.
type Fetcher func(ctx context.Context) (any, error)

// Default staleness windows: volatile collections (products, favorites)
// refresh sooner than slow-moving taxonomy.
const (
	TTLVolatile = 2 * time.Minute
	TTLTaxonomy = 5 * time.Minute
)

// refetchTimeout bounds background revalidation calls.
const refetchTimeout = 30 * time.Second

type entry struct {
	value     any
	fetchedAt time.Time
	ttl       time.Duration
}

// Cache is a stale-while-revalidate cache keyed by collection name. A
// read inside the staleness window returns the cached value; a stale
// read still returns the last known value immediately while a deduped
// background refetch refreshes it. Callers therefore observe
// stale-then-fresh over time, never a blocking wait beyond the initial
// load.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group
	logger  *slog.Logger

	// now is swappable in tests.
	now func() time.Time
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		logger:  slog.Default(),
		now:     time.Now,
	}
}

// SetLogger replaces the default slog logger.
func (c *Cache) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Get returns the collection value, loading it with fetch on a miss.
// Within ttl the cached value is served as-is; past ttl the stale value
// is returned immediately and a background refetch (deduped per key)
// revalidates the entry.
func (c *Cache) Get(ctx context.Context, key string, ttl time.Duration, fetch Fetcher) (any, error) {
	c.mu.Lock()
	ent, ok := c.entries[key]
	if ok {
		value := ent.value
		fresh := c.now().Sub(ent.fetchedAt) < ent.ttl
		c.mu.Unlock()
		if !fresh {
			c.revalidate(ctx, key, ttl, fetch)
		}
		return value, nil
	}
	c.mu.Unlock()

	// Miss: load synchronously, deduped across concurrent callers.
	v, err, _ := c.group.Do(key, func() (any, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, value, ttl)
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// revalidate refreshes a stale entry in the background. Errors only log
// a warning; the stale value stays serveable.
func (c *Cache) revalidate(ctx context.Context, key string, ttl time.Duration, fetch Fetcher) {
	go func() {
		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refetchTimeout)
		defer cancel()
		_, err, _ := c.group.Do(key, func() (any, error) {
			value, err := fetch(bgCtx)
			if err != nil {
				return nil, err
			}
			c.store(key, value, ttl)
			return value, nil
		})
		if err != nil {
			c.logger.Warn("background refetch failed, serving stale value", "key", key, "error", err)
		}
	}()
}

func (c *Cache) store(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{value: value, fetchedAt: c.now(), ttl: ttl}
}

// Set overwrites a collection value without touching its staleness
// clock semantics (the entry is considered fresh as of now). Used by
// optimistic mutations.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.store(key, value, ttl)
}

// Snapshot returns the current cached value for a key, if any.
func (c *Cache) Snapshot(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ent, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return ent.value, true
}

// restore puts back an exact pre-mutation snapshot (or removes the
// entry when there was none).
func (c *Cache) restore(key string, value any, existed bool, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existed {
		c.entries[key] = &entry{value: value, fetchedAt: c.now(), ttl: ttl}
	} else {
		delete(c.entries, key)
	}
}

// Invalidate drops a collection so the next read refetches
// authoritative state. Called explicitly after any mutation affecting
// the collection.
func (c *Cache) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
}

// Clear empties the cache entirely (logout teardown).
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}
