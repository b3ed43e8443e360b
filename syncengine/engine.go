// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

// Package syncengine reconciles the local record store with the
// storefront API: it pulls server deltas per table behind a watermark
// cursor and replays queued local mutations, remapping temporary
// identifiers when the server assigns real ones.
//
// Concurrency model: one mutex per table makes pull and push mutually
// exclusive for that table, while different tables sync in parallel.
// No lock spans more than one table.
package syncengine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AhmedSalahALghzaly/lats-go/catalog"
	"github.com/AhmedSalahALghzaly/lats-go/localstore"
	"github.com/AhmedSalahALghzaly/lats-go/remote"
)

// Config holds tunables for the sync engine.
type Config struct {
	Tables      []string      // tables to sync, in dependency order
	PushLimit   int           // max operations drained per push pass
	MaxAttempts int           // transient retries per operation before it is marked failed
	BackoffMin  time.Duration // initial backoff of the background loop
	BackoffMax  time.Duration // backoff cap
}

// DefaultConfig returns the engine defaults over all syncable tables.
func DefaultConfig() *Config {
	return &Config{
		Tables:      catalog.SyncableTables(),
		PushLimit:   200,
		MaxAttempts: 5,
		BackoffMin:  1 * time.Second,
		BackoffMax:  60 * time.Second,
	}
}

// Engine drives two-way sync between the local store and the remote
// API.
type Engine struct {
	store  *localstore.Store
	remote *remote.Client
	config *Config
	logger *slog.Logger

	tableMu map[string]*sync.Mutex

	// Pause switch (atomic): suspend background sync deterministically.
	paused int32

	// onInvalidate, when set, is called with a table name after sync
	// changed its contents; the query cache hooks in here.
	onInvalidate func(table string)
}

// New creates a sync engine. A nil config uses DefaultConfig.
func New(store *localstore.Store, api *remote.Client, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	mus := make(map[string]*sync.Mutex, len(config.Tables))
	for _, t := range config.Tables {
		mus[t] = &sync.Mutex{}
	}
	return &Engine{
		store:   store,
		remote:  api,
		config:  config,
		logger:  slog.Default(),
		tableMu: mus,
	}
}

// SetLogger replaces the default slog logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// OnInvalidate registers a callback fired after sync changes a table.
func (e *Engine) OnInvalidate(fn func(table string)) {
	e.onInvalidate = fn
}

func (e *Engine) invalidate(table string) {
	if e.onInvalidate != nil {
		e.onInvalidate(table)
	}
}

// Pause suspends background sync passes.
func (e *Engine) Pause() { atomic.StoreInt32(&e.paused, 1) }

// Resume re-enables background sync passes.
func (e *Engine) Resume() { atomic.StoreInt32(&e.paused, 0) }

func (e *Engine) isPaused() bool { return atomic.LoadInt32(&e.paused) == 1 }

// fallbackMu guards tables not present in the config.
var fallbackMu sync.Mutex

// lockTable returns the mutex guarding one table's pull-or-push cycle.
func (e *Engine) lockTable(table string) *sync.Mutex {
	if mu, ok := e.tableMu[table]; ok {
		return mu
	}
	return &fallbackMu
}

// SyncAll runs one full cycle: every table pulls in parallel, then
// pushes run sequentially in dependency order so that server-assigned
// parent ids are remapped before dependent tables flush. The first
// error is returned but each table's progress up to that point sticks.
func (e *Engine) SyncAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, table := range e.config.Tables {
		table := table
		g.Go(func() error {
			_, err := e.PullTable(gctx, table)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, table := range e.config.Tables {
		if err := e.PushTable(ctx, table); err != nil {
			return err
		}
	}
	return nil
}

// Start launches the background sync loop. It stops when ctx is
// cancelled.
func (e *Engine) Start(ctx context.Context) {
	go e.syncLoop(ctx)
}

// syncLoop runs SyncAll with exponential backoff on failure, resetting
// to the minimum interval on success.
func (e *Engine) syncLoop(ctx context.Context) {
	backoff := e.config.BackoffMin
	for {
		if err := sleepWithContext(ctx, backoff); err != nil {
			return
		}
		if e.isPaused() {
			continue
		}
		if err := e.SyncAll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Warn("sync cycle failed", "error", err, "backoff", backoff)
			backoff *= 2
			if backoff > e.config.BackoffMax {
				backoff = e.config.BackoffMax
			}
		} else {
			backoff = e.config.BackoffMin
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
