// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AhmedSalahALghzaly/lats-go/catalog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, catalog.SyncableTables(), cfg.Tables)
	require.Greater(t, cfg.PushLimit, 0)
	require.Greater(t, cfg.MaxAttempts, 0)
	require.Less(t, cfg.BackoffMin, cfg.BackoffMax)
}

func TestPauseResume(t *testing.T) {
	api := &fakeAPI{}
	engine, _ := newTestEngine(t, api)

	require.False(t, engine.isPaused())
	engine.Pause()
	require.True(t, engine.isPaused())
	engine.Resume()
	require.False(t, engine.isPaused())
}

func TestLockTableFallback(t *testing.T) {
	api := &fakeAPI{}
	engine, _ := newTestEngine(t, api)

	// Known tables get their own mutex; unknown names share a fallback
	// rather than minting unbounded mutexes.
	require.Same(t, engine.lockTable(catalog.TableProducts), engine.lockTable(catalog.TableProducts))
	require.NotSame(t, engine.lockTable(catalog.TableProducts), engine.lockTable(catalog.TableCategories))
	require.Same(t, engine.lockTable("unknown-a"), engine.lockTable("unknown-b"))
}

func TestSleepWithContext(t *testing.T) {
	require.NoError(t, sleepWithContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sleepWithContext(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}
