// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

// Package appstate wires the offline-first storefront together: one
// process-wide App owns the local store, the sync engine, the query
// cache and the remote client. It is seeded empty at startup and torn
// down on logout (syncable tables and cart cleared, device-level
// settings kept).
package appstate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AhmedSalahALghzaly/lats-go/config"
	"github.com/AhmedSalahALghzaly/lats-go/localstore"
	"github.com/AhmedSalahALghzaly/lats-go/querycache"
	"github.com/AhmedSalahALghzaly/lats-go/remote"
	"github.com/AhmedSalahALghzaly/lats-go/syncengine"
)

// App is the process-wide application state.
type App struct {
	Config      *config.Config
	Store       *localstore.Store
	Remote      *remote.Client
	Engine      *syncengine.Engine
	Cache       *querycache.Cache
	Coordinator *querycache.Coordinator

	UserID   string
	DeviceID string

	logger *slog.Logger
}

// Init opens the local database and builds the sync stack for one
// signed-in user.
func Init(cfg *config.Config, userID string) (*App, error) {
	store, err := localstore.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	deviceID, err := store.EnsureDeviceID(userID)
	if err != nil {
		store.Close()
		return nil, err
	}

	auth := remote.NewSessionAuth(cfg.SessionSecret)
	api := remote.NewClient(cfg.APIBaseURL, func(ctx context.Context) (string, error) {
		return auth.GenerateToken(userID, deviceID, cfg.TokenExpiry)
	})

	engineCfg := syncengine.DefaultConfig()
	engineCfg.PushLimit = cfg.PushLimit
	engineCfg.MaxAttempts = cfg.MaxAttempts
	engineCfg.BackoffMin = cfg.BackoffMin
	engineCfg.BackoffMax = cfg.BackoffMax

	cache := querycache.NewCache()
	engine := syncengine.New(store, api, engineCfg)
	engine.OnInvalidate(func(table string) {
		cache.Invalidate(table)
	})

	return &App{
		Config:      cfg,
		Store:       store,
		Remote:      api,
		Engine:      engine,
		Cache:       cache,
		Coordinator: querycache.NewCoordinator(cache),
		UserID:      userID,
		DeviceID:    deviceID,
		logger:      slog.Default(),
	}, nil
}

// Start launches background sync.
func (a *App) Start(ctx context.Context) {
	a.Engine.Start(ctx)
}

// Logout clears every syncable table, the cart and the query cache.
// The device id and other device-level settings survive; a new sign-in
// re-hydrates from the server.
func (a *App) Logout(ctx context.Context) error {
	a.Engine.Pause()
	defer a.Engine.Resume()

	if err := a.Store.Reset(ctx); err != nil {
		return err
	}
	a.Cache.Clear()
	return nil
}

// Close releases the local database handle.
func (a *App) Close() error {
	return a.Store.Close()
}
