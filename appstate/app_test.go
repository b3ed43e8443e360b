// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package appstate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AhmedSalahALghzaly/lats-go/catalog"
	"github.com/AhmedSalahALghzaly/lats-go/config"
)

// newTestApp builds an app over a throwaway database file. When apiURL
// is empty the remote stays unreachable, which offline-path tests rely
// on.
func newTestApp(t *testing.T, apiURL string) *App {
	t.Helper()
	cfg := config.Default()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "lats.db")
	if apiURL != "" {
		cfg.APIBaseURL = apiURL
	}

	app, err := Init(cfg, "user-1")
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

func TestInitAssignsStableDeviceID(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DatabasePath = filepath.Join(dir, "lats.db")

	app, err := Init(cfg, "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, app.DeviceID)
	deviceID := app.DeviceID
	require.NoError(t, app.Close())

	// Reopening the same database keeps the device identity.
	app, err = Init(cfg, "user-1")
	require.NoError(t, err)
	defer app.Close()
	require.Equal(t, deviceID, app.DeviceID)
}

func TestCreateCategoryVisibleOffline(t *testing.T) {
	app := newTestApp(t, "")
	ctx := context.Background()

	id, err := app.CreateCategory(ctx, catalog.Category{Name: "Engine", NameAr: "محرك"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	categories, err := app.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	require.Equal(t, "Engine", categories[0].Name)
	require.Equal(t, id, categories[0].ID)
}

func TestCategoryTree(t *testing.T) {
	app := newTestApp(t, "")
	ctx := context.Background()

	parentID, err := app.CreateCategory(ctx, catalog.Category{Name: "Engine", NameAr: ""})
	require.NoError(t, err)
	_, err = app.CreateCategory(ctx, catalog.Category{Name: "Filters", NameAr: "", ParentID: parentID})
	require.NoError(t, err)

	tree, err := app.CategoryTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	require.Equal(t, "Engine", tree[0].Name)
	require.Len(t, tree[0].Children, 1)
	require.Equal(t, "Filters", tree[0].Children[0].Name)
}

func TestToggleFavorite(t *testing.T) {
	app := newTestApp(t, "")
	ctx := context.Background()

	on, err := app.ToggleFavorite(ctx, "p1")
	require.NoError(t, err)
	require.True(t, on)

	isFav, err := app.IsFavorite(ctx, "p1")
	require.NoError(t, err)
	require.True(t, isFav)

	favorites, err := app.Favorites(ctx)
	require.NoError(t, err)
	require.Len(t, favorites, 1)
	require.Equal(t, "user-1", favorites[0].UserID)

	off, err := app.ToggleFavorite(ctx, "p1")
	require.NoError(t, err)
	require.False(t, off)

	favorites, err = app.Favorites(ctx)
	require.NoError(t, err)
	require.Empty(t, favorites)
}

func TestDeleteCategoryRollsBackOnRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	app := newTestApp(t, srv.URL)
	ctx := context.Background()

	id, err := app.CreateCategory(ctx, catalog.Category{Name: "Engine", NameAr: ""})
	require.NoError(t, err)
	before, err := app.Categories(ctx)
	require.NoError(t, err)

	err = app.DeleteCategory(ctx, id)
	require.Error(t, err)

	// The cached collection is exactly what it was before the attempt,
	// and the local record survives.
	after, err := app.Categories(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

// TestDeleteCategoryColdCacheConcurrentRead deletes while nothing is
// cached yet and reads the collection mid-flight. The read must load
// real rows, not a placeholder the mutation parked in the cache.
func TestDeleteCategoryColdCacheConcurrentRead(t *testing.T) {
	var app *App
	readResult := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := app.Categories(r.Context())
		readResult <- err
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	app = newTestApp(t, srv.URL)
	ctx := context.Background()

	id, err := app.CreateCategory(ctx, catalog.Category{Name: "Engine", NameAr: ""})
	require.NoError(t, err)
	app.Cache.Clear()

	require.Error(t, app.DeleteCategory(ctx, id))
	require.NoError(t, <-readResult)

	categories, err := app.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	require.Equal(t, id, categories[0].ID)
}

func TestDeleteCategorySucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	app := newTestApp(t, srv.URL)
	ctx := context.Background()

	id, err := app.CreateCategory(ctx, catalog.Category{Name: "Engine", NameAr: ""})
	require.NoError(t, err)
	_, err = app.Categories(ctx)
	require.NoError(t, err)

	require.NoError(t, app.DeleteCategory(ctx, id))

	categories, err := app.Categories(ctx)
	require.NoError(t, err)
	require.Empty(t, categories)
}

func TestHomeSnapshot(t *testing.T) {
	app := newTestApp(t, "")
	ctx := context.Background()

	_, err := app.CreateCategory(ctx, catalog.Category{Name: "Engine", NameAr: ""})
	require.NoError(t, err)
	_, err = app.CreateCarBrand(ctx, catalog.CarBrand{Name: "Hyundai", NameAr: ""})
	require.NoError(t, err)

	snap, err := app.Home(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Categories, 1)
	require.Len(t, snap.CarBrands, 1)
	require.Empty(t, snap.Products)
}

func TestLogoutClearsDataKeepsDevice(t *testing.T) {
	app := newTestApp(t, "")
	ctx := context.Background()

	_, err := app.CreateCategory(ctx, catalog.Category{Name: "Engine", NameAr: ""})
	require.NoError(t, err)
	require.NoError(t, app.Store.AddToCart(ctx, "p1", 2))
	deviceID := app.DeviceID

	require.NoError(t, app.Logout(ctx))

	categories, err := app.Categories(ctx)
	require.NoError(t, err)
	require.Empty(t, categories)

	items, err := app.Store.CartItems(ctx)
	require.NoError(t, err)
	require.Empty(t, items)

	after, err := app.Store.EnsureDeviceID("user-1")
	require.NoError(t, err)
	require.Equal(t, deviceID, after)
}
