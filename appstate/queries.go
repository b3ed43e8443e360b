// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package appstate

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/AhmedSalahALghzaly/lats-go/catalog"
	"github.com/AhmedSalahALghzaly/lats-go/localstore"
)

// Cached collection reads. Each collection is keyed by its table name;
// the sync engine invalidates the key whenever pull or push changes the
// table, and mutations invalidate explicitly. Taxonomy collections use
// the longer staleness window, product data the shorter one.

// Categories returns all locally mirrored categories through the cache.
func (a *App) Categories(ctx context.Context) ([]catalog.Category, error) {
	v, err := a.Cache.Get(ctx, catalog.TableCategories, a.Config.TaxonomyTTL, func(ctx context.Context) (any, error) {
		return listAs[catalog.Category](ctx, a.Store, catalog.TableCategories)
	})
	if err != nil {
		return nil, err
	}
	return v.([]catalog.Category), nil
}

// CategoryTree returns the display tree for the category screens.
func (a *App) CategoryTree(ctx context.Context) ([]*catalog.CategoryNode, error) {
	categories, err := a.Categories(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.BuildCategoryTree(categories), nil
}

// CarBrands returns all car brands through the cache.
func (a *App) CarBrands(ctx context.Context) ([]catalog.CarBrand, error) {
	v, err := a.Cache.Get(ctx, catalog.TableCarBrands, a.Config.TaxonomyTTL, func(ctx context.Context) (any, error) {
		return listAs[catalog.CarBrand](ctx, a.Store, catalog.TableCarBrands)
	})
	if err != nil {
		return nil, err
	}
	return v.([]catalog.CarBrand), nil
}

// ProductBrands returns all parts brands through the cache.
func (a *App) ProductBrands(ctx context.Context) ([]catalog.ProductBrand, error) {
	v, err := a.Cache.Get(ctx, catalog.TableProductBrands, a.Config.TaxonomyTTL, func(ctx context.Context) (any, error) {
		return listAs[catalog.ProductBrand](ctx, a.Store, catalog.TableProductBrands)
	})
	if err != nil {
		return nil, err
	}
	return v.([]catalog.ProductBrand), nil
}

// Products returns visible products through the cache (unfiltered
// collection; filtered queries go straight to the store, they are cheap
// local reads).
func (a *App) Products(ctx context.Context) ([]catalog.Product, error) {
	v, err := a.Cache.Get(ctx, catalog.TableProducts, a.Config.VolatileTTL, func(ctx context.Context) (any, error) {
		return a.Store.Products(ctx, localstore.ProductFilter{})
	})
	if err != nil {
		return nil, err
	}
	return v.([]catalog.Product), nil
}

// Favorites returns the signed-in user's favorites through the cache.
func (a *App) Favorites(ctx context.Context) ([]catalog.Favorite, error) {
	v, err := a.Cache.Get(ctx, catalog.TableFavorites, a.Config.VolatileTTL, func(ctx context.Context) (any, error) {
		favorites, err := listAs[catalog.Favorite](ctx, a.Store, catalog.TableFavorites)
		if err != nil {
			return nil, err
		}
		mine := favorites[:0]
		for _, f := range favorites {
			if f.UserID == a.UserID {
				mine = append(mine, f)
			}
		}
		return mine, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]catalog.Favorite), nil
}

// HomeSnapshot is the data the home screen renders in one shot.
type HomeSnapshot struct {
	Categories []catalog.Category
	CarBrands  []catalog.CarBrand
	Products   []catalog.Product
}

// Home fetches the home screen collections in parallel. Each
// collection still goes through the cache, so a warm app serves this
// instantly and a stale one revalidates in the background.
func (a *App) Home(ctx context.Context) (*HomeSnapshot, error) {
	var snap HomeSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.Categories, err = a.Categories(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		snap.CarBrands, err = a.CarBrands(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Products, err = a.Products(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// listAs loads a whole table and decodes it into typed entities.
func listAs[T any](ctx context.Context, store *localstore.Store, table string) ([]T, error) {
	rows, err := store.List(ctx, table, nil)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, fields := range rows {
		var v T
		if err := catalog.As(fields, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s record: %w", table, err)
		}
		out = append(out, v)
	}
	return out, nil
}
