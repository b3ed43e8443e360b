// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package appstate

import (
	"context"
	"errors"

	"github.com/AhmedSalahALghzaly/lats-go/catalog"
	"github.com/AhmedSalahALghzaly/lats-go/localstore"
)

// Local-first mutations. Writes land in the local store immediately
// (visible offline), the pending queue carries them to the server on
// the next push, and the affected cache collection is invalidated so
// readers pick up the new state.

// CreateCategory records a new category locally under a temporary id
// and queues it for push. Returns the id the caller can reference
// right away; it is remapped transparently once the server confirms.
func (a *App) CreateCategory(ctx context.Context, c catalog.Category) (string, error) {
	if c.ID == "" {
		c.ID = localstore.NewLocalID()
	}
	fields, err := catalog.Fields(&c)
	if err != nil {
		return "", err
	}
	if err := a.Store.Put(ctx, catalog.TableCategories, fields); err != nil {
		return "", err
	}
	a.Cache.Invalidate(catalog.TableCategories)
	return c.ID, nil
}

// UpdateCategory saves an edited category locally and queues the push.
func (a *App) UpdateCategory(ctx context.Context, c catalog.Category) error {
	fields, err := catalog.Fields(&c)
	if err != nil {
		return err
	}
	if err := a.Store.Put(ctx, catalog.TableCategories, fields); err != nil {
		return err
	}
	a.Cache.Invalidate(catalog.TableCategories)
	return nil
}

// DeleteCategory removes a category optimistically: the cached
// collection drops it immediately, the remote delete is issued, and on
// failure the exact pre-mutation cache state is restored while the
// local mirror stays untouched.
func (a *App) DeleteCategory(ctx context.Context, id string) error {
	return a.Coordinator.Mutate(ctx, catalog.TableCategories, a.Config.TaxonomyTTL,
		func(current any) any {
			categories, ok := current.([]catalog.Category)
			if !ok {
				return current
			}
			kept := make([]catalog.Category, 0, len(categories))
			for _, c := range categories {
				if c.ID != id {
					kept = append(kept, c)
				}
			}
			return kept
		},
		func(ctx context.Context) error {
			if err := a.Remote.Delete(ctx, catalog.TableCategories, id); err != nil {
				return err
			}
			return a.Store.Delete(ctx, catalog.TableCategories, id)
		})
}

// CreateCarBrand records a new car brand locally and queues the push.
func (a *App) CreateCarBrand(ctx context.Context, b catalog.CarBrand) (string, error) {
	if b.ID == "" {
		b.ID = localstore.NewLocalID()
	}
	fields, err := catalog.Fields(&b)
	if err != nil {
		return "", err
	}
	if err := a.Store.Put(ctx, catalog.TableCarBrands, fields); err != nil {
		return "", err
	}
	a.Cache.Invalidate(catalog.TableCarBrands)
	return b.ID, nil
}

// DeleteCarBrand removes a car brand optimistically, mirroring
// DeleteCategory.
func (a *App) DeleteCarBrand(ctx context.Context, id string) error {
	return a.Coordinator.Mutate(ctx, catalog.TableCarBrands, a.Config.TaxonomyTTL,
		func(current any) any {
			brands, ok := current.([]catalog.CarBrand)
			if !ok {
				return current
			}
			kept := make([]catalog.CarBrand, 0, len(brands))
			for _, b := range brands {
				if b.ID != id {
					kept = append(kept, b)
				}
			}
			return kept
		},
		func(ctx context.Context) error {
			if err := a.Remote.Delete(ctx, catalog.TableCarBrands, id); err != nil {
				return err
			}
			return a.Store.Delete(ctx, catalog.TableCarBrands, id)
		})
}

// ToggleFavorite flips a product's favorite state for the signed-in
// user. A new favorite is created locally under a temporary id and
// pushed later; removing one tombstones it until the server confirms.
func (a *App) ToggleFavorite(ctx context.Context, productID string) (isFavorite bool, err error) {
	rows, err := a.Store.List(ctx, catalog.TableFavorites, func(fields map[string]any) bool {
		uid, _ := fields["user_id"].(string)
		pid, _ := fields["product_id"].(string)
		return uid == a.UserID && pid == productID
	})
	if err != nil {
		return false, err
	}

	if len(rows) > 0 {
		id, _ := rows[0]["id"].(string)
		if err := a.Store.Delete(ctx, catalog.TableFavorites, id); err != nil {
			return false, err
		}
		a.Cache.Invalidate(catalog.TableFavorites)
		return false, nil
	}

	fav := catalog.Favorite{
		ID:        localstore.NewLocalID(),
		UserID:    a.UserID,
		ProductID: productID,
	}
	fields, err := catalog.Fields(&fav)
	if err != nil {
		return false, err
	}
	if err := a.Store.Put(ctx, catalog.TableFavorites, fields); err != nil {
		return false, err
	}
	a.Cache.Invalidate(catalog.TableFavorites)
	return true, nil
}

// IsFavorite reports whether the product is in the user's favorites.
func (a *App) IsFavorite(ctx context.Context, productID string) (bool, error) {
	favorites, err := a.Favorites(ctx)
	if err != nil {
		return false, err
	}
	for _, f := range favorites {
		if f.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

// DiscardPendingChange cancels a queued offline change the user chose
// to abandon (e.g. from an unsynced-changes review screen).
func (a *App) DiscardPendingChange(ctx context.Context, table, id string) error {
	if err := a.Store.DiscardPending(ctx, table, id); err != nil {
		return err
	}
	a.Cache.Invalidate(table)
	return nil
}

// ResolveInconsistent settles a record flagged after a permanent push
// failure, either keeping the local edit (re-queue) or reverting to
// server state on the next pull.
func (a *App) ResolveInconsistent(ctx context.Context, table, id string, keepLocal bool) error {
	err := a.Store.ResolveFailed(ctx, table, id, keepLocal)
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return err
	}
	a.Cache.Invalidate(table)
	return nil
}
