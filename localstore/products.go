// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/AhmedSalahALghzaly/lats-go/catalog"
)

// ProductFilter mirrors the query parameters of the remote products
// endpoint so the same filters work against the local mirror while
// offline. Zero values mean "no constraint".
type ProductFilter struct {
	CategoryID     string // includes child categories
	ProductBrandID string
	CarModelID     string
	CarBrandID     string // matched through the brand's models
	MinPrice       decimal.Decimal
	MaxPrice       decimal.Decimal
	HasMinPrice    bool
	HasMaxPrice    bool
	IncludeHidden  bool
	Search         string // substring over name, name_ar, sku
}

// Products returns the locally mirrored products matching the filter.
func (s *Store) Products(ctx context.Context, filter ProductFilter) ([]catalog.Product, error) {
	categoryIDs, err := s.expandCategory(ctx, filter.CategoryID)
	if err != nil {
		return nil, err
	}
	modelIDs, err := s.expandCarBrand(ctx, filter.CarBrandID)
	if err != nil {
		return nil, err
	}

	rows, err := s.List(ctx, catalog.TableProducts, nil)
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(filter.Search)
	var out []catalog.Product
	for _, fields := range rows {
		var p catalog.Product
		if err := catalog.As(fields, &p); err != nil {
			return nil, fmt.Errorf("failed to decode product: %w", err)
		}
		if !filter.IncludeHidden && p.HiddenStatus {
			continue
		}
		if len(categoryIDs) > 0 && !categoryIDs[p.CategoryID] {
			continue
		}
		if filter.ProductBrandID != "" && p.ProductBrandID != filter.ProductBrandID {
			continue
		}
		if filter.CarModelID != "" && !containsID(p.CarModelIDs, filter.CarModelID) {
			continue
		}
		if modelIDs != nil && !intersects(p.CarModelIDs, modelIDs) {
			continue
		}
		if filter.HasMinPrice && p.Price.LessThan(filter.MinPrice) {
			continue
		}
		if filter.HasMaxPrice && p.Price.GreaterThan(filter.MaxPrice) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.NameAr), search) &&
			!strings.Contains(strings.ToLower(p.SKU), search) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// expandCategory resolves a category filter to the category plus its
// direct children, matching the remote API's one-level expansion.
func (s *Store) expandCategory(ctx context.Context, categoryID string) (map[string]bool, error) {
	if categoryID == "" {
		return nil, nil
	}
	ids := map[string]bool{categoryID: true}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id FROM categories WHERE parent_id = ?`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to expand category: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan child category: %w", err)
		}
		ids[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating child categories: %w", err)
	}
	return ids, nil
}

// expandCarBrand resolves a car brand filter to the brand's model ids.
// Returns nil (no constraint) when no brand filter is set.
func (s *Store) expandCarBrand(ctx context.Context, brandID string) (map[string]bool, error) {
	if brandID == "" {
		return nil, nil
	}
	ids := make(map[string]bool)
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id FROM car_models WHERE brand_id = ?`, brandID)
	if err != nil {
		return nil, fmt.Errorf("failed to expand car brand: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan car model: %w", err)
		}
		ids[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating car models: %w", err)
	}
	return ids, nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func intersects(ids []string, set map[string]bool) bool {
	for _, v := range ids {
		if set[v] {
			return true
		}
	}
	return false
}
