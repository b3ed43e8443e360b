// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

// Package catalog defines the storefront entities that the offline sync
// core mirrors from the remote API, together with their SQLite schemas
// and the table registry the sync engine is driven by.
//
// All syncable entities share the same envelope: a string id (either a
// server-assigned id or a temporary "tmp-" id before the first push),
// an updated_at timestamp in Unix milliseconds, and snake_case JSON
// field names matching the remote API wire format.
package catalog

import (
	"github.com/shopspring/decimal"
)

// CarBrand is a vehicle manufacturer (Toyota, Hyundai, ...).
type CarBrand struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	NameAr        string `json:"name_ar"`
	Logo          string `json:"logo,omitempty"`
	DistributorID string `json:"distributor_id,omitempty"`
	UpdatedAt     int64  `json:"updated_at"`
}

// Variant is a trim/engine variant of a car model. Variants are owned
// by their model and travel inside its payload, they are not a table.
type Variant struct {
	Name   string `json:"name"`
	NameAr string `json:"name_ar,omitempty"`
	Engine string `json:"engine,omitempty"`
}

// CarModel is a vehicle model belonging to a CarBrand.
type CarModel struct {
	ID        string    `json:"id"`
	BrandID   string    `json:"brand_id"`
	Name      string    `json:"name"`
	NameAr    string    `json:"name_ar"`
	YearStart int       `json:"year_start,omitempty"`
	YearEnd   int       `json:"year_end,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	Variants  []Variant `json:"variants,omitempty"`
	UpdatedAt int64     `json:"updated_at"`
}

// ProductBrand is a parts manufacturer (Bosch, Denso, ...).
type ProductBrand struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	NameAr          string `json:"name_ar,omitempty"`
	Logo            string `json:"logo,omitempty"`
	CountryOfOrigin string `json:"country_of_origin,omitempty"`
	UpdatedAt       int64  `json:"updated_at"`
}

// Category is a node in the (one level deep) category tree.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	NameAr    string `json:"name_ar"`
	ParentID  string `json:"parent_id,omitempty"`
	Icon      string `json:"icon,omitempty"`
	SortOrder int    `json:"sort_order"`
	UpdatedAt int64  `json:"updated_at"`
}

// Product is a sellable auto part.
type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	NameAr         string          `json:"name_ar"`
	Description    string          `json:"description,omitempty"`
	DescriptionAr  string          `json:"description_ar,omitempty"`
	Price          decimal.Decimal `json:"price"`
	SKU            string          `json:"sku"`
	ProductBrandID string          `json:"product_brand_id,omitempty"`
	CategoryID     string          `json:"category_id,omitempty"`
	Images         []string        `json:"images,omitempty"`
	CarModelIDs    []string        `json:"car_model_ids,omitempty"`
	StockQuantity  int             `json:"stock_quantity"`
	HiddenStatus   bool            `json:"hidden_status"`
	UpdatedAt      int64           `json:"updated_at"`
}

// Favorite links a user to a product. A favorite created offline holds
// a temporary id until the first successful push.
type Favorite struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	UpdatedAt int64  `json:"updated_at"`
}

// CartItem is a purely local entity. It never participates in sync and
// is removed outright when its quantity reaches zero.
type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UpdatedAt int64  `json:"updated_at"`
}
