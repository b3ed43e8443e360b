// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package catalog

// Table names as they appear both in SQLite and on the sync wire.
const (
	TableCarBrands     = "car_brands"
	TableCarModels     = "car_models"
	TableProductBrands = "product_brands"
	TableCategories    = "categories"
	TableProducts      = "products"
	TableFavorites     = "favorites"
	TableCartItems     = "cart_items"
)

// ForeignKey describes a reference from a column of one table to the id
// of another. JSONArray marks columns whose value is a JSON array of ids
// (e.g. products.car_model_ids) rather than a single scalar id.
type ForeignKey struct {
	Column    string
	RefTable  string
	JSONArray bool
}

// Table describes one entity table to the store and the sync engine.
type Table struct {
	Name        string
	DDL         string
	Syncable    bool // cart_items is local-only
	ForeignKeys []ForeignKey
}

// Registry returns all storefront tables in dependency order (a table
// never precedes one it references). The sync engine pulls and pushes
// in this order so that server-assigned parents land before children.
func Registry() []Table {
	return []Table{
		{
			Name:     TableCarBrands,
			Syncable: true,
			DDL: `CREATE TABLE IF NOT EXISTS car_brands (
				id             TEXT PRIMARY KEY,
				name           TEXT NOT NULL,
				name_ar        TEXT NOT NULL DEFAULT '',
				logo           TEXT,
				distributor_id TEXT,
				updated_at     INTEGER NOT NULL DEFAULT 0
			)`,
		},
		{
			Name:     TableCarModels,
			Syncable: true,
			ForeignKeys: []ForeignKey{
				{Column: "brand_id", RefTable: TableCarBrands},
			},
			DDL: `CREATE TABLE IF NOT EXISTS car_models (
				id         TEXT PRIMARY KEY,
				brand_id   TEXT NOT NULL,
				name       TEXT NOT NULL,
				name_ar    TEXT NOT NULL DEFAULT '',
				year_start INTEGER,
				year_end   INTEGER,
				image_url  TEXT,
				variants   TEXT, -- JSON array of variant objects
				updated_at INTEGER NOT NULL DEFAULT 0
			)`,
		},
		{
			Name:     TableProductBrands,
			Syncable: true,
			DDL: `CREATE TABLE IF NOT EXISTS product_brands (
				id                TEXT PRIMARY KEY,
				name              TEXT NOT NULL,
				name_ar           TEXT,
				logo              TEXT,
				country_of_origin TEXT,
				updated_at        INTEGER NOT NULL DEFAULT 0
			)`,
		},
		{
			Name:     TableCategories,
			Syncable: true,
			ForeignKeys: []ForeignKey{
				{Column: "parent_id", RefTable: TableCategories},
			},
			DDL: `CREATE TABLE IF NOT EXISTS categories (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL,
				name_ar    TEXT NOT NULL DEFAULT '',
				parent_id  TEXT,
				icon       TEXT,
				sort_order INTEGER NOT NULL DEFAULT 0,
				updated_at INTEGER NOT NULL DEFAULT 0
			)`,
		},
		{
			Name:     TableProducts,
			Syncable: true,
			ForeignKeys: []ForeignKey{
				{Column: "product_brand_id", RefTable: TableProductBrands},
				{Column: "category_id", RefTable: TableCategories},
				{Column: "car_model_ids", RefTable: TableCarModels, JSONArray: true},
			},
			DDL: `CREATE TABLE IF NOT EXISTS products (
				id               TEXT PRIMARY KEY,
				name             TEXT NOT NULL,
				name_ar          TEXT NOT NULL DEFAULT '',
				description      TEXT,
				description_ar   TEXT,
				price            TEXT NOT NULL DEFAULT '0',
				sku              TEXT NOT NULL DEFAULT '',
				product_brand_id TEXT,
				category_id      TEXT,
				images           TEXT, -- JSON array of image URIs
				car_model_ids    TEXT, -- JSON array of car model ids
				stock_quantity   INTEGER NOT NULL DEFAULT 0,
				hidden_status    INTEGER NOT NULL DEFAULT 0,
				updated_at       INTEGER NOT NULL DEFAULT 0
			)`,
		},
		{
			Name:     TableFavorites,
			Syncable: true,
			ForeignKeys: []ForeignKey{
				{Column: "product_id", RefTable: TableProducts},
			},
			DDL: `CREATE TABLE IF NOT EXISTS favorites (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL,
				product_id TEXT NOT NULL,
				updated_at INTEGER NOT NULL DEFAULT 0
			)`,
		},
		{
			Name:     TableCartItems,
			Syncable: false,
			ForeignKeys: []ForeignKey{
				{Column: "product_id", RefTable: TableProducts},
			},
			DDL: `CREATE TABLE IF NOT EXISTS cart_items (
				product_id TEXT PRIMARY KEY,
				quantity   INTEGER NOT NULL DEFAULT 0,
				updated_at INTEGER NOT NULL DEFAULT 0
			)`,
		},
	}
}

// SyncableTables returns the names of tables that participate in
// pull/push, in dependency order.
func SyncableTables() []string {
	var names []string
	for _, t := range Registry() {
		if t.Syncable {
			names = append(names, t.Name)
		}
	}
	return names
}

// TableByName looks up a table descriptor from the registry.
func TableByName(name string) (Table, bool) {
	for _, t := range Registry() {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// ReferencingKeys returns, for every table in the registry, the foreign
// keys that point at the given table. The push queue uses this to
// rewrite references when a temporary id is replaced by a server id.
func ReferencingKeys(target string) map[string][]ForeignKey {
	refs := make(map[string][]ForeignKey)
	for _, t := range Registry() {
		for _, fk := range t.ForeignKeys {
			if fk.RefTable == target {
				refs[t.Name] = append(refs[t.Name], fk)
			}
		}
	}
	return refs
}
