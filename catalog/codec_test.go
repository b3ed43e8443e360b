// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestEncodeRowFlattensJSONColumns(t *testing.T) {
	fields := map[string]any{
		"id":            "p1",
		"name":          "Oil Filter",
		"images":        []any{"a.jpg", "b.jpg"},
		"car_model_ids": []any{"m1", "m2"},
		"hidden_status": true,
	}
	encoded, err := EncodeRow(TableProducts, fields)
	require.NoError(t, err)

	require.Equal(t, `["a.jpg","b.jpg"]`, encoded["images"])
	require.Equal(t, `["m1","m2"]`, encoded["car_model_ids"])
	require.Equal(t, int64(1), encoded["hidden_status"])
	require.Equal(t, "Oil Filter", encoded["name"])
}

func TestEncodeRowLeavesStringsAlone(t *testing.T) {
	// A JSON column may already arrive serialized (round trip from SQLite).
	fields := map[string]any{"id": "p1", "images": `["x.jpg"]`}
	encoded, err := EncodeRow(TableProducts, fields)
	require.NoError(t, err)
	require.Equal(t, `["x.jpg"]`, encoded["images"])
}

func TestDecodeRowExpandsJSONColumns(t *testing.T) {
	fields := map[string]any{
		"id":            "p1",
		"images":        `["a.jpg"]`,
		"car_model_ids": `["m1"]`,
		"hidden_status": int64(0),
	}
	decoded, err := DecodeRow(TableProducts, fields)
	require.NoError(t, err)

	require.Equal(t, []any{"a.jpg"}, decoded["images"])
	require.Equal(t, []any{"m1"}, decoded["car_model_ids"])
	require.Equal(t, false, decoded["hidden_status"])
}

func TestDecodeRowPassthroughTable(t *testing.T) {
	fields := map[string]any{"id": "b1", "name": "Bosch"}
	decoded, err := DecodeRow(TableProductBrands, fields)
	require.NoError(t, err)
	require.Equal(t, fields, decoded)
}

func TestFieldsAndAsRoundTrip(t *testing.T) {
	p := Product{
		ID:          "p1",
		Name:        "Brake Pad",
		NameAr:      "تيل فرامل",
		Price:       decimal.RequireFromString("149.99"),
		SKU:         "BP-100",
		CategoryID:  "c1",
		CarModelIDs: []string{"m1", "m2"},
		Images:      []string{"pad.jpg"},
	}
	fields, err := Fields(&p)
	require.NoError(t, err)
	require.Equal(t, "p1", fields["id"])
	require.Equal(t, "BP-100", fields["sku"])

	var back Product
	require.NoError(t, As(fields, &back))
	require.Equal(t, p.Name, back.Name)
	require.Equal(t, p.CarModelIDs, back.CarModelIDs)
	require.True(t, p.Price.Equal(back.Price), "price must survive the round trip exactly")
}

func TestCarModelVariantsRoundTrip(t *testing.T) {
	m := CarModel{
		ID:      "m1",
		BrandID: "b1",
		Name:    "Elantra",
		Variants: []Variant{
			{Name: "GL", Engine: "1.6L"},
			{Name: "GLS", Engine: "2.0L"},
		},
	}
	fields, err := Fields(&m)
	require.NoError(t, err)

	encoded, err := EncodeRow(TableCarModels, fields)
	require.NoError(t, err)
	_, isString := encoded["variants"].(string)
	require.True(t, isString, "variants must be flattened for storage")

	decoded, err := DecodeRow(TableCarModels, encoded)
	require.NoError(t, err)
	var back CarModel
	require.NoError(t, As(decoded, &back))
	require.Equal(t, m.Variants, back.Variants)
}
