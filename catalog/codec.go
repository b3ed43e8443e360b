// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"encoding/json"
	"fmt"
)

// jsonColumns lists TEXT columns that hold encoded JSON documents. They
// are flattened to strings before hitting SQLite and expanded back to
// their JSON values when a row is read.
var jsonColumns = map[string]map[string]bool{
	TableCarModels: {"variants": true},
	TableProducts:  {"images": true, "car_model_ids": true},
}

// boolColumns are stored as SQLite INTEGER 0/1 but are booleans on the
// wire and in the typed entities.
var boolColumns = map[string]map[string]bool{
	TableProducts: {"hidden_status": true},
}

// Fields converts a typed entity to the generic field map used by the
// store and the sync wire. Field names follow the entity's JSON tags.
func Fields(entity any) (map[string]any, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to expand entity fields: %w", err)
	}
	return fields, nil
}

// As converts a generic field map back into a typed entity.
func As(fields map[string]any, entity any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}
	if err := json.Unmarshal(raw, entity); err != nil {
		return fmt.Errorf("failed to decode entity: %w", err)
	}
	return nil
}

// EncodeRow prepares a field map for storage: JSON document columns are
// serialized to strings so every bound value is a SQLite scalar.
func EncodeRow(table string, fields map[string]any) (map[string]any, error) {
	cols := jsonColumns[table]
	bools := boolColumns[table]
	if len(cols) == 0 && len(bools) == 0 {
		return fields, nil
	}
	encoded := make(map[string]any, len(fields))
	for k, v := range fields {
		if cols[k] && v != nil {
			if _, ok := v.(string); !ok {
				raw, err := json.Marshal(v)
				if err != nil {
					return nil, fmt.Errorf("failed to encode column %s.%s: %w", table, k, err)
				}
				v = string(raw)
			}
		}
		if bools[k] {
			if b, ok := v.(bool); ok {
				if b {
					v = int64(1)
				} else {
					v = int64(0)
				}
			}
		}
		encoded[k] = v
	}
	return encoded, nil
}

// DecodeRow reverses EncodeRow for a row read back from SQLite.
func DecodeRow(table string, fields map[string]any) (map[string]any, error) {
	cols := jsonColumns[table]
	bools := boolColumns[table]
	if len(cols) == 0 && len(bools) == 0 {
		return fields, nil
	}
	decoded := make(map[string]any, len(fields))
	for k, v := range fields {
		if cols[k] {
			if s, ok := v.(string); ok && s != "" {
				var doc any
				if err := json.Unmarshal([]byte(s), &doc); err != nil {
					return nil, fmt.Errorf("failed to decode column %s.%s: %w", table, k, err)
				}
				v = doc
			}
		}
		if bools[k] {
			switch n := v.(type) {
			case int64:
				v = n != 0
			case float64:
				v = n != 0
			}
		}
		decoded[k] = v
	}
	return decoded, nil
}
