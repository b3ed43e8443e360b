// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package catalog

import "sort"

// CategoryNode is a category together with its child categories.
type CategoryNode struct {
	Category
	Children []*CategoryNode `json:"children"`
}

// BuildCategoryTree assembles the parent/child display tree from a flat
// category list, ordered by sort_order then name at every level.
// Categories whose parent is missing from the input are treated as
// roots rather than dropped; parent chains are assumed acyclic (the
// pull reconciler rejects cyclic input before it reaches the store).
func BuildCategoryTree(categories []Category) []*CategoryNode {
	byID := make(map[string]*CategoryNode, len(categories))
	for i := range categories {
		byID[categories[i].ID] = &CategoryNode{Category: categories[i]}
	}

	var roots []*CategoryNode
	for _, node := range byID {
		if node.ParentID != "" {
			if parent, ok := byID[node.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	var sortLevel func(nodes []*CategoryNode)
	sortLevel = func(nodes []*CategoryNode) {
		sort.Slice(nodes, func(i, j int) bool {
			if nodes[i].SortOrder != nodes[j].SortOrder {
				return nodes[i].SortOrder < nodes[j].SortOrder
			}
			return nodes[i].Name < nodes[j].Name
		})
		for _, n := range nodes {
			sortLevel(n.Children)
		}
	}
	sortLevel(roots)

	return roots
}
