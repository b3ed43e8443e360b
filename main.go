// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("lats-go - Offline-First Auto Parts Storefront Core")
	fmt.Println("==================================================")
	fmt.Println()
	fmt.Println("lats-go mirrors the storefront catalog (categories, car brands,")
	fmt.Println("models, products, favorites, cart) into a local SQLite database")
	fmt.Println("and reconciles it with the remote API: watermark pulls with")
	fmt.Println("last-write-wins conflict resolution, an ordered push queue with")
	fmt.Println("temporary-id remapping, and a stale-while-revalidate query cache")
	fmt.Println("with optimistic rollback.")
	fmt.Println()
	fmt.Println("Packages:")
	fmt.Println()
	fmt.Println("  catalog     entity types, table registry, SQLite schemas")
	fmt.Println("  localstore  durable record store, pending queue, pull cursors")
	fmt.Println("  remote      storefront API client and session tokens")
	fmt.Println("  syncengine  pull reconciler and push queue")
	fmt.Println("  querycache  collection cache and optimistic mutations")
	fmt.Println("  appstate    process-wide wiring, home screen, logout teardown")
	fmt.Println("  config      environment-backed configuration")
}
