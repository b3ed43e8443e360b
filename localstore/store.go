// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

// Package localstore provides the durable, offline-first record store
// backing the storefront. Every entity table from the catalog registry
// lives in a single SQLite database together with three metadata
// tables: per-row sync state (dirty/tombstone/failed flags), the
// pending operation queue consumed by the push side of the sync engine,
// and the per-table pull cursor.
//
// Reads never touch the network. Writes are serialized through a single
// mutex to avoid SQLite locking issues under concurrent goroutines.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/AhmedSalahALghzaly/lats-go/catalog"
)

// Operation kinds recorded in the pending queue.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// TempIDPrefix marks locally assigned identifiers that have not yet
// been confirmed by the server.
const TempIDPrefix = "tmp-"

// ErrNotFound is returned when a requested record does not exist (or is
// tombstoned).
var ErrNotFound = errors.New("record not found")

// Store is the local record store. All mutating methods are safe for
// concurrent use.
type Store struct {
	DB      *sql.DB
	logger  *slog.Logger
	writeMu sync.Mutex

	// now is swappable in tests to exercise timestamp invariants.
	now func() time.Time
}

// Open opens (creating if needed) the storefront database at path and
// initializes every business and metadata table.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewStore(db)
}

// NewStore wraps an existing SQLite handle. Used by tests with
// in-memory databases.
func NewStore(db *sql.DB) (*Store, error) {
	if err := initializeDatabase(db); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return &Store{
		DB:     db,
		logger: slog.Default(),
		now:    time.Now,
	}, nil
}

// SetLogger replaces the default slog logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.DB.Close()
}

func initializeDatabase(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	meta := []string{
		// Device identity and user scoping. Survives Reset.
		`CREATE TABLE IF NOT EXISTS _sync_client_info (
			user_id    TEXT NOT NULL,
			device_id  TEXT NOT NULL,
			PRIMARY KEY (user_id)
		)`,

		// Per-row sync state: dirty = locally modified and not pushed,
		// deleted = tombstone awaiting remote delete confirmation,
		// failed = push permanently rejected, excluded from pull overwrite.
		`CREATE TABLE IF NOT EXISTS _sync_row_state (
			table_name TEXT NOT NULL,
			record_id  TEXT NOT NULL,
			dirty      INTEGER NOT NULL DEFAULT 0,
			deleted    INTEGER NOT NULL DEFAULT 0,
			failed     INTEGER NOT NULL DEFAULT 0,
			fail_msg   TEXT,
			updated_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (table_name, record_id)
		)`,

		// Pending operations, coalesced to one row per record. seq
		// preserves the order mutations were made in.
		`CREATE TABLE IF NOT EXISTS _sync_pending (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			table_name TEXT NOT NULL,
			record_id  TEXT NOT NULL,
			op         TEXT NOT NULL CHECK (op IN ('create','update','delete')),
			payload    TEXT,
			attempts   INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			queued_at  INTEGER NOT NULL DEFAULT 0,
			change_id  INTEGER NOT NULL DEFAULT 0,
			UNIQUE (table_name, record_id)
		)`,

		// Pull watermark per table, Unix milliseconds of the newest
		// server updated_at durably applied.
		`CREATE TABLE IF NOT EXISTS _sync_cursor (
			table_name     TEXT PRIMARY KEY,
			last_pulled_at INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, ddl := range meta {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create sync metadata table: %w", err)
		}
	}

	for _, table := range catalog.Registry() {
		if _, err := db.Exec(table.DDL); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table.Name, err)
		}
	}
	return nil
}

// EnsureDeviceID returns the persisted device id for the user,
// generating one on first call. The device id survives logout.
func (s *Store) EnsureDeviceID(userID string) (string, error) {
	var deviceID string
	err := s.DB.QueryRow(`SELECT device_id FROM _sync_client_info WHERE user_id = ?`, userID).Scan(&deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		deviceID = uuid.New().String()
		if _, err := s.DB.Exec(`INSERT INTO _sync_client_info (user_id, device_id) VALUES (?, ?)`, userID, deviceID); err != nil {
			return "", fmt.Errorf("failed to insert client info: %w", err)
		}
		return deviceID, nil
	} else if err != nil {
		return "", fmt.Errorf("failed to query client info: %w", err)
	}
	return deviceID, nil
}

// NewLocalID mints a temporary identifier for a record created offline.
func NewLocalID() string {
	return TempIDPrefix + uuid.New().String()
}

// IsTempID reports whether id is a temporary local identifier that has
// not been confirmed by the server yet.
func IsTempID(id string) bool {
	return len(id) > len(TempIDPrefix) && id[:len(TempIDPrefix)] == TempIDPrefix
}

// Reset clears every syncable table, the cart, the pending queue, row
// state and cursors. Client info (device id) is kept; teardown on
// logout must not change device-level settings.
func (s *Store) Reset(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range catalog.Registry() {
		if _, err := tx.ExecContext(ctx, `DELETE FROM "`+table.Name+`"`); err != nil {
			return fmt.Errorf("failed to clear table %s: %w", table.Name, err)
		}
	}
	for _, meta := range []string{"_sync_row_state", "_sync_pending", "_sync_cursor"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+meta); err != nil {
			return fmt.Errorf("failed to clear %s: %w", meta, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}
	return nil
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}
