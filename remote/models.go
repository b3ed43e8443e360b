// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

// Package remote speaks the storefront HTTP API: the delta pull
// endpoint plus per-entity CRUD used to replay queued local mutations.
// The API itself is an external collaborator; this package only owns
// the wire types and the client.
package remote

import "encoding/json"

// PullRequest asks the server for every record changed after
// LastPulledAt (Unix milliseconds; 0 or omitted means everything).
type PullRequest struct {
	LastPulledAt int64    `json:"last_pulled_at,omitempty"`
	Tables       []string `json:"tables"`
}

// TableChanges is the per-table delta in a pull response. Created and
// Updated carry full records (with id and updated_at in milliseconds);
// Deleted carries bare ids.
type TableChanges struct {
	Created []json.RawMessage `json:"created"`
	Updated []json.RawMessage `json:"updated"`
	Deleted []string          `json:"deleted"`
}

// PullResponse is the server's delta since the requested watermark.
// Timestamp is the server's wall clock in milliseconds; the reconciler
// deliberately ignores it for cursor advancement (clock skew) and uses
// the maximum updated_at actually observed instead.
type PullResponse struct {
	Changes   map[string]TableChanges `json:"changes"`
	Timestamp int64                   `json:"timestamp"`
}

// CreateResponse is the record echoed back by a create call, carrying
// the server-assigned identifier.
type CreateResponse struct {
	ID string `json:"id"`
	// Raw keeps the full record for callers that need more than the id.
	Raw json.RawMessage `json:"-"`
}
