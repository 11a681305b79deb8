// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session resolves (tenant, session) pairs to live bot
// instances. Active sessions live in an in-memory cache; closed
// sessions land in a durable local buffer and move to an external
// snapshot store on the daily batch flush.
//
// Tiering: cache (RAM) → buffer (SQLite, WAL) → external store
// (Badger or SQL). Reads walk the tiers in that order.
package session

import (
	"context"
	"fmt"

	"github.com/AleutianAI/salespilot/services/salesbot/bot"
	"github.com/AleutianAI/salespilot/services/salesbot/compact"
)

// Entry is the persisted unit: a snapshot plus its verbatim history
// tail. The snapshot's own history field is empty by contract.
type Entry struct {
	Snapshot bot.Snapshot   `json:"snapshot"`
	Tail     []compact.Turn `json:"tail"`
}

// SnapshotStore is the external long-term tier. Implementations must
// be safe for concurrent use.
type SnapshotStore interface {
	Put(ctx context.Context, key string, entry Entry) error
	Get(ctx context.Context, key string) (Entry, bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// TenantKey builds the tenant-aware store key.
func TenantKey(clientID, sessionID string) string {
	return fmt.Sprintf("%s/%s", clientID, sessionID)
}

// LegacyKey builds the pre-tenancy key still honored on reads.
func LegacyKey(sessionID string) string { return sessionID }
