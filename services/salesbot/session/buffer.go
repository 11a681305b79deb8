// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// flushLockName is the single advisory lock row used by batch flush.
const flushLockName = "batch_flush"

// metaLastFlush is the metadata key holding the last flush date
// (YYYY-MM-DD).
const metaLastFlush = "last_flush_date"

const bufferSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT PRIMARY KEY,
	client_id  TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL,
	payload    BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_session ON snapshots(session_id);

CREATE TABLE IF NOT EXISTS metadata (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS locks (
	name       TEXT PRIMARY KEY,
	holder     TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
`

// BufferedEntry is one buffered snapshot with its buffer bookkeeping.
type BufferedEntry struct {
	Key       string
	ClientID  string
	SessionID string
	Entry     Entry
	UpdatedAt time.Time
}

// Buffer is the durable local snapshot tier, backed by SQLite in WAL
// mode so concurrent processes on the same host can share it.
//
// Thread Safety: safe for concurrent use; database/sql serializes
// access and WAL handles cross-process readers.
type Buffer struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenBuffer opens (or creates) the buffer database at path.
func OpenBuffer(path string, logger *slog.Logger) (*Buffer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create buffer directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open buffer database: %w", err)
	}
	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA synchronous=NORMAL`,
		`PRAGMA busy_timeout=5000`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(bufferSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create buffer schema: %w", err)
	}

	return &Buffer{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the underlying database.
func (b *Buffer) Close() error { return b.db.Close() }

// bufferKey is the primary key: tenant-aware when a client id is
// known, bare session id for legacy entries.
func bufferKey(clientID, sessionID string) string {
	if clientID == "" {
		return sessionID
	}
	return TenantKey(clientID, sessionID)
}

// Enqueue upserts one snapshot. The previous payload for the same
// (client, session) is replaced.
func (b *Buffer) Enqueue(ctx context.Context, clientID, sessionID string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal snapshot payload: %w", err)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO snapshots (key, client_id, session_id, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			client_id  = excluded.client_id,
			payload    = excluded.payload,
			updated_at = excluded.updated_at`,
		bufferKey(clientID, sessionID), clientID, sessionID, payload, b.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("enqueue snapshot: %w", err)
	}
	return nil
}

// Get fetches one buffered snapshot, trying the tenant-aware key first
// and falling back to a legacy entry for the bare session id.
func (b *Buffer) Get(ctx context.Context, clientID, sessionID string) (BufferedEntry, bool, error) {
	if clientID != "" {
		if e, ok, err := b.getByKey(ctx, TenantKey(clientID, sessionID)); err != nil || ok {
			return e, ok, err
		}
	}
	return b.getByKey(ctx, sessionID)
}

func (b *Buffer) getByKey(ctx context.Context, key string) (BufferedEntry, bool, error) {
	var (
		e       BufferedEntry
		payload []byte
		updated int64
	)
	row := b.db.QueryRowContext(ctx, `
		SELECT key, client_id, session_id, payload, updated_at
		FROM snapshots WHERE key = ?`, key)
	err := row.Scan(&e.Key, &e.ClientID, &e.SessionID, &payload, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return BufferedEntry{}, false, nil
	}
	if err != nil {
		return BufferedEntry{}, false, fmt.Errorf("read buffered snapshot: %w", err)
	}
	if err := json.Unmarshal(payload, &e.Entry); err != nil {
		return BufferedEntry{}, false, fmt.Errorf("decode buffered snapshot %s: %w", key, err)
	}
	e.UpdatedAt = time.UnixMilli(updated)
	return e, true, nil
}

// Delete removes one entry by its buffer key.
func (b *Buffer) Delete(ctx context.Context, key string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete buffered snapshot: %w", err)
	}
	return nil
}

// All returns every buffered entry, oldest first.
func (b *Buffer) All(ctx context.Context) ([]BufferedEntry, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT key, client_id, session_id, payload, updated_at
		FROM snapshots ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("list buffered snapshots: %w", err)
	}
	defer rows.Close()

	var out []BufferedEntry
	for rows.Next() {
		var (
			e       BufferedEntry
			payload []byte
			updated int64
		)
		if err := rows.Scan(&e.Key, &e.ClientID, &e.SessionID, &payload, &updated); err != nil {
			return nil, fmt.Errorf("scan buffered snapshot: %w", err)
		}
		if err := json.Unmarshal(payload, &e.Entry); err != nil {
			// A corrupt row must not wedge the flush loop.
			b.logger.Warn("skipping corrupt buffered snapshot", "key", e.Key, "error", err)
			continue
		}
		e.UpdatedAt = time.UnixMilli(updated)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clear removes every buffered snapshot.
func (b *Buffer) Clear(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM snapshots`)
	if err != nil {
		return fmt.Errorf("clear buffer: %w", err)
	}
	return nil
}

// Count returns the number of buffered snapshots.
func (b *Buffer) Count(ctx context.Context) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count buffered snapshots: %w", err)
	}
	return n, nil
}

// LastFlushDate returns the stored flush date (YYYY-MM-DD), empty when
// no flush has happened yet.
func (b *Buffer) LastFlushDate(ctx context.Context) (string, error) {
	var v string
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM metadata WHERE name = ?`, metaLastFlush).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read last flush date: %w", err)
	}
	return v, nil
}

// SetLastFlushDate stamps the flush date.
func (b *Buffer) SetLastFlushDate(ctx context.Context, date string) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO metadata (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		metaLastFlush, date)
	if err != nil {
		return fmt.Errorf("set last flush date: %w", err)
	}
	return nil
}

// AcquireFlushLock takes the advisory flush lock for ttl. Returns
// false when another live holder has it; an expired lock is taken
// over.
func (b *Buffer) AcquireFlushLock(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	now := b.now().UnixMilli()
	res, err := b.db.ExecContext(ctx, `
		INSERT INTO locks (name, holder, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			holder     = excluded.holder,
			expires_at = excluded.expires_at
		WHERE locks.expires_at < ? OR locks.holder = excluded.holder`,
		flushLockName, holder, now+ttl.Milliseconds(), now)
	if err != nil {
		return false, fmt.Errorf("acquire flush lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire flush lock: %w", err)
	}
	return n > 0, nil
}

// ReleaseFlushLock drops the lock if this holder still owns it.
func (b *Buffer) ReleaseFlushLock(ctx context.Context, holder string) error {
	_, err := b.db.ExecContext(ctx,
		`DELETE FROM locks WHERE name = ? AND holder = ?`, flushLockName, holder)
	if err != nil {
		return fmt.Errorf("release flush lock: %w", err)
	}
	return nil
}
