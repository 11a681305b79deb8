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

	"github.com/AleutianAI/salespilot/services/salesbot/intent"
)

const sqlStoreSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	key        TEXT PRIMARY KEY,
	client_id  TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL,
	snapshot   BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_client ON conversations(client_id);

CREATE TABLE IF NOT EXISTS user_profiles (
	client_id           TEXT NOT NULL DEFAULT '',
	session_id          TEXT NOT NULL,
	company_name        TEXT NOT NULL DEFAULT '',
	company_size        TEXT NOT NULL DEFAULT '',
	industry            TEXT NOT NULL DEFAULT '',
	role                TEXT NOT NULL DEFAULT '',
	pain_points         TEXT NOT NULL DEFAULT '[]',
	interested_features TEXT NOT NULL DEFAULT '[]',
	objections          TEXT NOT NULL DEFAULT '[]',
	updated_at          INTEGER NOT NULL,
	PRIMARY KEY (client_id, session_id)
);
`

// Profile is the queryable per-user summary maintained alongside each
// stored conversation. Scalar fields coalesce the state machine's
// collected data with the episodic memory's profile; list fields come
// from episodic memory.
type Profile struct {
	ClientID           string   `json:"client_id"`
	SessionID          string   `json:"session_id"`
	CompanyName        string   `json:"company_name"`
	CompanySize        string   `json:"company_size"`
	Industry           string   `json:"industry"`
	Role               string   `json:"role"`
	PainPoints         []string `json:"pain_points"`
	InterestedFeatures []string `json:"interested_features"`
	Objections         []string `json:"objections"`
}

// SQLStore is the relational external snapshot tier. Besides the raw
// conversation payload it projects a user profile row per session, so
// reporting can query profiles without decoding snapshots.
type SQLStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLStore opens (or creates) the store database at path.
func OpenSQLStore(path string, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store database: %w", err)
	}
	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA busy_timeout=5000`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqlStoreSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create store schema: %w", err)
	}
	return &SQLStore{db: db, logger: logger, now: time.Now}, nil
}

// Put stores the conversation payload and refreshes its profile row.
func (s *SQLStore) Put(ctx context.Context, key string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin store transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UnixMilli()
	snap := entry.Snapshot
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (key, client_id, session_id, snapshot, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			client_id  = excluded.client_id,
			snapshot   = excluded.snapshot,
			updated_at = excluded.updated_at`,
		key, snap.ClientID, snap.ConversationID, payload, now)
	if err != nil {
		return fmt.Errorf("store conversation %s: %w", key, err)
	}

	p := profileFrom(entry)
	pains, _ := json.Marshal(p.PainPoints)
	features, _ := json.Marshal(p.InterestedFeatures)
	objections, _ := json.Marshal(p.Objections)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_profiles (client_id, session_id, company_name, company_size,
			industry, role, pain_points, interested_features, objections, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id, session_id) DO UPDATE SET
			company_name        = excluded.company_name,
			company_size        = excluded.company_size,
			industry            = excluded.industry,
			role                = excluded.role,
			pain_points         = excluded.pain_points,
			interested_features = excluded.interested_features,
			objections          = excluded.objections,
			updated_at          = excluded.updated_at`,
		snap.ClientID, snap.ConversationID, p.CompanyName, p.CompanySize,
		p.Industry, p.Role, pains, features, objections, now)
	if err != nil {
		return fmt.Errorf("store profile for %s: %w", key, err)
	}

	return tx.Commit()
}

// Get fetches the conversation payload under key.
func (s *SQLStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM conversations WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("load conversation %s: %w", key, err)
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode conversation %s: %w", key, err)
	}
	return entry, true, nil
}

// Delete removes the conversation; the profile row is kept for
// reporting.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", key, err)
	}
	return nil
}

// GetProfile fetches the projected profile for one session.
func (s *SQLStore) GetProfile(ctx context.Context, clientID, sessionID string) (Profile, bool, error) {
	var p Profile
	var pains, features, objTypes []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT client_id, session_id, company_name, company_size, industry, role,
			pain_points, interested_features, objections
		FROM user_profiles WHERE client_id = ? AND session_id = ?`,
		clientID, sessionID).Scan(&p.ClientID, &p.SessionID, &p.CompanyName,
		&p.CompanySize, &p.Industry, &p.Role, &pains, &features, &objTypes)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, fmt.Errorf("load profile: %w", err)
	}
	json.Unmarshal(pains, &p.PainPoints)
	json.Unmarshal(features, &p.InterestedFeatures)
	json.Unmarshal(objTypes, &p.Objections)
	return p, true, nil
}

// ProfilesByClient lists every stored profile for one tenant, newest
// first.
func (s *SQLStore) ProfilesByClient(ctx context.Context, clientID string) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT client_id, session_id, company_name, company_size, industry, role,
			pain_points, interested_features, objections
		FROM user_profiles WHERE client_id = ? ORDER BY updated_at DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		var p Profile
		var pains, features, objTypes []byte
		if err := rows.Scan(&p.ClientID, &p.SessionID, &p.CompanyName, &p.CompanySize,
			&p.Industry, &p.Role, &pains, &features, &objTypes); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		json.Unmarshal(pains, &p.PainPoints)
		json.Unmarshal(features, &p.InterestedFeatures)
		json.Unmarshal(objTypes, &p.Objections)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }

// profileFrom projects a profile out of a snapshot: collected data
// wins for scalar fields, episodic memory fills the gaps and owns the
// lists.
func profileFrom(entry Entry) Profile {
	snap := entry.Snapshot
	episodic := snap.ContextWindow.Episodic
	collected := snap.StateMachine.Collected

	scalar := func(field string) string {
		if v, ok := collected[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
			return fmt.Sprintf("%v", v)
		}
		return episodic.Profile[field]
	}

	return Profile{
		ClientID:           snap.ClientID,
		SessionID:          snap.ConversationID,
		CompanyName:        scalar(intent.FieldCompanyName),
		CompanySize:        scalar(intent.FieldCompanySize),
		Industry:           scalar(intent.FieldIndustry),
		Role:               scalar(intent.FieldRole),
		PainPoints:         append([]string(nil), episodic.PainPoints...),
		InterestedFeatures: append([]string(nil), episodic.Features...),
		Objections:         append([]string(nil), episodic.Objections...),
	}
}
