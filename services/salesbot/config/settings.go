// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"strconv"
	"strings"
)

// Settings holds process-level configuration resolved from the
// environment at bootstrap. Components never read the environment
// themselves; they receive values from here.
type Settings struct {
	// APIKey is the shared bearer secret for /api/v1 routes.
	APIKey string

	// Port is the HTTP listen port.
	Port string

	// DBPath is the path of the SQL-backed conversation store.
	DBPath string

	// SnapshotBufferPath is the path of the local durable snapshot buffer.
	SnapshotBufferPath string

	// SessionLockDir is the directory for per-session advisory locks.
	SessionLockDir string

	// SnapshotStoreDir is the directory of the Badger snapshot store
	// used when no SQL store is configured (lightweight mode).
	SnapshotStoreDir string

	// LLMBaseURL is the OpenAI-compatible endpoint of the generation
	// service. LLMModel names the served model.
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	// EmbedderModel names the embedding model for the semantic tiers.
	EmbedderModel string

	// FlushHour is the hour of day (0-23) after which the first request
	// triggers the daily batch flush to the external store.
	FlushHour int

	// RequireClientID rejects requests without a tenant id when true.
	RequireClientID bool

	// LogLevel and LogDir configure the service logger.
	LogLevel string
	LogDir   string

	// FlagOverridesPath, when set, is watched for runtime flag changes.
	FlagOverridesPath string
}

// LoadSettings reads settings from the environment, falling back to
// development defaults for anything unset.
func LoadSettings() Settings {
	return Settings{
		APIKey:             os.Getenv("API_KEY"),
		Port:               envOr("PORT", "12300"),
		DBPath:             os.Getenv("DB_PATH"),
		SnapshotBufferPath: envOr("SNAPSHOT_BUFFER_PATH", "./data/snapshot_buffer.db"),
		SessionLockDir:     envOr("SESSION_LOCK_DIR", "./data/session_locks"),
		SnapshotStoreDir:   envOr("SNAPSHOT_STORE_DIR", "./data/snapshot_store"),
		LLMBaseURL:         envOr("LLM_BASE_URL", "http://localhost:11434/v1"),
		LLMAPIKey:          envOr("LLM_API_KEY", "not-needed"),
		LLMModel:           envOr("LLM_MODEL", "qwen2.5:14b"),
		EmbedderModel:      envOr("EMBEDDER_MODEL", "nomic-embed-text"),
		FlushHour:          envOrInt("FLUSH_HOUR", 3),
		RequireClientID:    envOrBool("REQUIRE_CLIENT_ID", true),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		LogDir:             os.Getenv("LOG_DIR"),
		FlagOverridesPath:  os.Getenv("FLAG_OVERRIDES_PATH"),
	}
}

func envOr(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}
