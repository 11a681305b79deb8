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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/salespilot/services/salesbot/bot"
	"github.com/AleutianAI/salespilot/services/salesbot/flow"
)

// Manager errors.
var (
	ErrSessionIDRequired = errors.New("session id is required")
	ErrClientIDRequired  = errors.New("client id is required")
	ErrUnknownFlow       = errors.New("unknown flow")
)

// Config tunes the session manager.
type Config struct {
	// RequireClientID rejects requests without a tenant. Tenant
	// isolation is only meaningful with this on.
	RequireClientID bool

	// FlushHour: the first request of the day at or past this hour
	// triggers the batch flush to the external store.
	FlushHour int

	// CloseTailSize is how many verbatim turns survive compaction
	// when a session is closed.
	CloseTailSize int

	// FlushLockTTL bounds how long a crashed flusher can block the
	// next one.
	FlushLockTTL time.Duration
}

// DefaultManagerConfig returns production settings.
func DefaultManagerConfig() Config {
	return Config{
		RequireClientID: true,
		FlushHour:       3,
		CloseTailSize:   4,
		FlushLockTTL:    5 * time.Minute,
	}
}

// Options select tenant, flow, and config for one session.
type Options struct {
	ClientID   string
	FlowName   string
	ConfigName string
	Persona    string
}

type cacheEntry struct {
	bot          *bot.Bot
	createdAt    time.Time
	lastActivity time.Time
}

// Manager owns the session cache and the tiered restore ladder:
// cache → local buffer → external store (tenant key, then legacy) →
// new bot. All per-session work happens under the session lock.
type Manager struct {
	cfg    Config
	deps   bot.Deps
	flows  map[string]flow.Config
	buffer *Buffer
	store  SnapshotStore // may be nil: buffer-only deployment
	locks  *LockManager
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]*cacheEntry

	active   metric.Int64UpDownCounter
	restores metric.Int64Counter
}

// NewManager wires a manager. flows must contain every flow sessions
// may name; when nil, the built-in SPIN flow is registered under its
// own name.
func NewManager(cfg Config, deps bot.Deps, flows map[string]flow.Config,
	buffer *Buffer, store SnapshotStore, locks *LockManager, logger *slog.Logger) *Manager {

	if logger == nil {
		logger = slog.Default()
	}
	if flows == nil {
		spin := flow.SpinSelling()
		flows = map[string]flow.Config{spin.Name: spin}
	}
	if cfg.CloseTailSize <= 0 {
		cfg.CloseTailSize = DefaultManagerConfig().CloseTailSize
	}
	if cfg.FlushLockTTL <= 0 {
		cfg.FlushLockTTL = DefaultManagerConfig().FlushLockTTL
	}

	meter := otel.Meter("salespilot/session")
	active, _ := meter.Int64UpDownCounter("salesbot_sessions_active")
	restores, _ := meter.Int64Counter("salesbot_session_restores_total")

	return &Manager{
		cfg:      cfg,
		deps:     deps,
		flows:    flows,
		buffer:   buffer,
		store:    store,
		locks:    locks,
		logger:   logger,
		now:      time.Now,
		cache:    map[string]*cacheEntry{},
		active:   active,
		restores: restores,
	}
}

// defaultFlowName returns the single registered flow when the caller
// names none.
func (m *Manager) defaultFlowName() string {
	if _, ok := m.flows[flow.SpinSelling().Name]; ok {
		return flow.SpinSelling().Name
	}
	for name := range m.flows {
		return name
	}
	return ""
}

func (m *Manager) validate(sessionID string, opts Options) error {
	if sessionID == "" {
		return ErrSessionIDRequired
	}
	if m.cfg.RequireClientID && opts.ClientID == "" {
		return ErrClientIDRequired
	}
	return nil
}

// GetOrCreate resolves a session to a live bot, walking cache, local
// buffer, and external store before creating a new one. The caller
// must treat the returned bot as owned until the request completes;
// per-session serialization is the lock manager's job and happens
// inside every Manager method.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string, opts Options) (*bot.Bot, error) {
	if err := m.validate(sessionID, opts); err != nil {
		return nil, err
	}
	release, err := m.locks.Acquire(opts.ClientID, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	m.maybeBatchFlush(ctx)
	return m.resolve(ctx, sessionID, opts)
}

// Process runs one turn under the session lock: resolve the bot, run
// the pipeline, and persist the result. Terminal outcomes close the
// session (compacted snapshot, cache eviction); every other turn
// re-enqueues an uncompacted snapshot so a crash loses nothing.
func (m *Manager) Process(ctx context.Context, sessionID string, opts Options, message string) (bot.TurnResult, error) {
	if err := m.validate(sessionID, opts); err != nil {
		return bot.TurnResult{}, err
	}
	release, err := m.locks.Acquire(opts.ClientID, sessionID)
	if err != nil {
		return bot.TurnResult{}, err
	}
	defer release()

	m.maybeBatchFlush(ctx)
	b, err := m.resolve(ctx, sessionID, opts)
	if err != nil {
		return bot.TurnResult{}, err
	}

	res := b.Process(ctx, message)

	if res.IsFinal && res.Outcome != "" {
		if _, err := m.closeLocked(ctx, sessionID, opts.ClientID); err != nil {
			m.logger.Warn("cannot close finished session",
				"session_id", sessionID, "error", err)
		}
	} else {
		m.persistTurn(ctx, sessionID, opts.ClientID, b)
	}
	return res, nil
}

// persistTurn parks the current snapshot in the buffer without
// evicting the session. A write failure is recoverable: the cache
// still holds the live bot, so the turn succeeds regardless.
func (m *Manager) persistTurn(ctx context.Context, sessionID, clientID string, b *bot.Bot) {
	if m.buffer == nil {
		return
	}
	snap, tail := b.ToSnapshot(ctx, false, 0)
	if err := m.buffer.Enqueue(ctx, clientID, sessionID, Entry{Snapshot: snap, Tail: tail}); err != nil {
		m.logger.Warn("cannot persist turn snapshot",
			"session_id", sessionID, "client_id", clientID, "error", err)
	}
}

// resolve walks the restore ladder. Caller holds the session lock.
func (m *Manager) resolve(ctx context.Context, sessionID string, opts Options) (*bot.Bot, error) {
	key := bufferKey(opts.ClientID, sessionID)

	// Tier 1: cache.
	m.mu.Lock()
	entry, hit := m.cache[key]
	if hit {
		entry.lastActivity = m.now()
	}
	m.mu.Unlock()
	if hit {
		return m.applyOverrides(ctx, entry, opts)
	}

	// Tier 2: local buffer. Consuming the entry keeps the cache the
	// single source of truth for an active session.
	if m.buffer != nil {
		buffered, ok, err := m.buffer.Get(ctx, opts.ClientID, sessionID)
		if err != nil {
			return nil, err
		}
		if ok {
			if b := m.restore(buffered.Entry, sessionID, opts, "buffer"); b != nil {
				if err := m.buffer.Delete(ctx, buffered.Key); err != nil {
					m.logger.Warn("cannot consume buffered snapshot", "key", buffered.Key, "error", err)
				}
				return b, nil
			}
		}
	}

	// Tier 3: external store, tenant-aware key first.
	if m.store != nil {
		keys := []string{LegacyKey(sessionID)}
		if opts.ClientID != "" {
			keys = []string{TenantKey(opts.ClientID, sessionID), LegacyKey(sessionID)}
		}
		for _, storeKey := range keys {
			stored, ok, err := m.store.Get(ctx, storeKey)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if b := m.restore(stored, sessionID, opts, "store"); b != nil {
				return b, nil
			}
		}
	}

	// Tier 4: fresh session.
	return m.create(sessionID, opts)
}

// applyOverrides rebuilds a cached bot when the request names a
// different flow or config; otherwise it returns the cached bot.
func (m *Manager) applyOverrides(ctx context.Context, entry *cacheEntry, opts Options) (*bot.Bot, error) {
	b := entry.bot
	sameFlow := opts.FlowName == "" || opts.FlowName == b.FlowName()
	sameConfig := opts.ConfigName == "" || opts.ConfigName == b.ConfigName()
	if sameFlow && sameConfig {
		return b, nil
	}

	flowName := b.FlowName()
	if opts.FlowName != "" {
		flowName = opts.FlowName
	}
	flowCfg, ok := m.flows[flowName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlow, flowName)
	}

	snap, tail := b.ToSnapshot(ctx, false, 0)
	snap.FlowName = flowName
	if opts.ConfigName != "" {
		snap.ConfigName = opts.ConfigName
	}
	rebuilt := bot.FromSnapshot(snap, tail, flowCfg, m.deps)
	entry.bot = rebuilt
	m.logger.Info("session rebuilt with overrides",
		"session_id", b.ConversationID(), "flow", flowName, "config", snap.ConfigName)
	return rebuilt, nil
}

// restore turns a persisted entry back into a cached bot. Returns nil
// when the snapshot belongs to a different tenant; the caller falls
// through to the next tier.
func (m *Manager) restore(entry Entry, sessionID string, opts Options, tier string) *bot.Bot {
	snap := entry.Snapshot
	if snap.ClientID != "" && opts.ClientID != "" && snap.ClientID != opts.ClientID {
		m.logger.Warn("discarding snapshot for foreign tenant",
			"session_id", sessionID, "snapshot_client", snap.ClientID, "request_client", opts.ClientID)
		return nil
	}
	if snap.ClientID == "" {
		snap.ClientID = opts.ClientID
	}

	flowName := snap.FlowName
	if flowName == "" {
		flowName = m.defaultFlowName()
		snap.FlowName = flowName
	}
	flowCfg, ok := m.flows[flowName]
	if !ok {
		m.logger.Warn("snapshot names unknown flow, starting fresh",
			"session_id", sessionID, "flow", flowName)
		return nil
	}

	b := bot.FromSnapshot(snap, entry.Tail, flowCfg, m.deps)
	m.cacheBot(bufferKey(opts.ClientID, sessionID), b)
	m.restores.Add(context.Background(), 1)
	m.logger.Info("session restored", "session_id", sessionID,
		"client_id", opts.ClientID, "tier", tier, "turns", b.TurnCount())
	return b
}

func (m *Manager) create(sessionID string, opts Options) (*bot.Bot, error) {
	flowName := opts.FlowName
	if flowName == "" {
		flowName = m.defaultFlowName()
	}
	flowCfg, ok := m.flows[flowName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlow, flowName)
	}

	b := bot.New(bot.Options{
		ConversationID: sessionID,
		ClientID:       opts.ClientID,
		FlowName:       flowName,
		ConfigName:     opts.ConfigName,
		Persona:        opts.Persona,
	}, flowCfg, m.deps)
	m.cacheBot(bufferKey(opts.ClientID, sessionID), b)
	m.logger.Info("session created", "session_id", sessionID,
		"client_id", opts.ClientID, "flow", flowName)
	return b, nil
}

func (m *Manager) cacheBot(key string, b *bot.Bot) {
	now := m.now()
	m.mu.Lock()
	m.cache[key] = &cacheEntry{bot: b, createdAt: now, lastActivity: now}
	m.mu.Unlock()
	m.active.Add(context.Background(), 1)
}

// CloseSession snapshots the session with history compaction, parks
// it in the buffer, and evicts it from the cache. Returns false when
// the session is not cached. Idempotent.
func (m *Manager) CloseSession(ctx context.Context, sessionID, clientID string) (bool, error) {
	if err := m.validate(sessionID, Options{ClientID: clientID}); err != nil {
		return false, err
	}
	release, err := m.locks.Acquire(clientID, sessionID)
	if err != nil {
		return false, err
	}
	defer release()

	return m.closeLocked(ctx, sessionID, clientID)
}

// closeLocked is CloseSession minus validation and locking.
func (m *Manager) closeLocked(ctx context.Context, sessionID, clientID string) (bool, error) {
	key := bufferKey(clientID, sessionID)
	m.mu.Lock()
	entry, ok := m.cache[key]
	if ok {
		delete(m.cache, key)
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}

	snap, tail := entry.bot.ToSnapshot(ctx, true, m.cfg.CloseTailSize)
	if m.buffer != nil {
		if err := m.buffer.Enqueue(ctx, clientID, sessionID, Entry{Snapshot: snap, Tail: tail}); err != nil {
			// Re-cache rather than lose a live session.
			m.mu.Lock()
			m.cache[key] = entry
			m.mu.Unlock()
			return false, err
		}
	}
	m.active.Add(context.Background(), -1)
	m.logger.Info("session closed", "session_id", sessionID,
		"client_id", clientID, "turns", entry.bot.TurnCount())
	return true, nil
}

// ResetSession reinitializes a cached session in place. Returns false
// when the session is not cached.
func (m *Manager) ResetSession(sessionID, clientID string) (bool, error) {
	if err := m.validate(sessionID, Options{ClientID: clientID}); err != nil {
		return false, err
	}
	release, err := m.locks.Acquire(clientID, sessionID)
	if err != nil {
		return false, err
	}
	defer release()

	m.mu.Lock()
	entry, ok := m.cache[bufferKey(clientID, sessionID)]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	entry.bot.Reset()
	return true, nil
}

// ActiveSessions reports the cache size.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}

// maybeBatchFlush moves buffered snapshots to the external store once
// per day, on the first request at or past FlushHour. The advisory
// lock keeps concurrent processes from double-flushing.
func (m *Manager) maybeBatchFlush(ctx context.Context) {
	if m.store == nil || m.buffer == nil {
		return
	}
	now := m.now()
	if now.Hour() < m.cfg.FlushHour {
		return
	}
	today := now.Format("2006-01-02")
	last, err := m.buffer.LastFlushDate(ctx)
	if err != nil {
		m.logger.Warn("cannot read last flush date", "error", err)
		return
	}
	if last == today {
		return
	}

	holder := fmt.Sprintf("%s-%d", hostname(), os.Getpid())
	got, err := m.buffer.AcquireFlushLock(ctx, holder, m.cfg.FlushLockTTL)
	if err != nil || !got {
		if err != nil {
			m.logger.Warn("cannot acquire flush lock", "error", err)
		}
		return
	}
	defer m.buffer.ReleaseFlushLock(ctx, holder)

	entries, err := m.buffer.All(ctx)
	if err != nil {
		m.logger.Error("batch flush aborted", "error", err)
		return
	}
	if len(entries) == 0 {
		// Nothing to move. Leave the date unstamped so the flush still
		// runs later today once snapshots arrive.
		return
	}
	flushed := 0
	for _, e := range entries {
		storeKey := LegacyKey(e.SessionID)
		if e.ClientID != "" {
			storeKey = TenantKey(e.ClientID, e.SessionID)
		}
		if err := m.store.Put(ctx, storeKey, e.Entry); err != nil {
			m.logger.Error("batch flush write failed", "key", storeKey, "error", err)
			return
		}
		flushed++
	}
	if err := m.buffer.Clear(ctx); err != nil {
		m.logger.Error("cannot clear buffer after flush", "error", err)
		return
	}
	if err := m.buffer.SetLastFlushDate(ctx, today); err != nil {
		m.logger.Warn("cannot stamp flush date", "error", err)
	}
	m.logger.Info("batch flush complete", "snapshots", flushed, "date", today)
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
