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
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Lock acquisition tuning. A session turn should never hold the lock
// anywhere near staleAfter; a lock file older than that belongs to a
// dead process.
const (
	lockRetryInterval = 10 * time.Millisecond
	lockAcquireLimit  = 5 * time.Second
	lockStaleAfter    = 60 * time.Second
)

// LockManager serializes access to a session across goroutines and
// processes. In-process callers share a mutex per session key; the
// cross-process side is a filesystem advisory lock file named by a
// hash of the (tenant, session) pair.
type LockManager struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	local map[uint64]*sync.Mutex
}

// NewLockManager creates the lock directory if needed.
func NewLockManager(dir string, logger *slog.Logger) (*LockManager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	return &LockManager{dir: dir, logger: logger, local: map[uint64]*sync.Mutex{}}, nil
}

func lockKey(clientID, sessionID string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(clientID))
	h.Write([]byte{0})
	h.Write([]byte(sessionID))
	return h.Sum64()
}

// Acquire blocks until the session lock is held, then returns the
// release function. Times out with an error after lockAcquireLimit.
func (m *LockManager) Acquire(clientID, sessionID string) (func(), error) {
	key := lockKey(clientID, sessionID)

	m.mu.Lock()
	local, ok := m.local[key]
	if !ok {
		local = &sync.Mutex{}
		m.local[key] = local
	}
	m.mu.Unlock()

	local.Lock()
	path := filepath.Join(m.dir, fmt.Sprintf("%016x.lock", key))
	if err := m.acquireFile(path); err != nil {
		local.Unlock()
		return nil, err
	}

	return func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("cannot remove session lock file", "path", path, "error", err)
		}
		local.Unlock()
	}, nil
}

func (m *LockManager) acquireFile(path string) error {
	deadline := time.Now().Add(lockAcquireLimit)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0640)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("create session lock file: %w", err)
		}

		if info, serr := os.Stat(path); serr == nil && time.Since(info.ModTime()) > lockStaleAfter {
			m.logger.Warn("breaking stale session lock", "path", path, "age", time.Since(info.ModTime()))
			os.Remove(path)
			continue
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("session lock %s: timed out after %s", filepath.Base(path), lockAcquireLimit)
		}
		time.Sleep(lockRetryInterval)
	}
}
