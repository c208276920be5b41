/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package audit keeps the durable, bounded history of executed and
// attempted remediation actions. The rolling-window counters that back the
// safety gate's rate limits are always recomputed from entry timestamps,
// never cached past their window.
package audit

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// retentionWindow is how far back entries are kept when loading at
	// startup.
	retentionWindow = 24 * time.Hour

	// maxEntries bounds in-memory and persisted history.
	maxEntries = 100
)

// Entry records one execution attempt, including blocked and simulated
// outcomes.
type Entry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Action     string            `json:"action"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Status     string            `json:"status"`
}

// Store persists audit entries. Implementations must treat Save as a full
// replacement of the stored history.
type Store interface {
	// Load reads all persisted entries.
	Load() ([]Entry, error)

	// Save replaces the persisted history with the given entries.
	Save(entries []Entry) error
}

// Recorder is the read/append surface the safety gate and executor depend
// on. It exists so tests can substitute an in-memory fake.
type Recorder interface {
	// Append adds an entry and persists the history synchronously.
	Append(entry Entry)

	// CountSince counts entries at or after the cutoff.
	CountSince(cutoff time.Time) int

	// CountDeletionsSince counts deletion entries at or after the cutoff.
	CountDeletionsSince(cutoff time.Time) int

	// Size returns the number of entries currently held.
	Size() int

	// LoadFailed reports whether the initial load could not read the
	// store; the safety gate consults this for its fail-open/fail-closed
	// policy.
	LoadFailed() bool
}

// Log is the process-wide audit history. Loading filters entries older
// than 24 hours; appending trims to the most recent 100 entries and saves
// synchronously. A single store is assumed to be owned by one running
// agent instance at a time.
type Log struct {
	mu         sync.Mutex
	entries    []Entry
	store      Store
	logger     *zap.Logger
	clock      func() time.Time
	loadFailed bool
	degraded   bool
}

// NewLog loads history from the store. A failed read is logged as a
// warning and treated as empty history; the failure stays visible through
// LoadFailed so the safety gate can apply its configured policy.
func NewLog(store Store, logger *zap.Logger) *Log {
	l := &Log{
		store:  store,
		logger: logger,
		clock:  time.Now,
	}

	loaded, err := store.Load()
	if err != nil {
		l.loadFailed = true
		logger.Warn("failed to load audit history, starting empty", zap.Error(err))
		return l
	}

	cutoff := l.clock().Add(-retentionWindow)
	for _, entry := range loaded {
		if entry.Timestamp.After(cutoff) {
			l.entries = append(l.entries, entry)
		}
	}
	if len(l.entries) > maxEntries {
		l.entries = l.entries[len(l.entries)-maxEntries:]
	}
	return l
}

// Append records an entry, trims the history, and persists it. A failed
// save is surfaced as a degraded-audit warning and never aborts the cycle.
func (l *Log) Append(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	if len(l.entries) > maxEntries {
		l.entries = l.entries[len(l.entries)-maxEntries:]
	}

	if err := l.store.Save(l.entries); err != nil {
		l.degraded = true
		l.logger.Warn("failed to persist audit history, continuing with degraded audit",
			zap.Error(err),
			zap.String("action", entry.Action),
		)
		return
	}
	l.degraded = false
}

// CountSince recomputes the number of entries at or after the cutoff.
func (l *Log) CountSince(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for _, entry := range l.entries {
		if entry.Timestamp.After(cutoff) {
			count++
		}
	}
	return count
}

// CountDeletionsSince recomputes the number of deletion entries at or
// after the cutoff. Deletions are identified by action name, so the count
// is always a subset of CountSince over the same window.
func (l *Log) CountDeletionsSince(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for _, entry := range l.entries {
		if entry.Timestamp.After(cutoff) && strings.Contains(strings.ToLower(entry.Action), "delete") {
			count++
		}
	}
	return count
}

// Size returns the number of entries currently held.
func (l *Log) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// LoadFailed reports whether the initial store read failed.
func (l *Log) LoadFailed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadFailed
}

// Degraded reports whether the most recent save failed.
func (l *Log) Degraded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.degraded
}
