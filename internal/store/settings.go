package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// SettingsEntry is the durable admin-settings row: key, typed value,
// description, updated-at/by.
type SettingsEntry struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	Description string          `json:"description,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	UpdatedBy   string          `json:"updatedBy"`
}

// SettingsStore persists SettingsEntry rows and mirrors them into an
// in-memory read cache. The cache always reflects the authoritative
// store after a successful admin-initiated update, before the
// acknowledgment is returned.
type SettingsStore struct {
	pool *Pool

	mu    sync.RWMutex
	cache map[string]SettingsEntry
}

func NewSettingsStore(pool *Pool) *SettingsStore {
	return &SettingsStore{pool: pool, cache: make(map[string]SettingsEntry)}
}

// Warm loads every row into the cache; call once at startup before the
// Hub begins serving settings.* subscriptions.
func (s *SettingsStore) Warm(ctx context.Context) error {
	ctx, cancel := s.pool.withRead(ctx)
	defer cancel()

	rows, err := s.pool.db.Query(ctx, `SELECT key, value, description, updated_at, updated_by FROM admin_settings`)
	if err != nil {
		return asStoreErr(ctx, err)
	}
	defer rows.Close()

	cache := make(map[string]SettingsEntry)
	for rows.Next() {
		var e SettingsEntry
		if err := rows.Scan(&e.Key, &e.Value, &e.Description, &e.UpdatedAt, &e.UpdatedBy); err != nil {
			return asStoreErr(ctx, err)
		}
		cache[e.Key] = e
	}
	if err := rows.Err(); err != nil {
		return asStoreErr(ctx, err)
	}

	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()
	return nil
}

// Get reads from the in-memory cache only - settings reads never touch
// Postgres on the hot path.
func (s *SettingsStore) Get(key string) (SettingsEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.cache[key]
	return e, ok
}

// Snapshot returns every cached entry, for settings.* subscribe
// and GET_WEBSOCKET_DIAGNOSTICS-adjacent reads.
func (s *SettingsStore) Snapshot() []SettingsEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SettingsEntry, 0, len(s.cache))
	for _, e := range s.cache {
		out = append(out, e)
	}
	return out
}

// Update persists then mirrors into the cache before returning, so a
// reader that observes the acknowledgment always sees the new value.
// The write and the cache mutation happen under the same call; a
// failed persist never touches the cache.
func (s *SettingsStore) Update(ctx context.Context, key string, value json.RawMessage, description, updatedBy string, at time.Time) (SettingsEntry, error) {
	ctx, cancel := s.pool.withWrite(ctx)
	defer cancel()

	_, err := s.pool.db.Exec(ctx, `
		INSERT INTO admin_settings (key, value, description, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET value = $2, description = $3, updated_at = $4, updated_by = $5`,
		key, value, description, at, updatedBy)
	if err != nil {
		return SettingsEntry{}, asStoreErr(ctx, err)
	}

	e := SettingsEntry{Key: key, Value: value, Description: description, UpdatedAt: at, UpdatedBy: updatedBy}
	s.mu.Lock()
	s.cache[key] = e
	s.mu.Unlock()
	return e, nil
}

// ApplyExternal mirrors a setting update pushed by another service over
// NATS into the cache. The bridge is the writer of record here; this
// store just mirrors it.
func (s *SettingsStore) ApplyExternal(e SettingsEntry) {
	s.mu.Lock()
	s.cache[e.Key] = e
	s.mu.Unlock()
}
