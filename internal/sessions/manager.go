package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/mozi-run/mozi/internal/errs"
)

// Manager handles session lifecycle, in-memory caching, and persistence.
// It generalizes the teacher's in-memory-map-plus-mutex Manager
// (internal/sessions/manager.go in the original tree) from per-key JSON
// files to the sqlite-backed Store, while keeping the same read-through
// cache shape and write-through Save contract.
type Manager struct {
	mu    sync.RWMutex
	cache map[string]*Session
	store *Store
	now   func() time.Time
}

// NewManager wraps store with an in-memory cache. now defaults to time.Now
// if nil (tests may substitute a fixed clock).
func NewManager(store *Store, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		cache: make(map[string]*Session),
		store: store,
		now:   now,
	}
}

// GetOrCreate returns the session for key, creating and persisting a new
// idle session if none exists. Idempotent: concurrent callers with the same
// key converge on the same Session instance.
func (m *Manager) GetOrCreate(ctx context.Context, key, agentID, channel string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.cache[key]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	sess, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = NewSession(key, agentID, channel, m.now())
		if err := m.store.Upsert(ctx, sess); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	if existing, ok := m.cache[key]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.cache[key] = sess
	m.mu.Unlock()
	return sess, nil
}

// Get returns the cached session for key, or nil if it has never been
// created in this process and is not found in the store.
func (m *Manager) Get(ctx context.Context, key string) (*Session, error) {
	m.mu.RLock()
	if s, ok := m.cache[key]; ok {
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()
	return m.store.Get(ctx, key)
}

// AppendTurn records a turn against key's session and persists it.
func (m *Manager) AppendTurn(ctx context.Context, key string, t Turn) error {
	m.mu.Lock()
	sess, ok := m.cache[key]
	m.mu.Unlock()
	if !ok {
		return errs.New(errs.CodeInternal, "append turn on unknown session "+key)
	}

	m.mu.Lock()
	sess.AppendTurn(t)
	m.mu.Unlock()

	return m.store.Upsert(ctx, sess)
}

// SetStatus transitions a session's dispatch status and persists it.
func (m *Manager) SetStatus(ctx context.Context, key string, status Status) error {
	m.mu.Lock()
	sess, ok := m.cache[key]
	if ok {
		sess.Status = status
		sess.Updated = m.now()
	}
	m.mu.Unlock()
	if !ok {
		return errs.New(errs.CodeInternal, "set status on unknown session "+key)
	}
	return m.store.Upsert(ctx, sess)
}

// Compact truncates the session's turn history to the newest keep turns and
// bumps CompactionCount, mirroring the teacher's compaction bookkeeping
// (CompactionCount field in the original Session struct).
func (m *Manager) Compact(ctx context.Context, key string, keep int) error {
	m.mu.Lock()
	sess, ok := m.cache[key]
	if ok {
		sess.TruncateTurns(keep)
		sess.Metadata.CompactionCount++
		sess.Updated = m.now()
	}
	m.mu.Unlock()
	if !ok {
		return errs.New(errs.CodeInternal, "compact unknown session "+key)
	}
	return m.store.Upsert(ctx, sess)
}

// RecordMemoryFlush stamps the session's last-flush bookkeeping.
func (m *Manager) RecordMemoryFlush(ctx context.Context, key string) error {
	m.mu.Lock()
	sess, ok := m.cache[key]
	if ok {
		sess.Metadata.MemoryFlushAt = m.now()
		sess.Metadata.MemoryFlushCount++
	}
	m.mu.Unlock()
	if !ok {
		return errs.New(errs.CodeInternal, "record memory flush on unknown session "+key)
	}
	return m.store.Upsert(ctx, sess)
}

// List delegates to the Store for filtered listing (cache is write-through
// so the store is always current for committed sessions).
func (m *Manager) List(ctx context.Context, f ListFilter) ([]*Session, error) {
	return m.store.List(ctx, f)
}

// Delete removes a session from both cache and store. Callers are
// responsible for cancelling any in-flight kernel turn for key first — the
// Manager itself has no knowledge of the dispatch kernel.
func (m *Manager) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.cache, key)
	m.mu.Unlock()
	return m.store.Delete(ctx, key)
}

// Reset clears a session's turn history and summary in place, keeping its
// key/agent/channel identity (used by the /new command).
func (m *Manager) Reset(ctx context.Context, key string) error {
	m.mu.Lock()
	sess, ok := m.cache[key]
	if ok {
		sess.Turns = nil
		sess.Summary = ""
		sess.Metadata = Metadata{}
		sess.Updated = m.now()
	}
	m.mu.Unlock()
	if !ok {
		return errs.New(errs.CodeInternal, "reset unknown session "+key)
	}
	return m.store.Upsert(ctx, sess)
}
