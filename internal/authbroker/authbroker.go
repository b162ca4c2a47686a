// Package authbroker stores per-agent auth secrets (API keys, tokens) that
// the /setAuth, /unsetAuth, /listAuth and /checkAuth commands manage. A
// missing secret surfaces through the runtime as errs.CodeAuthMissing so
// the message handler can render spec.md §4.7's
// "Missing authentication secret <KEY>" user-visible error.
//
// Grounded on internal/sessions.Store's modernc.org/sqlite schema-at-open
// pattern: a single small table, no migration tool, CREATE TABLE IF NOT
// EXISTS for idempotent startup.
package authbroker

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	_ "modernc.org/sqlite"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS auth_secrets (
	agent_id TEXT NOT NULL,
	key      TEXT NOT NULL,
	value    TEXT NOT NULL,
	PRIMARY KEY (agent_id, key)
);
`

// Broker persists and retrieves named secrets scoped to an agent id.
type Broker struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path.
func Open(path string) (*Broker, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("authbroker: open %s: %w", path, err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("authbroker: apply schema: %w", err)
	}
	return &Broker{db: db}, nil
}

// Close closes the underlying database handle.
func (b *Broker) Close() error { return b.db.Close() }

// Set stores value under key for agentID, overwriting any existing value.
func (b *Broker) Set(ctx context.Context, agentID, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO auth_secrets (agent_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(agent_id, key) DO UPDATE SET value = excluded.value`,
		agentID, key, value)
	return err
}

// Unset removes key for agentID. Not an error if it was already absent.
func (b *Broker) Unset(ctx context.Context, agentID, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.db.ExecContext(ctx, `DELETE FROM auth_secrets WHERE agent_id = ? AND key = ?`, agentID, key)
	return err
}

// Check reports whether key is set for agentID.
func (b *Broker) Check(ctx context.Context, agentID, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var v string
	err := b.db.QueryRowContext(ctx, `SELECT value FROM auth_secrets WHERE agent_id = ? AND key = ?`, agentID, key).Scan(&v)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// Get retrieves the value stored under key for agentID.
func (b *Broker) Get(ctx context.Context, agentID, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var v string
	err := b.db.QueryRowContext(ctx, `SELECT value FROM auth_secrets WHERE agent_id = ? AND key = ?`, agentID, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// List returns the sorted key names set for agentID. Values are never
// returned by List — only an internal caller retrieves a value directly,
// via Get; /checkAuth reports presence only, via Check.
func (b *Broker) List(ctx context.Context, agentID string) ([]string, error) {
	b.mu.Lock()
	rows, err := b.db.QueryContext(ctx, `SELECT key FROM auth_secrets WHERE agent_id = ?`, agentID)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, rows.Err()
}
