package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mozi-run/mozi/internal/errs"
)

// schemaDDL is applied directly against the sqlite connection at open time,
// the same way the corpus's other modernc.org/sqlite consumers manage schema
// (teradata-labs-loom's pkg/agent/session_store.go, go-mizu-mizu's
// store/sqlite/schema.go) rather than through golang-migrate: migrate's
// bundled sqlite3 driver requires the CGO github.com/mattn/go-sqlite3, which
// would contradict the pure-Go modernc.org/sqlite choice made for this
// store. CREATE TABLE IF NOT EXISTS makes this idempotent across restarts,
// which is all the single-version schema here needs.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS sessions (
	key TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	parent_key TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	metadata_json TEXT NOT NULL DEFAULT '{}',
	turns_json TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_sessions_agent ON sessions(agent_id);
CREATE INDEX IF NOT EXISTS idx_sessions_channel ON sessions(channel);
CREATE INDEX IF NOT EXISTS idx_sessions_parent ON sessions(parent_key);
`

// Store persists Session rows in a modernc.org/sqlite database. It satisfies
// the "small relational store" requirement from spec §4.5; the teacher's
// own JSON-per-file persistence (internal/sessions/manager.go Save/loadAll)
// is superseded here because the spec calls for queryable listing with
// filters, which a flat file-per-key layout cannot do efficiently.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) the sqlite database at path and
// ensures its schema is current.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "open sqlite database", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer, matches kernel's serialized-per-session model

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.CodeInternal, "apply session schema", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

type row struct {
	key, agentID, channel, parentKey, status, summary, metadataJSON, turnsJSON string
	createdAt, updatedAt                                                      int64
}

func (s *Store) Upsert(ctx context.Context, sess *Session) error {
	metaJSON, err := json.Marshal(sess.Metadata)
	if err != nil {
		return errs.Wrap(errs.CodeInternal, "marshal session metadata", err)
	}
	turnsJSON, err := json.Marshal(sess.Turns)
	if err != nil {
		return errs.Wrap(errs.CodeInternal, "marshal session turns", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (key, agent_id, channel, parent_key, status, created_at, updated_at, summary, metadata_json, turns_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			agent_id=excluded.agent_id, channel=excluded.channel, parent_key=excluded.parent_key,
			status=excluded.status, updated_at=excluded.updated_at, summary=excluded.summary,
			metadata_json=excluded.metadata_json, turns_json=excluded.turns_json
	`, sess.Key, sess.AgentID, sess.Channel, sess.ParentKey, string(sess.Status),
		sess.Created.UnixMilli(), sess.Updated.UnixMilli(), sess.Summary, string(metaJSON), string(turnsJSON))
	if err != nil {
		return errs.Wrap(errs.CodeInternal, "upsert session", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (*Session, error) {
	r := s.db.QueryRowContext(ctx, `
		SELECT key, agent_id, channel, parent_key, status, created_at, updated_at, summary, metadata_json, turns_json
		FROM sessions WHERE key = ?`, key)
	return scanSession(r)
}

func scanSession(r *sql.Row) (*Session, error) {
	var rr row
	if err := r.Scan(&rr.key, &rr.agentID, &rr.channel, &rr.parentKey, &rr.status,
		&rr.createdAt, &rr.updatedAt, &rr.summary, &rr.metadataJSON, &rr.turnsJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Wrap(errs.CodeInternal, "scan session row", err)
	}
	return rowToSession(rr)
}

func rowToSession(rr row) (*Session, error) {
	sess := &Session{
		Key:       rr.key,
		AgentID:   rr.agentID,
		Channel:   rr.channel,
		ParentKey: rr.parentKey,
		Status:    Status(rr.status),
		Created:   time.UnixMilli(rr.createdAt),
		Updated:   time.UnixMilli(rr.updatedAt),
		Summary:   rr.summary,
	}
	if err := json.Unmarshal([]byte(rr.metadataJSON), &sess.Metadata); err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "unmarshal session metadata", err)
	}
	if err := json.Unmarshal([]byte(rr.turnsJSON), &sess.Turns); err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "unmarshal session turns", err)
	}
	return sess, nil
}

// ListFilter narrows List results.
type ListFilter struct {
	AgentID string
	Channel string
	Status  Status
	Limit   int
}

func (s *Store) List(ctx context.Context, f ListFilter) ([]*Session, error) {
	q := `SELECT key, agent_id, channel, parent_key, status, created_at, updated_at, summary, metadata_json, turns_json FROM sessions WHERE 1=1`
	var args []any
	if f.AgentID != "" {
		q += " AND agent_id = ?"
		args = append(args, f.AgentID)
	}
	if f.Channel != "" {
		q += " AND channel = ?"
		args = append(args, f.Channel)
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, string(f.Status))
	}
	q += " ORDER BY updated_at DESC"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "list sessions", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var rr row
		if err := rows.Scan(&rr.key, &rr.agentID, &rr.channel, &rr.parentKey, &rr.status,
			&rr.createdAt, &rr.updatedAt, &rr.summary, &rr.metadataJSON, &rr.turnsJSON); err != nil {
			return nil, errs.Wrap(errs.CodeInternal, "scan session row", err)
		}
		sess, err := rowToSession(rr)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE key = ?`, key)
	if err != nil {
		return errs.Wrap(errs.CodeInternal, "delete session", err)
	}
	return nil
}
