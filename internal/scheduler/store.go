// Package scheduler implements the Heartbeat & Reminder Scheduler: a
// periodic ticker that re-enters the dispatch pipeline on an agent's last
// known route, and a durable reminder store whose due rows synthesize
// their own inbound messages. Grounded on the teacher's
// HeartbeatConfig.Every duration-string shape (internal/config/config.go)
// and the cron-lane re-entrant dispatch pattern in cmd/gateway_cron.go,
// generalized from the teacher's cron-job store to a reminder store that
// also supports one-shot/periodic schedules, not only cron expressions.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS reminders (
	id            TEXT PRIMARY KEY,
	session_key   TEXT NOT NULL,
	channel       TEXT NOT NULL,
	peer_id       TEXT NOT NULL,
	peer_kind     TEXT NOT NULL,
	account_id    TEXT NOT NULL DEFAULT '',
	thread_id     TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL,
	kind          TEXT NOT NULL,
	at            TEXT NOT NULL DEFAULT '',
	every_ms      INTEGER NOT NULL DEFAULT 0,
	cron_expr     TEXT NOT NULL DEFAULT '',
	cron_tz       TEXT NOT NULL DEFAULT '',
	payload_kind  TEXT NOT NULL,
	payload_text  TEXT NOT NULL DEFAULT '',
	enabled       INTEGER NOT NULL DEFAULT 1,
	last_fired_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS heartbeat_overrides (
	agent_id TEXT PRIMARY KEY,
	enabled  INTEGER NOT NULL
);
`

// Store is the sqlite-backed persistence layer for reminders and per-agent
// heartbeat enable/disable overrides. Grounded on internal/sessions.Store's
// and internal/authbroker.Broker's schema-at-open pattern: one small table
// set, CREATE TABLE IF NOT EXISTS, no migration tool.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenStore opens (creating if necessary) the sqlite database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("scheduler: open %s: %w", path, err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("scheduler: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) insertReminder(ctx context.Context, r Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (id, session_key, channel, peer_id, peer_kind, account_id, thread_id,
			description, kind, at, every_ms, cron_expr, cron_tz, payload_kind, payload_text, enabled, last_fired_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionKey, r.Channel, r.PeerID, string(r.PeerKind), r.AccountID, r.ThreadID,
		r.Description, string(r.Kind), formatTime(r.At), r.Every.Milliseconds(), r.CronExpr, r.CronTZ,
		string(r.PayloadKind), r.PayloadText, boolToInt(r.Enabled), formatTime(r.LastFiredAt))
	return err
}

func (s *Store) updateReminder(ctx context.Context, r Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET at = ?, every_ms = ?, enabled = ?, last_fired_at = ? WHERE id = ?`,
		formatTime(r.At), r.Every.Milliseconds(), boolToInt(r.Enabled), formatTime(r.LastFiredAt), r.ID)
	return err
}

func (s *Store) deleteReminder(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	return err
}

func (s *Store) getReminder(ctx context.Context, id string) (Reminder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if err == sql.ErrNoRows {
		return Reminder{}, false, nil
	}
	if err != nil {
		return Reminder{}, false, err
	}
	return r, true, nil
}

func (s *Store) listRemindersBySession(ctx context.Context, sessionKey string) ([]Reminder, error) {
	s.mu.Lock()
	rows, err := s.db.QueryContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE session_key = ?`, sessionKey)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (s *Store) listEnabledReminders(ctx context.Context) ([]Reminder, error) {
	s.mu.Lock()
	rows, err := s.db.QueryContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE enabled = 1`)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReminders(rows)
}

const reminderColumns = `id, session_key, channel, peer_id, peer_kind, account_id, thread_id,
	description, kind, at, every_ms, cron_expr, cron_tz, payload_kind, payload_text, enabled, last_fired_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (Reminder, error) {
	var r Reminder
	var peerKind, kind, payloadKind string
	var at, lastFired string
	var everyMs int64
	var enabled int
	err := row.Scan(&r.ID, &r.SessionKey, &r.Channel, &r.PeerID, &peerKind, &r.AccountID, &r.ThreadID,
		&r.Description, &kind, &at, &everyMs, &r.CronExpr, &r.CronTZ, &payloadKind, &r.PayloadText, &enabled, &lastFired)
	if err != nil {
		return Reminder{}, err
	}
	r.PeerKind = peerKindFromString(peerKind)
	r.Kind = ScheduleKind(kind)
	r.PayloadKind = PayloadKind(payloadKind)
	r.Every = time.Duration(everyMs) * time.Millisecond
	r.Enabled = enabled != 0
	r.At = parseTime(at)
	r.LastFiredAt = parseTime(lastFired)
	return r, nil
}

func scanReminders(rows *sql.Rows) ([]Reminder, error) {
	var out []Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, rows.Err()
}

func (s *Store) setHeartbeatOverride(ctx context.Context, agentID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO heartbeat_overrides (agent_id, enabled) VALUES (?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET enabled = excluded.enabled`,
		agentID, boolToInt(enabled))
	return err
}

// heartbeatOverride reports an explicit per-agent on/off override, if any.
func (s *Store) heartbeatOverride(ctx context.Context, agentID string) (enabled bool, set bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var v int
	e := s.db.QueryRowContext(ctx, `SELECT enabled FROM heartbeat_overrides WHERE agent_id = ?`, agentID).Scan(&v)
	if e == sql.ErrNoRows {
		return false, false, nil
	}
	if e != nil {
		return false, false, e
	}
	return v != 0, true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
