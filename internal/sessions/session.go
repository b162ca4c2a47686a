// Package sessions implements the Session Manager: session lifecycle,
// relational persistence, and listing. See spec §4.5 and §3 Data Model.
package sessions

import (
	"time"
)

// Status is a session's current dispatch state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusQueued    Status = "queued"
	StatusCancelled Status = "cancelled"
)

// Turn is one logged exchange unit, stored as opaque JSON in the database —
// the session manager does not interpret prompt/response content, only
// tracks counts and timestamps for compaction and rollover decisions.
type Turn struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// Metadata carries per-session state outside the plain message history:
// model override, thinking level, reasoning visibility, rotation/compaction
// bookkeeping, and the last memory-flush record.
type Metadata struct {
	ModelOverride      string
	ThinkingLevel      string
	ReasoningVisible   bool
	CompactionCount    int
	MemoryFlushAt      time.Time
	MemoryFlushCount   int
	LastPromptTokens   int
	LastMessageCount   int
	Label              string
}

// Session is the canonical in-memory/on-disk representation of one
// conversation scope, keyed by its canonical sessionkey.Build output.
type Session struct {
	Key       string
	AgentID   string
	Channel   string
	ParentKey string // non-empty for subagent/cron-derived sessions
	Status    Status
	Created   time.Time
	Updated   time.Time
	Turns     []Turn
	Summary   string
	Metadata  Metadata
}

// NewSession constructs a freshly created, idle session for key/agentID.
func NewSession(key, agentID, channel string, now time.Time) *Session {
	return &Session{
		Key:     key,
		AgentID: agentID,
		Channel: channel,
		Status:  StatusIdle,
		Created: now,
		Updated: now,
	}
}

// AppendTurn records one turn and bumps Updated.
func (s *Session) AppendTurn(t Turn) {
	s.Turns = append(s.Turns, t)
	s.Updated = t.CreatedAt
}

// TruncateTurns drops all but the newest keep turns, used by compaction.
func (s *Session) TruncateTurns(keep int) {
	if keep < 0 {
		keep = 0
	}
	if len(s.Turns) <= keep {
		return
	}
	s.Turns = append([]Turn(nil), s.Turns[len(s.Turns)-keep:]...)
}
