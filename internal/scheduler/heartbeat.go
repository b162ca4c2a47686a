package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// WorkspaceResolver locates an agent's workspace directory, where its
// HEARTBEAT.md directive file lives.
type WorkspaceResolver interface {
	Workspace(agentID string) (dir string, ok bool)
}

var htmlCommentPattern = regexp.MustCompile(`(?s)<!--.*?-->`)
var emptyCheckboxPattern = regexp.MustCompile(`(?m)^\s*-\s*\[\s*\]\s*$`)

// meaningfulHeartbeatContent strips HTML comments and empty checkbox lines
// per spec.md §4.8, returning whether anything meaningful remains.
func meaningfulHeartbeatContent(raw string) (string, bool) {
	stripped := htmlCommentPattern.ReplaceAllString(raw, "")
	stripped = emptyCheckboxPattern.ReplaceAllString(stripped, "")
	stripped = strings.TrimSpace(stripped)
	return stripped, stripped != ""
}

// ReadHeartbeat reads agentID's workspace HEARTBEAT.md. Satisfies
// internal/handler.HeartbeatStore.
func (s *Scheduler) ReadHeartbeat(agentID string) (string, bool, error) {
	if s.workspaces == nil {
		return "", false, nil
	}
	dir, ok := s.workspaces.Workspace(agentID)
	if !ok {
		return "", false, nil
	}
	raw, err := os.ReadFile(filepath.Join(dir, "HEARTBEAT.md"))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(raw), true, nil
}

// SetHeartbeatEnabled records an explicit per-agent on/off override that
// takes precedence over the merged config's enabled flag. Satisfies
// internal/handler.HeartbeatStore.
func (s *Scheduler) SetHeartbeatEnabled(agentID string, enabled bool) error {
	return s.store.setHeartbeatOverride(context.Background(), agentID, enabled)
}

// heartbeatDue reports whether agentID's heartbeat should fire, applying
// any explicit override over the merged config's enabled flag.
func (s *Scheduler) heartbeatDue(agentID string) bool {
	if override, set, err := s.store.heartbeatOverride(context.Background(), agentID); err == nil && set {
		return override
	}
	if s.Config == nil {
		return false
	}
	return s.Config.HeartbeatEnabled(agentID)
}
