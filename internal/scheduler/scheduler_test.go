package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mozi-run/mozi/internal/transport"
)

type fakeWorkspaces struct{ dir string }

func (f fakeWorkspaces) Workspace(agentID string) (string, bool) {
	if agentID != "mozi" {
		return "", false
	}
	return f.dir, true
}

type fakeHeartbeatConfig struct {
	enabled bool
	every   string
	prompt  string
}

func (c fakeHeartbeatConfig) HeartbeatEnabled(string) bool  { return c.enabled }
func (c fakeHeartbeatConfig) HeartbeatEvery(string) string  { return c.every }
func (c fakeHeartbeatConfig) HeartbeatPrompt(string) string { return c.prompt }

func TestHeartbeatFiresWhenContentMeaningful(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "HEARTBEAT.md"), []byte("check the build\n"), 0o644); err != nil {
		t.Fatalf("write heartbeat file: %v", err)
	}

	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	var dispatched []transport.InboundMessage
	dispatch := func(_ context.Context, msg transport.InboundMessage) {
		dispatched = append(dispatched, msg)
	}

	s := New(store, fakeWorkspaces{dir: dir}, fakeHeartbeatConfig{enabled: true, every: "1ms"}, dispatch, nil, nil)
	s.RecordRoute("mozi", transport.InboundMessage{Channel: "telegram", PeerID: "123", PeerKind: transport.PeerDM})

	s.fireHeartbeats(context.Background(), time.Now())

	if len(dispatched) != 1 {
		t.Fatalf("expected 1 dispatched heartbeat message, got %d", len(dispatched))
	}
	if dispatched[0].SenderID != "heartbeat" {
		t.Errorf("expected sender id 'heartbeat', got %q", dispatched[0].SenderID)
	}
	if dispatched[0].Channel != "telegram" || dispatched[0].PeerID != "123" {
		t.Errorf("expected heartbeat routed to last route, got channel=%q peer=%q", dispatched[0].Channel, dispatched[0].PeerID)
	}
}

func TestHeartbeatSkippedWhenFileMissing(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	var dispatched []transport.InboundMessage
	dispatch := func(_ context.Context, msg transport.InboundMessage) {
		dispatched = append(dispatched, msg)
	}

	s := New(store, fakeWorkspaces{dir: dir}, fakeHeartbeatConfig{enabled: true, every: "1ms"}, dispatch, nil, nil)
	s.RecordRoute("mozi", transport.InboundMessage{Channel: "telegram", PeerID: "123"})

	s.fireHeartbeats(context.Background(), time.Now())

	if len(dispatched) != 0 {
		t.Fatalf("expected no heartbeat dispatched without HEARTBEAT.md, got %d", len(dispatched))
	}
}

func TestHeartbeatOverrideDisablesDespiteConfig(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "HEARTBEAT.md"), []byte("do something"), 0o644)

	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	var dispatched []transport.InboundMessage
	dispatch := func(_ context.Context, msg transport.InboundMessage) {
		dispatched = append(dispatched, msg)
	}

	s := New(store, fakeWorkspaces{dir: dir}, fakeHeartbeatConfig{enabled: true, every: "1ms"}, dispatch, nil, nil)
	s.RecordRoute("mozi", transport.InboundMessage{Channel: "telegram", PeerID: "123"})

	if err := s.SetHeartbeatEnabled("mozi", false); err != nil {
		t.Fatalf("SetHeartbeatEnabled: %v", err)
	}

	s.fireHeartbeats(context.Background(), time.Now())

	if len(dispatched) != 0 {
		t.Fatalf("expected the override to suppress the heartbeat, got %d dispatched", len(dispatched))
	}
}

func TestMeaningfulHeartbeatContentStripsCommentsAndEmptyCheckboxes(t *testing.T) {
	raw := "<!-- note -->\n- [ ]\n- [ ]\n"
	if _, ok := meaningfulHeartbeatContent(raw); ok {
		t.Fatalf("expected comment-only and empty-checkbox content to be treated as empty")
	}

	raw = "<!-- note -->\n- [ ] ping the team\n"
	text, ok := meaningfulHeartbeatContent(raw)
	if !ok || text == "" {
		t.Fatalf("expected a labeled checkbox line to count as meaningful content")
	}
}
