package sessions

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "sessions.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return NewManager(store, func() time.Time { return fixed })
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	a, err := m.GetOrCreate(ctx, "agent:mozi:telegram:dm:1", "mozi", "telegram")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	b, err := m.GetOrCreate(ctx, "agent:mozi:telegram:dm:1", "mozi", "telegram")
	if err != nil {
		t.Fatalf("GetOrCreate second call: %v", err)
	}
	if a != b {
		t.Fatalf("expected same *Session instance from cache")
	}
}

func TestAppendTurnPersists(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	key := "agent:mozi:telegram:dm:2"

	if _, err := m.GetOrCreate(ctx, key, "mozi", "telegram"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := m.AppendTurn(ctx, key, Turn{Role: "user", Content: "hi", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	fromStore, err := m.store.Get(ctx, key)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if len(fromStore.Turns) != 1 || fromStore.Turns[0].Content != "hi" {
		t.Fatalf("expected persisted turn, got %+v", fromStore.Turns)
	}
}

func TestResetClearsHistory(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	key := "agent:mozi:telegram:dm:3"

	if _, err := m.GetOrCreate(ctx, key, "mozi", "telegram"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	_ = m.AppendTurn(ctx, key, Turn{Role: "user", Content: "hi"})
	if err := m.Reset(ctx, key); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	sess, err := m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.Turns) != 0 {
		t.Fatalf("expected empty turns after reset, got %d", len(sess.Turns))
	}
}

func TestListFiltersByAgent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.GetOrCreate(ctx, "agent:a:telegram:dm:1", "a", "telegram"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetOrCreate(ctx, "agent:b:telegram:dm:1", "b", "telegram"); err != nil {
		t.Fatal(err)
	}

	list, err := m.List(ctx, ListFilter{AgentID: "a"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].AgentID != "a" {
		t.Fatalf("expected 1 session for agent a, got %+v", list)
	}
}
