package runtimeconfig

import (
	"testing"

	"github.com/mozi-run/mozi/internal/config"
)

func loadFixture(t *testing.T, raw map[string]any) *Bridge {
	t.Helper()
	return New(func() (*config.Config, error) { return config.FromRaw(raw) }, nil)
}

func TestBridgeHeartbeatFields(t *testing.T) {
	b := loadFixture(t, map[string]any{
		"agents": map[string]any{
			"defaults": map[string]any{
				"heartbeat": map[string]any{"enabled": true, "every": "45m", "prompt": "ping"},
			},
		},
	})

	if !b.HeartbeatEnabled("main") {
		t.Error("expected heartbeat enabled")
	}
	if got := b.HeartbeatEvery("main"); got != "45m" {
		t.Errorf("HeartbeatEvery = %q, want 45m", got)
	}
	if got := b.HeartbeatPrompt("main"); got != "ping" {
		t.Errorf("HeartbeatPrompt = %q, want ping", got)
	}
}

func TestBridgeWorkspaceAlwaysResolves(t *testing.T) {
	b := loadFixture(t, map[string]any{
		"agents": map[string]any{
			"defaults": map[string]any{"workspace": "/srv/mozi/workspace"},
		},
	})
	dir, ok := b.Workspace("unknown-agent")
	if !ok {
		t.Fatal("expected Workspace to always resolve")
	}
	if dir != "/srv/mozi/workspace" {
		t.Errorf("Workspace = %q, want /srv/mozi/workspace", dir)
	}
}

func TestModelCatalogFlattensAndSorts(t *testing.T) {
	b := loadFixture(t, map[string]any{
		"models": map[string]any{
			"anthropic": map[string]any{
				"models": []any{
					map[string]any{"id": "claude-opus", "input": []any{"text", "image"}},
					map[string]any{"id": "claude-haiku", "input": []any{"text"}},
				},
			},
			"openai": map[string]any{
				"models": []any{
					map[string]any{"id": "gpt-4o", "input": []any{"text", "audio"}},
				},
			},
		},
	})
	catalog := NewModelCatalog(b)

	models := catalog.Models()
	want := []string{"anthropic/claude-haiku", "anthropic/claude-opus", "openai/gpt-4o"}
	if len(models) != len(want) {
		t.Fatalf("Models() = %v, want %v", models, want)
	}
	for i := range want {
		if models[i] != want[i] {
			t.Errorf("Models()[%d] = %q, want %q", i, models[i], want[i])
		}
	}

	if got := catalog.ModalityCapable("audio"); got != "openai/gpt-4o" {
		t.Errorf("ModalityCapable(audio) = %q, want openai/gpt-4o", got)
	}
	if got := catalog.ModalityCapable("video"); got != "" {
		t.Errorf("ModalityCapable(video) = %q, want empty", got)
	}
}
