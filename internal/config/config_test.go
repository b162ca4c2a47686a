package config

import "testing"

func boolPtr(b bool) *bool { return &b }

func TestFromRawMergesAgentOverrides(t *testing.T) {
	raw := map[string]any{
		"agents": map[string]any{
			"defaults": map[string]any{
				"workspace": "~/.mozi/workspace",
				"model":     "anthropic/claude",
				"heartbeat": map[string]any{"enabled": false, "every": "30m"},
			},
			"research": map[string]any{
				"main":      true,
				"model":     "anthropic/claude-opus",
				"heartbeat": map[string]any{"enabled": true},
			},
		},
	}

	cfg, err := FromRaw(raw)
	if err != nil {
		t.Fatalf("FromRaw: %v", err)
	}

	resolved := cfg.ResolveAgent("research")
	if resolved.Model != "anthropic/claude-opus" {
		t.Errorf("expected override model, got %q", resolved.Model)
	}
	if resolved.Workspace != "~/.mozi/workspace" {
		t.Errorf("expected inherited workspace, got %q", resolved.Workspace)
	}

	enabled, every, _ := cfg.ResolveHeartbeat("research")
	if !enabled {
		t.Error("expected research's heartbeat override to enable it")
	}
	if every != "30m" {
		t.Errorf("expected inherited every=30m, got %q", every)
	}

	if got := cfg.DefaultAgentIDOf(); got != "research" {
		t.Errorf("expected main agent 'research', got %q", got)
	}
}

func TestResolveHeartbeatWithNoOverrideFallsBackToDefaults(t *testing.T) {
	raw := map[string]any{
		"agents": map[string]any{
			"defaults": map[string]any{
				"heartbeat": map[string]any{"enabled": true, "every": "1h", "prompt": "check in"},
			},
		},
	}
	cfg, err := FromRaw(raw)
	if err != nil {
		t.Fatalf("FromRaw: %v", err)
	}
	enabled, every, prompt := cfg.ResolveHeartbeat("unknown-agent")
	if !enabled || every != "1h" || prompt != "check in" {
		t.Errorf("expected defaults to apply verbatim, got enabled=%v every=%q prompt=%q", enabled, every, prompt)
	}
}

func TestFromRawRejectsOutOfRangePort(t *testing.T) {
	raw := map[string]any{
		"channels": map[string]any{
			"localDesktop": map[string]any{"port": 99999},
		},
	}
	if _, err := FromRaw(raw); err == nil {
		t.Fatal("expected a validation error for an out-of-range port")
	}
}

func TestExpandHome(t *testing.T) {
	if got := ExpandHome(""); got != "" {
		t.Errorf("ExpandHome(\"\") = %q, want empty", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandHome of absolute path should be unchanged, got %q", got)
	}
}
