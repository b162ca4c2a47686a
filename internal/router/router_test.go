package router

import (
	"testing"

	"github.com/mozi-run/mozi/internal/sessionkey"
	"github.com/mozi-run/mozi/internal/transport"
)

type fakeConfig map[string]any

func (f fakeConfig) Get(path string) (any, bool) {
	v, ok := f[path]
	return v, ok
}

func TestResolveFallsBackToDefaultAgent(t *testing.T) {
	r := New("mozi")
	route := r.Resolve(fakeConfig{}, transport.InboundMessage{Channel: "telegram", PeerKind: transport.PeerDM})
	if route.AgentID != "mozi" {
		t.Errorf("expected default agent, got %q", route.AgentID)
	}
	if route.DMScope != sessionkey.ScopePerChannelPeer {
		t.Errorf("expected default scope per-channel-peer, got %q", route.DMScope)
	}
}

func TestResolveTelegramGroupBindingWins(t *testing.T) {
	r := New("mozi")
	cfg := fakeConfig{
		"channels.telegram.groups.g1": "support-bot",
		"channels.telegram.agentId":   "general-bot",
	}
	route := r.Resolve(cfg, transport.InboundMessage{Channel: "telegram", PeerID: "g1", PeerKind: transport.PeerGroup})
	if route.AgentID != "support-bot" {
		t.Errorf("expected group binding to win, got %q", route.AgentID)
	}
}

func TestResolveChannelBindingBeatsRoutingTable(t *testing.T) {
	r := New("mozi")
	cfg := fakeConfig{
		"channels.discord.agentId":      "discord-bot",
		"channels.routing.dmAgentId":    "generic-dm-bot",
	}
	route := r.Resolve(cfg, transport.InboundMessage{Channel: "discord", PeerKind: transport.PeerDM})
	if route.AgentID != "discord-bot" {
		t.Errorf("expected channel binding to win, got %q", route.AgentID)
	}
}

func TestResolveDMScopeChannelOverridesTop(t *testing.T) {
	r := New("mozi")
	cfg := fakeConfig{
		"channels.telegram.dmScope": "per-peer",
		"channels.dmScope":          "main",
	}
	route := r.Resolve(cfg, transport.InboundMessage{Channel: "telegram", PeerKind: transport.PeerDM})
	if route.DMScope != sessionkey.ScopePerPeer {
		t.Errorf("expected channel-specific dmScope to win, got %q", route.DMScope)
	}
}
