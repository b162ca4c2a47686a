// Package sessionkey builds and parses the canonical session key format.
//
// Canonical forms (see spec §3):
//
//	DM main:                      agent:{agent}:main
//	DM per-peer:                  agent:{agent}:dm:{peer}
//	DM per-channel-peer (default): agent:{agent}:{channel}:dm:{peer}
//	DM per-account-channel-peer:  agent:{agent}:{channel}:{account}:dm:{peer}
//	group/channel (fixed):         agent:{agent}:{channel}:{kind}:{peer}
//
// If a thread id is present it is appended as ":thread:{thread}".
//
// Segment grammar: [a-z0-9][a-z0-9_-]{0,63}; any other character collapses
// to '-'; leading/trailing '-' are stripped; the result is truncated to 64
// chars; an empty result falls back to a stable default.
//
// Open question resolved (see SPEC_FULL.md): leading '-' is stripped
// uniformly by the trim step below, including for Telegram's negative
// group IDs, so "-1001" normalizes to "1001".
package sessionkey

import (
	"strings"

	"github.com/mozi-run/mozi/internal/transport"
)

const maxSegmentLen = 64

// DMScope selects which peer-id combinations share a DM session.
type DMScope string

const (
	ScopeMain                   DMScope = "main"
	ScopePerPeer                DMScope = "per-peer"
	ScopePerChannelPeer         DMScope = "per-channel-peer"
	ScopePerAccountChannelPeer  DMScope = "per-account-channel-peer"
)

// defaults substituted for missing/empty segments, per spec §3.
const (
	defaultAgent   = "mozi"
	defaultChannel = "unknown"
	defaultPeer    = "default"
	defaultMain    = "main"
)

// normalizeSegment applies the segment grammar to one path component.
func normalizeSegment(s string) string {
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	out := strings.TrimLeft(strings.Trim(b.String(), "-"), "_-")
	if len(out) > maxSegmentLen {
		out = out[:maxSegmentLen]
		out = strings.TrimRight(out, "-")
	}
	return out
}

func seg(s, fallback string) string {
	n := normalizeSegment(s)
	if n == "" {
		return fallback
	}
	return n
}

// Params is the set of inputs needed to build a canonical session key.
type Params struct {
	AgentID  string
	Channel  string
	PeerID   string
	PeerKind transport.PeerKind
	AccountID string
	ThreadID string
	DMScope  DMScope
}

// Build constructs the canonical session key for the given parameters.
// Two Params that canonicalize to the same segments always produce an
// identical key, which is the basis for the "at most one active turn per
// session" guarantee upstream.
func Build(p Params) string {
	agent := seg(p.AgentID, defaultAgent)

	var rest string
	switch p.PeerKind {
	case transport.PeerGroup, transport.PeerChannel:
		channel := seg(p.Channel, defaultChannel)
		peer := seg(p.PeerID, defaultPeer)
		kind := string(p.PeerKind)
		rest = channel + ":" + kind + ":" + peer
	default: // DM
		channel := seg(p.Channel, defaultChannel)
		peer := seg(p.PeerID, defaultPeer)
		switch p.DMScope {
		case ScopeMain:
			rest = defaultMain
		case ScopePerPeer:
			rest = "dm:" + peer
		case ScopePerAccountChannelPeer:
			account := seg(p.AccountID, "")
			if account == "" {
				// No account id available — fall back to per-channel-peer,
				// matching the teacher's "not yet wired" fallback.
				rest = channel + ":dm:" + peer
			} else {
				rest = channel + ":" + account + ":dm:" + peer
			}
		default: // ScopePerChannelPeer and empty
			rest = channel + ":dm:" + peer
		}
	}

	key := "agent:" + agent + ":" + rest
	if p.ThreadID != "" {
		thread := seg(p.ThreadID, "")
		if thread != "" {
			key += ":thread:" + thread
		}
	}
	return key
}

// FromInbound derives session-key Params from an InboundMessage, an agent id
// and the resolved DM scope.
func FromInbound(msg transport.InboundMessage, agentID string, dmScope DMScope) Params {
	return Params{
		AgentID:   agentID,
		Channel:   msg.Channel,
		PeerID:    msg.PeerID,
		PeerKind:  msg.PeerKind,
		AccountID: msg.AccountID,
		ThreadID:  msg.ThreadID,
		DMScope:   dmScope,
	}
}

// ParseAgent extracts the agent id from a canonical key's second segment.
// Returns "" if the key is not in the expected "agent:{id}:..." form.
func ParseAgent(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 3 || parts[0] != "agent" {
		return ""
	}
	return parts[1]
}

// ChannelPrefix reports whether a canonical key belongs to the given channel.
// It compares the key's third segment with the normalized channel name, so
// main and per-peer DM keys, which carry no channel segment, never match.
func ChannelPrefix(key, channel string) bool {
	parts := strings.Split(key, ":")
	if len(parts) < 3 {
		return false
	}
	return parts[2] == normalizeSegment(channel)
}
