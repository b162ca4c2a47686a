// Package router resolves an inbound message to an agent id and a DM scope,
// per the channel/peer/account binding precedence described by the teacher's
// AgentBinding/BindingMatch config shape, generalized here to read its
// bindings out of the JSONC document via internal/configstore instead of a
// typed Go struct.
package router

import (
	"fmt"

	"github.com/mozi-run/mozi/internal/sessionkey"
	"github.com/mozi-run/mozi/internal/transport"
)

// ConfigReader is the subset of internal/configstore.Store the router needs.
type ConfigReader interface {
	Get(path string) (any, bool)
}

// Route is the resolved destination of one inbound message.
type Route struct {
	AgentID string
	DMScope sessionkey.DMScope
}

// Resolver resolves routes against a live configuration reader.
type Resolver struct {
	defaultAgentID string
}

// New creates a Resolver that falls back to defaultAgentID when no binding
// matches.
func New(defaultAgentID string) *Resolver {
	return &Resolver{defaultAgentID: defaultAgentID}
}

// Resolve implements the four-step precedence from spec.md §4.4:
//  1. a per-group Telegram binding (channels.telegram.groups[peerId])
//  2. the channel-wide binding (channels.<channel>.agentId)
//  3. the generic routing table (channels.routing.dmAgentId/groupAgentId)
//  4. the configured default agent id
func (r *Resolver) Resolve(cfg ConfigReader, msg transport.InboundMessage) Route {
	agentID := r.resolveAgentID(cfg, msg)
	return Route{
		AgentID: agentID,
		DMScope: r.resolveDMScope(cfg, msg.Channel),
	}
}

func (r *Resolver) resolveAgentID(cfg ConfigReader, msg transport.InboundMessage) string {
	if msg.Channel == "telegram" && msg.PeerKind != transport.PeerDM {
		path := fmt.Sprintf("channels.telegram.groups.%s", msg.PeerID)
		if v, ok := cfg.Get(path); ok {
			if id, ok := asString(v); ok && id != "" {
				return id
			}
		}
	}

	if v, ok := cfg.Get(fmt.Sprintf("channels.%s.agentId", msg.Channel)); ok {
		if id, ok := asString(v); ok && id != "" {
			return id
		}
	}

	routingKey := "channels.routing.groupAgentId"
	if msg.PeerKind == transport.PeerDM {
		routingKey = "channels.routing.dmAgentId"
	}
	if v, ok := cfg.Get(routingKey); ok {
		if id, ok := asString(v); ok && id != "" {
			return id
		}
	}

	return r.defaultAgentID
}

func (r *Resolver) resolveDMScope(cfg ConfigReader, channel string) sessionkey.DMScope {
	if v, ok := cfg.Get(fmt.Sprintf("channels.%s.dmScope", channel)); ok {
		if s, ok := asString(v); ok {
			if scope, ok := parseDMScope(s); ok {
				return scope
			}
		}
	}
	if v, ok := cfg.Get("channels.dmScope"); ok {
		if s, ok := asString(v); ok {
			if scope, ok := parseDMScope(s); ok {
				return scope
			}
		}
	}
	return sessionkey.ScopePerChannelPeer
}

func parseDMScope(s string) (sessionkey.DMScope, bool) {
	switch s {
	case "main":
		return sessionkey.ScopeMain, true
	case "per-peer":
		return sessionkey.ScopePerPeer, true
	case "per-channel-peer":
		return sessionkey.ScopePerChannelPeer, true
	case "per-account-channel-peer":
		return sessionkey.ScopePerAccountChannelPeer, true
	default:
		return "", false
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
