// Package runtimeconfig adapts the typed internal/config.Config onto the
// narrow collaborator interfaces internal/scheduler and internal/handler
// declare (HeartbeatConfigReader, WorkspaceResolver, ModelCatalog), so
// neither package needs to import internal/config or internal/configstore
// directly. Grounded on the teacher's cmd/gateway.go composition root,
// which reaches into a single *config.Config for every collaborator it
// wires rather than having each package parse its own config slice.
package runtimeconfig

import (
	"log/slog"

	"github.com/mozi-run/mozi/internal/config"
)

// snapshotSource loads a fresh typed Config. Bridge takes a function rather
// than an internal/configstore.Store reference to stay decoupled from that
// package's concrete Snapshot type.
type snapshotSource func() (*config.Config, error)

// Bridge loads a fresh *config.Config on every call, so a hot-reloaded
// config.jsonc (internal/configstore.Store.Watch) is reflected without the
// scheduler or handler needing to know about reloads.
type Bridge struct {
	load   snapshotSource
	logger *slog.Logger
}

// New builds a Bridge around load, called once per query. load is typically
// `func() (*config.Config, error) { return config.Load(store) }`.
func New(load func() (*config.Config, error), logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{load: load, logger: logger}
}

func (b *Bridge) current() *config.Config {
	cfg, err := b.load()
	if err != nil {
		b.logger.Error("runtimeconfig: reload failed, using empty config", "error", err)
		return &config.Config{}
	}
	return cfg
}

// HeartbeatEnabled satisfies internal/scheduler.HeartbeatConfigReader.
func (b *Bridge) HeartbeatEnabled(agentID string) bool {
	enabled, _, _ := b.current().ResolveHeartbeat(agentID)
	return enabled
}

// HeartbeatEvery satisfies internal/scheduler.HeartbeatConfigReader.
func (b *Bridge) HeartbeatEvery(agentID string) string {
	_, every, _ := b.current().ResolveHeartbeat(agentID)
	return every
}

// HeartbeatPrompt satisfies internal/scheduler.HeartbeatConfigReader.
func (b *Bridge) HeartbeatPrompt(agentID string) string {
	_, _, prompt := b.current().ResolveHeartbeat(agentID)
	return prompt
}

// Workspace satisfies internal/scheduler.WorkspaceResolver. Every agent ID
// resolves to a workspace (defaults apply when the id has no explicit
// entry), so ok is always true.
func (b *Bridge) Workspace(agentID string) (string, bool) {
	return b.current().ResolveWorkspace(agentID), true
}
