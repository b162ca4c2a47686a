package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mozi-run/mozi/internal/transport"
)

// Registry owns the set of connected adapters and routes outbound messages
// to the adapter named by Send's channelName argument. It
// generalizes the teacher's Manager (internal/channels/manager.go): the
// same connect-all/disconnect-all lifecycle and per-adapter status
// tracking, but without the bus subscription loop or the runID→RunContext
// event-forwarding table — phase/typing/reaction forwarding is now a direct
// method call on the Adapter interface, driven by the message handler
// rather than routed through string-keyed agent events.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	logger   *slog.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{adapters: make(map[string]Adapter), logger: logger}
}

// Register adds an adapter under its own Name().
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Unregister removes an adapter by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, name)
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the names of all registered adapters.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// ConnectAll connects every registered adapter. Failures are logged, not
// fatal — a channel that cannot connect should not prevent others from
// serving.
func (r *Registry) ConnectAll(ctx context.Context) {
	r.mu.RLock()
	adapters := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		adapters = append(adapters, a)
	}
	r.mu.RUnlock()

	if len(adapters) == 0 {
		r.logger.Warn("no channel adapters registered")
		return
	}

	for _, a := range adapters {
		r.logger.Info("connecting channel adapter", "adapter", a.Name())
		if err := a.Connect(ctx); err != nil {
			r.logger.Error("channel adapter failed to connect", "adapter", a.Name(), "error", err)
		}
	}
}

// DisconnectAll disconnects every registered adapter.
func (r *Registry) DisconnectAll(ctx context.Context) {
	r.mu.RLock()
	adapters := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		adapters = append(adapters, a)
	}
	r.mu.RUnlock()

	for _, a := range adapters {
		r.logger.Info("disconnecting channel adapter", "adapter", a.Name())
		if err := a.Disconnect(ctx); err != nil {
			r.logger.Error("channel adapter failed to disconnect", "adapter", a.Name(), "error", err)
		}
	}
}

// StatusReport is one adapter's current connection state, for the
// diagnostic CLI/API surface.
type StatusReport struct {
	Name      string
	Connected bool
	Detail    string
}

// Status returns the current status of every registered adapter.
func (r *Registry) Status() []StatusReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]StatusReport, 0, len(r.adapters))
	for name, a := range r.adapters {
		connected, detail := a.Status()
		out = append(out, StatusReport{Name: name, Connected: connected, Detail: detail})
	}
	return out
}

// Send routes an outbound message to the named adapter. Internal channel
// names are rejected — they never have a registered adapter to receive
// outbound traffic.
func (r *Registry) Send(ctx context.Context, channelName, peerID string, msg transport.OutboundMessage) error {
	if IsInternalChannel(channelName) {
		return fmt.Errorf("channel %q is internal, has no outbound adapter", channelName)
	}

	r.mu.RLock()
	a, ok := r.adapters[channelName]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("channel %q not registered", channelName)
	}
	return a.Send(ctx, peerID, msg)
}

// OnAllMessages registers fn as the message handler for every currently
// registered adapter. Call after Register, before ConnectAll.
func (r *Registry) OnAllMessages(fn MessageHandlerFunc) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.adapters {
		a.OnMessage(fn)
	}
}
