// Package handler implements the message handler state machine: classify
// an inbound message into the command branch or the prompt branch, run it,
// and reply through the originating channel adapter.
//
// Grounded on the teacher's internal/channels/telegram/commands.go (a
// switch over a lowercased /command prefix, each case building an outbound
// message and returning handled=true/false) generalized to be
// channel-agnostic: cases here reply through the originating adapter via
// h.reply and read
// transport.InboundMessage/sessions.Session instead of reaching into a
// concrete *telego.Bot. Phase emission is grounded on the teacher's
// typing-indicator/reaction capability split (StreamingChannel,
// ReactionChannel) now unified behind channels.Adapter.
package handler

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mozi-run/mozi/internal/authbroker"
	"github.com/mozi-run/mozi/internal/channels"
	"github.com/mozi-run/mozi/internal/errs"
	"github.com/mozi-run/mozi/internal/kernel"
	"github.com/mozi-run/mozi/internal/router"
	"github.com/mozi-run/mozi/internal/sessionkey"
	"github.com/mozi-run/mozi/internal/sessions"
	"github.com/mozi-run/mozi/internal/transport"
)

// ModelCatalog lists the model references an agent may run against and
// their declared input modalities.
type ModelCatalog interface {
	// Models returns every registered model reference for display.
	Models() []string
	// ModalityCapable returns a model ref whose declared input set
	// contains modality, or "" if none qualifies.
	ModalityCapable(modality string) string
}

// ReminderService is delegated to by the /reminders command. Satisfied by
// internal/scheduler.Scheduler; declared here as an interface so this
// package never imports the scheduler package.
type ReminderService interface {
	Create(ctx context.Context, sessionKey, description string, args []string) (string, error)
	List(ctx context.Context, sessionKey string) ([]string, error)
	Cancel(ctx context.Context, sessionKey, id string) error
	Snooze(ctx context.Context, sessionKey, id string, d time.Duration) error
}

// HeartbeatStore reads/writes an agent's workspace HEARTBEAT.md directive
// and remembers each agent's last successfully routed message, the basis
// for synthesizing a heartbeat's InboundMessage. Satisfied by
// internal/scheduler.Scheduler.
type HeartbeatStore interface {
	ReadHeartbeat(agentID string) (content string, exists bool, err error)
	SetHeartbeatEnabled(agentID string, enabled bool) error
	RecordRoute(agentID string, msg transport.InboundMessage)
}

// Handler wires every collaborator the state machine needs.
type Handler struct {
	Registry  *channels.Registry
	Router    *router.Resolver
	Config    router.ConfigReader
	Sessions  *sessions.Manager
	Kernel    *kernel.Kernel
	Auth      *authbroker.Broker
	Models    ModelCatalog
	Reminders ReminderService
	Heartbeat HeartbeatStore
	Restart   func() error

	DefaultAgentID string
	Logger         *slog.Logger

	now func() time.Time
}

// New constructs a Handler. Optional collaborators (Auth, Models,
// Reminders, Heartbeat, Restart) may be left nil; the corresponding
// commands reply with a "not available" message instead of panicking.
func New(h Handler) *Handler {
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return &h
}

// Handle classifies msg and runs the matching branch, per spec.md §4.7.
func (h *Handler) Handle(ctx context.Context, msg transport.InboundMessage) {
	text := strings.TrimSpace(msg.Text)

	route := h.Router.Resolve(h.Config, msg)
	key := sessionkey.Build(sessionkey.Params{
		AgentID:   route.AgentID,
		Channel:   msg.Channel,
		PeerID:    msg.PeerID,
		PeerKind:  msg.PeerKind,
		AccountID: msg.AccountID,
		ThreadID:  msg.ThreadID,
		DMScope:   route.DMScope,
	})

	sess, err := h.Sessions.GetOrCreate(ctx, key, route.AgentID, msg.Channel)
	if err != nil {
		h.Logger.Error("handler: get-or-create session failed", "session_key", key, "error", err)
		return
	}

	if h.Heartbeat != nil {
		h.Heartbeat.RecordRoute(route.AgentID, msg)
	}

	if isCommand(text) {
		h.runCommand(ctx, msg, sess, text)
		return
	}

	h.runPrompt(ctx, msg, sess)
}

// isCommand implements spec.md §4.7 classify step (A): a leading '/', or a
// small set of localized intent aliases mapped to their canonical command.
func isCommand(text string) bool {
	if text == "" {
		return false
	}
	if text[0] == '/' {
		return true
	}
	_, ok := localizedAlias(text)
	return ok
}

// localizedAlias maps a handful of non-slash phrases to a canonical
// command line, e.g. "取消心跳" (cancel heartbeat) to "/heartbeat off".
func localizedAlias(text string) (string, bool) {
	switch text {
	case "取消心跳":
		return "/heartbeat off", true
	case "开启心跳":
		return "/heartbeat on", true
	default:
		return "", false
	}
}

func (h *Handler) reply(ctx context.Context, msg transport.InboundMessage, text string) {
	if channels.IsInternalChannel(msg.Channel) {
		return
	}
	for _, part := range chunkText(text) {
		if err := h.Registry.Send(ctx, msg.Channel, msg.PeerID, transport.OutboundMessage{Text: part}); err != nil {
			h.Logger.Error("handler: reply send failed", "channel", msg.Channel, "peer_id", msg.PeerID, "error", err)
			return
		}
	}
}

// userFacingError renders an Outcome's failure per spec.md §4.7's error
// surface table.
func userFacingError(out kernel.Outcome) (text string, silent bool) {
	switch out.Status {
	case kernel.StatusInterrupted:
		return "", true
	case kernel.StatusTimeout:
		return "This turn timed out", false
	}

	if errs.Is(out.Err, errs.CodeAuthMissing) {
		return "Missing authentication secret. Use /setAuth set <KEY>=<value>", false
	}

	msg := redactSecrets(out.Err.Error())
	if len(msg) > 300 {
		msg = msg[:300] + "…"
	}
	return "Something went wrong: " + msg, false
}
