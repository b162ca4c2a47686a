package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mozi-run/mozi/internal/sessionkey"
	"github.com/mozi-run/mozi/internal/transport"
)

// ChannelSender delivers a sendMessage-kind reminder's payload verbatim,
// bypassing the prompt path entirely. internal/channels.Registry satisfies
// this.
type ChannelSender interface {
	Send(ctx context.Context, channelName, peerID string, msg transport.OutboundMessage) error
}

// HeartbeatConfigReader exposes the merged (defaults ⊕ agent overrides)
// heartbeat configuration the teacher keeps on *config.AgentConfig.
type HeartbeatConfigReader interface {
	// HeartbeatEnabled reports whether agentID's merged config has
	// heartbeat.enabled == true.
	HeartbeatEnabled(agentID string) bool
	// HeartbeatEvery returns agentID's configured period as a duration
	// string ("30m", "1h", "0m"=disabled).
	HeartbeatEvery(agentID string) string
	// HeartbeatPrompt returns the configured heartbeat prompt text, or ""
	// to use the default "Read HEARTBEAT.md if it exists…" prompt.
	HeartbeatPrompt(agentID string) string
}

// Dispatcher is the callback the scheduler re-enters the pipeline through.
// internal/handler.Handler.Handle satisfies this signature.
type Dispatcher func(ctx context.Context, msg transport.InboundMessage)

const defaultHeartbeatPrompt = "Read HEARTBEAT.md if it exists and act on anything actionable."
const defaultTickPeriod = 15 * time.Second

// Scheduler drives the heartbeat ticker and reminder delivery, re-entering
// the Message Handler on a clock. Grounded on the teacher's
// HeartbeatConfig.Every duration-string shape and cmd/gateway_cron.go's
// cron-lane re-entrant dispatch.
type Scheduler struct {
	store      *Store
	workspaces WorkspaceResolver
	Config     HeartbeatConfigReader
	dispatch   Dispatcher
	sender     ChannelSender
	logger     *slog.Logger
	tickPeriod time.Duration

	mu        sync.Mutex
	lastRoute map[string]transport.InboundMessage // agentID -> last route
	lastTick  map[string]time.Time                // agentID -> last heartbeat fire
}

// New constructs a Scheduler. workspaces and cfg may be nil; heartbeats
// simply never fire for an agent with no resolvable workspace or config.
func New(store *Store, workspaces WorkspaceResolver, cfg HeartbeatConfigReader, dispatch Dispatcher, sender ChannelSender, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:      store,
		workspaces: workspaces,
		Config:     cfg,
		dispatch:   dispatch,
		sender:     sender,
		logger:     logger,
		tickPeriod: defaultTickPeriod,
		lastRoute:  make(map[string]transport.InboundMessage),
		lastTick:   make(map[string]time.Time),
	}
}

// RecordRoute remembers msg as agentID's last known route, the basis for
// synthesizing a heartbeat's InboundMessage per spec.md §4.8. The Message
// Handler calls this on every successfully routed message.
func (s *Scheduler) RecordRoute(agentID string, msg transport.InboundMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRoute[agentID] = msg
}

// routeForSession looks up the last route recorded for the session key's
// agent id, the basis for a newly created reminder's own routing fields.
func (s *Scheduler) routeForSession(sessionKey string) (transport.InboundMessage, bool) {
	agentID := sessionkey.ParseAgent(sessionKey)
	if agentID == "" {
		return transport.InboundMessage{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.lastRoute[agentID]
	return msg, ok
}

// Run blocks, ticking every tickPeriod until ctx is cancelled, evaluating
// heartbeats and due reminders on each tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.fireHeartbeats(ctx, now)
	s.fireReminders(ctx, now)
}

func (s *Scheduler) fireHeartbeats(ctx context.Context, now time.Time) {
	s.mu.Lock()
	agents := make([]string, 0, len(s.lastRoute))
	for agentID := range s.lastRoute {
		agents = append(agents, agentID)
	}
	s.mu.Unlock()

	for _, agentID := range agents {
		if !s.heartbeatDue(agentID) {
			continue
		}
		every, err := parseDurationString(s.heartbeatEveryOrDefault(agentID))
		if err != nil || every <= 0 {
			continue
		}

		s.mu.Lock()
		last, fired := s.lastTick[agentID]
		due := !fired || now.Sub(last) >= every
		route, hasRoute := s.lastRoute[agentID]
		if due {
			s.lastTick[agentID] = now
		}
		s.mu.Unlock()

		if !due || !hasRoute {
			continue
		}

		content, exists, err := s.ReadHeartbeat(agentID)
		if err != nil {
			s.logger.Error("scheduler: heartbeat read failed", "agent_id", agentID, "error", err)
			continue
		}
		if !exists {
			continue
		}
		if _, ok := meaningfulHeartbeatContent(content); !ok {
			continue
		}

		prompt := s.Config.HeartbeatPrompt(agentID)
		if prompt == "" {
			prompt = defaultHeartbeatPrompt
		}

		synthetic := route
		synthetic.ID = "heartbeat-" + agentID + "-" + now.UTC().Format(time.RFC3339)
		synthetic.SenderID = "heartbeat"
		synthetic.SenderName = "heartbeat"
		synthetic.Text = prompt
		synthetic.Media = nil
		synthetic.Timestamp = now

		s.dispatch(ctx, synthetic)
	}
}

func (s *Scheduler) heartbeatEveryOrDefault(agentID string) string {
	if s.Config == nil {
		return ""
	}
	every := s.Config.HeartbeatEvery(agentID)
	if every == "" {
		return "30m"
	}
	return every
}

func (s *Scheduler) fireReminders(ctx context.Context, now time.Time) {
	due, err := s.dueReminders(ctx, now)
	if err != nil {
		s.logger.Error("scheduler: due-reminder query failed", "error", err)
		return
	}
	for _, r := range due {
		s.fireReminder(ctx, r, now)
	}
}

func (s *Scheduler) fireReminder(ctx context.Context, r Reminder, now time.Time) {
	msg := transport.InboundMessage{
		ID:        "reminder-" + r.ID + "-" + now.UTC().Format(time.RFC3339),
		Channel:   r.Channel,
		PeerID:    r.PeerID,
		PeerKind:  r.PeerKind,
		AccountID: r.AccountID,
		ThreadID:  r.ThreadID,
		SenderID:  "reminder",
		Text:      r.PayloadText,
		Timestamp: now,
	}

	switch r.PayloadKind {
	case PayloadSendMessage:
		// Bypasses the prompt path entirely; delivered verbatim via the
		// channel, not through the Message Handler.
		if s.sender == nil {
			s.logger.Warn("scheduler: sendMessage reminder dropped, no channel sender configured", "reminder_id", r.ID)
			break
		}
		if err := s.sender.Send(ctx, r.Channel, r.PeerID, transport.OutboundMessage{Text: r.PayloadText}); err != nil {
			s.logger.Error("scheduler: sendMessage reminder delivery failed", "reminder_id", r.ID, "error", err)
		}
	default:
		s.dispatch(ctx, msg)
	}

	if err := s.markFired(ctx, r, now); err != nil {
		s.logger.Error("scheduler: mark-fired failed", "reminder_id", r.ID, "error", err)
	}
}
