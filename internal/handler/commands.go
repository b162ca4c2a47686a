package handler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mozi-run/mozi/internal/sessions"
	"github.com/mozi-run/mozi/internal/transport"
)

const helpText = `Available commands:
/start, /help — show this help
/whoami — show your sender identity
/status — show runtime/agent/model status
/new — rotate to a fresh session
/models — list available model references
/switch [ref] — set or show the session's model override
/stop — interrupt the active turn
/restart — restart the runtime
/compact — compact this session's history
/context — show context usage
/think [level] — set or show thinking level
/reasoning [on|off|stream] — set or show reasoning visibility
/setAuth, /unsetAuth, /listAuth, /checkAuth — manage auth secrets
/reminders … — manage reminders
/heartbeat [status|on|off] — read or mutate this agent's heartbeat`

// runCommand implements spec.md §4.7 phase (B). Unknown commands are
// silently ignored: no reply, no prompt invocation.
func (h *Handler) runCommand(ctx context.Context, msg transport.InboundMessage, sess *sessions.Session, text string) {
	if canonical, ok := localizedAlias(text); ok {
		text = canonical
	}

	fields := strings.Fields(text)
	cmd := strings.ToLower(strings.SplitN(fields[0], "@", 2)[0])
	args := fields[1:]

	switch cmd {
	case "/start", "/help":
		h.reply(ctx, msg, helpText)

	case "/whoami":
		h.reply(ctx, msg, fmt.Sprintf("channel=%s peerId=%s senderId=%s senderName=%s", msg.Channel, msg.PeerID, msg.SenderID, msg.SenderName))

	case "/status":
		h.reply(ctx, msg, h.statusText(sess))

	case "/new":
		if err := h.Sessions.Reset(ctx, sess.Key); err != nil {
			h.Logger.Error("handler: /new reset failed", "session_key", sess.Key, "error", err)
			h.reply(ctx, msg, "Could not start a new session.")
			return
		}
		h.reply(ctx, msg, "Started a new session.")

	case "/models":
		h.reply(ctx, msg, h.modelsText())

	case "/switch":
		h.cmdSwitch(ctx, msg, sess, args)

	case "/stop":
		h.cmdStop(ctx, msg, sess)

	case "/restart":
		h.cmdRestart(ctx, msg)

	case "/compact":
		if err := h.Sessions.Compact(ctx, sess.Key, 20); err != nil {
			h.reply(ctx, msg, "Compaction failed.")
			return
		}
		h.reply(ctx, msg, "Session history compacted.")

	case "/context":
		h.reply(ctx, msg, h.contextText(sess))

	case "/think":
		h.cmdThink(ctx, msg, sess, args)

	case "/reasoning":
		h.cmdReasoning(ctx, msg, sess, args)

	case "/setauth":
		h.cmdSetAuth(ctx, msg, sess, args)
	case "/unsetauth":
		h.cmdUnsetAuth(ctx, msg, sess, args)
	case "/listauth":
		h.cmdListAuth(ctx, msg, sess)
	case "/checkauth":
		h.cmdCheckAuth(ctx, msg, sess, args)

	case "/reminders":
		h.cmdReminders(ctx, msg, sess, args)

	case "/heartbeat":
		h.cmdHeartbeat(ctx, msg, sess, args)

	default:
		// unknown command: silently ignored
	}
}

func (h *Handler) statusText(sess *sessions.Session) string {
	model := sess.Metadata.ModelOverride
	if model == "" {
		model = "(default)"
	}
	return fmt.Sprintf("Runtime: running\nAgent: %s\nModel: %s\nThinking: %s\nReasoning visible: %t",
		sess.AgentID, model, thinkingLevelOrDefault(sess), sess.Metadata.ReasoningVisible)
}

func thinkingLevelOrDefault(sess *sessions.Session) string {
	if sess.Metadata.ThinkingLevel == "" {
		return "(default)"
	}
	return sess.Metadata.ThinkingLevel
}

func (h *Handler) modelsText() string {
	if h.Models == nil {
		return "No model catalog is configured."
	}
	models := h.Models.Models()
	if len(models) == 0 {
		return "No models registered."
	}
	sort.Strings(models)
	return "Available models:\n" + strings.Join(models, "\n")
}

func (h *Handler) cmdSwitch(ctx context.Context, msg transport.InboundMessage, sess *sessions.Session, args []string) {
	if len(args) == 0 {
		model := sess.Metadata.ModelOverride
		if model == "" {
			model = "(default)"
		}
		h.reply(ctx, msg, "Current model: "+model)
		return
	}

	requested := args[0]
	resolved := requested
	if h.Models != nil {
		if best, exact := closestModel(requested, h.Models.Models()); !exact && best != "" {
			resolved = best
		}
	}

	sess.Metadata.ModelOverride = resolved
	if err := h.Sessions.AppendTurn(ctx, sess.Key, sessions.Turn{Role: "system", Content: "model switched to " + resolved, CreatedAt: h.now()}); err != nil {
		h.Logger.Warn("handler: persist model switch failed", "error", err)
	}

	if resolved == requested {
		h.reply(ctx, msg, "Switched model to "+resolved)
	} else {
		h.reply(ctx, msg, fmt.Sprintf("No exact match for %q; switched to closest match %s", requested, resolved))
	}
}

// closestModel returns the catalog entry with the smallest edit distance
// to requested, and whether requested matched exactly.
func closestModel(requested string, catalog []string) (best string, exact bool) {
	for _, m := range catalog {
		if m == requested {
			return m, true
		}
	}
	bestDist := -1
	for _, m := range catalog {
		d := levenshtein(requested, m)
		if bestDist < 0 || d < bestDist {
			bestDist = d
			best = m
		}
	}
	return best, false
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func (h *Handler) cmdStop(ctx context.Context, msg transport.InboundMessage, sess *sessions.Session) {
	h.Kernel.InterruptSession(sess.Key, "user requested /stop")
	h.reply(ctx, msg, "Stopped the active turn.")
}

func (h *Handler) cmdRestart(ctx context.Context, msg transport.InboundMessage) {
	if h.Restart == nil {
		h.reply(ctx, msg, "Restart is not available.")
		return
	}
	if err := h.Restart(); err != nil {
		h.reply(ctx, msg, "Restart failed: "+redactSecrets(err.Error()))
		return
	}
	h.reply(ctx, msg, "Restarting.")
}

func (h *Handler) contextText(sess *sessions.Session) string {
	return fmt.Sprintf("Turns: %d\nLast prompt tokens: %d\nCompactions: %d",
		len(sess.Turns), sess.Metadata.LastPromptTokens, sess.Metadata.CompactionCount)
}

func (h *Handler) cmdThink(ctx context.Context, msg transport.InboundMessage, sess *sessions.Session, args []string) {
	if len(args) == 0 {
		h.reply(ctx, msg, "Thinking level: "+thinkingLevelOrDefault(sess))
		return
	}
	// supports "level -- remaining text" but the remaining text belongs to
	// the prompt branch, not this command; here we only parse the level.
	level := args[0]
	sess.Metadata.ThinkingLevel = level
	h.reply(ctx, msg, "Thinking level set to "+level)
}

func (h *Handler) cmdReasoning(ctx context.Context, msg transport.InboundMessage, sess *sessions.Session, args []string) {
	if len(args) == 0 {
		h.reply(ctx, msg, fmt.Sprintf("Reasoning visible: %t", sess.Metadata.ReasoningVisible))
		return
	}
	switch strings.ToLower(args[0]) {
	case "on", "stream":
		sess.Metadata.ReasoningVisible = true
		h.reply(ctx, msg, "Reasoning visibility enabled.")
	case "off":
		sess.Metadata.ReasoningVisible = false
		h.reply(ctx, msg, "Reasoning visibility disabled.")
	default:
		h.reply(ctx, msg, "Usage: /reasoning [on|off|stream]")
	}
}

func (h *Handler) cmdSetAuth(ctx context.Context, msg transport.InboundMessage, sess *sessions.Session, args []string) {
	if h.Auth == nil {
		h.reply(ctx, msg, "Auth broker is not available.")
		return
	}
	if len(args) < 2 || args[0] != "set" {
		h.reply(ctx, msg, "Usage: /setAuth set <KEY>=<value>")
		return
	}
	kv := strings.SplitN(strings.Join(args[1:], " "), "=", 2)
	if len(kv) != 2 {
		h.reply(ctx, msg, "Usage: /setAuth set <KEY>=<value>")
		return
	}
	if err := h.Auth.Set(ctx, sess.AgentID, kv[0], kv[1]); err != nil {
		h.reply(ctx, msg, "Failed to set secret.")
		return
	}
	h.reply(ctx, msg, "Secret "+kv[0]+" set.")
}

func (h *Handler) cmdUnsetAuth(ctx context.Context, msg transport.InboundMessage, sess *sessions.Session, args []string) {
	if h.Auth == nil {
		h.reply(ctx, msg, "Auth broker is not available.")
		return
	}
	if len(args) != 1 {
		h.reply(ctx, msg, "Usage: /unsetAuth <KEY>")
		return
	}
	if err := h.Auth.Unset(ctx, sess.AgentID, args[0]); err != nil {
		h.reply(ctx, msg, "Failed to unset secret.")
		return
	}
	h.reply(ctx, msg, "Secret "+args[0]+" unset.")
}

func (h *Handler) cmdListAuth(ctx context.Context, msg transport.InboundMessage, sess *sessions.Session) {
	if h.Auth == nil {
		h.reply(ctx, msg, "Auth broker is not available.")
		return
	}
	keys, err := h.Auth.List(ctx, sess.AgentID)
	if err != nil {
		h.reply(ctx, msg, "Failed to list secrets.")
		return
	}
	if len(keys) == 0 {
		h.reply(ctx, msg, "No secrets configured.")
		return
	}
	h.reply(ctx, msg, "Configured secrets:\n"+strings.Join(keys, "\n"))
}

func (h *Handler) cmdCheckAuth(ctx context.Context, msg transport.InboundMessage, sess *sessions.Session, args []string) {
	if h.Auth == nil {
		h.reply(ctx, msg, "Auth broker is not available.")
		return
	}
	if len(args) != 1 {
		h.reply(ctx, msg, "Usage: /checkAuth <KEY>")
		return
	}
	ok, err := h.Auth.Check(ctx, sess.AgentID, args[0])
	if err != nil {
		h.reply(ctx, msg, "Failed to check secret.")
		return
	}
	h.reply(ctx, msg, fmt.Sprintf("%s: %t", args[0], ok))
}

func (h *Handler) cmdReminders(ctx context.Context, msg transport.InboundMessage, sess *sessions.Session, args []string) {
	if h.Reminders == nil {
		h.reply(ctx, msg, "Reminders are not available.")
		return
	}
	if len(args) == 0 {
		reminders, err := h.Reminders.List(ctx, sess.Key)
		if err != nil {
			h.reply(ctx, msg, "Failed to list reminders.")
			return
		}
		if len(reminders) == 0 {
			h.reply(ctx, msg, "No reminders set.")
			return
		}
		h.reply(ctx, msg, "Reminders:\n"+strings.Join(reminders, "\n"))
		return
	}

	switch strings.ToLower(args[0]) {
	case "list":
		h.cmdReminders(ctx, msg, sess, nil)
	case "cancel":
		if len(args) != 2 {
			h.reply(ctx, msg, "Usage: /reminders cancel <id>")
			return
		}
		if err := h.Reminders.Cancel(ctx, sess.Key, args[1]); err != nil {
			h.reply(ctx, msg, "Failed to cancel reminder.")
			return
		}
		h.reply(ctx, msg, "Reminder cancelled.")
	case "snooze":
		if len(args) != 3 {
			h.reply(ctx, msg, "Usage: /reminders snooze <id> <duration>")
			return
		}
		d, err := time.ParseDuration(args[2])
		if err != nil {
			h.reply(ctx, msg, "Invalid duration.")
			return
		}
		if err := h.Reminders.Snooze(ctx, sess.Key, args[1], d); err != nil {
			h.reply(ctx, msg, "Failed to snooze reminder.")
			return
		}
		h.reply(ctx, msg, "Reminder snoozed.")
	default:
		id, err := h.Reminders.Create(ctx, sess.Key, strings.Join(args, " "), args)
		if err != nil {
			h.reply(ctx, msg, "Failed to create reminder.")
			return
		}
		h.reply(ctx, msg, "Reminder created: "+id)
	}
}

func (h *Handler) cmdHeartbeat(ctx context.Context, msg transport.InboundMessage, sess *sessions.Session, args []string) {
	if h.Heartbeat == nil {
		h.reply(ctx, msg, "Heartbeat is not available.")
		return
	}

	if len(args) == 0 || strings.EqualFold(args[0], "status") {
		content, exists, err := h.Heartbeat.ReadHeartbeat(sess.AgentID)
		if err != nil {
			h.reply(ctx, msg, "Failed to read heartbeat state.")
			return
		}
		if !exists {
			h.reply(ctx, msg, "No HEARTBEAT.md for this agent.")
			return
		}
		h.reply(ctx, msg, "HEARTBEAT.md:\n"+content)
		return
	}

	switch strings.ToLower(args[0]) {
	case "on":
		if err := h.Heartbeat.SetHeartbeatEnabled(sess.AgentID, true); err != nil {
			h.reply(ctx, msg, "Failed to enable heartbeat.")
			return
		}
		h.reply(ctx, msg, "Heartbeat enabled.")
	case "off":
		if err := h.Heartbeat.SetHeartbeatEnabled(sess.AgentID, false); err != nil {
			h.reply(ctx, msg, "Failed to disable heartbeat.")
			return
		}
		h.reply(ctx, msg, "Heartbeat disabled.")
	default:
		h.reply(ctx, msg, "Usage: /heartbeat [status|on|off]")
	}
}
