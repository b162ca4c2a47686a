package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/mozi-run/mozi/internal/channels"
	"github.com/mozi-run/mozi/internal/transport"
)

// Send delivers an outbound message to peerID, splitting on Telegram's
// button grid and thread-ID conventions.
func (c *Channel) Send(ctx context.Context, peerID string, msg transport.OutboundMessage) error {
	chatID, err := parseChatID(stripComposite(peerID))
	if err != nil {
		return fmt.Errorf("parse telegram chat id %q: %w", peerID, err)
	}

	params := tu.Message(tu.ID(chatID), msg.Text)
	if threadID := resolveThreadIDForSend(threadFromPeerID(peerID)); threadID != 0 {
		params.MessageThreadID = threadID
	}
	if len(msg.Buttons) > 0 {
		params.ReplyMarkup = buildInlineKeyboard(msg.Buttons)
	}
	if msg.ReplyToID != "" {
		params.ReplyParameters = &telego.ReplyParameters{MessageID: atoiSafe(msg.ReplyToID)}
	}
	params.DisableNotification = msg.Silent

	_, err = c.bot.SendMessage(ctx, params)
	return err
}

// EditMessage updates a previously sent message's text in place, used by
// the handler's streaming text_delta rendering.
func (c *Channel) EditMessage(ctx context.Context, peerID, messageID string, msg transport.OutboundMessage) error {
	chatID, err := parseChatID(stripComposite(peerID))
	if err != nil {
		return fmt.Errorf("parse telegram chat id %q: %w", peerID, err)
	}
	params := &telego.EditMessageTextParams{
		ChatID:    tu.ID(chatID),
		MessageID: atoiSafe(messageID),
		Text:      msg.Text,
	}
	_, err = c.bot.EditMessageText(ctx, params)
	return err
}

// React attaches an emoji reaction to messageID.
func (c *Channel) React(ctx context.Context, peerID, messageID, reaction string) error {
	chatID, err := parseChatID(stripComposite(peerID))
	if err != nil {
		return fmt.Errorf("parse telegram chat id %q: %w", peerID, err)
	}
	return c.bot.SetMessageReaction(ctx, &telego.SetMessageReactionParams{
		ChatID:    tu.ID(chatID),
		MessageID: atoiSafe(messageID),
		Reaction:  []telego.ReactionType{&telego.ReactionTypeEmoji{Type: telego.ReactionEmoji, Emoji: reaction}},
	})
}

// typingHandle ref-counts BeginTyping/Release calls for one peer, keeping
// Telegram's "typing…" action alive (resent every 4s — Telegram clears it
// after ~5s) only while at least one caller still holds it.
type typingHandle struct {
	mu      sync.Mutex
	count   int
	cancel  context.CancelFunc
	channel *Channel
	peerID  string
}

func (t *typingHandle) Acquire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count++
	if t.count == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		t.cancel = cancel
		go t.channel.keepTyping(ctx, t.peerID)
	}
}

func (t *typingHandle) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count == 0 {
		return
	}
	t.count--
	if t.count == 0 && t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// BeginTyping returns a ref-counted typing-indicator handle for peerID.
func (c *Channel) BeginTyping(_ context.Context, peerID string) channels.TypingHandle {
	v, _ := c.typingHandles.LoadOrStore(peerID, &typingHandle{channel: c, peerID: peerID})
	h := v.(*typingHandle)
	h.Acquire()
	return h
}

// keepTyping resends the "typing…" chat action every 4s. Telegram clears
// the indicator after ~5s of inactivity, so the interval must stay under
// that to keep it alive continuously.
func (c *Channel) keepTyping(ctx context.Context, peerID string) {
	chatID, err := parseChatID(stripComposite(peerID))
	if err != nil {
		return
	}
	action := tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)
	if threadID := resolveThreadIDForSend(threadFromPeerID(peerID)); threadID != 0 {
		action.MessageThreadID = threadID
	}

	ticker := time.NewTicker(4 * time.Second)
	defer ticker.Stop()
	_ = c.bot.SendChatAction(ctx, action)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.bot.SendChatAction(ctx, action)
		}
	}
}

// EmitPhase has no direct Telegram UI surface for "speaking"/"idle" beyond
// the typing indicator already driven by BeginTyping/Release, so this is
// intentionally a no-op — the handler's BeginTyping/Release calls are what
// render the phase transition for this adapter.
func (c *Channel) EmitPhase(_ context.Context, _ string, _ channels.Phase) {}

func buildInlineKeyboard(rows [][]transport.Button) *telego.InlineKeyboardMarkup {
	var kb [][]telego.InlineKeyboardButton
	for _, row := range rows {
		var out []telego.InlineKeyboardButton
		for _, b := range row {
			switch {
			case b.URL != "":
				out = append(out, telego.InlineKeyboardButton{Text: b.Text, URL: b.URL})
			default:
				out = append(out, telego.InlineKeyboardButton{Text: b.Text, CallbackData: b.CallbackData})
			}
		}
		kb = append(kb, out)
	}
	return &telego.InlineKeyboardMarkup{InlineKeyboard: kb}
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func threadFromPeerID(peerID string) string {
	const marker = ":topic:"
	if idx := indexOf(peerID, marker); idx > 0 {
		return peerID[idx+len(marker):]
	}
	return ""
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
