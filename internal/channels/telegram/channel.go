// Package telegram implements the Telegram Bot API channel adapter using
// long polling, per spec §4.2/§2 ("Telegram bot API client (long polling)").
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"

	"github.com/mozi-run/mozi/internal/channels"
	"github.com/mozi-run/mozi/internal/transport"
)

// Config is the subset of channel configuration the Telegram adapter needs.
type Config struct {
	Token          string
	Proxy          string
	AllowFrom      []string
	DMPolicy       channels.DMPolicy
	GroupPolicy    channels.GroupPolicy
	RequireMention bool
	MediaMaxBytes  int64
}

// Channel connects to Telegram via the Bot API using long polling. It
// generalizes the teacher's internal/channels/telegram/channel.go: the same
// long-polling lifecycle and thread-ID/topic handling, now implementing
// the typed channels.Adapter interface instead of embedding BaseChannel and
// publishing to a generic bus.
type Channel struct {
	*channels.Base
	bot    *telego.Bot
	config Config

	typingHandles sync.Map // peerID string → *typingHandle

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates a Telegram adapter from cfg.
func New(cfg Config) (*Channel, error) {
	var opts []telego.BotOption
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, err)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Channel{
		Base:   channels.NewBase("telegram", cfg.AllowFrom),
		bot:    bot,
		config: cfg,
	}, nil
}

// Connect begins long polling for Telegram updates.
func (c *Channel) Connect(ctx context.Context) error {
	slog.Info("connecting telegram adapter")

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message", "edited_message", "callback_query", "my_chat_member"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetStatus(true, "")
	slog.Info("telegram bot connected", "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					c.SetStatus(false, "updates channel closed")
					return
				}
				switch {
				case update.Message != nil:
					c.handleUpdate(pollCtx, update.Message)
				default:
					slog.Debug("telegram update skipped (no message)", "update_id", update.UpdateID)
				}
			}
		}
	}()

	return nil
}

// Disconnect cancels the long polling context and waits for the polling
// goroutine to exit, so Telegram releases the getUpdates lock cleanly.
func (c *Channel) Disconnect(_ context.Context) error {
	slog.Info("disconnecting telegram adapter")
	c.SetStatus(false, "")

	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

func (c *Channel) handleUpdate(ctx context.Context, msg *telego.Message) {
	senderID := ""
	senderName := ""
	if msg.From != nil {
		senderID = strconv.FormatInt(msg.From.ID, 10)
		senderName = msg.From.Username
		if senderName == "" {
			senderName = msg.From.FirstName
		}
	}

	if !c.IsAllowed(compoundID(senderID, msg.From)) {
		return
	}

	peerKind := transport.PeerDM
	if msg.Chat.Type == telego.ChatTypeGroup || msg.Chat.Type == telego.ChatTypeSupergroup {
		peerKind = transport.PeerGroup
	}

	threadID := ""
	if msg.IsTopicMessage && msg.MessageThreadID != 0 {
		threadID = strconv.Itoa(msg.MessageThreadID)
	}

	inbound := transport.InboundMessage{
		ID:          strconv.Itoa(msg.MessageID),
		Channel:     "telegram",
		PeerID:      strconv.FormatInt(msg.Chat.ID, 10),
		PeerKind:    peerKind,
		SenderID:    senderID,
		SenderName:  senderName,
		ThreadID:    threadID,
		Text:        msg.Text,
		Media:       c.resolveMedia(ctx, msg),
		Timestamp:   time.Unix(int64(msg.Date), 0),
		ProviderRaw: transport.NewProviderRaw(msg),
	}
	if msg.ReplyToMessage != nil {
		inbound.ReplyToID = strconv.Itoa(msg.ReplyToMessage.MessageID)
	}

	c.Dispatch(ctx, inbound)
}

func compoundID(id string, from *telego.User) string {
	if from == nil || from.Username == "" {
		return id
	}
	return id + "|" + from.Username
}

// parseChatID converts a string peer ID to int64.
func parseChatID(peerID string) (int64, error) {
	return strconv.ParseInt(peerID, 10, 64)
}

// telegramGeneralTopicID is the fixed topic ID for a forum's "General" topic.
const telegramGeneralTopicID = 1

// resolveThreadIDForSend returns the thread ID to pass to Telegram's
// send/edit API, omitting the General topic (1) since Telegram rejects
// explicit references to it with "thread not found".
func resolveThreadIDForSend(threadID string) int {
	if threadID == "" {
		return 0
	}
	n, err := strconv.Atoi(threadID)
	if err != nil {
		return 0
	}
	if n == telegramGeneralTopicID {
		return 0
	}
	return n
}

func stripComposite(peerID string) string {
	if idx := strings.Index(peerID, ":topic:"); idx > 0 {
		return peerID[:idx]
	}
	return peerID
}
