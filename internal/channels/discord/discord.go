// Package discord implements the Discord channel adapter over discordgo's
// gateway connection.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/mozi-run/mozi/internal/channels"
	"github.com/mozi-run/mozi/internal/transport"
)

const discordMaxMessageLen = 2000

// Channel connects to Discord via the gateway API. It generalizes the
// teacher's original discord.go: same gateway lifecycle and mention-gating
// logic, now implementing the typed channels.Adapter interface instead of
// embedding BaseChannel and calling into a pairing collaborator that per
// SPEC_FULL.md no longer lives in the channel layer.
type Channel struct {
	*channels.Base
	session        *discordgo.Session
	config         Config
	botUserID      string
	requireMention bool
	typingHandles  sync.Map // channelID string → *typingHandle
}

// Config is the subset of channel configuration the Discord adapter needs.
type Config struct {
	Token          string
	AllowFrom      []string
	DMPolicy       channels.DMPolicy
	GroupPolicy    channels.GroupPolicy
	RequireMention bool
}

// New creates a Discord adapter from cfg.
func New(cfg Config) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	c := &Channel{
		Base:           channels.NewBase("discord", cfg.AllowFrom),
		session:        session,
		config:         cfg,
		requireMention: cfg.RequireMention,
	}
	session.AddHandler(c.handleMessage)
	return c, nil
}

// Connect opens the Discord gateway connection.
func (c *Channel) Connect(_ context.Context) error {
	slog.Info("connecting discord adapter")

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetStatus(true, "")
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Disconnect closes the Discord gateway connection.
func (c *Channel) Disconnect(_ context.Context) error {
	slog.Info("disconnecting discord adapter")
	c.SetStatus(false, "")
	return c.session.Close()
}

func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	senderID := m.Author.ID
	isDM := m.GuildID == ""
	peerKind := transport.PeerGroup
	if isDM {
		peerKind = transport.PeerDM
	}

	if !channels.CheckPolicy(c.Base, peerKind, c.config.DMPolicy, c.config.GroupPolicy, senderID) {
		slog.Debug("discord message rejected by policy", "user_id", senderID, "is_dm", isDM)
		return
	}

	content := m.Content
	var media []transport.MediaAttachment
	for _, att := range m.Attachments {
		media = append(media, transport.MediaAttachment{
			Kind:     attachmentKind(att.ContentType),
			URL:      att.URL,
			MimeType: att.ContentType,
			Filename: att.Filename,
			SizeByte: int64(att.Size),
			WidthPx:  att.Width,
			HeightPx: att.Height,
		})
	}

	if !isDM && c.requireMention {
		mentioned := false
		for _, u := range m.Mentions {
			if u.ID == c.botUserID {
				mentioned = true
				break
			}
		}
		if !mentioned {
			return
		}
	}

	inbound := transport.InboundMessage{
		ID:          m.ID,
		Channel:     "discord",
		PeerID:      m.ChannelID,
		PeerKind:    peerKind,
		SenderID:    senderID,
		SenderName:  resolveDisplayName(m),
		Text:        content,
		Media:       media,
		Timestamp:   m.Timestamp,
		ProviderRaw: transport.NewProviderRaw(m),
	}
	if m.MessageReference != nil {
		inbound.ReplyToID = m.MessageReference.MessageID
	}

	c.Dispatch(context.Background(), inbound)
}

// Send delivers an outbound message, chunking at Discord's 2000-char limit.
func (c *Channel) Send(_ context.Context, peerID string, msg transport.OutboundMessage) error {
	return c.sendChunked(peerID, msg.Text)
}

func (c *Channel) sendChunked(channelID, content string) error {
	for len(content) > 0 {
		chunk := content
		if len(chunk) > discordMaxMessageLen {
			cutAt := discordMaxMessageLen
			if idx := strings.LastIndexByte(content[:discordMaxMessageLen], '\n'); idx > discordMaxMessageLen/2 {
				cutAt = idx + 1
			}
			chunk = content[:cutAt]
			content = content[cutAt:]
		} else {
			content = ""
		}
		if _, err := c.session.ChannelMessageSend(channelID, chunk); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

// EditMessage updates a previously sent message's content in place.
func (c *Channel) EditMessage(_ context.Context, peerID, messageID string, msg transport.OutboundMessage) error {
	_, err := c.session.ChannelMessageEdit(peerID, messageID, msg.Text)
	return err
}

// React attaches an emoji reaction to messageID.
func (c *Channel) React(_ context.Context, peerID, messageID, reaction string) error {
	return c.session.MessageReactionAdd(peerID, messageID, reaction)
}

// typingHandle ref-counts BeginTyping/Release calls for one Discord channel,
// keeping the typing indicator alive (resent every 9s — Discord clears it
// after ~10s) only while at least one caller still holds it.
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

func (c *Channel) keepTyping(ctx context.Context, channelID string) {
	ticker := time.NewTicker(9 * time.Second)
	defer ticker.Stop()
	_ = c.session.ChannelTyping(channelID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.session.ChannelTyping(channelID)
		}
	}
}

// EmitPhase has no direct Discord UI surface beyond the typing indicator
// already driven by BeginTyping/Release, so this is intentionally a no-op.
func (c *Channel) EmitPhase(_ context.Context, _ string, _ channels.Phase) {}

func attachmentKind(contentType string) transport.MediaKind {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return transport.MediaPhoto
	case strings.HasPrefix(contentType, "video/"):
		return transport.MediaVideo
	case strings.HasPrefix(contentType, "audio/"):
		return transport.MediaAudio
	default:
		return transport.MediaDocument
	}
}

// resolveDisplayName returns the best available display name for a Discord
// message author: server nickname, then global display name, then username.
func resolveDisplayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
