package localdesktop

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mozi-run/mozi/internal/channels"
	"github.com/mozi-run/mozi/internal/transport"
	"github.com/mozi-run/mozi/pkg/protocol"
)

// Send broadcasts an assistant_message SSE event and, if an audio-WS
// client is attached for peerID and msg.Text is non-empty, streams a TTS
// rendering of the reply over the audio socket, per spec.md §4.3's
// outbound TTS streaming contract.
func (c *Channel) Send(ctx context.Context, peerID string, msg transport.OutboundMessage) error {
	media := make([]string, 0, len(msg.Media))
	for _, m := range msg.Media {
		if m.URL != "" {
			media = append(media, m.URL)
		}
	}

	c.broadcast(peerID, protocol.AssistantMessageEvent{
		Type:   protocol.SSEAssistantMessage,
		ID:     uuid.NewString(),
		PeerID: peerID,
		Payload: protocol.AssistantPayload{
			Text:  msg.Text,
			Media: media,
		},
		Timestamp: time.Now(),
	})

	c.sendTTS(ctx, peerID, msg.Text)
	return nil
}

// EditMessage has no equivalent primitive over SSE: the widget renders
// each assistant_message as a new bubble, so an edit is sent as a fresh
// Send with the same text. Streaming deltas during a turn instead arrive
// as separate phase/assistant_message events driven by the handler.
func (c *Channel) EditMessage(ctx context.Context, peerID, messageID string, msg transport.OutboundMessage) error {
	return c.Send(ctx, peerID, msg)
}

// React has no widget-side rendering; the localdesktop transport has no
// message-level affordance for it.
func (c *Channel) React(ctx context.Context, peerID, messageID, reaction string) error {
	return nil
}

// EmitPhase broadcasts a phase SSE event, letting the widget render
// listening/thinking/speaking/executing states.
func (c *Channel) EmitPhase(ctx context.Context, peerID string, phase channels.Phase) {
	c.broadcast(peerID, protocol.PhaseEvent{
		Type:      protocol.SSEPhase,
		PeerID:    peerID,
		Phase:     protocol.Phase(phase),
		Timestamp: time.Now(),
	})
}

// typingHandle maps BeginTyping's ref-counted contract onto EmitPhase:
// acquiring emits phase=thinking, the last release emits phase=idle.
type typingHandle struct {
	mu      sync.Mutex
	count   int
	channel *Channel
	peerID  string
}

func (t *typingHandle) Acquire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count++
	if t.count == 1 {
		t.channel.EmitPhase(context.Background(), t.peerID, channels.PhaseThinking)
	}
}

func (t *typingHandle) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count == 0 {
		return
	}
	t.count--
	if t.count == 0 {
		t.channel.EmitPhase(context.Background(), t.peerID, channels.PhaseIdle)
	}
}

// BeginTyping returns a ref-counted, already-acquired handle whose
// acquire/release emits phase=thinking/idle SSE events for peerID.
func (c *Channel) BeginTyping(_ context.Context, peerID string) channels.TypingHandle {
	h := &typingHandle{channel: c, peerID: peerID}
	h.Acquire()
	return h
}
