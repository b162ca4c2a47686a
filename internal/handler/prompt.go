package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/mozi-run/mozi/internal/channels"
	"github.com/mozi-run/mozi/internal/kernel"
	"github.com/mozi-run/mozi/internal/promptdriver"
	"github.com/mozi-run/mozi/internal/sessions"
	"github.com/mozi-run/mozi/internal/transport"
)

// runPrompt implements spec.md §4.7 phase (C): the prompt branch. Text is
// resolved first (voice transcription happens upstream in the channel
// adapter, not here), the turn is dispatched through the
// kernel with streaming edits, and the observability record documents
// which of the streamed or final text actually reached the user.
func (h *Handler) runPrompt(ctx context.Context, msg transport.InboundMessage, sess *sessions.Session) {
	adapter, hasAdapter := h.Registry.Get(msg.Channel)

	prompt, ok := h.resolvePromptText(ctx, msg)
	if !ok {
		return
	}

	models := h.modelChain(sess)
	if len(models) == 0 {
		h.reply(ctx, msg, "No model is configured for this agent.")
		return
	}

	if n := len(sess.Turns); n > 0 && n%20 == 0 {
		if err := h.Sessions.RecordMemoryFlush(ctx, sess.Key); err != nil {
			h.Logger.Warn("handler: memory flush record failed", "session_key", sess.Key, "error", err)
		}
	}

	var typing channels.TypingHandle
	if hasAdapter {
		adapter.EmitPhase(ctx, msg.PeerID, channels.PhaseThinking)
		typing = adapter.BeginTyping(ctx, msg.PeerID)
	}
	defer func() {
		if typing != nil {
			typing.Release()
		}
	}()

	var streamed strings.Builder
	messageID := msg.ID
	reasoningVisible := sess.Metadata.ReasoningVisible

	turn := kernel.Turn{
		SessionKey:   sess.Key,
		TraceID:      msg.ID,
		SystemPrompt: "",
		Prompt:       prompt,
		Models:       models,
		OnFallback: func(ev kernel.FallbackEvent) {
			h.Logger.Info("handler: falling back to next model",
				"session_key", sess.Key, "from_model", ev.FromModel, "to_model", ev.ToModel, "attempt", ev.Attempt)
		},
		OnEvent: func(ev promptdriver.Event) {
			if ev.Kind != promptdriver.EventTextDelta {
				return
			}
			streamed.WriteString(ev.TextDelta)
			if !hasAdapter {
				return
			}
			rendered := renderStreamed(streamed.String(), reasoningVisible)
			if rendered == "" {
				return
			}
			if err := adapter.EditMessage(ctx, msg.PeerID, messageID, transport.OutboundMessage{Text: rendered}); err != nil {
				h.Logger.Debug("handler: streamed edit failed", "session_key", sess.Key, "error", err)
			}
		},
	}

	h.Logger.Debug("handler: dispatching turn", "session_key", sess.Key, "prompt_preview", redactSecrets(preview(prompt, 200)))

	outcome := h.Kernel.Enqueue(ctx, turn)

	final := outcome.Text
	streamedText := streamed.String()
	source := "final"
	text := final
	if text == "" {
		text = renderStreamed(streamedText, reasoningVisible)
		source = "streamed"
	}

	h.Logger.Info("handler: turn completed",
		"session_key", sess.Key, "trace_id", msg.ID, "status", string(outcome.Status),
		"source", source, "final_chars", len(final), "streamed_chars", len(streamedText))

	if err := h.Sessions.AppendTurn(ctx, sess.Key, sessions.Turn{Role: "user", Content: prompt, CreatedAt: h.now()}); err != nil {
		h.Logger.Warn("handler: append user turn failed", "error", err)
	}

	switch outcome.Status {
	case kernel.StatusOK:
		if err := h.Sessions.AppendTurn(ctx, sess.Key, sessions.Turn{Role: "assistant", Content: text, CreatedAt: h.now()}); err != nil {
			h.Logger.Warn("handler: append assistant turn failed", "error", err)
		}
		if hasAdapter {
			adapter.EmitPhase(ctx, msg.PeerID, channels.PhaseSpeaking)
			if err := adapter.Send(ctx, msg.PeerID, transport.OutboundMessage{Text: text, ReplyToID: msg.ReplyToID}); err != nil {
				h.Logger.Error("handler: final send failed", "session_key", sess.Key, "error", err)
			}
		}
	default:
		if errText, silent := userFacingError(outcome); !silent {
			h.reply(ctx, msg, errText)
		}
		if hasAdapter {
			adapter.EmitPhase(ctx, msg.PeerID, channels.PhaseError)
		}
	}

	if hasAdapter {
		adapter.EmitPhase(ctx, msg.PeerID, channels.PhaseIdle)
	}
}

// resolvePromptText returns the text to dispatch. Voice attachments are
// transcribed upstream by the originating channel adapter (e.g.
// localdesktop's audio_commit handler) before the InboundMessage ever
// reaches the handler, so a message with no text and only a voice
// attachment here means the adapter could not produce a transcript.
func (h *Handler) resolvePromptText(ctx context.Context, msg transport.InboundMessage) (string, bool) {
	text := strings.TrimSpace(msg.Text)
	if text != "" {
		return text, true
	}
	if firstVoiceAttachment(msg.Media) != nil {
		h.reply(ctx, msg, "Could not transcribe your voice message.")
	}
	return "", false
}

func firstVoiceAttachment(attachments []transport.MediaAttachment) *transport.MediaAttachment {
	for i := range attachments {
		if attachments[i].Kind == transport.MediaVoice || attachments[i].Kind == transport.MediaAudio {
			return &attachments[i]
		}
	}
	return nil
}

// modelChain resolves the fallback chain for a turn: the session's model
// override (if any) first, then the catalog's declared list.
func (h *Handler) modelChain(sess *sessions.Session) []string {
	var chain []string
	if sess.Metadata.ModelOverride != "" {
		chain = append(chain, sess.Metadata.ModelOverride)
	}
	if h.Models != nil {
		for _, m := range h.Models.Models() {
			if m != sess.Metadata.ModelOverride {
				chain = append(chain, m)
			}
		}
	}
	return chain
}

// renderStreamed strips <think>...</think> blocks from streamed text unless
// reasoning visibility is enabled for this session.
func renderStreamed(s string, reasoningVisible bool) string {
	if reasoningVisible {
		return s
	}
	for {
		start := strings.Index(s, "<think>")
		if start < 0 {
			return s
		}
		end := strings.Index(s[start:], "</think>")
		if end < 0 {
			return s[:start]
		}
		s = s[:start] + s[start+end+len("</think>"):]
	}
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s…", s[:n])
}
