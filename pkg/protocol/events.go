// Package protocol defines the wire types exchanged between the local-desktop
// transport and the browser-side widget over SSE and the audio WebSocket.
package protocol

import "time"

// SSE event types, carried in the "type" field of each unnamed data: frame.
const (
	SSEPhase            = "phase"
	SSEAssistantMessage = "assistant_message"
	SSETranscript       = "transcript"
	SSEAudioReady       = "audio_ready"
)

// Phase mirrors the channel adapter's externally visible lifecycle label.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseListening Phase = "listening"
	PhaseThinking  Phase = "thinking"
	PhaseSpeaking  Phase = "speaking"
	PhaseExecuting Phase = "executing"
	PhaseError     Phase = "error"
)

// PhaseEvent is broadcast whenever a channel's phase changes.
type PhaseEvent struct {
	Type      string       `json:"type"`
	PeerID    string       `json:"peerId"`
	Phase     Phase        `json:"phase"`
	Payload   PhasePayload `json:"payload,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// PhasePayload carries optional context about what triggered a phase change.
type PhasePayload struct {
	SessionKey string `json:"sessionKey,omitempty"`
	AgentID    string `json:"agentId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	ToolCallID string `json:"toolCallId,omitempty"`
	MessageID  string `json:"messageId,omitempty"`
}

// AssistantMessageEvent carries one outbound reply to the widget.
type AssistantMessageEvent struct {
	Type      string             `json:"type"`
	ID        string             `json:"id"`
	PeerID    string             `json:"peerId"`
	Payload   AssistantPayload   `json:"payload"`
	Timestamp time.Time          `json:"timestamp"`
}

// AssistantPayload is the text/media body of an AssistantMessageEvent.
type AssistantPayload struct {
	Text  string   `json:"text"`
	Media []string `json:"media,omitempty"`
}

// TranscriptEvent reports STT output for a completed audio stream.
type TranscriptEvent struct {
	Type      string    `json:"type"`
	PeerID    string    `json:"peerId"`
	Text      string    `json:"text"`
	IsUser    bool      `json:"isUser"`
	IsFinal   bool      `json:"isFinal"`
	StreamID  string    `json:"streamId"`
	Timestamp time.Time `json:"timestamp"`
}

// AudioReadyEvent announces that TTS audio for a reply has finished
// streaming over the audio WebSocket.
type AudioReadyEvent struct {
	Type       string    `json:"type"`
	PeerID     string    `json:"peerId"`
	StreamID   string    `json:"streamId"`
	MimeType   string    `json:"mimeType"`
	DurationMs int       `json:"durationMs"`
	Timestamp  time.Time `json:"timestamp"`
}

// Audio WebSocket inbound frame types.
const (
	WSPing        = "ping"
	WSAudioChunk  = "audio_chunk"
	WSAudioCommit = "audio_commit"
)

// Audio WebSocket outbound frame types.
const (
	WSAudioReady = "audio_ready"
	WSPong       = "pong"
	WSAudioMeta  = "audio_meta"
	WSError      = "error"
)

// Audio WS error codes.
const (
	ErrUnauthorized        = "unauthorized"
	ErrInvalidPayload       = "invalid_payload"
	ErrUnsupportedMessage   = "unsupported_message"
	ErrUnsupportedAudioFmt  = "unsupported_audio_format"
	ErrSTTFailed            = "stt_failed"
	ErrTTSFailed            = "tts_failed"
	ErrInternal             = "internal_error"
)

// InboundWSFrame is the envelope every audio-WS inbound text frame decodes
// into before being dispatched by type.
type InboundWSFrame struct {
	Type        string `json:"type"`
	Ts          int64  `json:"ts,omitempty"`
	StreamID    string `json:"streamId,omitempty"`
	Seq         int    `json:"seq,omitempty"`
	SampleRate  int    `json:"sampleRate,omitempty"`
	Channels    int    `json:"channels,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
	ChunkBase64 string `json:"chunkBase64,omitempty"`
}

// ReadyFrame is the first control frame sent on audio-WS attach.
type ReadyFrame struct {
	Type   string    `json:"type"`
	PeerID string    `json:"peerId"`
	Ts     time.Time `json:"ts"`
}

// PongFrame replies to an inbound ping.
type PongFrame struct {
	Type string `json:"type"`
	Ts   int64  `json:"ts"`
}

// AudioMetaFrame precedes the chunk stream of a synthesized TTS reply.
type AudioMetaFrame struct {
	Type       string `json:"type"`
	StreamID   string `json:"streamId"`
	MimeType   string `json:"mimeType"`
	DurationMs int    `json:"durationMs"`
	Text       string `json:"text"`
	Voice      string `json:"voice,omitempty"`
}

// AudioChunkFrame carries one base64-encoded slice of synthesized audio.
// Payload is capped at 32 KiB before encoding; the last chunk of a stream
// sets IsLast.
type AudioChunkFrame struct {
	Type        string `json:"type"`
	StreamID    string `json:"streamId"`
	Seq         int    `json:"seq"`
	MimeType    string `json:"mimeType"`
	ChunkBase64 string `json:"chunkBase64"`
	IsLast      bool   `json:"isLast"`
}

// ErrorFrame reports a recoverable or fatal protocol error to one client.
type ErrorFrame struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// AudioChunkMaxBytes is the maximum pre-base64 payload size of one outbound
// audio_chunk frame.
const AudioChunkMaxBytes = 32 * 1024
