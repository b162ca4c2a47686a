package localdesktop

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mozi-run/mozi/internal/media"
	"github.com/mozi-run/mozi/internal/transport"
	"github.com/mozi-run/mozi/pkg/protocol"
)

// inboundStream accumulates pcm_s16le chunks for one (peerId, streamId)
// pair between its first audio_chunk and its audio_commit (or the client
// disconnecting). Per spec.md §3's AudioInboundStream invariant, no
// transcription happens until commit.
type inboundStream struct {
	sampleRate int
	channels   int
	buf        []byte
}

// audioClient is the single audio-WebSocket connection allowed per peer id.
type audioClient struct {
	peerID string
	conn   *websocket.Conn

	writeMu sync.Mutex
	mu      sync.Mutex
	streams map[string]*inboundStream
	closed  bool
}

func newAudioClient(peerID string, conn *websocket.Conn) *audioClient {
	return &audioClient{peerID: peerID, conn: conn, streams: make(map[string]*inboundStream)}
}

func (a *audioClient) writeJSON(v any) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.conn.WriteJSON(v)
}

func (a *audioClient) writeError(code, message string, retryable bool) {
	a.writeJSON(protocol.ErrorFrame{Type: protocol.WSError, Code: code, Message: message, Retryable: retryable})
}

func (a *audioClient) closeWithReason(code int, reason string) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	a.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	a.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	a.writeMu.Unlock()
	a.conn.Close()
}

// handleAudio upgrades the request to the audio-duplex WebSocket. A new
// upgrade for a peer that already has a client displaces the previous
// socket with close code 1000 and reason "replaced", per spec.md §3's
// at-most-one-audio-client invariant.
func (c *Channel) handleAudio(w http.ResponseWriter, r *http.Request) {
	peerID := r.URL.Query().Get("peerId")
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Error("localdesktop: audio upgrade failed", "error", err)
		return
	}

	client := newAudioClient(peerID, conn)

	c.mu.Lock()
	if prev, ok := c.audioClient[peerID]; ok {
		prev.closeWithReason(websocket.CloseNormalClosure, "replaced")
	}
	c.audioClient[peerID] = client
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.audioClient[peerID] == client {
			delete(c.audioClient, peerID)
		}
		c.mu.Unlock()
		conn.Close()
	}()

	client.writeJSON(map[string]any{"type": protocol.WSAudioReady, "peerId": peerID, "ts": time.Now()})

	c.audioReadLoop(r.Context(), client)
}

func (c *Channel) audioReadLoop(ctx context.Context, client *audioClient) {
	for {
		var frame protocol.InboundWSFrame
		if err := client.conn.ReadJSON(&frame); err != nil {
			return
		}

		switch frame.Type {
		case protocol.WSPing:
			ts := frame.Ts
			if ts == 0 {
				ts = time.Now().UnixMilli()
			}
			client.writeJSON(protocol.PongFrame{Type: protocol.WSPong, Ts: ts})

		case protocol.WSAudioChunk:
			c.handleAudioChunk(client, frame)

		case protocol.WSAudioCommit:
			c.handleAudioCommit(ctx, client, frame.StreamID)

		default:
			client.writeError(protocol.ErrUnsupportedMessage, "unsupported message type", false)
		}
	}
}

func (c *Channel) handleAudioChunk(client *audioClient, frame protocol.InboundWSFrame) {
	if frame.StreamID == "" || frame.Encoding != "pcm_s16le" {
		client.writeError(protocol.ErrInvalidPayload, "missing stream id or unsupported encoding", false)
		return
	}

	chunk, err := base64.StdEncoding.DecodeString(frame.ChunkBase64)
	if err != nil {
		client.writeError(protocol.ErrInvalidPayload, "chunk is not valid base64", false)
		return
	}
	if len(chunk) == 0 {
		client.writeError(protocol.ErrInvalidPayload, "audio chunk must not be empty", false)
		return
	}

	client.mu.Lock()
	stream, ok := client.streams[frame.StreamID]
	if !ok {
		stream = &inboundStream{sampleRate: frame.SampleRate, channels: frame.Channels}
		client.streams[frame.StreamID] = stream
	}
	stream.buf = append(stream.buf, chunk...)
	client.mu.Unlock()
}

func (c *Channel) handleAudioCommit(ctx context.Context, client *audioClient, streamID string) {
	client.mu.Lock()
	stream, ok := client.streams[streamID]
	if ok {
		delete(client.streams, streamID)
	}
	client.mu.Unlock()

	if !ok {
		client.writeError(protocol.ErrInvalidPayload, "commit for unknown stream id", false)
		return
	}

	c.broadcast(client.peerID, protocol.PhaseEvent{
		Type:      protocol.SSEPhase,
		PeerID:    client.peerID,
		Phase:     protocol.PhaseListening,
		Timestamp: time.Now(),
	})

	if c.cfg.Transcriber == nil {
		client.writeError(protocol.ErrSTTFailed, "no transcriber configured", true)
		return
	}

	wav := media.WrapPCM16WAV(stream.buf, stream.sampleRate, stream.channels)
	text, err := c.cfg.Transcriber.Transcribe(ctx, wav)
	if err != nil {
		slog.Default().Warn("localdesktop: transcription failed", "peer_id", client.peerID, "error", err)
		client.writeError(protocol.ErrSTTFailed, "transcription failed", true)
		c.broadcast(client.peerID, protocol.PhaseEvent{Type: protocol.SSEPhase, PeerID: client.peerID, Phase: protocol.PhaseError, Timestamp: time.Now()})
		return
	}

	c.broadcast(client.peerID, protocol.TranscriptEvent{
		Type:      protocol.SSETranscript,
		PeerID:    client.peerID,
		Text:      text,
		IsUser:    true,
		IsFinal:   true,
		StreamID:  streamID,
		Timestamp: time.Now(),
	})

	c.Dispatch(ctx, transport.InboundMessage{
		ID:        streamID,
		Channel:   "localdesktop",
		PeerID:    client.peerID,
		PeerKind:  transport.PeerDM,
		SenderID:  client.peerID,
		Text:      text,
		Timestamp: time.Now(),
	})
}

// sendTTS synthesizes text and streams it over peerID's audio client, if
// one is connected, per spec.md §4.3's outbound TTS streaming contract.
func (c *Channel) sendTTS(ctx context.Context, peerID, text string) {
	if text == "" || c.cfg.Synthesizer == nil {
		return
	}

	c.mu.RLock()
	client, ok := c.audioClient[peerID]
	c.mu.RUnlock()
	if !ok {
		return
	}

	audio, mimeType, durationMs, voice, err := c.cfg.Synthesizer.Synthesize(ctx, text)
	if err != nil {
		client.writeError(protocol.ErrTTSFailed, "speech synthesis failed", true)
		return
	}

	streamID := newStreamID()
	client.writeJSON(protocol.AudioMetaFrame{
		Type:       protocol.WSAudioMeta,
		StreamID:   streamID,
		MimeType:   mimeType,
		DurationMs: durationMs,
		Text:       text,
		Voice:      voice,
	})

	for seq, off := 0, 0; off < len(audio); seq++ {
		end := off + protocol.AudioChunkMaxBytes
		isLast := end >= len(audio)
		if isLast {
			end = len(audio)
		}
		client.writeJSON(protocol.AudioChunkFrame{
			Type:        protocol.WSAudioChunk,
			StreamID:    streamID,
			Seq:         seq,
			MimeType:    mimeType,
			ChunkBase64: base64.StdEncoding.EncodeToString(audio[off:end]),
			IsLast:      isLast,
		})
		off = end
	}
	if len(audio) == 0 {
		client.writeJSON(protocol.AudioChunkFrame{Type: protocol.WSAudioChunk, StreamID: streamID, Seq: 0, MimeType: mimeType, IsLast: true})
	}

	c.broadcast(peerID, protocol.AudioReadyEvent{
		Type:       protocol.SSEAudioReady,
		PeerID:     peerID,
		StreamID:   streamID,
		MimeType:   mimeType,
		DurationMs: durationMs,
		Timestamp:  time.Now(),
	})
}

func newStreamID() string {
	return uuid.NewString()
}
