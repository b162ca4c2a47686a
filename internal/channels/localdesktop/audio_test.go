package localdesktop

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mozi-run/mozi/internal/transport"
	"github.com/mozi-run/mozi/pkg/protocol"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func dialAudio(t *testing.T, srv *httptest.Server, peerID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/audio?peerId=" + peerID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	var ready map[string]any
	if err := conn.ReadJSON(&ready); err != nil {
		t.Fatalf("read audio_ready: %v", err)
	}
	if ready["type"] != protocol.WSAudioReady {
		t.Fatalf("expected initial audio_ready frame, got %+v", ready)
	}
	return conn
}

func TestAudioPingPong(t *testing.T) {
	c := newTestChannel(t, Config{ListenAddr: "127.0.0.1:0"})
	srv := httptest.NewServer(c.buildMux())
	defer srv.Close()

	conn := dialAudio(t, srv, "peer-1")
	defer conn.Close()

	if err := conn.WriteJSON(protocol.InboundWSFrame{Type: protocol.WSPing, Ts: 42}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	var pong protocol.PongFrame
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong.Type != protocol.WSPong || pong.Ts != 42 {
		t.Errorf("expected echoed pong{ts:42}, got %+v", pong)
	}
}

func TestAudioCommitTranscribesAndDispatches(t *testing.T) {
	transcriber := &fakeTranscriber{text: "hello from audio"}
	c := newTestChannel(t, Config{ListenAddr: "127.0.0.1:0", Transcriber: transcriber})
	srv := httptest.NewServer(c.buildMux())
	defer srv.Close()

	dispatched := make(chan transport.InboundMessage, 1)
	c.OnMessage(func(ctx context.Context, msg transport.InboundMessage) { dispatched <- msg })

	conn := dialAudio(t, srv, "peer-2")
	defer conn.Close()

	chunk := base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4})
	err := conn.WriteJSON(protocol.InboundWSFrame{
		Type:        protocol.WSAudioChunk,
		StreamID:    "s1",
		Seq:         0,
		SampleRate:  16000,
		Channels:    1,
		Encoding:    "pcm_s16le",
		ChunkBase64: chunk,
	})
	if err != nil {
		t.Fatalf("write chunk: %v", err)
	}

	if err := conn.WriteJSON(protocol.InboundWSFrame{Type: protocol.WSAudioCommit, StreamID: "s1"}); err != nil {
		t.Fatalf("write commit: %v", err)
	}

	select {
	case msg := <-dispatched:
		if msg.Text != "hello from audio" || msg.PeerID != "peer-2" {
			t.Errorf("expected transcript dispatched as inbound message, got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched inbound message")
	}
}

func TestAudioChunkInvalidEncodingErrors(t *testing.T) {
	c := newTestChannel(t, Config{ListenAddr: "127.0.0.1:0"})
	srv := httptest.NewServer(c.buildMux())
	defer srv.Close()

	conn := dialAudio(t, srv, "peer-3")
	defer conn.Close()

	err := conn.WriteJSON(protocol.InboundWSFrame{
		Type:     protocol.WSAudioChunk,
		StreamID: "s1",
		Encoding: "opus",
	})
	if err != nil {
		t.Fatalf("write chunk: %v", err)
	}

	var errFrame protocol.ErrorFrame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&errFrame); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if errFrame.Code != protocol.ErrInvalidPayload || errFrame.Retryable {
		t.Errorf("expected non-retryable invalid_payload error, got %+v", errFrame)
	}
}

func TestAudioChunkEmptyPayloadErrors(t *testing.T) {
	c := newTestChannel(t, Config{ListenAddr: "127.0.0.1:0"})
	srv := httptest.NewServer(c.buildMux())
	defer srv.Close()

	conn := dialAudio(t, srv, "peer-4")
	defer conn.Close()

	err := conn.WriteJSON(protocol.InboundWSFrame{
		Type:        protocol.WSAudioChunk,
		StreamID:    "s1",
		Encoding:    "pcm_s16le",
		ChunkBase64: "",
	})
	if err != nil {
		t.Fatalf("write chunk: %v", err)
	}

	var errFrame protocol.ErrorFrame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&errFrame); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if errFrame.Code != protocol.ErrInvalidPayload || errFrame.Retryable {
		t.Errorf("expected non-retryable invalid_payload error for a zero-byte chunk, got %+v", errFrame)
	}
}

func TestAudioReplacesPreviousClientForSamePeer(t *testing.T) {
	c := newTestChannel(t, Config{ListenAddr: "127.0.0.1:0"})
	srv := httptest.NewServer(c.buildMux())
	defer srv.Close()

	first := dialAudio(t, srv, "peer-4")
	defer first.Close()

	second := dialAudio(t, srv, "peer-4")
	defer second.Close()

	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := first.ReadMessage()
	if err == nil {
		t.Fatalf("expected the first connection to be closed once replaced")
	}
	if ce, ok := err.(*websocket.CloseError); ok {
		if ce.Code != websocket.CloseNormalClosure || ce.Text != "replaced" {
			t.Errorf("expected close(1000, replaced), got %+v", ce)
		}
	}
}
