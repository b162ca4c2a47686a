// Package localdesktop implements the hardest channel adapter: an
// HTTP/1.1 + SSE + audio-duplex-WebSocket transport for the local-desktop
// widget, bound to a loopback address.
//
// Grounded on the teacher's internal/gateway/server.go (mux construction,
// CheckOrigin CORS allowlist, ctx-driven graceful Shutdown, the
// StartTestServer random-port harness pattern), generalized from a
// WebSocket-only JSON-RPC gateway into the four-endpoint HTTP surface plus
// SSE and audio-WebSocket duplex this transport's widget protocol needs.
package localdesktop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mozi-run/mozi/internal/channels"
	"github.com/mozi-run/mozi/internal/media"
	"github.com/mozi-run/mozi/internal/transport"
)

const defaultListenAddr = "127.0.0.1:3987"

// Config configures a Channel.
type Config struct {
	ListenAddr     string
	PeerID         string
	AuthToken      string
	AllowedOrigins []string

	Transcriber media.Transcriber
	Synthesizer media.Synthesizer
}

// Channel is the localdesktop channels.Adapter implementation.
type Channel struct {
	*channels.Base

	cfg    Config
	logger *slog.Logger

	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener
	mux        *http.ServeMux

	mu          sync.RWMutex
	sseClients  map[string]*sseClient   // keyed by peer id
	audioClient map[string]*audioClient // keyed by peer id
}

// New constructs a localdesktop Channel. cfg.ListenAddr defaults to
// 127.0.0.1:3987 when empty.
func New(cfg Config) (*Channel, error) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}

	c := &Channel{
		Base:        channels.NewBase("localdesktop", nil),
		cfg:         cfg,
		logger:      slog.Default().With("channel", "localdesktop"),
		sseClients:  make(map[string]*sseClient),
		audioClient: make(map[string]*audioClient),
	}
	c.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     c.checkOrigin,
	}
	return c, nil
}

// checkOrigin implements the CORS allowlist: an empty allowlist allows
// every origin (no warning is logged for it), an empty Origin header
// (non-browser clients) is always allowed, otherwise the Origin must appear
// verbatim in the allowlist.
func (c *Channel) checkOrigin(r *http.Request) bool {
	return c.originAllowed(r.Header.Get("Origin"))
}

func (c *Channel) originAllowed(origin string) bool {
	if len(c.cfg.AllowedOrigins) == 0 {
		return true
	}
	if origin == "" {
		return true
	}
	for _, allowed := range c.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// authorized reports whether r carries a valid auth token, per spec.md
// §4.3: Authorization: Bearer, X-Mozi-Token, or ?token= query param. When
// no token is configured every request is authorized.
func (c *Channel) authorized(r *http.Request) bool {
	if c.cfg.AuthToken == "" {
		return true
	}
	if tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "); tok != "" && tok == c.cfg.AuthToken {
		return true
	}
	if tok := r.Header.Get("X-Mozi-Token"); tok != "" && tok == c.cfg.AuthToken {
		return true
	}
	if tok := r.URL.Query().Get("token"); tok != "" && tok == c.cfg.AuthToken {
		return true
	}
	return false
}

func (c *Channel) writeCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || !c.originAllowed(origin) {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Vary", "Origin")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Mozi-Token")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
}

func (c *Channel) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.writeCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func (c *Channel) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return c.withCORS(func(w http.ResponseWriter, r *http.Request) {
		if !c.authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	})
}

// buildMux registers every endpoint. Exposed for tests that need the mux
// without a live listener.
func (c *Channel) buildMux() *http.ServeMux {
	if c.mux != nil {
		return c.mux
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/widget-config", c.withCORS(c.handleWidgetConfig))
	mux.HandleFunc("/health", c.requireAuth(c.handleHealth))
	mux.HandleFunc("/inbound", c.requireAuth(c.handleInbound))
	mux.HandleFunc("/events", c.requireAuth(c.handleEvents))
	mux.HandleFunc("/audio", c.requireAuth(c.handleAudio))
	c.mux = mux
	return mux
}

type widgetConfigResponse struct {
	Enabled   bool   `json:"enabled"`
	Host      string `json:"host"`
	Port      string `json:"port"`
	PeerID    string `json:"peerId"`
	AuthToken string `json:"authToken,omitempty"`
}

func (c *Channel) handleWidgetConfig(w http.ResponseWriter, r *http.Request) {
	host, port := splitHostPort(c.cfg.ListenAddr)
	resp := widgetConfigResponse{
		Enabled: true,
		Host:    host,
		Port:    port,
		PeerID:  c.cfg.PeerID,
	}
	if c.cfg.AuthToken != "" {
		resp.AuthToken = c.cfg.AuthToken
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (c *Channel) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

type inboundRequest struct {
	PeerID string `json:"peerId"`
	Text   string `json:"text"`
}

func (c *Channel) handleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req inboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	c.Dispatch(r.Context(), transport.InboundMessage{
		ID:        id,
		Channel:   "localdesktop",
		PeerID:    req.PeerID,
		PeerKind:  transport.PeerDM,
		SenderID:  req.PeerID,
		Text:      req.Text,
		Timestamp: time.Now(),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"accepted": true, "id": id})
}

func (c *Channel) handleEvents(w http.ResponseWriter, r *http.Request) {
	peerID := r.URL.Query().Get("peerId")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	client := newSSEClient(peerID)
	c.registerSSEClient(client)
	defer c.unregisterSSEClient(peerID, client)

	client.send(readyPayload(peerID))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-client.out:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func readyPayload(peerID string) []byte {
	b, _ := json.Marshal(map[string]any{
		"type":   "ready",
		"peerId": peerID,
		"ts":     time.Now(),
	})
	return b
}

func (c *Channel) registerSSEClient(client *sseClient) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sseClients[client.peerID] = client
}

func (c *Channel) unregisterSSEClient(peerID string, client *sseClient) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sseClients[peerID] == client {
		delete(c.sseClients, peerID)
		client.close()
	}
}

// broadcast delivers payload to the SSE client registered for peerID, if
// any. Silent no-op when no widget is currently listening.
func (c *Channel) broadcast(peerID string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("localdesktop: marshal SSE payload", "error", err)
		return
	}

	c.mu.RLock()
	client, ok := c.sseClients[peerID]
	c.mu.RUnlock()
	if !ok {
		return
	}
	client.send(b)
}

// Connect starts the HTTP listener in the background.
func (c *Channel) Connect(ctx context.Context) error {
	ln, err := net.Listen("tcp", c.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("localdesktop: listen %s: %w", c.cfg.ListenAddr, err)
	}
	c.listener = ln
	c.httpServer = &http.Server{Handler: c.buildMux()}

	go func() {
		c.logger.Info("localdesktop transport listening", "addr", ln.Addr().String())
		c.SetStatus(true, "listening on "+ln.Addr().String())
		if err := c.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			c.logger.Error("localdesktop: serve", "error", err)
			c.ReportError(err)
		}
	}()

	go func() {
		<-ctx.Done()
		c.Disconnect(context.Background())
	}()

	return nil
}

// Disconnect ends every SSE response, closes every audio-WS with code 1001
// (server_shutdown), clears inbound stream buffers, then closes the
// listener, per spec.md §4.3's shutdown contract.
func (c *Channel) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	for peerID, client := range c.sseClients {
		client.close()
		delete(c.sseClients, peerID)
	}
	for peerID, client := range c.audioClient {
		client.closeWithReason(websocket.CloseGoingAway, "server_shutdown")
		delete(c.audioClient, peerID)
	}
	c.mu.Unlock()

	c.SetStatus(false, "disconnected")

	if c.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return c.httpServer.Shutdown(shutdownCtx)
	}
	return nil
}

func splitHostPort(addr string) (host, port string) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, ""
	}
	return addr[:idx], addr[idx+1:]
}
