// Package hub tracks connected browser clients and fans notifications out
// to all of them. Delivery is best-effort and at-most-once: clients that
// are not connected when a notification is broadcast never see it.
package hub

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/livemirror/internal/protocol"
)

const (
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 1024
	wsWriteTimeout    = 10 * time.Second
)

// Options configures a Hub.
type Options struct {
	// WriteTimeout bounds each per-channel send. Defaults to 10s.
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Hub owns the set of active channels.
type Hub struct {
	mu           sync.RWMutex
	channels     map[Channel]struct{}
	closed       bool
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
	logger       *slog.Logger
}

// New creates an empty Hub.
func New(opts Options) *Hub {
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = wsWriteTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		channels:     make(map[Channel]struct{}),
		writeTimeout: writeTimeout,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsReadBufferSize,
			WriteBufferSize: wsWriteBufferSize,
			// Pages are served from a different port than the socket,
			// so every origin is cross-origin here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Register adds ch to the active set. Registering on a closed hub closes
// ch immediately.
func (h *Hub) Register(ch Channel) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = ch.Close()

		return
	}

	h.channels[ch] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes ch from the active set. It is idempotent.
func (h *Hub) Unregister(ch Channel) {
	h.mu.Lock()
	delete(h.channels, ch)
	h.mu.Unlock()
}

// Count returns the number of registered channels.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.channels)
}

// Broadcast serializes n once and sends it to every open channel. Channels
// that are closing are skipped; a failed send is logged, drops that
// channel, and does not affect the others. It returns the number of
// channels the message was written to.
func (h *Hub) Broadcast(n protocol.Notification) int {
	data, err := protocol.Encode(n)
	if err != nil {
		h.logger.Error("encoding notification", slog.String("error", err.Error()))
		return 0
	}

	h.mu.RLock()
	targets := make([]Channel, 0, len(h.channels))
	for ch := range h.channels {
		targets = append(targets, ch)
	}
	h.mu.RUnlock()

	delivered := 0

	for _, ch := range targets {
		if !ch.IsOpen() {
			continue
		}

		if sendErr := ch.Send(data); sendErr != nil {
			h.logger.Warn("notifying client failed", slog.String("error", sendErr.Error()))
			h.Unregister(ch)
			_ = ch.Close()

			continue
		}

		delivered++
	}

	h.logger.Info("notified clients",
		slog.String("path", n.FilePath),
		slog.Int("clients", delivered),
	)

	return delivered
}

// Close closes every registered channel and rejects later registrations.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	channels := h.channels
	h.channels = make(map[Channel]struct{})
	h.mu.Unlock()

	for ch := range channels {
		_ = ch.Close()
	}

	return nil
}

// ServeHTTP upgrades the request to a websocket, registers the channel,
// and holds it until the peer disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)

		return
	}

	ch := newWSChannel(conn, h.writeTimeout)
	h.Register(ch)

	h.logger.Info("client connected", slog.String("remote_addr", ch.remoteAddr()))

	defer func() {
		h.Unregister(ch)
		_ = ch.Close()
		h.logger.Info("client disconnected", slog.String("remote_addr", ch.remoteAddr()))
	}()

	// Clients never send anything meaningful; reading drives control
	// frames and detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			ch.markClosing()
			return
		}
	}
}
