package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"tecky-admin/internal/events"
	"tecky-admin/internal/logger"
)

// EventsHandler streams hub messages to SSE and WebSocket clients.
type EventsHandler struct {
	Hub *events.Hub
	Log *zap.Logger
	// Ping is the keepalive interval; zero disables keepalives.
	Ping time.Duration
	// AllowedOrigins is consulted for browser WebSocket handshakes.
	AllowedOrigins func() []string
}

func (h EventsHandler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, r, http.StatusInternalServerError, "stream_unsupported", "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.Hub.Subscribe()
	defer h.Hub.Unsubscribe(ch)

	reqID := RequestIDFrom(r.Context())
	send := func(msg string) {
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
		flusher.Flush()
	}
	send(events.MakeEvent(reqID, events.TypePing, nil))

	tick, stop := h.ticker()
	defer stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick:
			send(events.MakeEvent(reqID, events.TypePing, nil))
		case msg, ok := <-ch:
			if !ok {
				return
			}
			send(msg)
		}
	}
}

func (h EventsHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	srv := websocket.Server{
		Handshake: func(cfg *websocket.Config, req *http.Request) error {
			return h.checkOrigin(req)
		},
		Handler: func(conn *websocket.Conn) {
			h.streamWS(conn, RequestIDFrom(r.Context()))
		},
	}
	srv.ServeHTTP(w, r)
}

func (h EventsHandler) streamWS(conn *websocket.Conn, reqID string) {
	defer conn.Close()
	log := h.logger().With(logger.Component("ws"), logger.RequestID(reqID))

	ch := h.Hub.Subscribe()
	defer h.Hub.Unsubscribe(ch)

	// the client never sends anything we need; reading detects disconnects
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer cancel()
		var discard string
		for {
			if err := websocket.Message.Receive(conn, &discard); err != nil {
				return
			}
		}
	}()

	send := func(msg string) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := websocket.Message.Send(conn, msg); err != nil {
			log.Debug("ws send failed", logger.Err(err))
			return false
		}
		return true
	}
	if !send(events.MakeEvent(reqID, events.TypePing, nil)) {
		return
	}

	tick, stop := h.ticker()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if !send(events.MakeEvent(reqID, events.TypePing, nil)) {
				return
			}
		case msg, ok := <-ch:
			if !ok || !send(msg) {
				return
			}
		}
	}
}

// checkOrigin admits non-browser clients (no Origin), same-host pages and
// the configured CORS origins.
func (h EventsHandler) checkOrigin(r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}
	u, err := url.Parse(origin)
	if err == nil && strings.EqualFold(u.Host, r.Host) {
		return nil
	}
	if h.AllowedOrigins != nil && originAllowed(h.AllowedOrigins(), origin) {
		return nil
	}
	return fmt.Errorf("origin %q not allowed", origin)
}

func (h EventsHandler) ticker() (<-chan time.Time, func()) {
	if h.Ping <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(h.Ping)
	return t.C, t.Stop
}

func (h EventsHandler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
