// Package websocket carries relay traffic over gorilla/websocket connections.
package websocket

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/premiumeclipse/essencefurro/internal/adapter/metrics"
	"github.com/premiumeclipse/essencefurro/internal/relay"
)

const maxMessageSize = 64 * 1024

// Relay is the subset of *relay.Relay the transport drives.
type Relay interface {
	Register(peer relay.Peer) (uuid.UUID, error)
	Deliver(connID uuid.UUID, raw []byte)
	Unregister(connID uuid.UUID)
}

type HandlerConfig struct {
	AppURL         string
	IsDevelopment  bool
	MaxConnections int64
	Clock          clockwork.Clock
	Metrics        *metrics.WebSocketMetrics
}

// Handler upgrades HTTP requests and pumps frames between the socket and the relay.
type Handler struct {
	relay    Relay
	upgrader websocket.Upgrader
	limiter  *ConnectionLimiter
	clock    clockwork.Clock
	metrics  *metrics.WebSocketMetrics
}

func NewHandler(r Relay, cfg HandlerConfig) *Handler {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Handler{
		relay: r,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment),
		},
		limiter: NewConnectionLimiter(cfg.MaxConnections),
		clock:   cfg.Clock,
		metrics: cfg.Metrics,
	}
}

// Limiter exposes the connection limiter for health reporting.
func (h *Handler) Limiter() *ConnectionLimiter {
	return h.limiter
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Acquire() {
		h.metrics.RejectedConnections.WithLabelValues("capacity").Inc()
		slog.Warn("WebSocket connection rejected, at capacity", "max", h.limiter.Max(), "remote_addr", r.RemoteAddr)
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}
	defer h.limiter.Release()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response.
		h.metrics.RejectedConnections.WithLabelValues("upgrade").Inc()
		slog.Debug("WebSocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	writer := newClientWriter(conn, h.clock, h.metrics)
	connID, err := h.relay.Register(writer)
	if err != nil {
		slog.Warn("Relay refused connection", "error", err)
		writer.stopGraceful("Server shutting down")
		return
	}

	h.metrics.ActiveConnections.Inc()
	defer h.metrics.ActiveConnections.Dec()

	h.readLoop(conn, connID)

	h.relay.Unregister(connID)
	writer.stop()
}

func (h *Handler) readLoop(conn *websocket.Conn, connID uuid.UUID) {
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				slog.Warn("WebSocket frame exceeded read limit", "connection_id", connID.String(), "limit", maxMessageSize)
			case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				slog.Debug("WebSocket read failed", "connection_id", connID.String(), "error", err)
			}
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		h.relay.Deliver(connID, data)
	}
}
