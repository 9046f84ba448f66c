package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/premiumeclipse/essencefurro/internal/adapter/metrics"
	"github.com/premiumeclipse/essencefurro/internal/domain"
	"github.com/premiumeclipse/essencefurro/internal/platform/correlation"
	"github.com/premiumeclipse/essencefurro/internal/protocol"
)

const (
	commandTimeout     = 5 * time.Second
	stopTimeout        = 10 * time.Second
	livenessInterval   = 15 * time.Second
	stalenessThreshold = 30 * time.Second
	commandQueueSize   = 256
)

// ErrStopped is returned by Register and the snapshot queries once Stop has been called.
var ErrStopped = errors.New("relay stopped")

type Options struct {
	// BotSecret is the shared token a bot presents in its auth message.
	BotSecret string
	Clock     clockwork.Clock
	// Metrics defaults to a set registered on a private registry.
	Metrics *metrics.RelayMetrics
}

type relayCmd interface{ isRelayCmd() }

type baseRelayCmd struct{}

func (baseRelayCmd) isRelayCmd() {}

type registerCmd struct {
	baseRelayCmd
	peer  Peer
	reply chan uuid.UUID
}

type deliverCmd struct {
	baseRelayCmd
	connID uuid.UUID
	raw    []byte
}

type unregisterCmd struct {
	baseRelayCmd
	connID uuid.UUID
}

// queryCmd runs fn on the actor goroutine. Used for read-only snapshots.
type queryCmd struct {
	baseRelayCmd
	fn   func()
	done chan struct{}
}

type stopCmd struct {
	baseRelayCmd
}

// connection is the relay-private record of one registered peer.
type connection struct {
	id       uuid.UUID
	peer     Peer
	role     protocol.Role
	userID   string
	username string
	// authSeq orders bot authentications so forwarding targets the newest bot.
	authSeq uint64
}

type Relay struct {
	cmdCh     chan relayCmd
	clock     clockwork.Clock
	botSecret []byte
	metrics   *metrics.RelayMetrics
	done      chan struct{}
	stopOnce  sync.Once

	// Owned by the actor goroutine.
	conns    map[uuid.UUID]*connection
	sessions map[string]*domain.UserSession
	status   domain.BotStatus
	authSeq  uint64
}

// New creates a relay and starts its actor goroutine and liveness sweep.
func New(opts Options) *Relay {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRelayMetrics(prometheus.NewRegistry())
	}

	r := &Relay{
		cmdCh:     make(chan relayCmd, commandQueueSize),
		clock:     opts.Clock,
		botSecret: []byte(opts.BotSecret),
		metrics:   opts.Metrics,
		done:      make(chan struct{}),
		conns:     make(map[uuid.UUID]*connection),
		sessions:  make(map[string]*domain.UserSession),
	}
	go r.run()
	return r
}

// Register adds an unauthenticated connection and returns its id.
func (r *Relay) Register(peer Peer) (uuid.UUID, error) {
	reply := make(chan uuid.UUID, 1)
	if !r.enqueue(registerCmd{peer: peer, reply: reply}) {
		return uuid.Nil, ErrStopped
	}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case id := <-reply:
		return id, nil
	case <-r.done:
		return uuid.Nil, ErrStopped
	case <-timer.Chan():
		return uuid.Nil, fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Deliver hands one inbound frame from connID to the relay.
func (r *Relay) Deliver(connID uuid.UUID, raw []byte) {
	r.enqueue(deliverCmd{connID: connID, raw: raw})
}

// Unregister removes connID and applies disconnection handling. Unknown ids are ignored.
func (r *Relay) Unregister(connID uuid.UUID) {
	r.enqueue(unregisterCmd{connID: connID})
}

// BotStatus returns a snapshot of the bot status. A bot whose last heartbeat
// is older than the staleness threshold is reported offline even if the
// sweep has not run yet.
func (r *Relay) BotStatus(ctx context.Context) (domain.BotStatus, error) {
	var status domain.BotStatus
	err := r.query(ctx, func() {
		status = r.status
		if status.IsOnline && r.isStale() {
			status.IsOnline = false
		}
	})
	return status, err
}

// ActiveUsers returns every session that is not offline, most recently
// active first.
func (r *Relay) ActiveUsers(ctx context.Context) ([]domain.UserSession, error) {
	var users []domain.UserSession
	err := r.query(ctx, func() {
		users = r.activeSessions()
	})
	return users, err
}

// Stop closes every peer with a close frame and stops the actor. It blocks
// until the actor exits or the stop timeout elapses.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		if !r.enqueue(stopCmd{}) {
			return
		}

		timeout := r.clock.NewTimer(stopTimeout)
		defer timeout.Stop()

		select {
		case <-r.done:
			slog.Info("Relay stopped gracefully")
		case <-timeout.Chan():
			slog.Warn("Relay stop timeout exceeded", "timeout", stopTimeout)
		}
	})
}

func (r *Relay) enqueue(cmd relayCmd) bool {
	select {
	case r.cmdCh <- cmd:
		return true
	case <-r.done:
		return false
	}
}

func (r *Relay) query(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !r.enqueue(queryCmd{fn: fn, done: done}) {
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("relay query: %w", ctx.Err())
	}
}

func (r *Relay) run() {
	defer close(r.done)
	// Commands recover their own panics; this only catches failures in the loop itself.
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Relay loop panic, shutting down", "panic", rec, "stack", string(debug.Stack()))
			r.metrics.HandlerPanics.Inc()
			r.closeAll("relay failure")
		}
	}()

	ticker := r.clock.NewTicker(livenessInterval)
	defer ticker.Stop()

	for {
		r.metrics.CommandQueueDepth.Set(float64(len(r.cmdCh)))

		select {
		case cmd := <-r.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				r.guard(context.Background(), "register", func() {
					c.reply <- r.handleRegister(c.peer)
				})
			case deliverCmd:
				r.handleDeliver(c)
			case unregisterCmd:
				r.handleUnregister(c.connID)
			case queryCmd:
				r.guard(context.Background(), "query", c.fn)
				close(c.done)
			case stopCmd:
				r.guard(context.Background(), "stop", r.handleStop)
				return
			default:
				slog.Warn("Relay received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		case <-ticker.Chan():
			r.guard(context.Background(), "sweep", r.sweep)
		}
	}
}

// guard runs one actor command and recovers a panic raised by it, so a
// misbehaving peer cannot take the relay down. It reports whether fn panicked.
func (r *Relay) guard(ctx context.Context, command string, fn func()) (panicked bool) {
	defer func() {
		if rec := recover(); rec != nil {
			panicked = true
			slog.ErrorContext(ctx, "Relay handler panic recovered",
				"command", command,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			r.metrics.HandlerPanics.Inc()
		}
	}()
	fn()
	return false
}

func (r *Relay) handleRegister(peer Peer) uuid.UUID {
	id := uuid.New()
	r.conns[id] = &connection{id: id, peer: peer}
	r.metrics.Connections.WithLabelValues(roleLabel(protocol.RoleNone)).Inc()
	slog.Debug("Connection registered", "connection_id", id.String(), "total_connections", len(r.conns))
	return id
}

func (r *Relay) handleUnregister(connID uuid.UUID) {
	conn, ok := r.conns[connID]
	if !ok {
		return
	}
	ctx := correlation.WithConnection(context.Background(), connID.String())
	r.guard(ctx, "unregister", func() {
		r.removeConnection(ctx, conn, "")
	})
}

func (r *Relay) handleStop() {
	slog.Info("Relay shutting down", "connections", len(r.conns))
	r.closeAll("Server shutting down")
}

func (r *Relay) closeAll(reason string) {
	for id, conn := range r.conns {
		conn.peer.Close(reason)
		r.metrics.Connections.WithLabelValues(roleLabel(conn.role)).Dec()
		delete(r.conns, id)
	}
	r.setOnline(false)
}

// removeConnection drops conn from the registry and applies disconnection
// handling for its role. It is a no-op for connections already removed.
func (r *Relay) removeConnection(ctx context.Context, conn *connection, reason string) {
	if _, ok := r.conns[conn.id]; !ok {
		return
	}
	delete(r.conns, conn.id)
	conn.peer.Close(reason)
	r.metrics.Connections.WithLabelValues(roleLabel(conn.role)).Dec()

	switch conn.role {
	case protocol.RoleBot:
		if r.currentBot() == nil && r.status.IsOnline {
			r.setOnline(false)
			r.broadcastDashboards(ctx, protocol.NewBotStatus(protocol.BotDisconnected), nil)
		}
		slog.InfoContext(ctx, "Bot disconnected", "remaining_bots", r.botCount())

	case protocol.RoleDashboard:
		if r.dashboardCount(conn.userID) == 0 {
			if sess, ok := r.sessions[conn.userID]; ok {
				sess.Status = domain.UserStatusOffline
				sess.LastActive = r.clock.Now()
			}
		}
		slog.DebugContext(ctx, "Dashboard user disconnected", "user_id", conn.userID)

	default:
		slog.DebugContext(ctx, "Unauthenticated connection closed")
	}
}

// sweep demotes a bot whose last heartbeat is older than the staleness threshold.
func (r *Relay) sweep() {
	r.metrics.LastSweep.Set(float64(r.clock.Now().UnixMilli()) / 1000)
	if !r.status.IsOnline || !r.isStale() {
		return
	}

	slog.Warn("Bot heartbeat stale, marking offline",
		"last_heartbeat", r.status.LastHeartbeat,
		"threshold", stalenessThreshold,
	)
	r.metrics.LivenessDemotions.Inc()
	r.setOnline(false)
	r.broadcastDashboards(context.Background(), protocol.NewBotStatus(protocol.BotDisconnected), nil)
}

func (r *Relay) isStale() bool {
	return r.clock.Since(r.status.LastHeartbeat) > stalenessThreshold
}

func (r *Relay) setOnline(online bool) {
	r.status.IsOnline = online
	if online {
		r.metrics.BotOnline.Set(1)
	} else {
		r.metrics.BotOnline.Set(0)
	}
}

// currentBot returns the most recently authenticated bot connection, or nil.
func (r *Relay) currentBot() *connection {
	var bot *connection
	for _, c := range r.conns {
		if c.role == protocol.RoleBot && (bot == nil || c.authSeq > bot.authSeq) {
			bot = c
		}
	}
	return bot
}

func (r *Relay) botCount() int {
	n := 0
	for _, c := range r.conns {
		if c.role == protocol.RoleBot {
			n++
		}
	}
	return n
}

func (r *Relay) dashboardCount(userID string) int {
	n := 0
	for _, c := range r.conns {
		if c.role == protocol.RoleDashboard && c.userID == userID {
			n++
		}
	}
	return n
}

// send queues m on conn and evicts conn if the peer cannot take it.
func (r *Relay) send(ctx context.Context, conn *connection, m protocol.Message) {
	data, err := protocol.Encode(m)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode outbound message", "error", err)
		return
	}
	if !r.write(conn, data, m.MessageType()) {
		r.evict(ctx, conn)
	}
}

// broadcastDashboards sends m to every authenticated dashboard connection
// accepted by match (all of them when match is nil) and returns how many
// peers took it. Peers that could not are evicted after the fan-out.
func (r *Relay) broadcastDashboards(ctx context.Context, m protocol.Message, match func(*connection) bool) int {
	data, err := protocol.Encode(m)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode broadcast message", "error", err)
		return 0
	}

	var slow []*connection
	delivered := 0
	for _, c := range r.conns {
		if c.role != protocol.RoleDashboard || (match != nil && !match(c)) {
			continue
		}
		if r.write(c, data, m.MessageType()) {
			delivered++
		} else {
			slow = append(slow, c)
		}
	}

	for _, c := range slow {
		r.evict(ctx, c)
	}
	return delivered
}

func (r *Relay) write(conn *connection, data []byte, typ protocol.MessageType) bool {
	if conn.peer.Send(data) {
		r.metrics.OutboundMessages.WithLabelValues(string(typ)).Inc()
		return true
	}
	r.metrics.DroppedSends.Inc()
	return false
}

func (r *Relay) evict(ctx context.Context, conn *connection) {
	if _, ok := r.conns[conn.id]; !ok {
		return
	}
	slog.WarnContext(ctx, "Disconnecting slow peer", "evicted_connection", conn.id.String(), "role", roleLabel(conn.role))
	r.metrics.SlowPeersEvicted.Inc()
	r.removeConnection(ctx, conn, "")
}

func roleLabel(role protocol.Role) string {
	if role == protocol.RoleNone {
		return "unauthenticated"
	}
	return string(role)
}
