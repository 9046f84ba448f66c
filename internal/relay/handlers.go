package relay

import (
	"cmp"
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"slices"

	"github.com/premiumeclipse/essencefurro/internal/domain"
	"github.com/premiumeclipse/essencefurro/internal/platform/correlation"
	"github.com/premiumeclipse/essencefurro/internal/protocol"
)

const authErrorMessage = "Invalid credentials"

// Inbound outcome labels.
const (
	outcomeOK           = "ok"
	outcomeMalformed    = "malformed"
	outcomeInvalid      = "invalid"
	outcomeUnauthorized = "unauthorized"
	outcomeAuthFailed   = "auth_failed"
	outcomePanic        = "panic"
)

func (r *Relay) handleDeliver(c deliverCmd) {
	conn, ok := r.conns[c.connID]
	if !ok {
		return
	}

	ctx := correlation.WithID(context.Background(), correlation.NewID())
	ctx = correlation.WithConnection(ctx, conn.id.String())

	if r.guard(ctx, "deliver", func() { r.dispatch(ctx, conn, c.raw) }) {
		r.metrics.InboundMessages.WithLabelValues("unknown", outcomePanic).Inc()
	}
}

// dispatch parses, authorizes, validates and routes one frame. Frames that
// cannot be parsed get an error reply; frames the connection's role may not
// send are ignored without a reply.
func (r *Relay) dispatch(ctx context.Context, conn *connection, raw []byte) {
	typ, err := protocol.PeekType(raw)
	if err != nil {
		r.metrics.InboundMessages.WithLabelValues("unknown", outcomeMalformed).Inc()
		slog.DebugContext(ctx, "Malformed frame", "error", err)
		r.send(ctx, conn, protocol.NewError(err.Error()))
		return
	}

	if !r.authorized(conn, typ) {
		r.metrics.InboundMessages.WithLabelValues(string(typ), outcomeUnauthorized).Inc()
		slog.DebugContext(ctx, "Ignoring message not allowed for role", "type", typ, "role", roleLabel(conn.role))
		return
	}

	msg, err := protocol.DecodeInbound(typ, raw)
	if err != nil {
		r.metrics.InboundMessages.WithLabelValues(string(typ), outcomeInvalid).Inc()
		slog.DebugContext(ctx, "Invalid message", "type", typ, "error", err)
		r.send(ctx, conn, protocol.NewError(err.Error()))
		return
	}

	outcome := outcomeOK
	switch m := msg.(type) {
	case *protocol.Auth:
		if !r.authenticate(ctx, conn, m) {
			outcome = outcomeAuthFailed
		}
	case *protocol.BotStats:
		r.reportBotStats(ctx, m)
	case *protocol.Heartbeat:
		r.heartbeat(ctx, conn, m)
	case *protocol.UserUpdate:
		r.updateUserSession(ctx, conn, m)
	case *protocol.RunCommand:
		r.runCommand(ctx, conn, m)
	case *protocol.CommandResponse:
		r.deliverCommandResult(ctx, m)
	default:
		panic(errors.New("relay: unhandled message " + string(typ)))
	}
	r.metrics.InboundMessages.WithLabelValues(string(typ), outcome).Inc()
}

// authorized reports whether conn may send typ. Auth is only accepted from
// unauthenticated connections.
func (r *Relay) authorized(conn *connection, typ protocol.MessageType) bool {
	required, _ := protocol.RequiredRole(typ)
	if typ == protocol.TypeAuth {
		return conn.role == protocol.RoleNone
	}
	return conn.role == required
}

func (r *Relay) authenticate(ctx context.Context, conn *connection, m *protocol.Auth) bool {
	now := r.clock.Now()

	switch {
	case m.IsBot && r.validBotToken(m.Token):
		r.promote(conn, protocol.RoleBot)
		r.authSeq++
		conn.authSeq = r.authSeq

		r.status.LastHeartbeat = now
		wasOnline := r.status.IsOnline
		r.setOnline(true)

		slog.InfoContext(ctx, "Bot authenticated", "bots", r.botCount(), "was_online", wasOnline)
		r.send(ctx, conn, protocol.NewAuthSuccess(protocol.RoleBot))
		r.broadcastDashboards(ctx, protocol.NewBotStatus(protocol.BotConnected), nil)
		return true

	case m.UserID != "" && m.Username != "":
		r.promote(conn, protocol.RoleDashboard)
		conn.userID = m.UserID
		conn.username = m.Username

		sess, ok := r.sessions[m.UserID]
		if !ok {
			sess = &domain.UserSession{UserID: m.UserID}
			r.sessions[m.UserID] = sess
		}
		sess.Username = m.Username
		sess.Status = domain.UserStatusOnline
		sess.LastActive = now

		slog.InfoContext(ctx, "Dashboard user authenticated", "user_id", m.UserID, "username", m.Username)
		r.send(ctx, conn, protocol.NewAuthSuccess(protocol.RoleDashboard))
		r.send(ctx, conn, protocol.NewBotStatus(r.currentBotState()))
		return true

	default:
		slog.InfoContext(ctx, "Authentication failed", "is_bot", m.IsBot)
		r.send(ctx, conn, protocol.NewAuthError(authErrorMessage))
		return false
	}
}

func (r *Relay) validBotToken(token string) bool {
	if len(r.botSecret) == 0 || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), r.botSecret) == 1
}

func (r *Relay) promote(conn *connection, role protocol.Role) {
	r.metrics.Connections.WithLabelValues(roleLabel(conn.role)).Dec()
	conn.role = role
	r.metrics.Connections.WithLabelValues(roleLabel(role)).Inc()
}

func (r *Relay) currentBotState() protocol.BotState {
	if r.status.IsOnline && !r.isStale() {
		return protocol.BotConnected
	}
	return protocol.BotDisconnected
}

// touchBot refreshes the heartbeat and brings a bot demoted by the liveness
// sweep back online.
func (r *Relay) touchBot(ctx context.Context) {
	r.status.LastHeartbeat = r.clock.Now()
	if r.status.IsOnline {
		return
	}
	r.setOnline(true)
	slog.InfoContext(ctx, "Bot back online after stale heartbeat")
	r.broadcastDashboards(ctx, protocol.NewBotStatus(protocol.BotConnected), nil)
}

func (r *Relay) reportBotStats(ctx context.Context, m *protocol.BotStats) {
	m.Stats.Apply(&r.status)
	r.touchBot(ctx)
	r.broadcastDashboards(ctx, protocol.NewBotStatsUpdate(r.status), nil)
}

func (r *Relay) heartbeat(ctx context.Context, conn *connection, m *protocol.Heartbeat) {
	r.status.Uptime = *m.Uptime
	r.touchBot(ctx)
	r.send(ctx, conn, protocol.NewHeartbeatAck(r.clock.Now().UnixMilli()))
}

func (r *Relay) updateUserSession(ctx context.Context, conn *connection, m *protocol.UserUpdate) {
	sess, ok := r.sessions[conn.userID]
	if !ok {
		sess = &domain.UserSession{UserID: conn.userID, Username: conn.username, Status: domain.UserStatusOnline}
		r.sessions[conn.userID] = sess
	}
	m.User.Apply(sess)
	sess.LastActive = r.clock.Now()
	conn.username = sess.Username

	if bot := r.currentBot(); bot != nil {
		r.send(ctx, bot, protocol.NewUserUpdated(sess.Clone()))
	}
}

// runCommand forwards the command to the bot when one is connected and
// always acknowledges the requester exactly once.
func (r *Relay) runCommand(ctx context.Context, conn *connection, m *protocol.RunCommand) {
	if bot := r.currentBot(); bot != nil {
		r.send(ctx, bot, protocol.NewCommandRequest(m, conn.userID, conn.username))
	} else {
		slog.DebugContext(ctx, "No bot connected, command not forwarded", "request_id", m.RequestID)
	}
	r.send(ctx, conn, protocol.NewCommandReceived(m.RequestID))
}

// deliverCommandResult fans the result out to every dashboard connection of
// the requesting user. Clients match it to their request by requestId.
func (r *Relay) deliverCommandResult(ctx context.Context, m *protocol.CommandResponse) {
	delivered := r.broadcastDashboards(ctx, protocol.NewCommandResult(m), func(c *connection) bool {
		return c.userID == m.UserID
	})
	if delivered == 0 {
		slog.DebugContext(ctx, "Dropping command result with no recipient", "user_id", m.UserID, "request_id", m.RequestID)
	}
}

func (r *Relay) activeSessions() []domain.UserSession {
	users := make([]domain.UserSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.Status != domain.UserStatusOffline {
			users = append(users, s.Clone())
		}
	}
	slices.SortFunc(users, func(a, b domain.UserSession) int {
		if c := b.LastActive.Compare(a.LastActive); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	return users
}
