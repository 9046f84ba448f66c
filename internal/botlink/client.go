// Package botlink is the bot side of the relay protocol. A Client holds one
// authenticated WebSocket connection to the relay, reports stats and
// liveness on a schedule and answers command requests forwarded from
// dashboard users.
package botlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/premiumeclipse/essencefurro/internal/domain"
	"github.com/premiumeclipse/essencefurro/internal/platform/retry"
	"github.com/premiumeclipse/essencefurro/internal/platform/version"
	"github.com/premiumeclipse/essencefurro/internal/protocol"
)

const (
	serviceName = "essence-botlink"

	defaultHeartbeatInterval = 10 * time.Second
	defaultStatsInterval     = 30 * time.Second
	defaultAuthTimeout       = 10 * time.Second
	writeTimeout             = 5 * time.Second
)

// ErrAuthRejected means the relay answered auth with auth_error. It is not retried.
var ErrAuthRejected = errors.New("relay rejected bot credentials")

// Snapshot is what a StatsProvider knows about the bot's reach.
type Snapshot struct {
	Servers int64
	Members int64
	Latency time.Duration
}

type StatsProvider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

type Options struct {
	URL   string
	Token string
	Stats StatsProvider
	Clock clockwork.Clock

	HeartbeatInterval time.Duration
	StatsInterval     time.Duration
	AuthTimeout       time.Duration

	// Reconnect defaults to 5 attempts with linearly growing 5s waits.
	Reconnect retry.Policy
	Dialer    *websocket.Dialer
}

type Client struct {
	opts     Options
	clock    clockwork.Clock
	handlers map[string]CommandHandler
	start    time.Time

	commandsProcessed atomic.Int64
}

func New(opts Options) *Client {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = defaultStatsInterval
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = defaultAuthTimeout
	}
	if opts.Reconnect.MaxAttempts <= 0 {
		opts.Reconnect = retry.Policy{
			MaxAttempts:    5,
			InitialBackoff: 5 * time.Second,
			Growth:         retry.Linear,
		}
	}
	if opts.Reconnect.Clock == nil {
		opts.Reconnect.Clock = opts.Clock
	}
	if opts.Reconnect.OnRetry == nil {
		opts.Reconnect.OnRetry = func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Relay connection attempt failed", "attempt", attempt, "error", err, "backoff", backoff)
		}
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}

	c := &Client{
		opts:     opts,
		clock:    opts.Clock,
		handlers: make(map[string]CommandHandler),
		start:    opts.Clock.Now(),
	}
	c.registerBuiltins()
	return c
}

// Handle registers h for command name, replacing any earlier handler. It
// must be called before Run.
func (c *Client) Handle(name string, h CommandHandler) {
	c.handlers[name] = h
}

// CommandsProcessed is the number of command requests answered so far.
func (c *Client) CommandsProcessed() int64 {
	return c.commandsProcessed.Load()
}

func (c *Client) uptime() int64 {
	return int64(c.clock.Since(c.start) / time.Second)
}

// Run connects and serves until ctx is cancelled. A lost connection is
// re-established under the reconnect policy; Run returns an error once
// that policy is exhausted or the relay rejects the credentials.
func (c *Client) Run(ctx context.Context) error {
	for {
		conn, err := retry.Do(ctx, c.opts.Reconnect, classifyConnectError, func() (*websocket.Conn, error) {
			return c.connect(ctx)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to connect to relay: %w", err)
		}

		slog.Info("Connected to relay", "url", c.opts.URL)
		err = c.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("Relay connection lost, reconnecting", "error", err)
	}
}

func classifyConnectError(err error) retry.Action {
	if errors.Is(err, ErrAuthRejected) {
		return retry.Stop
	}
	return retry.Retry
}

// connect dials the relay and completes the auth handshake.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent(serviceName))

	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay: %w", err)
	}

	if err := c.authenticate(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Client) authenticate(conn *websocket.Conn) error {
	if err := c.write(conn, protocol.NewAuthBot(c.opts.Token)); err != nil {
		return fmt.Errorf("failed to send auth: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.opts.AuthTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed waiting for auth reply: %w", err)
		}

		typ, err := protocol.Type(raw)
		if err != nil {
			return err
		}

		switch typ {
		case protocol.TypeAuthSuccess:
			return nil
		case protocol.TypeAuthError:
			var m protocol.AuthError
			if err := protocol.Decode(raw, &m, protocol.TypeAuthError); err != nil {
				return err
			}
			return fmt.Errorf("%w: %s", ErrAuthRejected, m.Message)
		default:
			slog.Debug("Ignoring frame before auth reply", "type", typ)
		}
	}
}

// serve runs one authenticated session. All writes happen on this goroutine;
// a reader goroutine only hands frames over.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	defer func() { _ = conn.Close() }()

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- raw:
			case <-done:
				return
			}
		}
	}()

	heartbeat := c.clock.NewTicker(c.opts.HeartbeatInterval)
	defer heartbeat.Stop()
	stats := c.clock.NewTicker(c.opts.StatsInterval)
	defer stats.Stop()

	if err := c.sendStats(ctx, conn); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bot shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
			return ctx.Err()

		case <-heartbeat.Chan():
			if err := c.write(conn, protocol.NewHeartbeat(c.uptime())); err != nil {
				return fmt.Errorf("failed to send heartbeat: %w", err)
			}

		case <-stats.Chan():
			if err := c.sendStats(ctx, conn); err != nil {
				return err
			}

		case raw := <-frames:
			if err := c.handleFrame(ctx, conn, raw); err != nil {
				return err
			}

		case err := <-readErr:
			return fmt.Errorf("relay read failed: %w", err)
		}
	}
}

func (c *Client) handleFrame(ctx context.Context, conn *websocket.Conn, raw []byte) error {
	typ, err := protocol.Type(raw)
	if err != nil {
		slog.Warn("Ignoring unreadable frame from relay", "error", err)
		return nil
	}

	switch typ {
	case protocol.TypeCommandRequest:
		var req protocol.CommandRequest
		if err := protocol.Decode(raw, &req, protocol.TypeCommandRequest); err != nil {
			slog.Warn("Ignoring bad command request", "error", err)
			return nil
		}
		return c.answer(ctx, conn, &req)

	case protocol.TypeUserUpdated:
		var m protocol.UserUpdated
		if err := protocol.Decode(raw, &m, protocol.TypeUserUpdated); err == nil {
			slog.Debug("Dashboard user updated", "user_id", m.User.UserID, "status", m.User.Status)
		}

	case protocol.TypeError:
		var m protocol.ErrorMessage
		if err := protocol.Decode(raw, &m, protocol.TypeError); err == nil {
			slog.Warn("Relay reported an error", "message", m.Message)
		}

	case protocol.TypeHeartbeatAck:
	default:
		slog.Debug("Ignoring relay frame", "type", typ)
	}
	return nil
}

// answer runs the command, replies to the requester and reports the new
// command count.
func (c *Client) answer(ctx context.Context, conn *websocket.Conn, req *protocol.CommandRequest) error {
	slog.Info("Command request", "command", req.Command, "user_id", req.UserID, "request_id", req.RequestID)

	result, errText := c.execute(ctx, req)
	c.commandsProcessed.Add(1)

	if err := c.sendStats(ctx, conn); err != nil {
		return err
	}
	if err := c.write(conn, protocol.NewCommandResponse(req.UserID, req.RequestID, result, errText)); err != nil {
		return fmt.Errorf("failed to send command response: %w", err)
	}
	return nil
}

func (c *Client) sendStats(ctx context.Context, conn *websocket.Conn) error {
	uptime := c.uptime()
	processed := c.commandsProcessed.Load()
	patch := domain.BotStatsPatch{Uptime: &uptime, CommandsProcessed: &processed}

	if c.opts.Stats != nil {
		snap, err := c.opts.Stats.Snapshot(ctx)
		if err != nil {
			slog.Warn("Failed to read bot stats, sending counters only", "error", err)
		} else {
			patch.ConnectedServers = &snap.Servers
			patch.ActiveUsers = &snap.Members
		}
	}

	if err := c.write(conn, protocol.NewBotStats(patch)); err != nil {
		return fmt.Errorf("failed to send bot stats: %w", err)
	}
	return nil
}

// write sends one frame. Socket deadlines are wall-clock, so they do not use c.clock.
func (c *Client) write(conn *websocket.Conn, m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}
