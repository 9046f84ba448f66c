package botlink

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/premiumeclipse/essencefurro/internal/protocol"
)

const unknownCommandError = "Command not recognized"

// CommandHandler answers one forwarded command. A returned error is sent
// back to the dashboard as a failed result.
type CommandHandler func(ctx context.Context, req *protocol.CommandRequest) (string, error)

func (c *Client) registerBuiltins() {
	c.Handle("ping", c.ping)
	c.Handle("help", c.help)
	c.Handle("stats", c.stats)
}

// execute returns the result text and, for failures, the error text.
func (c *Client) execute(ctx context.Context, req *protocol.CommandRequest) (result, errText string) {
	h, ok := c.handlers[req.Command]
	if !ok {
		return "Unknown command: " + req.Command, unknownCommandError
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Command handler panic recovered", "command", req.Command, "panic", rec, "stack", string(debug.Stack()))
			result, errText = "", "Command failed"
		}
	}()

	out, err := h(ctx, req)
	if err != nil {
		return "", err.Error()
	}
	return out, ""
}

func (c *Client) ping(ctx context.Context, _ *protocol.CommandRequest) (string, error) {
	if c.opts.Stats == nil {
		return "Pong!", nil
	}
	snap, err := c.opts.Stats.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("latency unavailable: %w", err)
	}
	return fmt.Sprintf("Pong! Bot latency: %dms", snap.Latency.Milliseconds()), nil
}

func (c *Client) help(context.Context, *protocol.CommandRequest) (string, error) {
	names := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return "Available commands: " + strings.Join(names, ", "), nil
}

func (c *Client) stats(ctx context.Context, _ *protocol.CommandRequest) (string, error) {
	var snap Snapshot
	if c.opts.Stats != nil {
		var err error
		if snap, err = c.opts.Stats.Snapshot(ctx); err != nil {
			return "", fmt.Errorf("stats unavailable: %w", err)
		}
	}
	return fmt.Sprintf("Bot Stats:\nServers: %d\nMembers: %d\nUptime: %s",
		snap.Servers, snap.Members, formatUptime(c.clock.Since(c.start))), nil
}

// formatUptime renders d as "1d 2h 3m 4s", omitting zero units.
func formatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	units := []struct {
		suffix string
		size   int64
	}{
		{"d", 86400},
		{"h", 3600},
		{"m", 60},
	}

	var parts []string
	for _, u := range units {
		if n := secs / u.size; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
			secs %= u.size
		}
	}
	if secs > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}
	return strings.Join(parts, " ")
}
