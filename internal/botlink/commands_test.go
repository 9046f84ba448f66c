package botlink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/premiumeclipse/essencefurro/internal/protocol"
	"github.com/stretchr/testify/assert"
)

func newTestClient(stats StatsProvider) (*Client, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return New(Options{URL: "ws://unused", Token: testSecret, Stats: stats, Clock: clock}), clock
}

func command(name string) *protocol.CommandRequest {
	return &protocol.CommandRequest{Command: name, UserID: "u1", RequestID: "r1"}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{time.Hour, "1h"},
		{90 * time.Minute, "1h 30m"},
		{26*time.Hour + 3*time.Second, "1d 2h 3s"},
		{1500 * time.Millisecond, "1s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatUptime(tt.in), tt.in.String())
	}
}

func TestExecute_Help(t *testing.T) {
	c, _ := newTestClient(nil)
	c.Handle("dashboard", func(context.Context, *protocol.CommandRequest) (string, error) {
		return "https://essence.example.com", nil
	})

	result, errText := c.execute(context.Background(), command("help"))

	assert.Empty(t, errText)
	assert.Equal(t, "Available commands: dashboard, help, ping, stats", result)
}

func TestExecute_Stats(t *testing.T) {
	c, clock := newTestClient(&fakeStats{snap: Snapshot{Servers: 4, Members: 900}})
	clock.Advance(61 * time.Minute)

	result, errText := c.execute(context.Background(), command("stats"))

	assert.Empty(t, errText)
	assert.Equal(t, "Bot Stats:\nServers: 4\nMembers: 900\nUptime: 1h 1m", result)
}

func TestExecute_PingWithoutProvider(t *testing.T) {
	c, _ := newTestClient(nil)

	result, errText := c.execute(context.Background(), command("ping"))

	assert.Empty(t, errText)
	assert.Equal(t, "Pong!", result)
}

func TestExecute_HandlerError(t *testing.T) {
	c, _ := newTestClient(&fakeStats{err: errors.New("gateway closed")})

	result, errText := c.execute(context.Background(), command("ping"))

	assert.Empty(t, result)
	assert.Contains(t, errText, "gateway closed")
}

func TestExecute_HandlerPanicIsReportedAsFailure(t *testing.T) {
	c, _ := newTestClient(nil)
	c.Handle("explode", func(context.Context, *protocol.CommandRequest) (string, error) {
		panic("boom")
	})

	result, errText := c.execute(context.Background(), command("explode"))

	assert.Empty(t, result)
	assert.Equal(t, "Command failed", errText)
}

func TestExecute_UnknownCommand(t *testing.T) {
	c, _ := newTestClient(nil)

	result, errText := c.execute(context.Background(), command("nope"))

	assert.Equal(t, "Unknown command: nope", result)
	assert.Equal(t, unknownCommandError, errText)
}

func TestUptime_WholeSeconds(t *testing.T) {
	c, clock := newTestClient(nil)
	clock.Advance(2500 * time.Millisecond)

	assert.Equal(t, int64(2), c.uptime())
}
