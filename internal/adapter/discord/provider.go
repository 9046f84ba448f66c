// Package discord reads the bot's reach from a discordgo gateway session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/premiumeclipse/essencefurro/internal/botlink"
)

// ErrNotReady is returned until the gateway has delivered its READY event.
var ErrNotReady = errors.New("discord session not ready")

// Provider implements botlink.StatsProvider from the session's guild cache.
type Provider struct {
	session *discordgo.Session
	state   *discordgo.State
	latency func() time.Duration
	ready   atomic.Bool
}

// Open starts a gateway session with the guild intents the stats need.
func Open(token string) (*Provider, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds
	session.StateEnabled = true

	p := &Provider{session: session, state: session.State, latency: session.HeartbeatLatency}
	session.AddHandler(p.onReady)
	session.AddHandler(func(*discordgo.Session, *discordgo.Disconnect) {
		slog.Warn("Discord gateway disconnected")
	})

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("failed to open discord gateway: %w", err)
	}
	return p, nil
}

func (p *Provider) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	p.ready.Store(true)
	slog.Info("Discord gateway ready", "user", r.User.Username, "guilds", len(r.Guilds))
}

// Snapshot counts cached guilds and their approximate member totals.
func (p *Provider) Snapshot(context.Context) (botlink.Snapshot, error) {
	if !p.ready.Load() {
		return botlink.Snapshot{}, ErrNotReady
	}

	p.state.RLock()
	defer p.state.RUnlock()

	snap := botlink.Snapshot{Latency: p.latency()}
	for _, g := range p.state.Guilds {
		if g.Unavailable {
			continue
		}
		snap.Servers++
		snap.Members += int64(g.MemberCount)
	}
	return snap, nil
}

func (p *Provider) Close() error {
	if p.session == nil {
		return nil
	}
	if err := p.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	return nil
}
