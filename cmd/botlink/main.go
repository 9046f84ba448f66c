package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/premiumeclipse/essencefurro/internal/adapter/discord"
	"github.com/premiumeclipse/essencefurro/internal/botlink"
	"github.com/premiumeclipse/essencefurro/internal/platform/config"
	"github.com/premiumeclipse/essencefurro/internal/platform/logging"
)

func main() {
	cfg, err := config.LoadBotLink()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	provider, err := discord.Open(cfg.DiscordToken)
	if err != nil {
		slog.Error("Failed to start Discord session", "error", err)
		os.Exit(1)
	}
	defer func() { _ = provider.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := botlink.New(botlink.Options{
		URL:   cfg.RelayURL,
		Token: cfg.BotSecretToken,
		Stats: provider,
	})

	slog.Info("Bot link starting", "relay", cfg.RelayURL)
	if err := client.Run(ctx); err != nil {
		slog.Error("Bot link stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("Bot link stopped", "commands_processed", client.CommandsProcessed())
}
