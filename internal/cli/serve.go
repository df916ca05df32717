package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"newsroom-ledger/internal/api"
	"newsroom-ledger/internal/health"
	"newsroom-ledger/internal/ledger"
	"newsroom-ledger/internal/scheduler"
	"newsroom-ledger/internal/telegram"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, Telegram bot and scheduler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	slog.Info("Starting ledger-service", "pid", os.Getpid())
	slog.Info("Configuration loaded",
		"db_driver", cfg.DBDriver,
		"http_addr", cfg.HTTPAddr,
		"health_addr", cfg.HealthAddr,
		"timezone", cfg.Location.String(),
		"has_super_admin", cfg.SuperAdminID != "",
		"has_bot_token", cfg.BotToken != "",
	)

	auth, err := api.NewAuthenticator(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("JWT_SECRET: %w", err)
	}

	repo, svc, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	// Настраиваем graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Бот необязателен: без токена отчёты только пишутся в лог
	var notifier ledger.Notifier
	var bot *telegram.Service
	if cfg.BotToken != "" {
		bot, err = telegram.New(cfg, repo, svc)
		if err != nil {
			slog.Error("Failed to create Telegram service", "error", err)
			slog.Warn("Continuing without Telegram bot")
		} else {
			notifier = bot
			svc.SetNotifier(bot)
			slog.Info("Telegram service created successfully")
		}
	}

	sched := scheduler.NewScheduler(svc, notifier, cfg)
	if err := sched.Start(); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		slog.Warn("Continuing without scheduler")
	} else {
		defer func() {
			slog.Info("Stopping scheduler")
			sched.Stop()
		}()
	}

	healthServer := health.NewServer(cfg.HealthAddr, repo)
	go func() {
		if err := healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Health server failed", "error", err)
		}
	}()
	defer func() {
		slog.Info("Stopping health server")
		if err := healthServer.Stop(); err != nil {
			slog.Error("Failed to stop health server", "error", err)
		}
	}()

	apiServer := api.NewServer(cfg.HTTPAddr, svc, auth, cfg.CORSOrigins)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server failed", "error", err)
			cancel()
		}
	}()
	defer func() {
		slog.Info("Stopping API server")
		if err := apiServer.Stop(); err != nil {
			slog.Error("Failed to stop API server", "error", err)
		}
	}()

	if bot != nil {
		slog.Info("Starting Telegram bot...")
		go func() {
			if err := bot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Telegram bot failed", "error", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("Shutdown signal received")
	return nil
}
