/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stars-imagegen-bot/internal/api"
	"stars-imagegen-bot/internal/common"
	"stars-imagegen-bot/internal/config"
	"stars-imagegen-bot/internal/listener"
	"stars-imagegen-bot/internal/models"
	"stars-imagegen-bot/internal/notify"
	"stars-imagegen-bot/internal/report"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	modeFlag := flag.String("mode", "", "Override BOT_MODE (polling or webhook)")
	noReport := flag.Bool("no-report", false, "Disable the daily report even if REPORT_ENABLED is set")
	flag.Parse()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	if *modeFlag != "" {
		cfg.Bot.Mode = *modeFlag
	}
	if *noReport {
		cfg.Report.Enabled = false
	}
	if cfg.Bot.Token == "" {
		zap.L().Fatal("TELEGRAM_BOT_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zap.L().Info("Starting image generation bot", zap.String("mode", cfg.Bot.Mode))

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	packages, err := common.LoadPackages(cfg.Ledger.PackagesFile)
	if err != nil {
		zap.L().Fatal("Failed to load top-up packages", zap.Error(err))
	}

	generator, err := common.InitializeGateway(cfg.Gateway)
	if err != nil {
		zap.L().Fatal("Failed to initialize generation gateway", zap.Error(err))
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		zap.L().Fatal("Failed to connect to Telegram", zap.Error(err))
	}
	zap.L().Info("Authorized on Telegram", zap.String("bot", bot.Self.UserName))

	notifier, async := initializeNotifier(bot, cfg)

	generation := api.NewGenerationService(services.DbService, generator, notifier, cfg.Ledger.CostPerImage)
	services.LedgerService.WithInFlight(generation)

	l := listener.NewListener(listener.ListenerConfig{
		Bot:             bot,
		Ledger:          services.LedgerService,
		Generation:      generation,
		Catalog:         common.NewCatalog(packages),
		Notifier:        notifier,
		MaxReferences:   cfg.Bot.MaxReferences,
		DedupWindow:     cfg.Bot.DedupWindow,
		CleanupInterval: cfg.Bot.CleanupInterval,
	})

	var updates tgbotapi.UpdatesChannel
	var webhookListener *listener.Listener
	switch cfg.Bot.Mode {
	case "webhook":
		if err := registerWebhook(bot, cfg.Bot); err != nil {
			zap.L().Fatal("Failed to register webhook", zap.Error(err))
		}
		webhookListener = l
	default:
		if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			zap.L().Warn("Failed to delete webhook before polling", zap.Error(err))
		}
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates = bot.GetUpdatesChan(u)
	}

	router := listener.NewRouter(ctx, services.LedgerService, webhookListener, cfg.Bot.WebhookSecret)
	server := &http.Server{
		Addr:              cfg.Bot.HTTPAddr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zap.L().Info("HTTP server listening", zap.String("addr", cfg.Bot.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		l.Start(gctx, updates)
		<-gctx.Done()
		if updates != nil {
			bot.StopReceivingUpdates()
		}
		l.Stop()
		return nil
	})

	if cfg.Report.Enabled && cfg.Bot.AdminId != 0 {
		scheduler := report.NewScheduler(services.DbService, notifier, cfg.Report)
		g.Go(func() error {
			return scheduler.Run(gctx)
		})
	} else {
		zap.L().Info("Daily report disabled")
	}

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("Shutdown signal received, stopping...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("HTTP server shutdown failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		zap.L().Error("Bot stopped with error", zap.Error(err))
	}

	if async != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		async.Shutdown(shutdownCtx)
		cancel()
	}
	zap.L().Info("Bot stopped")
}

// initializeNotifier returns the operator channel. Without ADMIN_ID all
// notifications are discarded.
func initializeNotifier(bot *tgbotapi.BotAPI, cfg *models.Config) (notify.Notifier, *notify.Async) {
	if cfg.Bot.AdminId == 0 {
		zap.L().Warn("ADMIN_ID not set, operator notifications disabled")
		return notify.Nop{}, nil
	}

	async := notify.NewAsync(notify.NewTelegram(bot, cfg.Bot.AdminId), cfg.Notify.QueueSize, cfg.Notify.Rate)
	async.Start(cfg.Notify.Workers)
	zap.L().Info("Operator notifications enabled",
		zap.Int64("admin_id", cfg.Bot.AdminId),
		zap.Int("queue_size", cfg.Notify.QueueSize),
		zap.Float64("rate", cfg.Notify.Rate))
	return async, async
}

// registerWebhook points Telegram at WEBHOOK_URL/telegram/<secret>.
func registerWebhook(bot *tgbotapi.BotAPI, cfg models.BotConfig) error {
	if cfg.WebhookURL == "" || cfg.WebhookSecret == "" {
		return errors.New("WEBHOOK_URL and WEBHOOK_SECRET are required in webhook mode")
	}

	link := strings.TrimRight(cfg.WebhookURL, "/") + "/telegram/" + cfg.WebhookSecret
	wh, err := tgbotapi.NewWebhook(link)
	if err != nil {
		return err
	}
	if _, err := bot.Request(wh); err != nil {
		return err
	}
	zap.L().Info("Webhook registered", zap.String("url", strings.TrimRight(cfg.WebhookURL, "/")+"/telegram/***"))
	return nil
}
