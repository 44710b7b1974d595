package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nonstoperxd/Bor/internal/adapters/bot"
	"github.com/nonstoperxd/Bor/internal/adapters/portal"
	"github.com/nonstoperxd/Bor/internal/infra/config"
	apphttp "github.com/nonstoperxd/Bor/internal/infra/http"
	applog "github.com/nonstoperxd/Bor/internal/infra/log"
	"github.com/nonstoperxd/Bor/internal/infra/metrics"
	"github.com/nonstoperxd/Bor/internal/usecase/dedup"
	"github.com/nonstoperxd/Bor/internal/usecase/monitor"
	"github.com/nonstoperxd/Bor/internal/usecase/session"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Portal.Email == "" || cfg.Portal.Password == "" {
		logger.Fatal().Msg("bor: не указаны учётные данные портала (WEBSITE_EMAIL/WEBSITE_PASSWORD)")
	}
	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("bor: не указан токен бота (TELEGRAM_BOT_TOKEN)")
	}
	if cfg.Telegram.ChatID == 0 {
		logger.Fatal().Msg("bor: не указан чат назначения (TELEGRAM_CHAT_ID)")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("bor: не удалось создать бота")
	}
	logger.Info().Str("bot", botAPI.Self.UserName).Msg("bor: бот инициализирован")

	portalClient, err := portal.NewClient(portal.Config{
		LoginURL:   cfg.Portal.LoginURL,
		LiveSMSURL: cfg.Portal.LiveSMSURL,
		Email:      cfg.Portal.Email,
		Password:   cfg.Portal.Password,
		Timeout:    cfg.Portal.Timeout,
	}, logger.With().Str("component", "portal").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("bor: не удалось создать клиент портала")
	}

	notifier := bot.NewNotifier(botAPI, cfg.Telegram.ChatID, logger.With().Str("component", "bot").Logger())
	commands := bot.NewHandler(botAPI, logger.With().Str("component", "bot").Logger())
	seen := dedup.NewSeenSet()
	sessions := session.NewMonitor(cfg.Monitor.SessionTTL)

	pump := monitor.NewService(portalClient, notifier, seen, sessions, monitor.Config{
		PollInterval:     cfg.Monitor.PollInterval,
		LoginRetries:     cfg.Monitor.LoginRetries,
		LoginBaseDelay:   cfg.Monitor.LoginBaseDelay,
		FailureThreshold: cfg.Monitor.FailureThreshold,
		FailureCooldown:  cfg.Monitor.FailureCooldown,
		DispatchWorkers:  cfg.Monitor.DispatchWorkers,
	}, logger.With().Str("component", "monitor").Logger())

	httpSrv := apphttp.NewServer(logger.With().Str("component", "http").Logger())
	go func() {
		if err := httpSrv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("bor: HTTP сервер остановлен")
		}
	}()

	if err := notifier.SendStatus(ctx, "🚀 Bot started and initializing..."); err != nil {
		logger.Error().Err(err).Msg("bor: не удалось отправить стартовый статус")
	}

	// Первичный логин. При неудаче насос сам повторит протокол авторизации.
	switch err := portalClient.Login(ctx); {
	case err != nil:
		logger.Error().Err(err).Msg("bor: первичный логин не удался")
		_ = notifier.SendStatus(ctx, "❌ Failed to login to website")
	default:
		if err := portalClient.OpenLiveSMS(ctx); err != nil {
			logger.Error().Err(err).Msg("bor: не удалось открыть страницу Live SMS")
			_ = notifier.SendStatus(ctx, "❌ Failed to navigate to live SMS page")
		} else {
			sessions.MarkAuthenticated()
			_ = notifier.SendStatus(ctx, "✅ Successfully logged in and monitoring live SMS")
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		commands.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		pump.Run(ctx)
	}()

	<-ctx.Done()
	logger.Info().Msg("bor: остановка")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := notifier.SendStatus(shutdownCtx, "🛑 Bot is shutting down..."); err != nil {
		logger.Error().Err(err).Msg("bor: не удалось отправить статус завершения")
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("bor: ошибка остановки HTTP сервера")
	}
	if err := portalClient.Close(); err != nil {
		logger.Error().Err(err).Msg("bor: ошибка освобождения клиента портала")
	}
	logger.Info().Msg("bor: завершено")
}
