// Command server runs the flight desk: the dashboard HTTP API, the Telegram
// bot long-poll loop, and the daily payment-reminder sweep, all over one
// SQLite store.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vuelospro/go-flight-desk/internal/bot"
	"github.com/vuelospro/go-flight-desk/internal/config"
	"github.com/vuelospro/go-flight-desk/internal/domain"
	httpapi "github.com/vuelospro/go-flight-desk/internal/http"
	"github.com/vuelospro/go-flight-desk/internal/notify"
	"github.com/vuelospro/go-flight-desk/internal/observability"
	"github.com/vuelospro/go-flight-desk/internal/repo"
	"github.com/vuelospro/go-flight-desk/internal/services"
	"github.com/vuelospro/go-flight-desk/internal/session"
	"github.com/vuelospro/go-flight-desk/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// store adapts the repository free functions to the service interfaces.
type store struct{}

func (store) CreateRequest(ctx context.Context, db *gorm.DB, ownerChatID int64, ownerHandle, description string, travelDate *time.Time) (*domain.FlightRequest, error) {
	return repo.CreateRequest(ctx, db, ownerChatID, ownerHandle, description, travelDate)
}

func (store) GetRequest(ctx context.Context, db *gorm.DB, id uint) (*domain.FlightRequest, error) {
	return repo.GetRequest(ctx, db, id)
}

func (store) UpdateStatusFrom(ctx context.Context, db *gorm.DB, id uint, from, to domain.Status, extra map[string]any) (*domain.FlightRequest, error) {
	return repo.UpdateStatusFrom(ctx, db, id, from, to, extra)
}

func (store) DeleteRequestIfDeletable(ctx context.Context, db *gorm.DB, id uint) (*domain.FlightRequest, error) {
	return repo.DeleteRequestIfDeletable(ctx, db, id)
}

func (store) ListByStatusInWindow(ctx context.Context, db *gorm.DB, statuses []domain.Status, from, to time.Time) ([]domain.FlightRequest, error) {
	return repo.ListByStatusInWindow(ctx, db, statuses, from, to)
}

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.LogPretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
	log.Info().Str("version", version).Msg("starting flight desk")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("opentelemetry setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath, cfg.OTEL.Enabled)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram authorization failed")
	}
	log.Info().Str("bot", api.Self.UserName).Msg("telegram authorized")

	notifier := notify.NewTelegram(api, cfg.Notifier, log.With().Str("component", "notifier").Logger())
	workflow := services.NewWorkflowService(db, store{}, notifier, cfg.Telegram.OperatorChatID,
		log.With().Str("component", "workflow").Logger())

	// Chat surface.
	chatBot := bot.New(api, workflow, session.NewStore(0), bot.Options{
		OperatorChatID: cfg.Telegram.OperatorChatID,
		SupportHandle:  cfg.Telegram.SupportHandle,
		PaymentDetails: cfg.PaymentDetails,
	}, log.With().Str("component", "bot").Logger())

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = cfg.Telegram.PollTimeout
	updates := api.GetUpdatesChan(updateCfg)
	go func() {
		if err := chatBot.Run(ctx, updates); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("bot loop exited")
		}
	}()

	// Daily reminder sweep.
	if cfg.Reminder.Enabled {
		reminders := services.NewReminderService(db, store{}, notifier,
			log.With().Str("component", "reminders").Logger())
		go runReminderLoop(ctx, reminders, cfg.Reminder.Hour, log)
	}

	// Dashboard API.
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	httpapi.RegisterRoutes(router, db, notifier, cfg, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	api.StopReceivingUpdates()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("opentelemetry shutdown failed")
	}
	log.Info().Msg("stopped")
}

// runReminderLoop fires the sweep once per day at the configured UTC hour.
func runReminderLoop(ctx context.Context, reminders *services.ReminderService, hour int, log zerolog.Logger) {
	for {
		wait := untilNextHour(time.Now().UTC(), hour)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		today := time.Now().UTC()
		sent, failed, err := reminders.Run(ctx, today)
		if err != nil {
			log.Error().Err(err).Msg("reminder sweep failed")
			continue
		}
		log.Info().Int("sent", sent).Int("failed", failed).Msg("reminder sweep finished")
	}
}

// untilNextHour returns the duration from now until the next occurrence of
// the given UTC hour; if the hour already passed today, that is tomorrow.
func untilNextHour(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}
