// Package app connects the infrastructure and builds every service from a
// Config. Both the API server and the admin CLI start here.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"msgflow/backend/internal/chatflow"
	"msgflow/backend/internal/config"
	"msgflow/backend/internal/email"
	"msgflow/backend/internal/events"
	"msgflow/backend/internal/gateway"
	"msgflow/backend/internal/localization"
	"msgflow/backend/internal/messaging"
	"msgflow/backend/internal/notify"
	"msgflow/backend/internal/schedule"
	"msgflow/backend/internal/scheduler"
	"msgflow/backend/internal/storage"
	"msgflow/backend/internal/templates"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type App struct {
	Config    *config.Config
	Storage   *storage.Service
	Templates *templates.Store
	Messaging *messaging.Service
	Flows     *chatflow.FlowService
	Engine    *chatflow.Engine
	Schedule  *schedule.Service
	Sweep     *scheduler.Scheduler
	Email     *email.Service
	Hub       *events.Hub
	// OpsBot is nil unless Telegram is configured.
	OpsBot *notify.Bot

	closers []func()
}

// Connect opens PostgreSQL and, when configured, Redis, then migrates the
// schema.
func Connect(ctx context.Context, cfg *config.Config) (*gorm.DB, *redis.Client, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Address, err)
		}
	} else {
		slog.Warn("REDIS_ADDR not set: conversation locks and live events are local only")
	}

	if err := storage.NewStorageService(db, rdb).Migrate(); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Info("database ready", slog.Bool("redis", rdb != nil))
	return db, rdb, nil
}

// New builds the services on top of an open database.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*App, error) {
	a := &App{Config: cfg, Storage: storage.NewStorageService(db, rdb)}
	if rdb != nil {
		a.closers = append(a.closers, func() { rdb.Close() })
	}

	texts, err := localization.NewLocalizer(cfg.Server.LocalesDir)
	if err != nil {
		return nil, fmt.Errorf("load reply texts: %w", err)
	}

	gw := gateway.NewTwilio(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.WhatsAppNumber, cfg.Twilio.SMSNumber)
	a.Templates = templates.NewStore(a.Storage)
	a.Messaging = messaging.NewService(gw, a.Templates, a.Storage, cfg.Twilio.WhatsAppNumber, cfg.Twilio.SMSNumber)
	a.Flows = chatflow.NewFlowService(a.Storage)
	a.Engine = chatflow.NewEngine(a.Storage, a.Messaging, a.Templates, texts)

	var (
		notifier schedule.Notifier = notify.Noop{}
		bot      *tgbotapi.BotAPI
	)
	if cfg.Telegram.Enabled {
		if bot, err = notify.Connect(cfg.Telegram.BotToken); err != nil {
			return nil, err
		}
		notifier = notify.NewTelegram(bot, cfg.Telegram.AlertChatID)
	}

	a.Schedule = schedule.NewService(a.Storage, a.Messaging, notifier, schedule.RetryPolicy{
		MaxAttempts: cfg.Sweep.MaxAttempts,
		Base:        cfg.Sweep.BackoffBase,
		Max:         cfg.Sweep.BackoffMax,
	}, cfg.Sweep.BatchSize)
	if bot != nil {
		a.OpsBot = notify.NewBot(bot, cfg.Telegram.AlertChatID, a.Schedule)
	}

	a.Sweep, err = scheduler.New("scheduled-messages", cfg.Sweep.Interval, a.Schedule.Tick)
	if err != nil {
		return nil, err
	}

	if cfg.SMTP.Enabled {
		pool, err := email.NewPool(cfg.SMTP)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { pool.Close() })
		a.Email = email.NewService(pool, a.Templates, a.Storage, cfg.SMTP.From)
	} else {
		a.Email = email.NewService(nil, a.Templates, a.Storage, "")
	}

	a.Hub = events.NewHub()
	return a, nil
}

// Close stops the sweep and releases connections.
func (a *App) Close() {
	if a.Sweep != nil {
		a.Sweep.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
