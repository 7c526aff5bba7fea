package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"msgflow/backend/internal/api/handler"
	"msgflow/backend/internal/app"
	"msgflow/backend/internal/config"
	"msgflow/backend/internal/gateway"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	slog.Info("starting msgflow backend")

	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded", slog.String("error", err.Error()))
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, rdb, err := app.Connect(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	a, err := app.New(cfg, db, rdb)
	if err != nil {
		slog.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	go a.Hub.Run(ctx)
	go a.Hub.Listen(ctx, a.Storage.SubscribeEvents(ctx))
	if a.OpsBot != nil {
		go a.OpsBot.Run(ctx)
	}
	if cfg.Sweep.Autostart {
		a.Sweep.Start()
	}

	gin.SetMode(gin.ReleaseMode)
	h := &handler.Handler{
		Flows:         a.Flows,
		Conversations: a.Engine,
		Schedules:     a.Schedule,
		Sweep:         a.Sweep,
		Messages:      a.Messaging,
		Templates:     a.Templates,
		Mail:          a.Email,
		Events:        a.Hub,
		Auth: handler.Auth{
			JWTSecret: []byte(cfg.Auth.JWTSecret),
			APIKey:    cfg.Auth.APIKey,
			TokenTTL:  config.TokenTTL,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		WebhookURL:     cfg.Twilio.WebhookURL,
	}
	if cfg.Twilio.VerifyWebhook {
		h.Webhook = gateway.NewWebhookValidator(cfg.Twilio.AuthToken)
	} else {
		slog.Warn("TWILIO_VERIFY_WEBHOOK=false: inbound webhook accepts unsigned requests")
	}

	server := &http.Server{
		Addr:           cfg.Server.Address,
		Handler:        handler.Router(h),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		slog.Info("http server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", slog.String("error", err.Error()))
	}
}
