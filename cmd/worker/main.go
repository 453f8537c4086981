package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"coachbook/internal/app"
	"coachbook/internal/config"
	"coachbook/internal/domain/booking"
	"coachbook/internal/domain/reminder"
	"coachbook/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zlog, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := app.New(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("bootstrap failed", zap.Error(err))
	}
	defer c.Close()

	if err := c.Migrate(); err != nil {
		zlog.Fatal("migration failed", zap.Error(err))
	}
	if c.Bridge != nil {
		c.Realtime.Configure(c.Bridge)
	}

	var srv *asynq.Server
	if c.Redis != nil {
		srv = asynq.NewServer(c.RedisOpt(), asynq.Config{
			Concurrency: 10,
			Queues:      map[string]int{"default": 1},
			Logger:      zlog.Sugar(),
		})
		mux := asynq.NewServeMux()
		reminder.NewHandler(booking.NewRepository(c.DB), c.Notifications, zlog).Register(mux)
		if err := srv.Start(mux); err != nil {
			zlog.Fatal("reminder worker failed to start", zap.Error(err))
		}
		zlog.Info("reminder worker started")
	}

	relay := c.Relay()
	relay.Start(ctx)

	if srv != nil {
		srv.Shutdown()
	}
	zlog.Info("worker stopped")
}
