package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coachbook/internal/app"
	"coachbook/internal/config"
	"coachbook/internal/domain/realtime"
	jwtsvc "coachbook/internal/pkg/jwt"
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

	hub := realtime.NewHub(zlog)
	if c.Bridge != nil {
		// pushes from every process travel through redis so they reach this hub
		c.Realtime.Configure(c.Bridge)
		go c.Bridge.Forward(ctx, hub)
	} else {
		c.Realtime.Configure(hub)
	}

	if cfg.RunOutboxRelay {
		go c.Relay().Start(ctx)
	}

	j := jwtsvc.New(cfg.JWTSecret, cfg.JWTAccessTTL)

	if cfg.IsProdLike() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := c.Router(hub, j)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("api listening", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("graceful shutdown failed", zap.Error(err))
	}
}
