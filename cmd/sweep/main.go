package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"coachbook/internal/app"
	"coachbook/internal/config"
	"coachbook/internal/pkg/logger"
)

func main() {
	once := flag.Bool("once", false, "run every job once and exit")
	job := flag.String("job", "", "with -once, run only this job (recurring, overdue, expiration, cleanup)")
	flag.Parse()

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

	if err := run(ctx, cfg, zlog, *once, *job); err != nil {
		zlog.Error("sweep exited with error", zap.Error(err))
		_ = zlog.Sync()
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, zlog *zap.Logger, once bool, job string) error {
	c, err := app.New(ctx, cfg, zlog)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer c.Close()

	if err := c.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	runner := c.SweepRunner()

	if once {
		if job != "" {
			return runner.RunJob(ctx, job)
		}
		var errs []error
		for name, err := range runner.RunAll(ctx) {
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
		return errors.Join(errs...)
	}

	if err := runner.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	runner.Stop()
	zlog.Info("sweep stopped")
	return nil
}
