// Package app assembles the services shared by the api, worker and sweep
// binaries from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"coachbook/internal/config"
	"coachbook/internal/database"
	"coachbook/internal/domain/booking"
	"coachbook/internal/domain/invoice"
	"coachbook/internal/domain/notification"
	"coachbook/internal/domain/payment"
	"coachbook/internal/domain/payment/paymenttest"
	"coachbook/internal/domain/profile"
	"coachbook/internal/domain/rate"
	"coachbook/internal/domain/realtime"
	"coachbook/internal/domain/reminder"
	"coachbook/internal/domain/wallet"
	"coachbook/internal/outbox"
	"coachbook/internal/pkg/locker"
	"coachbook/internal/pkg/rabbitmq"
	"coachbook/internal/sweep"
)

// Container holds the long-lived dependencies of one process. Redis, Asynq
// and Publisher are nil when the matching backend is not configured.
type Container struct {
	Config *config.Config
	Log    *zap.Logger
	DB     *gorm.DB

	Redis     *redis.Client
	Locker    locker.Locker
	Asynq     *asynq.Client
	Publisher *rabbitmq.Publisher
	Bridge    *realtime.RedisBridge
	Realtime  *notification.RealtimeRegistry

	Profiles      *profile.Repository
	Calculator    *rate.Calculator
	Payments      *payment.Service
	Invoices      *invoice.Service
	Bookings      *booking.Service
	Notifications *notification.Service
	Wallets       *wallet.Service
	Reminders     *reminder.Scheduler
}

// New connects to every configured backend and wires the domain services.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Container, error) {
	c := &Container{Config: cfg, Log: log, Locker: locker.Noop{}, Realtime: notification.NewRealtimeRegistry()}

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	c.DB = db

	if cfg.RedisAddr != "" {
		client, err := locker.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		c.Redis = client
		c.Locker = locker.NewRedisLocker(client, "coachbook:lock:", log)
		c.Asynq = asynq.NewClient(c.RedisOpt())
		c.Bridge = realtime.NewRedisBridge(client, cfg.RealtimeChannel, log)
		c.Reminders = reminder.NewScheduler(c.Asynq, log)
	} else {
		log.Warn("REDIS_ADDR not set: locks are process-local and session reminders are disabled")
	}

	if cfg.RabbitMQURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitMQURL, log)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		c.Publisher = pub
	} else {
		log.Warn("RABBITMQ_URL not set: emails are logged and events are not published to the broker")
	}

	c.wire()
	return c, nil
}

func (c *Container) wire() {
	cfg, log := c.Config, c.Log

	c.Profiles = profile.NewRepository(c.DB)
	c.Calculator = rate.NewCalculator(cfg.PlatformFeePercent)

	var gateway payment.Gateway
	if cfg.StripeSecretKey != "" {
		gateway = payment.NewStripeGateway(cfg.StripeSecretKey)
	} else {
		log.Warn("STRIPE_SECRET_KEY not set: using the in-memory payment gateway")
		gateway = paymenttest.New()
	}
	c.Payments = payment.NewService(c.DB, gateway, payment.NewStripeWebhookVerifier(cfg.StripeWebhookSecret), c.Profiles, cfg.Currency, log)

	var mailer invoice.Mailer = invoice.NewLogMailer(log)
	if c.Publisher != nil {
		mailer = invoice.NewQueueMailer(c.Publisher, cfg.EmailQueue, cfg.MailFrom)
	}
	c.Invoices = invoice.NewService(c.DB, invoice.NewHTMLRenderer(), mailer, c.Profiles, invoice.Options{
		Currency: cfg.Currency,
		DueDays:  cfg.InvoiceDueDays,
		Terms:    cfg.InvoiceTerms,
	}, log)

	var reminders booking.ReminderScheduler
	if c.Reminders != nil {
		reminders = c.Reminders
	}
	c.Bookings = booking.NewService(c.DB, c.Profiles, c.Payments, c.Calculator, c.Locker, reminders, c.Invoices, booking.Config{
		RequestTTL:           cfg.BookingRequestTTL,
		PaymentWindow:        cfg.PaymentWindow,
		DefaultSessionOffset: cfg.DefaultSessionOffset,
		PaymentExpiryGrace:   cfg.PaymentExpiryGrace,
		PaymentReminderLead:  cfg.PaymentReminderLead,
		PayLockTTL:           cfg.PayLockTTL,
	}, log)

	c.Notifications = notification.NewService(notification.NewRepository(c.DB), c.Realtime, log)
	c.Wallets = wallet.NewService(c.DB, cfg.Currency, log)
}

// RedisOpt is the asynq connection for the configured redis.
func (c *Container) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.Config.RedisAddr,
		Password: c.Config.RedisPassword,
		DB:       c.Config.RedisDB,
	}
}

// Models lists every table in migration order.
func Models() []any {
	var models []any
	models = append(models, profile.Models()...)
	models = append(models, booking.Models()...)
	models = append(models, payment.Models()...)
	models = append(models, invoice.Models()...)
	models = append(models, &notification.Notification{})
	models = append(models, wallet.Models()...)
	models = append(models, outbox.Models()...)
	return models
}

func (c *Container) Migrate() error {
	return database.Migrate(c.DB, Models()...)
}

// RelayHandlers are the outbox consumers, in delivery order.
func (c *Container) RelayHandlers() []outbox.Handler {
	handlers := []outbox.Handler{
		notification.NewDispatcher(c.Notifications, c.Log),
		wallet.NewLedgerHandler(c.Wallets, c.Log),
		invoice.NewRefundHandler(c.Invoices, c.Log),
	}
	if c.Publisher != nil {
		handlers = append(handlers, outbox.NewBrokerHandler(c.Publisher))
	}
	return handlers
}

func (c *Container) Relay() *outbox.Relay {
	return outbox.NewRelay(c.DB, outbox.RelayConfig{
		BatchSize:    c.Config.OutboxBatchSize,
		MaxAttempts:  c.Config.OutboxMaxAttempts,
		PollInterval: c.Config.OutboxPollInterval,
	}, c.Log, c.RelayHandlers()...)
}

func (c *Container) SweepRunner() *sweep.Runner {
	cfg := c.Config
	return sweep.NewRunner(c.Locker, cfg.SweepLockTTL, c.Log,
		sweep.RecurringJob(cfg.SweepRecurringCron, c.Invoices),
		sweep.OverdueJob(cfg.SweepOverdueCron, c.Invoices),
		sweep.ExpirationJob(cfg.SweepExpirationCron, c.Bookings, c.Log),
		sweep.CleanupJob(cfg.SweepCleanupCron, c.Notifications, cfg.NotificationRetention()),
	)
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	if c.Publisher != nil {
		c.Publisher.Close()
	}
	if c.Asynq != nil {
		if err := c.Asynq.Close(); err != nil {
			c.Log.Warn("close asynq client", zap.Error(err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Log.Warn("close redis", zap.Error(err))
		}
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
