package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultJWTSecret     = "change-me-jwt-secret"
	defaultWebhookSecret = "whsec_change_me"
)

type Config struct {
	AppEnv   string `mapstructure:"APP_ENV"`
	Port     string `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`

	JWTSecret    string        `mapstructure:"JWT_SECRET"`
	JWTAccessTTL time.Duration `mapstructure:"JWT_ACCESS_TTL"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`
	EmailQueue  string `mapstructure:"EMAIL_QUEUE"`
	MailFrom    string `mapstructure:"MAIL_FROM"`

	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`

	Currency           string  `mapstructure:"CURRENCY"`
	PlatformFeePercent float64 `mapstructure:"PLATFORM_FEE_PERCENT"`

	BookingRequestTTL    time.Duration `mapstructure:"BOOKING_REQUEST_TTL"`
	PaymentWindow        time.Duration `mapstructure:"PAYMENT_WINDOW"`
	DefaultSessionOffset time.Duration `mapstructure:"DEFAULT_SESSION_OFFSET"`
	PaymentExpiryGrace   time.Duration `mapstructure:"PAYMENT_EXPIRY_GRACE"`
	PaymentReminderLead  time.Duration `mapstructure:"PAYMENT_REMINDER_LEAD"`
	PayLockTTL           time.Duration `mapstructure:"PAY_LOCK_TTL"`

	InvoiceDueDays int    `mapstructure:"INVOICE_DUE_DAYS"`
	InvoiceTerms   string `mapstructure:"INVOICE_TERMS"`

	SweepRecurringCron  string        `mapstructure:"SWEEP_RECURRING_CRON"`
	SweepOverdueCron    string        `mapstructure:"SWEEP_OVERDUE_CRON"`
	SweepExpirationCron string        `mapstructure:"SWEEP_EXPIRATION_CRON"`
	SweepCleanupCron    string        `mapstructure:"SWEEP_CLEANUP_CRON"`
	SweepLockTTL        time.Duration `mapstructure:"SWEEP_LOCK_TTL"`

	NotificationRetentionDays int    `mapstructure:"NOTIFICATION_RETENTION_DAYS"`
	RealtimeChannel           string `mapstructure:"REALTIME_CHANNEL"`

	OutboxPollInterval time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `mapstructure:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `mapstructure:"OUTBOX_MAX_ATTEMPTS"`
	// RunOutboxRelay lets a single-process deployment relay from the API.
	RunOutboxRelay bool `mapstructure:"RUN_OUTBOX_RELAY"`

	PayRateLimitPerMin     int `mapstructure:"PAY_RATE_LIMIT_PER_MIN"`
	WebhookRateLimitPerMin int `mapstructure:"WEBHOOK_RATE_LIMIT_PER_MIN"`

	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "coachbook.db")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_ACCESS_TTL", "24h")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("EMAIL_QUEUE", "coachbook.email")
	v.SetDefault("MAIL_FROM", "billing@coachbook.local")
	v.SetDefault("STRIPE_SECRET_KEY", "")
	v.SetDefault("STRIPE_WEBHOOK_SECRET", defaultWebhookSecret)
	v.SetDefault("CURRENCY", "USD")
	v.SetDefault("PLATFORM_FEE_PERCENT", 15.0)
	v.SetDefault("BOOKING_REQUEST_TTL", "24h")
	v.SetDefault("PAYMENT_WINDOW", "2h")
	v.SetDefault("DEFAULT_SESSION_OFFSET", "1h")
	v.SetDefault("PAYMENT_EXPIRY_GRACE", "15m")
	v.SetDefault("PAYMENT_REMINDER_LEAD", "30m")
	v.SetDefault("PAY_LOCK_TTL", "60s")
	v.SetDefault("INVOICE_DUE_DAYS", 14)
	v.SetDefault("INVOICE_TERMS", "Payment due within 14 days of issue.")
	v.SetDefault("SWEEP_RECURRING_CRON", "0 6 * * *")
	v.SetDefault("SWEEP_OVERDUE_CRON", "0 7 * * *")
	v.SetDefault("SWEEP_EXPIRATION_CRON", "*/10 * * * *")
	v.SetDefault("SWEEP_CLEANUP_CRON", "0 3 * * *")
	v.SetDefault("SWEEP_LOCK_TTL", "10m")
	v.SetDefault("NOTIFICATION_RETENTION_DAYS", 90)
	v.SetDefault("REALTIME_CHANNEL", "coachbook:realtime")
	v.SetDefault("OUTBOX_POLL_INTERVAL", "2s")
	v.SetDefault("OUTBOX_BATCH_SIZE", 50)
	v.SetDefault("OUTBOX_MAX_ATTEMPTS", 10)
	v.SetDefault("RUN_OUTBOX_RELAY", false)
	v.SetDefault("PAY_RATE_LIMIT_PER_MIN", 10)
	v.SetDefault("WEBHOOK_RATE_LIMIT_PER_MIN", 120)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables only")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.JWTAccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be > 0")
	}
	if cfg.BookingRequestTTL <= 0 {
		return fmt.Errorf("BOOKING_REQUEST_TTL must be > 0")
	}
	if cfg.PaymentWindow <= 0 {
		return fmt.Errorf("PAYMENT_WINDOW must be > 0")
	}
	if cfg.DefaultSessionOffset < 0 {
		return fmt.Errorf("DEFAULT_SESSION_OFFSET must be >= 0")
	}
	if cfg.PaymentExpiryGrace < 0 {
		return fmt.Errorf("PAYMENT_EXPIRY_GRACE must be >= 0")
	}
	if cfg.PlatformFeePercent < 0 || cfg.PlatformFeePercent > 100 {
		return fmt.Errorf("PLATFORM_FEE_PERCENT must be between 0 and 100")
	}
	if len(cfg.Currency) != 3 {
		return fmt.Errorf("CURRENCY must be a 3-letter ISO code")
	}
	if cfg.InvoiceDueDays < 0 {
		return fmt.Errorf("INVOICE_DUE_DAYS must be >= 0")
	}
	if cfg.NotificationRetentionDays <= 0 {
		return fmt.Errorf("NOTIFICATION_RETENTION_DAYS must be > 0")
	}
	if cfg.OutboxMaxAttempts <= 0 || cfg.OutboxBatchSize <= 0 {
		return fmt.Errorf("OUTBOX_MAX_ATTEMPTS and OUTBOX_BATCH_SIZE must be > 0")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if isEmptyOrDefault(cfg.StripeWebhookSecret, defaultWebhookSecret) {
			return fmt.Errorf("in prod/release STRIPE_WEBHOOK_SECRET must be set and not default")
		}
		if strings.TrimSpace(cfg.StripeSecretKey) == "" {
			return fmt.Errorf("in prod/release STRIPE_SECRET_KEY must be set")
		}
	}

	return nil
}

// NotificationRetention is the age after which notifications are purged.
func (c *Config) NotificationRetention() time.Duration {
	return time.Duration(c.NotificationRetentionDays) * 24 * time.Hour
}

func (c *Config) IsProdLike() bool {
	return isProdLike(c.AppEnv)
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}
