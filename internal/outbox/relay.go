package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Handler consumes relayed events. Name must be stable across restarts.
type Handler interface {
	Name() string
	Handle(ctx context.Context, evt *Event) error
}

type HandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, evt *Event) error
}

func (h HandlerFunc) Name() string { return h.HandlerName }

func (h HandlerFunc) Handle(ctx context.Context, evt *Event) error { return h.Fn(ctx, evt) }

type RelayConfig struct {
	BatchSize    int
	MaxAttempts  int
	PollInterval time.Duration
	// Lease is how long a claimed batch stays invisible to other relays.
	Lease time.Duration
	// RetryBackoff is the first retry delay; it doubles per attempt up to MaxBackoff.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
}

type Relay struct {
	db       *gorm.DB
	handlers []Handler
	cfg      RelayConfig
	log      *zap.Logger
	now      func() time.Time
}

func NewRelay(db *gorm.DB, cfg RelayConfig, log *zap.Logger, handlers ...Handler) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = time.Minute
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 5 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{db: db, handlers: handlers, cfg: cfg, log: log, now: time.Now}
}

// RunOnce delivers one batch of pending events and returns how many were
// fully published.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.claim(ctx)
	if err != nil {
		return 0, err
	}

	published := 0
	for i := range events {
		if ctx.Err() != nil {
			return published, ctx.Err()
		}
		if r.deliver(ctx, &events[i]) {
			published++
		}
	}
	return published, nil
}

// claim leases a batch of due events. Rows another relay is claiming are
// skipped, and a leased row stays hidden until its lease runs out.
func (r *Relay) claim(ctx context.Context) ([]Event, error) {
	now := r.now().UTC()
	var events []Event
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("published_at IS NULL AND attempts < ?", r.cfg.MaxAttempts).
			Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
			Where("claimed_until IS NULL OR claimed_until < ?", now).
			Order("created_at asc").
			Limit(r.cfg.BatchSize).
			Find(&events).Error
		if err != nil || len(events) == 0 {
			return err
		}
		ids := make([]any, len(events))
		for i := range events {
			ids[i] = events[i].ID
		}
		return tx.Model(&Event{}).Where("id IN ?", ids).Update("claimed_until", now.Add(r.cfg.Lease)).Error
	})
	if err != nil {
		return nil, fmt.Errorf("outbox: claim pending: %w", err)
	}
	return events, nil
}

func (r *Relay) backoff(attempts int) time.Duration {
	d := r.cfg.RetryBackoff
	for i := 1; i < attempts && d < r.cfg.MaxBackoff; i++ {
		d *= 2
	}
	if d > r.cfg.MaxBackoff {
		d = r.cfg.MaxBackoff
	}
	return d
}

func (r *Relay) deliver(ctx context.Context, evt *Event) bool {
	var done []Delivery
	if err := r.db.WithContext(ctx).Where("event_id = ?", evt.ID).Find(&done).Error; err != nil {
		r.log.Error("outbox: load deliveries", zap.String("event_id", evt.ID.String()), zap.Error(err))
		return false
	}
	delivered := make(map[string]bool, len(done))
	for _, d := range done {
		delivered[d.Handler] = true
	}

	var failures []string
	for _, h := range r.handlers {
		if delivered[h.Name()] {
			continue
		}
		if err := h.Handle(ctx, evt); err != nil {
			r.log.Warn("outbox: handler failed",
				zap.String("handler", h.Name()),
				zap.String("event_id", evt.ID.String()),
				zap.String("event_type", evt.EventType),
				zap.Int("attempt", evt.Attempts+1),
				zap.Error(err),
			)
			failures = append(failures, h.Name()+": "+err.Error())
			continue
		}
		err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&Delivery{EventID: evt.ID, Handler: h.Name(), DeliveredAt: r.now().UTC()}).Error
		if err != nil {
			r.log.Error("outbox: record delivery", zap.String("handler", h.Name()), zap.Error(err))
		}
	}

	if len(failures) > 0 {
		next := r.now().UTC().Add(r.backoff(evt.Attempts + 1))
		updates := map[string]any{
			"attempts":        gorm.Expr("attempts + 1"),
			"last_error":      strings.Join(failures, "; "),
			"next_attempt_at": next,
			"claimed_until":   nil,
		}
		if err := r.db.WithContext(ctx).Model(&Event{}).Where("id = ?", evt.ID).Updates(updates).Error; err != nil {
			r.log.Error("outbox: record failure", zap.String("event_id", evt.ID.String()), zap.Error(err))
		}
		if evt.Attempts+1 >= r.cfg.MaxAttempts {
			r.log.Error("outbox: event gave up after max attempts",
				zap.String("event_id", evt.ID.String()),
				zap.String("event_type", evt.EventType),
			)
		}
		return false
	}

	now := r.now().UTC()
	err := r.db.WithContext(ctx).Model(&Event{}).Where("id = ?", evt.ID).
		Updates(map[string]any{"published_at": now, "claimed_until": nil}).Error
	if err != nil {
		r.log.Error("outbox: mark published", zap.String("event_id", evt.ID.String()), zap.Error(err))
		return false
	}
	return true
}

// Start polls until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.log.Info("outbox relay started", zap.Duration("interval", r.cfg.PollInterval), zap.Int("handlers", len(r.handlers)))
	for {
		n, err := r.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.log.Error("outbox relay batch failed", zap.Error(err))
		} else if n > 0 {
			r.log.Debug("outbox relay published", zap.Int("count", n))
		}

		select {
		case <-ctx.Done():
			r.log.Info("outbox relay stopped")
			return
		case <-ticker.C:
		}
	}
}
