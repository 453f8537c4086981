// Package sweep runs the periodic maintenance jobs: recurring invoice
// generation, overdue checks, booking expiration and notification cleanup.
package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"

	"coachbook/internal/domain/booking"
	"coachbook/internal/domain/invoice"
	"coachbook/internal/pkg/logger"
)

// Job is one named unit of periodic work.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

type recurringProcessor interface {
	ProcessRecurring(ctx context.Context) (invoice.RecurringResult, error)
}

type overdueChecker interface {
	CheckOverdue(ctx context.Context) (invoice.OverdueResult, error)
}

type bookingExpirer interface {
	ExpireStale(ctx context.Context) (booking.ExpireResult, error)
}

type notificationCleaner interface {
	CleanupOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}

const (
	JobRecurring  = "recurring"
	JobOverdue    = "overdue"
	JobExpiration = "expiration"
	JobCleanup    = "cleanup"
)

func RecurringJob(spec string, svc recurringProcessor) Job {
	return Job{Name: JobRecurring, Spec: spec, Run: func(ctx context.Context) error {
		_, err := svc.ProcessRecurring(ctx)
		return err
	}}
}

func OverdueJob(spec string, svc overdueChecker) Job {
	return Job{Name: JobOverdue, Spec: spec, Run: func(ctx context.Context) error {
		_, err := svc.CheckOverdue(ctx)
		return err
	}}
}

func ExpirationJob(spec string, svc bookingExpirer, log *zap.Logger) Job {
	log = logger.OrNop(log)
	return Job{Name: JobExpiration, Spec: spec, Run: func(ctx context.Context) error {
		res, err := svc.ExpireStale(ctx)
		if err != nil {
			return err
		}
		if res.Failed > 0 {
			log.Warn("expiration sweep had failures", zap.Int("failed", res.Failed))
		}
		return nil
	}}
}

func CleanupJob(spec string, svc notificationCleaner, retention time.Duration) Job {
	return Job{Name: JobCleanup, Spec: spec, Run: func(ctx context.Context) error {
		_, err := svc.CleanupOlderThan(ctx, retention)
		return err
	}}
}
