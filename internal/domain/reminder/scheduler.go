package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Scheduler struct {
	client   Enqueuer
	leads    []time.Duration
	maxRetry int
	log      *zap.Logger
	now      func() time.Time
}

func NewScheduler(client Enqueuer, log *zap.Logger, leads ...time.Duration) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if len(leads) == 0 {
		leads = DefaultLeads
	}
	return &Scheduler{client: client, leads: leads, maxRetry: 5, log: log, now: time.Now}
}

// ScheduleSessionReminders enqueues one task per user and lead. Leads that
// would already have fired are skipped, and re-scheduling the same session is
// a no-op because task ids are deterministic.
func (s *Scheduler) ScheduleSessionReminders(ctx context.Context, sessionID int64, scheduledAt time.Time, userIDs ...int64) error {
	now := s.now()
	var errs []error
	for _, lead := range s.leads {
		fireAt := scheduledAt.Add(-lead)
		if !fireAt.After(now) {
			continue
		}
		for _, userID := range userIDs {
			p := Payload{SessionID: sessionID, UserID: userID, ScheduledAt: scheduledAt, Lead: lead.String()}
			task, opts, err := NewTask(p, fireAt, s.maxRetry)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if _, err := s.client.EnqueueContext(ctx, task, opts...); err != nil {
				if errors.Is(err, asynq.ErrTaskIDConflict) {
					continue
				}
				errs = append(errs, fmt.Errorf("enqueue reminder for user %d: %w", userID, err))
				continue
			}
			s.log.Debug("session reminder scheduled",
				zap.Int64("session_id", sessionID),
				zap.Int64("user_id", userID),
				zap.Time("fire_at", fireAt),
			)
		}
	}
	return errors.Join(errs...)
}
