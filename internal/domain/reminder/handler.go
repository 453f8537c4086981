package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"coachbook/internal/domain/booking"
	"coachbook/internal/domain/notification"
)

type SessionLookup interface {
	GetSession(ctx context.Context, id int64) (*booking.Session, error)
}

type Notifier interface {
	Create(ctx context.Context, n *notification.Notification) (*notification.Notification, error)
}

// Handler turns due reminder tasks into notifications.
type Handler struct {
	sessions SessionLookup
	notifier Notifier
	log      *zap.Logger
}

func NewHandler(sessions SessionLookup, notifier Notifier, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{sessions: sessions, notifier: notifier, log: log}
}

func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeSessionReminder, h.ProcessTask)
}

func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.log.Error("session reminder: invalid payload", zap.Error(err))
		return fmt.Errorf("decode reminder: %v: %w", err, asynq.SkipRetry)
	}

	sess, err := h.sessions.GetSession(ctx, p.SessionID)
	if errors.Is(err, booking.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	// moved or already held
	if sess.Status != booking.SessionConfirmed || !sess.ScheduledAt.Equal(p.ScheduledAt) {
		return nil
	}

	source := taskID(p)
	_, err = h.notifier.Create(ctx, &notification.Notification{
		UserID:   p.UserID,
		Type:     notification.TypeSessionReminder,
		Title:    "Upcoming session",
		Message:  fmt.Sprintf("Your %s session #%d starts at %s.", sess.SessionType, sess.ID, sess.ScheduledAt.UTC().Format("2006-01-02 15:04 MST")),
		Data:     string(t.Payload()),
		SourceID: &source,
	})
	if err != nil {
		return fmt.Errorf("store session reminder: %w", err)
	}
	h.log.Info("session reminder delivered",
		zap.Int64("session_id", sess.ID),
		zap.Int64("user_id", p.UserID),
		zap.String("lead", p.Lead),
		zap.Duration("starts_in", time.Until(sess.ScheduledAt)),
	)
	return nil
}
