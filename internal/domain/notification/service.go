package notification

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Service struct {
	repo     *Repository
	realtime *RealtimeRegistry
	log      *zap.Logger
	now      func() time.Time
}

func NewService(repo *Repository, realtime *RealtimeRegistry, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, realtime: realtime, log: log, now: time.Now}
}

// Create stores the notification and pushes it to live connections. A
// notification already stored for the same source is not pushed again. Push
// failures are logged and swallowed.
func (s *Service) Create(ctx context.Context, n *Notification) (*Notification, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	created, err := s.repo.Create(ctx, n)
	if err != nil {
		return nil, err
	}
	if !created {
		return n, nil
	}

	if err := s.realtime.Get().Notify(ctx, n.UserID, n); err != nil {
		s.log.Warn("realtime push failed",
			zap.Int64("user_id", n.UserID),
			zap.String("type", string(n.Type)),
			zap.Error(err),
		)
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, userID int64, limit, offset int) (*ListResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	list, total, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		unread = 0
	}
	if list == nil {
		list = []Notification{}
	}
	return &ListResponse{Notifications: list, UnreadCount: unread, Total: total}, nil
}

func (s *Service) MarkAsRead(ctx context.Context, id, userID int64) error {
	return s.repo.MarkAsRead(ctx, id, userID, s.now().UTC())
}

func (s *Service) MarkAllAsRead(ctx context.Context, userID int64) (int64, error) {
	return s.repo.MarkAllAsRead(ctx, userID, s.now().UTC())
}

// CleanupOlderThan removes notifications past the retention window.
func (s *Service) CleanupOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	start := time.Now()
	deleted, err := s.repo.DeleteOlderThan(ctx, s.now().UTC().Add(-retention))
	if err != nil {
		s.log.Error("notification cleanup failed", zap.Error(err))
		return 0, err
	}
	s.log.Info("notification cleanup completed", zap.Int64("deleted", deleted), zap.Duration("took", time.Since(start)))
	return deleted, nil
}
