package booking

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"coachbook/internal/outbox"
)

type ExpireResult struct {
	ExpiredPending int `json:"expired_pending"`
	ExpiredUnpaid  int `json:"expired_unpaid"`
	Finalized      int `json:"finalized"`
	Reminded       int `json:"reminded"`
	Failed         int `json:"failed"`
}

var errSkip = errors.New("skip")

// ExpireStale expires requests the coach never answered and accepted requests
// that were not paid within the window plus grace. It also reminds clients
// whose payment deadline is near. One failing request does not stop the run.
func (s *Service) ExpireStale(ctx context.Context) (ExpireResult, error) {
	var res ExpireResult
	now := s.now().UTC()
	repo := NewRepository(s.db)

	pending, err := repo.ListExpiredPending(ctx, now)
	if err != nil {
		return res, err
	}
	for _, id := range pending {
		switch err := s.expireOne(ctx, id, StatusPending, now, "coach did not respond in time"); {
		case err == nil:
			res.ExpiredPending++
		case errors.Is(err, errSkip):
		default:
			res.Failed++
			s.log.Error("expire pending request", zap.Int64("booking_request_id", id), zap.Error(err))
		}
	}

	captured, err := repo.ListUnfinalizedCaptures(ctx)
	if err != nil {
		return res, err
	}
	for _, id := range captured {
		switch err := s.finalizeOne(ctx, id); {
		case err == nil:
			res.Finalized++
		case errors.Is(err, errSkip):
		default:
			res.Failed++
			s.log.Error("finalize captured payment", zap.Int64("booking_request_id", id), zap.Error(err))
		}
	}

	lapsed, err := repo.ListLapsedPayments(ctx, now.Add(-s.cfg.PaymentExpiryGrace))
	if err != nil {
		return res, err
	}
	for _, id := range lapsed {
		switch err := s.expireOne(ctx, id, StatusPaymentRequired, now, "payment deadline passed"); {
		case err == nil:
			res.ExpiredUnpaid++
		case errors.Is(err, errSkip):
		default:
			res.Failed++
			s.log.Error("expire unpaid request", zap.Int64("booking_request_id", id), zap.Error(err))
		}
	}

	due, err := repo.ListReminderCandidates(ctx, now, now.Add(s.cfg.PaymentReminderLead))
	if err != nil {
		return res, err
	}
	for _, id := range due {
		switch err := s.remindOne(ctx, id, now); {
		case err == nil:
			res.Reminded++
		case errors.Is(err, errSkip):
		default:
			res.Failed++
			s.log.Error("payment reminder", zap.Int64("booking_request_id", id), zap.Error(err))
		}
	}

	if res.ExpiredPending+res.ExpiredUnpaid+res.Finalized+res.Reminded+res.Failed > 0 {
		s.log.Info("booking sweep finished",
			zap.Int("expired_pending", res.ExpiredPending),
			zap.Int("expired_unpaid", res.ExpiredUnpaid),
			zap.Int("finalized", res.Finalized),
			zap.Int("reminded", res.Reminded),
			zap.Int("failed", res.Failed),
		)
	}
	return res, nil
}

func (s *Service) expireOne(ctx context.Context, id int64, from Status, now time.Time, reason string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := NewRepository(tx).GetRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != from || !s.lapsed(req, now) {
			return errSkip
		}
		held, err := NewRepository(tx).HasEvent(ctx, id, EventCaptureUnfinalized)
		if err != nil {
			return err
		}
		if held {
			return errSkip
		}
		ok, err := s.expireTx(ctx, tx, req, reason, now)
		if err != nil {
			return err
		}
		if !ok {
			return errSkip
		}
		return nil
	})
}

// finalizeOne confirms a request from its recorded capture under the same
// lock Pay uses.
func (s *Service) finalizeOne(ctx context.Context, id int64) error {
	key := payLockKey(id)
	acquired, token, err := s.lock.TryLock(ctx, key, s.cfg.PayLockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		return errSkip
	}
	defer func() {
		if err := s.lock.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("failed to release payment lock", zap.String("key", key), zap.Error(err))
		}
	}()

	repo := NewRepository(s.db)
	req, err := repo.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if req.Status != StatusPaymentRequired {
		return errSkip
	}
	c, err := repo.CapturedCharge(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return errSkip
	}
	_, err = s.finalizeCaptured(ctx, req, c)
	return err
}

func (s *Service) lapsed(req *Request, now time.Time) bool {
	switch req.Status {
	case StatusPending:
		return now.After(req.ExpiresAt)
	case StatusPaymentRequired:
		return req.PaymentDeadline != nil && now.After(req.PaymentDeadline.Add(s.cfg.PaymentExpiryGrace))
	}
	return false
}

func (s *Service) remindOne(ctx context.Context, id int64, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		req, err := repo.GetRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusPaymentRequired || req.PaymentDeadline == nil || now.After(*req.PaymentDeadline) {
			return errSkip
		}
		sent, err := repo.HasEvent(ctx, id, EventPaymentReminder)
		if err != nil {
			return err
		}
		if sent {
			return errSkip
		}
		if err := repo.AddEvent(ctx, id, EventPaymentReminder, ActorSystem, 0, map[string]any{
			"payment_deadline": req.PaymentDeadline,
		}); err != nil {
			return err
		}
		return outbox.Emit(tx.WithContext(ctx), aggregate, id, outbox.BookingPaymentReminder, newPayload(req), req.ClientID)
	})
}
