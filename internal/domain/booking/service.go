package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"coachbook/internal/domain/invoice"
	"coachbook/internal/domain/payment"
	"coachbook/internal/domain/profile"
	"coachbook/internal/domain/rate"
	"coachbook/internal/outbox"
	"coachbook/internal/pkg/apperr"
	"coachbook/internal/pkg/locker"
	"coachbook/internal/pkg/validator"
)

const (
	dateTimeLayout = "2006-01-02 15:04"
	aggregate      = "booking_request"
)

type Config struct {
	RequestTTL           time.Duration
	PaymentWindow        time.Duration
	DefaultSessionOffset time.Duration
	PaymentExpiryGrace   time.Duration
	PaymentReminderLead  time.Duration
	PayLockTTL           time.Duration
}

func (c Config) withDefaults() Config {
	if c.RequestTTL <= 0 {
		c.RequestTTL = 24 * time.Hour
	}
	if c.PaymentWindow <= 0 {
		c.PaymentWindow = 2 * time.Hour
	}
	if c.DefaultSessionOffset <= 0 {
		c.DefaultSessionOffset = time.Hour
	}
	if c.PaymentExpiryGrace <= 0 {
		c.PaymentExpiryGrace = 15 * time.Minute
	}
	if c.PaymentReminderLead <= 0 {
		c.PaymentReminderLead = 30 * time.Minute
	}
	if c.PayLockTTL <= 0 {
		c.PayLockTTL = time.Minute
	}
	return c
}

type Service struct {
	db        *gorm.DB
	directory Directory
	payments  Payments
	calc      *rate.Calculator
	lock      locker.Locker
	reminders ReminderScheduler
	invoicer  Invoicer
	cfg       Config
	log       *zap.Logger
	now       func() time.Time
}

func NewService(
	db *gorm.DB,
	directory Directory,
	payments Payments,
	calc *rate.Calculator,
	lock locker.Locker,
	reminders ReminderScheduler,
	invoicer Invoicer,
	cfg Config,
	log *zap.Logger,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if lock == nil {
		lock = locker.Noop{}
	}
	return &Service{
		db:        db,
		directory: directory,
		payments:  payments,
		calc:      calc,
		lock:      lock,
		reminders: reminders,
		invoicer:  invoicer,
		cfg:       cfg.withDefaults(),
		log:       log,
		now:       time.Now,
	}
}

func validationError(errs map[string]string) error {
	fields := make([]string, 0, len(errs))
	for f, tag := range errs {
		fields = append(fields, f+" ("+tag+")")
	}
	sort.Strings(fields)
	return apperr.Validation("invalid fields: %s", strings.Join(fields, ", "))
}

func (s *Service) CreateRequest(ctx context.Context, clientID int64, in CreateRequestInput) (*Request, error) {
	if errs := validator.Validate(in); errs != nil {
		return nil, validationError(errs)
	}
	if clientID == in.CoachID {
		return nil, ErrSelfBooking
	}
	if in.PreferredDate != nil && in.PreferredTime != nil {
		if _, ok := preferredStart(in.PreferredDate, in.PreferredTime); !ok {
			return nil, apperr.Validation("preferred date and time do not form a valid timestamp")
		}
	}

	if _, err := s.directory.GetActiveCoach(ctx, in.CoachID); err != nil {
		if errors.Is(err, profile.ErrProfileNotFound) || errors.Is(err, profile.ErrCoachInactive) {
			return nil, apperr.NotFound("coach", in.CoachID)
		}
		return nil, err
	}

	now := s.now().UTC()
	req := &Request{
		ClientID:        clientID,
		CoachID:         in.CoachID,
		SessionType:     in.SessionType,
		DurationMinutes: in.DurationMinutes,
		PreferredDate:   in.PreferredDate,
		PreferredTime:   in.PreferredTime,
		Notes:           strings.TrimSpace(in.Notes),
		AreaOfFocus:     strings.TrimSpace(in.AreaOfFocus),
		Status:          StatusPending,
		ExpiresAt:       now.Add(s.cfg.RequestTTL),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		if err := repo.CreateRequest(ctx, req); err != nil {
			return fmt.Errorf("create booking request: %w", err)
		}
		if err := repo.AddEvent(ctx, req.ID, EventRequestCreated, ActorClient, clientID, map[string]any{
			"session_type":     req.SessionType,
			"duration_minutes": req.DurationMinutes,
		}); err != nil {
			return err
		}
		return outbox.Emit(tx.WithContext(ctx), aggregate, req.ID, outbox.BookingRequestCreated, newPayload(req), req.CoachID)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking request created",
		zap.Int64("booking_request_id", req.ID),
		zap.Int64("client_id", clientID),
		zap.Int64("coach_id", req.CoachID),
	)
	return req, nil
}

// expireTx moves req to expired if it is still in its current status.
func (s *Service) expireTx(ctx context.Context, tx *gorm.DB, req *Request, reason string, now time.Time) (bool, error) {
	repo := NewRepository(tx)
	ok, err := repo.Transition(ctx, req.ID, req.Status, StatusExpired, now, nil)
	if err != nil || !ok {
		return ok, err
	}
	if err := repo.AddEvent(ctx, req.ID, EventRequestExpired, ActorSystem, 0, map[string]any{
		"from":   req.Status,
		"reason": reason,
	}); err != nil {
		return false, err
	}
	payload := newPayload(req)
	payload.Status = StatusExpired
	payload.Reason = reason
	if err := outbox.Emit(tx.WithContext(ctx), aggregate, req.ID, outbox.BookingExpired, payload, req.ClientID, req.CoachID); err != nil {
		return false, err
	}
	req.Status = StatusExpired
	return true, nil
}

func (s *Service) Accept(ctx context.Context, coachID, requestID int64, in AcceptInput) (*Request, error) {
	if errs := validator.Validate(in); errs != nil {
		return nil, validationError(errs)
	}

	if in.CoachRateID != nil {
		r, err := s.directory.GetCoachRate(ctx, coachID, *in.CoachRateID)
		if err != nil {
			if errors.Is(err, profile.ErrRateNotFound) {
				return nil, apperr.Validation("coach rate %d is not available", *in.CoachRateID)
			}
			return nil, err
		}
		if !r.IsActive {
			return nil, apperr.Validation("coach rate %d is not active", r.ID)
		}
	}

	var (
		out     *Request
		expired bool
	)
	now := s.now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		req, err := repo.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.CoachID != coachID {
			return ErrRequestNotFound
		}
		if req.Status != StatusPending {
			return apperr.InvalidState(aggregate, req.ID, string(req.Status), "accept")
		}
		if now.After(req.ExpiresAt) {
			if _, err := s.expireTx(ctx, tx, req, "coach did not respond in time", now); err != nil {
				return err
			}
			expired = true
			out = req
			return nil
		}

		deadline := now.Add(s.cfg.PaymentWindow)
		price := in.FinalPriceCents
		ok, err := repo.Transition(ctx, req.ID, StatusPending, StatusPaymentRequired, now, map[string]any{
			"coach_adjusted_price_cents": price,
			"coach_rate_id":              in.CoachRateID,
			"coach_notes":                in.CoachNotes,
			"payment_deadline":           deadline,
		})
		if err != nil {
			return err
		}
		if !ok {
			current, err := repo.GetRequest(ctx, req.ID)
			if err != nil {
				return err
			}
			return apperr.InvalidState(aggregate, req.ID, string(current.Status), "accept")
		}

		req.Status = StatusPaymentRequired
		req.CoachAdjustedPriceCents = &price
		req.CoachRateID = in.CoachRateID
		req.CoachNotes = in.CoachNotes
		req.PaymentDeadline = &deadline
		req.UpdatedAt = now

		if err := repo.AddEvent(ctx, req.ID, EventCoachAccepted, ActorCoach, coachID, map[string]any{
			"final_price_cents": price,
			"coach_rate_id":     in.CoachRateID,
			"payment_deadline":  deadline,
		}); err != nil {
			return err
		}
		if err := outbox.Emit(tx.WithContext(ctx), aggregate, req.ID, outbox.BookingAccepted, newPayload(req), req.ClientID); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, mapNotFound(err, requestID)
	}
	if expired {
		return nil, &apperr.ExpiredError{Resource: aggregate, ID: out.ID, ExpiredAt: out.ExpiresAt}
	}
	return out, nil
}

func (s *Service) Reject(ctx context.Context, coachID, requestID int64, in RejectInput) (*Request, error) {
	if errs := validator.Validate(in); errs != nil {
		return nil, validationError(errs)
	}

	var out *Request
	now := s.now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		req, err := repo.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.CoachID != coachID {
			return ErrRequestNotFound
		}
		if req.Status != StatusPending {
			return apperr.InvalidState(aggregate, req.ID, string(req.Status), "reject")
		}

		ok, err := repo.Transition(ctx, req.ID, StatusPending, StatusRejected, now, map[string]any{
			"rejection_reason": in.Reason,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidState(aggregate, req.ID, string(req.Status), "reject")
		}
		req.Status = StatusRejected
		req.RejectionReason = in.Reason
		req.UpdatedAt = now

		if err := repo.AddEvent(ctx, req.ID, EventCoachRejected, ActorCoach, coachID, map[string]any{"reason": in.Reason}); err != nil {
			return err
		}
		payload := newPayload(req)
		if in.Reason != nil {
			payload.Reason = *in.Reason
		}
		if err := outbox.Emit(tx.WithContext(ctx), aggregate, req.ID, outbox.BookingRejected, payload, req.ClientID); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, mapNotFound(err, requestID)
	}
	return out, nil
}

func mapNotFound(err error, requestID int64) error {
	if errors.Is(err, ErrRequestNotFound) {
		return apperr.NotFound(aggregate, requestID)
	}
	if errors.Is(err, ErrSessionNotFound) {
		return apperr.NotFound("session", requestID)
	}
	return err
}

func payLockKey(requestID int64) string {
	return "booking:pay:" + strconv.FormatInt(requestID, 10)
}

// Pay charges the client for an accepted request and confirms the session.
// The deadline is evaluated once on entry; a charge that started in time is
// honoured even if it completes after the deadline.
func (s *Service) Pay(ctx context.Context, clientID, requestID int64, in PayInput) (*PayResult, error) {
	if errs := validator.Validate(in); errs != nil {
		return nil, validationError(errs)
	}

	repo := NewRepository(s.db)
	req, err := repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, mapNotFound(err, requestID)
	}
	if req.ClientID != clientID {
		return nil, apperr.NotFound(aggregate, requestID)
	}
	if req.Status != StatusPaymentRequired {
		return nil, apperr.InvalidState(aggregate, req.ID, string(req.Status), "pay")
	}
	captured, err := repo.CapturedCharge(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if captured == nil && req.PaymentDeadline != nil && now.After(*req.PaymentDeadline) {
		deadline := *req.PaymentDeadline
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			_, err := s.expireTx(ctx, tx, req, "payment deadline passed", now)
			return err
		})
		if err != nil {
			s.log.Error("failed to expire lapsed booking request", zap.Int64("booking_request_id", req.ID), zap.Error(err))
		}
		return nil, &apperr.DeadlineExceededError{RequestID: req.ID, Deadline: deadline}
	}

	key := payLockKey(req.ID)
	acquired, token, err := s.lock.TryLock(ctx, key, s.cfg.PayLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire payment lock: %w", err)
	}
	if !acquired {
		return nil, ErrPaymentInProgress
	}
	defer func() {
		if err := s.lock.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("failed to release payment lock", zap.String("key", key), zap.Error(err))
		}
	}()

	// another attempt may have finished while we waited for the lock
	req, err = repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, mapNotFound(err, requestID)
	}
	if req.Status != StatusPaymentRequired {
		return nil, apperr.InvalidState(aggregate, req.ID, string(req.Status), "pay")
	}
	// an earlier attempt took the money but could not record it
	if captured, err = repo.CapturedCharge(ctx, req.ID); err != nil {
		return nil, err
	}
	if captured != nil {
		return s.finalizeCaptured(ctx, req, captured)
	}
	if req.CoachAdjustedPriceCents == nil || *req.CoachAdjustedPriceCents <= 0 {
		return nil, apperr.InvalidState(aggregate, req.ID, string(req.Status), "pay without a price")
	}
	price := *req.CoachAdjustedPriceCents

	split, err := s.calc.Split(price)
	if err != nil {
		return nil, err
	}

	details, err := s.customerDetails(ctx, clientID, in.BillingDetails)
	if err != nil {
		return nil, err
	}
	customerID, err := s.payments.GetOrCreateCustomer(ctx, clientID, details)
	if err != nil {
		s.recordPaymentFailure(ctx, req, err)
		return nil, err
	}

	res, err := s.payments.Charge(ctx, payment.ChargeRequest{
		AmountCents:    price,
		Currency:       s.payments.Currency(),
		SourceID:       in.SourceID,
		CustomerID:     customerID,
		IdempotencyKey: payment.NewIdempotencyKey(fmt.Sprintf("booking-%d", req.ID)),
		ReferenceID:    fmt.Sprintf("booking-%d", req.ID),
		Note:           fmt.Sprintf("%s coaching session, %d minutes", req.SessionType, req.DurationMinutes),
	})
	if err != nil {
		s.recordPaymentFailure(ctx, req, err)
		return nil, err
	}

	result, err := s.confirm(ctx, req, res, customerID, split)
	if err != nil {
		s.log.Error("payment captured but booking not finalized",
			zap.Int64("booking_request_id", req.ID),
			zap.String("gateway_payment_id", res.GatewayPaymentID),
			zap.Int64("amount_cents", price),
			zap.Error(err),
		)
		s.recordCapture(ctx, req, res, customerID)
		return nil, &apperr.PersistenceInconsistencyError{
			RequestID:        req.ID,
			GatewayPaymentID: res.GatewayPaymentID,
			Err:              err,
		}
	}

	s.afterConfirm(ctx, req, result)
	return result, nil
}

// recordCapture keeps the gateway result of a charge the booking could not
// absorb, so no later attempt charges the client again.
func (s *Service) recordCapture(ctx context.Context, req *Request, res *payment.PaymentResult, customerID string) {
	err := NewRepository(s.db).AddEvent(context.WithoutCancel(ctx), req.ID, EventCaptureUnfinalized, ActorSystem, 0, CapturedCharge{
		GatewayPaymentID: res.GatewayPaymentID,
		Status:           string(res.Status),
		AmountCents:      res.AmountCents,
		Currency:         res.Currency,
		CustomerID:       customerID,
		IdempotencyKey:   res.IdempotencyKey,
	})
	if err != nil {
		s.log.Error("failed to record captured payment",
			zap.Int64("booking_request_id", req.ID),
			zap.String("gateway_payment_id", res.GatewayPaymentID),
			zap.Error(err),
		)
	}
}

// finalizeCaptured confirms the booking from a recorded capture without
// calling the gateway. The caller holds the pay lock.
func (s *Service) finalizeCaptured(ctx context.Context, req *Request, c *CapturedCharge) (*PayResult, error) {
	split, err := s.calc.Split(c.AmountCents)
	if err != nil {
		return nil, err
	}
	res := &payment.PaymentResult{
		GatewayPaymentID: c.GatewayPaymentID,
		Status:           payment.Status(c.Status),
		AmountCents:      c.AmountCents,
		Currency:         c.Currency,
		CustomerID:       c.CustomerID,
		IdempotencyKey:   c.IdempotencyKey,
	}
	result, err := s.confirm(ctx, req, res, c.CustomerID, split)
	if err != nil {
		return nil, &apperr.PersistenceInconsistencyError{
			RequestID:        req.ID,
			GatewayPaymentID: c.GatewayPaymentID,
			Err:              err,
		}
	}
	s.log.Info("captured payment finalized",
		zap.Int64("booking_request_id", req.ID),
		zap.String("gateway_payment_id", c.GatewayPaymentID),
	)
	s.afterConfirm(ctx, req, result)
	return result, nil
}

func (s *Service) afterConfirm(ctx context.Context, req *Request, result *PayResult) {
	if s.reminders != nil {
		if err := s.reminders.ScheduleSessionReminders(ctx, result.Session.ID, result.Session.ScheduledAt, req.ClientID, req.CoachID); err != nil {
			s.log.Warn("failed to schedule session reminders",
				zap.Int64("session_id", result.Session.ID),
				zap.Error(err),
			)
		}
	}

	s.log.Info("booking paid and confirmed",
		zap.Int64("booking_request_id", req.ID),
		zap.Int64("payment_id", result.Payment.ID),
		zap.Int64("session_id", result.Session.ID),
		zap.String("payment_status", string(result.Payment.Status)),
	)
}

func (s *Service) customerDetails(ctx context.Context, clientID int64, billing *BillingDetails) (payment.CustomerDetails, error) {
	details := payment.CustomerDetails{ReferenceID: "user-" + strconv.FormatInt(clientID, 10)}

	u, err := s.directory.GetUser(ctx, clientID)
	if err != nil {
		if errors.Is(err, profile.ErrProfileNotFound) {
			return details, apperr.NotFound("client", clientID)
		}
		return details, err
	}
	details.Email = u.Email

	if billing != nil {
		if billing.Email != "" {
			details.Email = billing.Email
		}
		if strings.TrimSpace(billing.Name) != "" {
			details.GivenName, details.FamilyName = ParseCustomerName(billing.Name)
			return details, nil
		}
	}

	p, err := s.directory.GetClientProfile(ctx, clientID)
	switch {
	case err == nil:
		details.GivenName, details.FamilyName = p.FirstName, p.LastName
	case errors.Is(err, profile.ErrProfileNotFound):
		details.GivenName, details.FamilyName = ParseCustomerName(u.Name)
	default:
		return details, err
	}
	return details, nil
}

func (s *Service) recordPaymentFailure(ctx context.Context, req *Request, cause error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := NewRepository(tx).AddEvent(ctx, req.ID, EventPaymentFailed, ActorClient, req.ClientID, map[string]any{
			"error": cause.Error(),
		}); err != nil {
			return err
		}
		return outbox.Emit(tx.WithContext(ctx), aggregate, req.ID, outbox.PaymentFailed, payment.FailedEvent{
			BookingRequestID: req.ID,
			Reason:           cause.Error(),
		}, req.ClientID)
	})
	if err != nil {
		s.log.Error("failed to record payment failure", zap.Int64("booking_request_id", req.ID), zap.Error(err))
	}
}

// sessionWindow derives the session start from the preferred date and time
// when both are present and valid, otherwise from the default offset.
func (s *Service) sessionWindow(req *Request, now time.Time) (time.Time, time.Time) {
	start, ok := preferredStart(req.PreferredDate, req.PreferredTime)
	if !ok {
		start = now.Add(s.cfg.DefaultSessionOffset)
	}
	return start, start.Add(time.Duration(req.DurationMinutes) * time.Minute)
}

func preferredStart(date, clock *string) (time.Time, bool) {
	if date == nil || clock == nil || *date == "" || *clock == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(dateTimeLayout, *date+" "+*clock, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (s *Service) confirm(ctx context.Context, req *Request, res *payment.PaymentResult, customerID string, split rate.Split) (*PayResult, error) {
	now := s.now().UTC()
	start, end := s.sessionWindow(req, now)

	p := &payment.Payment{
		BookingRequestID:   req.ID,
		ClientID:           req.ClientID,
		CoachID:            req.CoachID,
		AmountCents:        split.GrossCents,
		PlatformFeeCents:   split.PlatformFeeCents,
		CoachEarningsCents: split.CoachEarningsCents,
		Currency:           res.Currency,
		Status:             res.Status,
		GatewayPaymentID:   res.GatewayPaymentID,
		GatewayCustomerID:  customerID,
		IdempotencyKey:     res.IdempotencyKey,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	sess := &Session{
		BookingRequestID: req.ID,
		ClientID:         req.ClientID,
		CoachID:          req.CoachID,
		SessionType:      req.SessionType,
		ScheduledAt:      start,
		EndsAt:           end,
		DurationMinutes:  req.DurationMinutes,
		Status:           SessionConfirmed,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		if err := payment.NewRepository(tx).Create(ctx, p); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		sess.PaymentID = p.ID
		if err := repo.CreateSession(ctx, sess); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		ok, err := repo.Transition(ctx, req.ID, StatusPaymentRequired, StatusPaidConfirmed, now, nil)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("booking request %d left payment_required during payment", req.ID)
		}
		req.Status = StatusPaidConfirmed
		req.UpdatedAt = now

		if err := repo.AddEvent(ctx, req.ID, EventPaymentCompleted, ActorClient, req.ClientID, map[string]any{
			"payment_id":         p.ID,
			"gateway_payment_id": p.GatewayPaymentID,
			"amount_cents":       p.AmountCents,
			"status":             p.Status,
		}); err != nil {
			return err
		}
		if err := repo.AddEvent(ctx, req.ID, EventBookingConfirmed, ActorSystem, 0, map[string]any{
			"session_id":   sess.ID,
			"scheduled_at": sess.ScheduledAt,
		}); err != nil {
			return err
		}

		if p.Status == payment.StatusSucceeded {
			if err := outbox.Emit(tx.WithContext(ctx), "payment", p.ID, outbox.PaymentCompleted, payment.NewCompletedEvent(p), req.ClientID, req.CoachID); err != nil {
				return err
			}
		}
		payload := newPayload(req).withSession(sess)
		payload.Amount = payment.FormatAmount(p.AmountCents)
		payload.Currency = p.Currency
		return outbox.Emit(tx.WithContext(ctx), aggregate, req.ID, outbox.BookingConfirmed, payload, req.ClientID, req.CoachID)
	})
	if err != nil {
		return nil, err
	}
	return &PayResult{Request: req, Session: sess, Payment: p}, nil
}

// CompleteSession closes a session that has started and bills it. A session
// that completed earlier without an invoice can be completed again to retry
// the billing.
func (s *Service) CompleteSession(ctx context.Context, coachID, sessionID int64, in CompleteInput) (*Session, error) {
	if errs := validator.Validate(in); errs != nil {
		return nil, validationError(errs)
	}

	now := s.now().UTC()
	var sess *Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		cur, err := repo.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if cur.CoachID != coachID {
			return ErrSessionNotFound
		}
		switch cur.Status {
		case SessionCompleted:
			if cur.InvoiceID != nil {
				return apperr.InvalidState("session", cur.ID, string(cur.Status), "complete")
			}
			sess = cur
			return nil
		case SessionConfirmed:
		default:
			return apperr.InvalidState("session", cur.ID, string(cur.Status), "complete")
		}
		if now.Before(cur.ScheduledAt) {
			return apperr.InvalidState("session", cur.ID, string(cur.Status), "complete before its scheduled start")
		}

		ok, err := repo.CompleteSession(ctx, cur.ID, in.Notes, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidState("session", cur.ID, string(cur.Status), "complete")
		}
		cur.Status = SessionCompleted
		cur.CompletedAt = &now
		cur.CompletionNotes = in.Notes

		if err := repo.AddEvent(ctx, cur.BookingRequestID, EventSessionCompleted, ActorCoach, coachID, map[string]any{
			"session_id": cur.ID,
		}); err != nil {
			return err
		}
		req, err := repo.GetRequest(ctx, cur.BookingRequestID)
		if err != nil {
			return err
		}
		if err := outbox.Emit(tx.WithContext(ctx), "session", cur.ID, outbox.SessionCompleted, newPayload(req).withSession(cur), cur.ClientID, cur.CoachID); err != nil {
			return err
		}
		sess = cur
		return nil
	})
	if err != nil {
		return nil, mapNotFound(err, sessionID)
	}

	s.bill(ctx, sess)
	return sess, nil
}

// bill invoices a completed session. Failures are logged; completing the
// session again retries.
func (s *Service) bill(ctx context.Context, sess *Session) {
	if s.invoicer == nil {
		return
	}
	p, err := payment.NewRepository(s.db).GetByID(ctx, sess.PaymentID)
	if err != nil {
		s.log.Error("session billing: load payment", zap.Int64("session_id", sess.ID), zap.Error(err))
		return
	}
	var paid int64
	if p.Status == payment.StatusSucceeded {
		paid = p.AmountCents - p.RefundedCents
	}
	paymentID := p.ID

	inv, err := s.invoicer.BillSession(ctx, invoice.SessionInput{
		SessionID:        sess.ID,
		BookingRequestID: sess.BookingRequestID,
		PaymentID:        &paymentID,
		CoachID:          sess.CoachID,
		ClientID:         sess.ClientID,
		Description:      fmt.Sprintf("%s coaching session, %d minutes", sess.SessionType, sess.DurationMinutes),
		AmountCents:      p.AmountCents,
		PaidCents:        paid,
	})
	if err != nil {
		s.log.Warn("session completed but not invoiced", zap.Int64("session_id", sess.ID), zap.Error(err))
		return
	}
	if err := NewRepository(s.db).SetSessionInvoice(ctx, sess.ID, inv.ID); err != nil {
		s.log.Error("session billing: store invoice id",
			zap.Int64("session_id", sess.ID),
			zap.Int64("invoice_id", inv.ID),
			zap.Error(err),
		)
		return
	}
	sess.InvoiceID = &inv.ID
}

func (s *Service) detail(ctx context.Context, req *Request) (*RequestDetail, error) {
	repo := NewRepository(s.db)
	out := &RequestDetail{Request: *req}
	if req.Status == StatusPaidConfirmed {
		sess, err := repo.GetSessionByRequest(ctx, req.ID)
		if err != nil && !errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		out.Session = sess
	}
	events, err := repo.ListEvents(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	out.Events = events
	return out, nil
}

func (s *Service) GetClientRequest(ctx context.Context, clientID, requestID int64) (*RequestDetail, error) {
	req, err := NewRepository(s.db).GetRequest(ctx, requestID)
	if err != nil {
		return nil, mapNotFound(err, requestID)
	}
	if req.ClientID != clientID {
		return nil, apperr.NotFound(aggregate, requestID)
	}
	return s.detail(ctx, req)
}

func (s *Service) GetCoachRequest(ctx context.Context, coachID, requestID int64) (*RequestDetail, error) {
	req, err := NewRepository(s.db).GetRequest(ctx, requestID)
	if err != nil {
		return nil, mapNotFound(err, requestID)
	}
	if req.CoachID != coachID {
		return nil, apperr.NotFound(aggregate, requestID)
	}
	return s.detail(ctx, req)
}

func (s *Service) ListClientRequests(ctx context.Context, clientID int64, q ListQuery) ([]Request, int64, error) {
	return NewRepository(s.db).ListByClient(ctx, clientID, Status(q.Status), q.Limit, q.Offset)
}

// ListCoachPending hides requests that have lapsed but not been swept yet.
func (s *Service) ListCoachPending(ctx context.Context, coachID int64, q ListQuery) ([]Request, int64, error) {
	return NewRepository(s.db).ListPendingForCoach(ctx, coachID, s.now().UTC(), q.Limit, q.Offset)
}

func (s *Service) ListSessions(ctx context.Context, userID int64, q ListQuery) ([]Session, int64, error) {
	return NewRepository(s.db).ListSessions(ctx, userID, SessionStatus(q.Status), q.Limit, q.Offset)
}
