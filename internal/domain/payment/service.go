package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"coachbook/internal/outbox"
	"coachbook/internal/pkg/apperr"
	"coachbook/internal/pkg/jwt"
)

type Service struct {
	db        *gorm.DB
	gateway   Gateway
	verifier  WebhookVerifier
	customers CustomerLinkStore
	currency  string
	log       *zap.Logger
	now       func() time.Time
}

func NewService(db *gorm.DB, gateway Gateway, verifier WebhookVerifier, customers CustomerLinkStore, currency string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if currency == "" {
		currency = "USD"
	}
	return &Service{
		db:        db,
		gateway:   gateway,
		verifier:  verifier,
		customers: customers,
		currency:  currency,
		log:       log,
		now:       time.Now,
	}
}

func (s *Service) Currency() string { return s.currency }

// Charge captures immediately. The returned status is succeeded only when the
// gateway completed the payment in the same call.
func (s *Service) Charge(ctx context.Context, req ChargeRequest) (*PaymentResult, error) {
	if req.AmountCents <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}
	if req.SourceID == "" {
		return nil, apperr.Validation("source_id is required")
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = NewIdempotencyKey("pay")
	}
	if req.Currency == "" {
		req.Currency = s.currency
	}

	res, err := s.gateway.CreatePayment(ctx, req)
	if err != nil {
		s.log.Warn("gateway charge failed",
			zap.String("reference_id", req.ReferenceID),
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Error(err),
		)
		return nil, &apperr.GatewayError{Op: "create_payment", Err: err}
	}
	if res.Status == StatusFailed {
		return nil, &apperr.GatewayError{Op: "create_payment", Err: fmt.Errorf("%w: %s", ErrPaymentIncomplete, res.FailureReason)}
	}
	if res.Status != StatusSucceeded {
		res.Status = StatusProcessing
	}
	res.IdempotencyKey = req.IdempotencyKey
	if res.Currency == "" {
		res.Currency = req.Currency
	}
	return res, nil
}

// GetOrCreateCustomer returns the gateway customer for userID, replacing a
// stored link the gateway no longer recognises.
func (s *Service) GetOrCreateCustomer(ctx context.Context, userID int64, details CustomerDetails) (string, error) {
	link, err := s.customers.GatewayCustomerID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load customer link: %w", err)
	}

	if link != "" {
		_, err := s.gateway.GetCustomer(ctx, link)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, ErrCustomerNotFound) {
			return "", &apperr.GatewayError{Op: "get_customer", Err: err}
		}
		s.log.Warn("stored gateway customer no longer exists, recreating",
			zap.Int64("user_id", userID),
			zap.String("gateway_customer_id", link),
		)
	}

	if details.ReferenceID == "" {
		details.ReferenceID = "user-" + strconv.FormatInt(userID, 10)
	}
	customer, err := s.gateway.CreateCustomer(ctx, details)
	if err != nil {
		return "", &apperr.GatewayError{Op: "create_customer", Err: err}
	}

	if err := s.customers.SetGatewayCustomerID(ctx, userID, customer.ID); err != nil {
		// the charge can still proceed; the next attempt creates a fresh customer
		s.log.Error("failed to store gateway customer link",
			zap.Int64("user_id", userID),
			zap.String("gateway_customer_id", customer.ID),
			zap.Error(err),
		)
	}
	return customer.ID, nil
}

// GetStatus returns a payment visible to its payer, its coach or an admin.
// A processing payment is refreshed from the gateway first.
func (s *Service) GetStatus(ctx context.Context, userID int64, role string, paymentID int64) (*Payment, error) {
	repo := NewRepository(s.db)
	p, err := repo.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, apperr.NotFound("payment", paymentID)
		}
		return nil, err
	}
	if role != jwt.RoleAdmin && p.ClientID != userID && p.CoachID != userID {
		return nil, fmt.Errorf("%w: payment %d belongs to another user", apperr.ErrForbidden, paymentID)
	}
	if p.Status != StatusProcessing {
		return p, nil
	}

	res, err := s.gateway.GetPayment(ctx, p.GatewayPaymentID)
	if err != nil {
		s.log.Warn("payment status refresh failed", zap.Int64("payment_id", p.ID), zap.Error(err))
		return p, nil
	}
	switch res.Status {
	case StatusSucceeded:
		if _, err := s.markSucceeded(ctx, p.GatewayPaymentID); err != nil {
			return nil, err
		}
	case StatusFailed:
		if _, err := s.markFailed(ctx, p.GatewayPaymentID, res.FailureReason); err != nil {
			return nil, err
		}
	default:
		return p, nil
	}
	return repo.GetByID(ctx, paymentID)
}

type RefundInput struct {
	PaymentID   int64  `json:"payment_id" binding:"required,gt=0"`
	AmountCents int64  `json:"amount_cents" binding:"required,gt=0"`
	Reason      string `json:"reason" binding:"max=500"`
}

// Refund returns part or all of a captured payment. The payment row stays
// locked for the gateway call so two admins cannot over-refund.
func (s *Service) Refund(ctx context.Context, adminID int64, in RefundInput) (*Refund, error) {
	if in.AmountCents <= 0 {
		return nil, apperr.Validation("amount_cents must be positive")
	}

	var refund Refund
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		p, err := repo.GetByIDForUpdate(ctx, in.PaymentID)
		if err != nil {
			if errors.Is(err, ErrPaymentNotFound) {
				return apperr.NotFound("payment", in.PaymentID)
			}
			return err
		}
		if p.Status != StatusSucceeded {
			return apperr.InvalidState("payment", p.ID, string(p.Status), "refund")
		}
		if in.AmountCents > p.Refundable() {
			return apperr.Validation("refund of %s exceeds refundable %s", FormatAmount(in.AmountCents), FormatAmount(p.Refundable()))
		}

		key := fmt.Sprintf("refund-%d-%d-%d", p.ID, p.RefundedCents, in.AmountCents)
		res, err := s.gateway.CreateRefund(ctx, RefundRequest{
			GatewayPaymentID: p.GatewayPaymentID,
			AmountCents:      in.AmountCents,
			IdempotencyKey:   key,
			Reason:           in.Reason,
		})
		if err != nil {
			return &apperr.GatewayError{Op: "create_refund", Err: err}
		}

		now := s.now().UTC()
		refund = Refund{
			PaymentID:       p.ID,
			AmountCents:     in.AmountCents,
			Reason:          in.Reason,
			GatewayRefundID: res.GatewayRefundID,
			Status:          res.Status,
			CreatedBy:       adminID,
			CreatedAt:       now,
		}
		if err := repo.CreateRefund(ctx, &refund); err != nil {
			return err
		}
		if err := repo.AddRefunded(ctx, p.ID, in.AmountCents, now); err != nil {
			return err
		}

		evt := RefundedEvent{
			PaymentID:             p.ID,
			RefundID:              refund.ID,
			BookingRequestID:      p.BookingRequestID,
			ClientID:              p.ClientID,
			CoachID:               p.CoachID,
			AmountCents:           in.AmountCents,
			EarningsReversalCents: proportional(p.CoachEarningsCents, in.AmountCents, p.AmountCents),
			FullyRefunded:         p.RefundedCents+in.AmountCents == p.AmountCents,
			Amount:                FormatAmount(in.AmountCents),
			Currency:              p.Currency,
		}
		return outbox.Emit(tx.WithContext(ctx), "payment", p.ID, outbox.PaymentRefunded, evt, p.ClientID, p.CoachID)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment refunded",
		zap.Int64("payment_id", in.PaymentID),
		zap.Int64("amount_cents", in.AmountCents),
		zap.Int64("admin_id", adminID),
	)
	return &refund, nil
}

// HandleWebhook verifies the signature before looking at the body.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	evt, err := s.verifier.Verify(payload, signatureHeader)
	if err != nil {
		s.log.Warn("webhook rejected", zap.Error(err))
		if errors.Is(err, ErrInvalidSignature) {
			return err
		}
		return apperr.Validation("malformed webhook: %v", err)
	}

	switch evt.Type {
	case WebhookPaymentSucceeded:
		changed, err := s.markSucceeded(ctx, evt.GatewayPaymentID)
		if errors.Is(err, ErrPaymentNotFound) {
			s.log.Warn("webhook for unknown payment", zap.String("event_id", evt.ID), zap.String("gateway_payment_id", evt.GatewayPaymentID))
			return nil
		}
		if err != nil {
			return err
		}
		if !changed {
			s.log.Info("idempotent webhook, payment already resolved", zap.String("gateway_payment_id", evt.GatewayPaymentID))
		}
	case WebhookPaymentFailed:
		_, err := s.markFailed(ctx, evt.GatewayPaymentID, evt.FailureReason)
		if errors.Is(err, ErrPaymentNotFound) {
			return nil
		}
		return err
	default:
		s.log.Debug("webhook event ignored", zap.String("type", evt.Type))
	}
	return nil
}

// markSucceeded settles a processing payment under a row lock and emits
// payment.completed in the same transaction.
func (s *Service) markSucceeded(ctx context.Context, gatewayPaymentID string) (bool, error) {
	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		p, err := repo.GetByGatewayIDForUpdate(ctx, gatewayPaymentID)
		if err != nil {
			return err
		}
		if p.Status != StatusProcessing {
			return nil
		}
		ok, err := repo.TransitionFromProcessing(ctx, p.ID, StatusSucceeded, "", s.now().UTC())
		if err != nil || !ok {
			return err
		}
		changed = true
		p.Status = StatusSucceeded
		return outbox.Emit(tx.WithContext(ctx), "payment", p.ID, outbox.PaymentCompleted, NewCompletedEvent(p), p.ClientID, p.CoachID)
	})
	return changed, err
}

func (s *Service) markFailed(ctx context.Context, gatewayPaymentID, reason string) (bool, error) {
	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		p, err := repo.GetByGatewayIDForUpdate(ctx, gatewayPaymentID)
		if err != nil {
			return err
		}
		if p.Status != StatusProcessing {
			return nil
		}
		ok, err := repo.TransitionFromProcessing(ctx, p.ID, StatusFailed, reason, s.now().UTC())
		if err != nil || !ok {
			return err
		}
		changed = true
		s.log.Error("captured booking payment failed at gateway",
			zap.Int64("payment_id", p.ID),
			zap.Int64("booking_request_id", p.BookingRequestID),
			zap.String("reason", reason),
		)
		return outbox.Emit(tx.WithContext(ctx), "payment", p.ID, outbox.PaymentFailed,
			FailedEvent{PaymentID: p.ID, BookingRequestID: p.BookingRequestID, Reason: reason},
			p.ClientID, p.CoachID)
	})
	return changed, err
}
