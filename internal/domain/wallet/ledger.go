package wallet

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"coachbook/internal/domain/payment"
	"coachbook/internal/outbox"
)

// LedgerHandler keeps coach wallets in step with payment events.
type LedgerHandler struct {
	service *Service
	log     *zap.Logger
}

func NewLedgerHandler(service *Service, log *zap.Logger) *LedgerHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LedgerHandler{service: service, log: log}
}

func (h *LedgerHandler) Name() string { return "wallet_ledger" }

func (h *LedgerHandler) Handle(ctx context.Context, evt *outbox.Event) error {
	switch evt.EventType {
	case outbox.PaymentCompleted:
		var p payment.CompletedEvent
		if err := evt.Decode(&p); err != nil {
			h.log.Error("wallet ledger: bad payment.completed payload", zap.String("event_id", evt.ID.String()), zap.Error(err))
			return nil
		}
		if p.CoachEarningsCents <= 0 {
			return nil
		}
		paymentID := p.PaymentID
		_, applied, err := h.service.Credit(ctx, p.CoachID, p.CoachEarningsCents, fmt.Sprintf("payment:%d", p.PaymentID), &paymentID)
		if err != nil {
			return fmt.Errorf("credit coach %d: %w", p.CoachID, err)
		}
		if applied {
			h.log.Info("coach earnings credited", zap.Int64("coach_id", p.CoachID), zap.Int64("payment_id", p.PaymentID), zap.Int64("amount_cents", p.CoachEarningsCents))
		}

	case outbox.PaymentRefunded:
		var p payment.RefundedEvent
		if err := evt.Decode(&p); err != nil {
			h.log.Error("wallet ledger: bad payment.refunded payload", zap.String("event_id", evt.ID.String()), zap.Error(err))
			return nil
		}
		if p.EarningsReversalCents <= 0 {
			return nil
		}
		paymentID := p.PaymentID
		if _, _, err := h.service.Reverse(ctx, p.CoachID, p.EarningsReversalCents, fmt.Sprintf("refund:%d", p.RefundID), &paymentID); err != nil {
			return fmt.Errorf("reverse coach %d: %w", p.CoachID, err)
		}
	}
	return nil
}
