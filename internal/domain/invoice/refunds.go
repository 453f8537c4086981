package invoice

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"coachbook/internal/domain/payment"
	"coachbook/internal/outbox"
)

// RefundHandler carries payment.refunded events onto session invoices.
type RefundHandler struct {
	service *Service
	log     *zap.Logger
}

func NewRefundHandler(service *Service, log *zap.Logger) *RefundHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RefundHandler{service: service, log: log}
}

func (h *RefundHandler) Name() string { return "invoice_refunds" }

func (h *RefundHandler) Handle(ctx context.Context, evt *outbox.Event) error {
	if evt.EventType != outbox.PaymentRefunded {
		return nil
	}
	var p payment.RefundedEvent
	if err := evt.Decode(&p); err != nil {
		h.log.Error("invoice refunds: bad payment.refunded payload", zap.String("event_id", evt.ID.String()), zap.Error(err))
		return nil
	}
	if p.AmountCents <= 0 {
		return nil
	}
	_, err := h.service.ApplyRefund(ctx, RefundInput{
		PaymentID:     p.PaymentID,
		RefundID:      p.RefundID,
		AmountCents:   p.AmountCents,
		FullyRefunded: p.FullyRefunded,
	})
	if err != nil {
		return fmt.Errorf("apply refund %d to invoice: %w", p.RefundID, err)
	}
	return nil
}
