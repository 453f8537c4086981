package payment

// CompletedEvent is the payload of payment.completed. It is emitted once the
// gateway reports the money as captured.
type CompletedEvent struct {
	PaymentID          int64  `json:"payment_id"`
	BookingRequestID   int64  `json:"booking_request_id"`
	ClientID           int64  `json:"client_id"`
	CoachID            int64  `json:"coach_id"`
	AmountCents        int64  `json:"amount_cents"`
	PlatformFeeCents   int64  `json:"platform_fee_cents"`
	CoachEarningsCents int64  `json:"coach_earnings_cents"`
	Amount             string `json:"amount"`
	Currency           string `json:"currency"`
	GatewayPaymentID   string `json:"gateway_payment_id"`
}

func NewCompletedEvent(p *Payment) CompletedEvent {
	return CompletedEvent{
		PaymentID:          p.ID,
		BookingRequestID:   p.BookingRequestID,
		ClientID:           p.ClientID,
		CoachID:            p.CoachID,
		AmountCents:        p.AmountCents,
		PlatformFeeCents:   p.PlatformFeeCents,
		CoachEarningsCents: p.CoachEarningsCents,
		Amount:             FormatAmount(p.AmountCents),
		Currency:           p.Currency,
		GatewayPaymentID:   p.GatewayPaymentID,
	}
}

type RefundedEvent struct {
	PaymentID             int64  `json:"payment_id"`
	RefundID              int64  `json:"refund_id"`
	BookingRequestID      int64  `json:"booking_request_id"`
	ClientID              int64  `json:"client_id"`
	CoachID               int64  `json:"coach_id"`
	AmountCents           int64  `json:"amount_cents"`
	EarningsReversalCents int64  `json:"earnings_reversal_cents"`
	FullyRefunded         bool   `json:"fully_refunded"`
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
}

type FailedEvent struct {
	PaymentID        int64  `json:"payment_id"`
	BookingRequestID int64  `json:"booking_request_id"`
	Reason           string `json:"reason"`
}
