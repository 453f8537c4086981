package payment

import "time"

type Status string

const (
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Payment is one gateway charge. Amount and split are frozen at charge time;
// after success only refund bookkeeping changes.
type Payment struct {
	ID                 int64     `json:"id" gorm:"primaryKey"`
	BookingRequestID   int64     `json:"booking_request_id" gorm:"not null;index"`
	ClientID           int64     `json:"client_id" gorm:"not null;index"`
	CoachID            int64     `json:"coach_id" gorm:"not null;index"`
	AmountCents        int64     `json:"amount_cents" gorm:"not null"`
	PlatformFeeCents   int64     `json:"platform_fee_cents" gorm:"not null"`
	CoachEarningsCents int64     `json:"coach_earnings_cents" gorm:"not null"`
	Currency           string    `json:"currency" gorm:"size:3;not null"`
	Status             Status    `json:"status" gorm:"size:16;not null;index"`
	GatewayPaymentID   string    `json:"gateway_payment_id" gorm:"size:128;not null;uniqueIndex"`
	GatewayCustomerID  string    `json:"-" gorm:"size:128"`
	IdempotencyKey     string    `json:"-" gorm:"size:255;not null;uniqueIndex"`
	RefundedCents      int64     `json:"refunded_cents" gorm:"not null;default:0"`
	FailureReason      string    `json:"failure_reason,omitempty" gorm:"type:text"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// Refundable is what can still be returned to the client.
func (p *Payment) Refundable() int64 {
	return p.AmountCents - p.RefundedCents
}

type Refund struct {
	ID              int64     `json:"id" gorm:"primaryKey"`
	PaymentID       int64     `json:"payment_id" gorm:"not null;index"`
	AmountCents     int64     `json:"amount_cents" gorm:"not null"`
	Reason          string    `json:"reason" gorm:"type:text"`
	GatewayRefundID string    `json:"gateway_refund_id" gorm:"size:128;uniqueIndex"`
	Status          string    `json:"status" gorm:"size:32;not null"`
	CreatedBy       int64     `json:"created_by" gorm:"not null"`
	CreatedAt       time.Time `json:"created_at"`
}

func (Refund) TableName() string { return "payment_refunds" }

func Models() []any {
	return []any{&Payment{}, &Refund{}}
}
