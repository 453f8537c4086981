package invoice

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft         Status = "draft"
	StatusPending       Status = "pending"
	StatusSent          Status = "sent"
	StatusPaid          Status = "paid"
	StatusPartiallyPaid Status = "partially_paid"
	StatusOverdue       Status = "overdue"
	StatusCancelled     Status = "cancelled"
	StatusRefunded      Status = "refunded"
)

// AcceptsPayment reports whether money can still be applied.
func (s Status) AcceptsPayment() bool {
	return s != StatusCancelled && s != StatusRefunded
}

var cancellable = []Status{StatusDraft, StatusPending, StatusSent, StatusOverdue}

// Sendable excludes documents the client has nothing left to act on.
func (s Status) Sendable() bool {
	switch s {
	case StatusCancelled, StatusRefunded, StatusPaid:
		return false
	}
	return true
}

// Invoice amounts are integer cents. Totals are recomputed from items on
// create and from payments on RecordPayment. RefundedCents mirrors gateway
// refunds of the linked payment.
type Invoice struct {
	ID                 int64           `json:"id" gorm:"primaryKey"`
	InvoiceNumber      string          `json:"invoice_number" gorm:"size:32;not null;uniqueIndex:idx_invoice_coach_number"`
	CoachID            int64           `json:"coach_id" gorm:"not null;index;uniqueIndex:idx_invoice_coach_number"`
	ClientID           int64           `json:"client_id" gorm:"not null;index"`
	BookingID          *int64          `json:"booking_id,omitempty" gorm:"index"`
	SessionID          *int64          `json:"session_id,omitempty" gorm:"uniqueIndex"`
	PaymentID          *int64          `json:"payment_id,omitempty" gorm:"index"`
	RecurringInvoiceID *int64          `json:"recurring_invoice_id,omitempty" gorm:"index"`
	Status             Status          `json:"status" gorm:"size:16;not null;index"`
	IssueDate          time.Time       `json:"issue_date" gorm:"not null"`
	DueDate            time.Time       `json:"due_date" gorm:"not null;index"`
	PaidDate           *time.Time      `json:"paid_date,omitempty"`
	SentAt             *time.Time      `json:"sent_at,omitempty"`
	SubtotalCents      int64           `json:"subtotal_cents" gorm:"not null"`
	TaxRate            decimal.Decimal `json:"tax_rate" gorm:"type:numeric(6,3);not null;default:0"`
	TaxAmountCents     int64           `json:"tax_amount_cents" gorm:"not null"`
	DiscountCents      int64           `json:"discount_cents" gorm:"not null;default:0"`
	TotalCents         int64           `json:"total_cents" gorm:"not null"`
	AmountPaidCents    int64           `json:"amount_paid_cents" gorm:"not null;default:0"`
	RefundedCents      int64           `json:"refunded_cents" gorm:"not null;default:0"`
	BalanceDueCents    int64           `json:"balance_due_cents" gorm:"not null"`
	Currency           string          `json:"currency" gorm:"size:3;not null"`
	Notes              string          `json:"notes,omitempty" gorm:"type:text"`
	Terms              string          `json:"terms,omitempty" gorm:"type:text"`
	Items              []Item          `json:"items,omitempty" gorm:"foreignKey:InvoiceID"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

type Item struct {
	ID             int64           `json:"id" gorm:"primaryKey"`
	InvoiceID      int64           `json:"invoice_id" gorm:"not null;index"`
	Description    string          `json:"description" gorm:"size:500;not null"`
	Quantity       decimal.Decimal `json:"quantity" gorm:"type:numeric(10,2);not null"`
	UnitPriceCents int64           `json:"unit_price_cents" gorm:"not null"`
	DiscountCents  int64           `json:"discount_cents" gorm:"not null;default:0"`
	TaxRate        decimal.Decimal `json:"tax_rate" gorm:"type:numeric(6,3);not null;default:0"`
	TaxAmountCents int64           `json:"tax_amount_cents" gorm:"not null;default:0"`
	AmountCents    int64           `json:"amount_cents" gorm:"not null"`
	SortOrder      int             `json:"sort_order" gorm:"not null;default:0"`
}

func (Item) TableName() string { return "invoice_items" }

// Payment is money applied against an invoice. PaymentID links a gateway
// payment; manual payments leave it nil.
type Payment struct {
	ID            int64     `json:"id" gorm:"primaryKey"`
	InvoiceID     int64     `json:"invoice_id" gorm:"not null;index"`
	PaymentID     *int64    `json:"payment_id,omitempty" gorm:"index"`
	AmountCents   int64     `json:"amount_cents" gorm:"not null"`
	PaymentMethod string    `json:"payment_method" gorm:"size:32;not null"`
	Reference     string    `json:"reference,omitempty" gorm:"size:255"`
	Notes         string    `json:"notes,omitempty" gorm:"type:text"`
	IsOverpayment bool      `json:"is_overpayment" gorm:"not null;default:false"`
	RecordedBy    int64     `json:"recorded_by"`
	PaidAt        time.Time `json:"paid_at" gorm:"not null"`
	CreatedAt     time.Time `json:"created_at"`
}

func (Payment) TableName() string { return "invoice_payments" }

type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyAnnually  Frequency = "annually"
)

// Advance moves t one period forward. Month based periods use calendar
// arithmetic, so Jan 31 plus one month normalises into March.
func (f Frequency) Advance(t time.Time) (time.Time, error) {
	switch f {
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7), nil
	case FrequencyBiweekly:
		return t.AddDate(0, 0, 14), nil
	case FrequencyMonthly:
		return t.AddDate(0, 1, 0), nil
	case FrequencyQuarterly:
		return t.AddDate(0, 3, 0), nil
	case FrequencyAnnually:
		return t.AddDate(1, 0, 0), nil
	}
	return t, fmt.Errorf("%w: %q", ErrUnknownFrequency, f)
}

type RecurringInvoice struct {
	ID              int64           `json:"id" gorm:"primaryKey"`
	CoachID         int64           `json:"coach_id" gorm:"not null;index"`
	ClientID        int64           `json:"client_id" gorm:"not null;index"`
	Frequency       Frequency       `json:"frequency" gorm:"size:16;not null"`
	StartDate       time.Time       `json:"start_date" gorm:"not null"`
	NextInvoiceDate time.Time       `json:"next_invoice_date" gorm:"not null;index"`
	EndDate         *time.Time      `json:"end_date,omitempty"`
	IsActive        bool            `json:"is_active" gorm:"not null;default:true;index"`
	TaxRate         decimal.Decimal `json:"tax_rate" gorm:"type:numeric(6,3);not null;default:0"`
	DiscountCents   int64           `json:"discount_cents" gorm:"not null;default:0"`
	DueDays         int             `json:"due_days" gorm:"not null"`
	Notes           string          `json:"notes,omitempty" gorm:"type:text"`
	Terms           string          `json:"terms,omitempty" gorm:"type:text"`
	LastInvoiceID   *int64          `json:"last_invoice_id,omitempty"`
	Items           []RecurringItem `json:"items,omitempty" gorm:"foreignKey:RecurringInvoiceID"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (RecurringInvoice) TableName() string { return "recurring_invoices" }

type RecurringItem struct {
	ID                 int64           `json:"id" gorm:"primaryKey"`
	RecurringInvoiceID int64           `json:"recurring_invoice_id" gorm:"not null;index"`
	Description        string          `json:"description" gorm:"size:500;not null"`
	Quantity           decimal.Decimal `json:"quantity" gorm:"type:numeric(10,2);not null"`
	UnitPriceCents     int64           `json:"unit_price_cents" gorm:"not null"`
	DiscountCents      int64           `json:"discount_cents" gorm:"not null;default:0"`
	TaxRate            decimal.Decimal `json:"tax_rate" gorm:"type:numeric(6,3);not null;default:0"`
	SortOrder          int             `json:"sort_order" gorm:"not null;default:0"`
}

func (RecurringItem) TableName() string { return "recurring_invoice_items" }

// Sequence is the per coach, per month numbering counter.
type Sequence struct {
	CoachID   int64  `gorm:"primaryKey;autoIncrement:false"`
	Period    string `gorm:"primaryKey;size:6"`
	LastValue int64  `gorm:"not null"`
}

func (Sequence) TableName() string { return "invoice_sequences" }

// Reminder rows make the overdue sweep idempotent within a calendar day.
type Reminder struct {
	ID           int64     `gorm:"primaryKey"`
	InvoiceID    int64     `gorm:"not null;uniqueIndex:idx_invoice_reminder_day"`
	ReminderType string    `gorm:"size:32;not null;uniqueIndex:idx_invoice_reminder_day"`
	ReminderDate string    `gorm:"size:10;not null;uniqueIndex:idx_invoice_reminder_day"`
	SentAt       time.Time `gorm:"not null"`
}

func (Reminder) TableName() string { return "invoice_reminders" }

const ReminderOverdue = "overdue"

func Models() []any {
	return []any{
		&Invoice{}, &Item{}, &Payment{},
		&RecurringInvoice{}, &RecurringItem{},
		&Sequence{}, &Reminder{},
	}
}

// Metrics summarises invoices for a coach, or platform wide for admins.
type Metrics struct {
	Counts           map[Status]int64 `json:"counts"`
	InvoicedCents    int64            `json:"invoiced_cents"`
	CollectedCents   int64            `json:"collected_cents"`
	OutstandingCents int64            `json:"outstanding_cents"`
	OverdueCents     int64            `json:"overdue_cents"`
	Currency         string           `json:"currency"`
}
