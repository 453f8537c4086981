// Package outbox stores lifecycle events in the same transaction as the state
// change that caused them, and relays them to handlers after commit.
package outbox

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event types written by the domain services.
const (
	BookingRequestCreated  = "booking.request_created"
	BookingAccepted        = "booking.accepted"
	BookingRejected        = "booking.rejected"
	BookingExpired         = "booking.expired"
	BookingConfirmed       = "booking.confirmed"
	BookingPaymentReminder = "booking.payment_reminder"
	SessionCompleted       = "session.completed"
	PaymentCompleted       = "payment.completed"
	PaymentFailed          = "payment.failed"
	PaymentRefunded        = "payment.refunded"
	InvoiceCreated         = "invoice.created"
	InvoiceSent            = "invoice.sent"
	InvoicePaid            = "invoice.paid"
	InvoiceOverdueReminder = "invoice.overdue_reminder"
	InvoiceCancelled       = "invoice.cancelled"
	InvoiceRefunded        = "invoice.refunded"
)

type Event struct {
	ID            uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	AggregateType string     `json:"aggregate_type" gorm:"size:32;not null;index:idx_outbox_aggregate"`
	AggregateID   int64      `json:"aggregate_id" gorm:"not null;index:idx_outbox_aggregate"`
	EventType     string     `json:"event_type" gorm:"size:64;not null"`
	Payload       string     `json:"payload" gorm:"type:text;not null"`
	Recipients    string     `json:"recipients" gorm:"type:text"`
	CreatedAt     time.Time  `json:"created_at" gorm:"not null;index"`
	PublishedAt   *time.Time `json:"published_at,omitempty" gorm:"index"`
	Attempts      int        `json:"attempts" gorm:"not null;default:0"`
	LastError     string     `json:"last_error,omitempty" gorm:"type:text"`
	// NextAttemptAt delays a retry after a failed delivery.
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty" gorm:"index"`
	// ClaimedUntil is the lease a relay holds while delivering the event.
	ClaimedUntil *time.Time `json:"-" gorm:"index"`
}

func (Event) TableName() string { return "outbox_events" }

func (e *Event) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Delivery marks a handler as done with an event so retries skip it.
type Delivery struct {
	EventID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	Handler     string    `gorm:"size:64;primaryKey"`
	DeliveredAt time.Time `gorm:"not null"`
}

func (Delivery) TableName() string { return "outbox_deliveries" }

func Models() []any {
	return []any{&Event{}, &Delivery{}}
}

// New builds an event with a JSON payload addressed to the given users.
func New(aggregateType string, aggregateID int64, eventType string, payload any, recipients ...int64) (*Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("outbox: marshal %s payload: %w", eventType, err)
	}
	if recipients == nil {
		recipients = []int64{}
	}
	rcpt, err := json.Marshal(recipients)
	if err != nil {
		return nil, fmt.Errorf("outbox: marshal recipients: %w", err)
	}
	return &Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       string(body),
		Recipients:    string(rcpt),
	}, nil
}

// Append writes evt using tx. Callers pass the transaction that performs the
// state change so both commit or neither does.
func Append(tx *gorm.DB, evt *Event) error {
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	if err := tx.Create(evt).Error; err != nil {
		return fmt.Errorf("outbox: append %s: %w", evt.EventType, err)
	}
	return nil
}

// Emit is New followed by Append.
func Emit(tx *gorm.DB, aggregateType string, aggregateID int64, eventType string, payload any, recipients ...int64) error {
	evt, err := New(aggregateType, aggregateID, eventType, payload, recipients...)
	if err != nil {
		return err
	}
	return Append(tx, evt)
}

func (e *Event) Decode(v any) error {
	return json.Unmarshal([]byte(e.Payload), v)
}

func (e *Event) RecipientIDs() []int64 {
	var ids []int64
	if e.Recipients == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(e.Recipients), &ids); err != nil {
		return nil
	}
	return ids
}
