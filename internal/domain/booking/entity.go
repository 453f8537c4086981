package booking

import "time"

// Status is the lifecycle state of a booking request.
type Status string

const (
	StatusPending         Status = "pending"
	StatusPaymentRequired Status = "payment_required"
	StatusPaidConfirmed   Status = "paid_confirmed"
	StatusRejected        Status = "rejected"
	StatusExpired         Status = "expired"
)

var transitions = map[Status][]Status{
	StatusPending:         {StatusPaymentRequired, StatusRejected, StatusExpired},
	StatusPaymentRequired: {StatusPaidConfirmed, StatusExpired},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

type SessionType string

const (
	SessionIndividual SessionType = "individual"
	SessionGroup      SessionType = "group"
	SessionPackage    SessionType = "package"
)

// Request is a client's ask for a session. It is never deleted and serves as
// the anchor for the audit trail.
type Request struct {
	ID                      int64       `json:"id" gorm:"primaryKey"`
	ClientID                int64       `json:"client_id" gorm:"not null;index"`
	CoachID                 int64       `json:"coach_id" gorm:"not null;index:idx_booking_requests_coach_status"`
	SessionType             SessionType `json:"session_type" gorm:"size:16;not null"`
	DurationMinutes         int         `json:"duration_minutes" gorm:"not null"`
	PreferredDate           *string     `json:"preferred_date,omitempty" gorm:"size:10"`
	PreferredTime           *string     `json:"preferred_time,omitempty" gorm:"size:5"`
	Notes                   string      `json:"notes,omitempty" gorm:"type:text"`
	AreaOfFocus             string      `json:"area_of_focus,omitempty" gorm:"size:255"`
	Status                  Status      `json:"status" gorm:"size:20;not null;index:idx_booking_requests_coach_status"`
	CoachAdjustedPriceCents *int64      `json:"coach_adjusted_price_cents,omitempty"`
	CoachRateID             *int64      `json:"coach_rate_id,omitempty"`
	CoachNotes              *string     `json:"coach_notes,omitempty" gorm:"type:text"`
	RejectionReason         *string     `json:"rejection_reason,omitempty" gorm:"type:text"`
	ExpiresAt               time.Time   `json:"expires_at" gorm:"not null;index"`
	PaymentDeadline         *time.Time  `json:"payment_deadline,omitempty" gorm:"index"`
	CreatedAt               time.Time   `json:"created_at"`
	UpdatedAt               time.Time   `json:"updated_at"`
}

func (Request) TableName() string { return "booking_requests" }

type SessionStatus string

const (
	SessionConfirmed SessionStatus = "confirmed"
	SessionCompleted SessionStatus = "completed"
)

// Session is the confirmed appointment, one per paid request.
type Session struct {
	ID               int64         `json:"id" gorm:"primaryKey"`
	BookingRequestID int64         `json:"booking_request_id" gorm:"not null;uniqueIndex"`
	ClientID         int64         `json:"client_id" gorm:"not null;index"`
	CoachID          int64         `json:"coach_id" gorm:"not null;index"`
	PaymentID        int64         `json:"payment_id" gorm:"not null;index"`
	SessionType      SessionType   `json:"session_type" gorm:"size:16;not null"`
	ScheduledAt      time.Time     `json:"scheduled_at" gorm:"not null;index"`
	EndsAt           time.Time     `json:"ends_at" gorm:"not null"`
	DurationMinutes  int           `json:"duration_minutes" gorm:"not null"`
	Status           SessionStatus `json:"status" gorm:"size:16;not null;index"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	CompletionNotes  *string       `json:"completion_notes,omitempty" gorm:"type:text"`
	InvoiceID        *int64        `json:"invoice_id,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func (Session) TableName() string { return "coaching_sessions" }

type ActorType string

const (
	ActorClient ActorType = "client"
	ActorCoach  ActorType = "coach"
	ActorSystem ActorType = "system"
)

const (
	EventRequestCreated   = "request_created"
	EventCoachAccepted    = "coach_accepted"
	EventCoachRejected    = "coach_rejected"
	EventRequestExpired   = "request_expired"
	EventPaymentFailed    = "payment_failed"
	EventPaymentCompleted = "payment_completed"
	EventBookingConfirmed = "booking_confirmed"
	EventPaymentReminder  = "payment_reminder_sent"
	EventSessionCompleted = "session_completed"
	// EventCaptureUnfinalized marks money taken at the gateway that the
	// booking has not absorbed yet. Pay and the sweep finalize from it.
	EventCaptureUnfinalized = "capture_unfinalized"
)

// Event is the append-only audit row. Nothing updates or deletes it.
type Event struct {
	ID               int64     `json:"id" gorm:"primaryKey"`
	BookingRequestID int64     `json:"booking_request_id" gorm:"not null;index"`
	EventType        string    `json:"event_type" gorm:"size:32;not null;index"`
	ActorType        ActorType `json:"actor_type" gorm:"size:8;not null"`
	ActorID          *int64    `json:"actor_id,omitempty"`
	Details          string    `json:"details,omitempty" gorm:"type:text"`
	CreatedAt        time.Time `json:"created_at"`
}

func (Event) TableName() string { return "booking_events" }

// CapturedCharge is the details payload of a capture_unfinalized event.
type CapturedCharge struct {
	GatewayPaymentID string `json:"gateway_payment_id"`
	Status           string `json:"status"`
	AmountCents      int64  `json:"amount_cents"`
	Currency         string `json:"currency"`
	CustomerID       string `json:"customer_id"`
	IdempotencyKey   string `json:"idempotency_key"`
}

func Models() []any {
	return []any{&Request{}, &Session{}, &Event{}}
}

// RequestDetail is a request together with what it produced.
type RequestDetail struct {
	Request
	Session *Session `json:"session,omitempty"`
	Events  []Event  `json:"events,omitempty"`
}
