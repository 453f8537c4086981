package booking

import (
	"time"

	"coachbook/internal/domain/payment"
)

// eventPayload is the outbox body for booking and session events.
type eventPayload struct {
	BookingRequestID int64      `json:"booking_request_id"`
	SessionID        int64      `json:"session_id,omitempty"`
	PaymentID        int64      `json:"payment_id,omitempty"`
	ClientID         int64      `json:"client_id"`
	CoachID          int64      `json:"coach_id"`
	SessionType      string     `json:"session_type"`
	Status           Status     `json:"status"`
	Amount           string     `json:"amount,omitempty"`
	Currency         string     `json:"currency,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	PaymentDeadline  *time.Time `json:"payment_deadline,omitempty"`
	ScheduledAt      *time.Time `json:"scheduled_at,omitempty"`
}

func newPayload(req *Request) eventPayload {
	p := eventPayload{
		BookingRequestID: req.ID,
		ClientID:         req.ClientID,
		CoachID:          req.CoachID,
		SessionType:      string(req.SessionType),
		Status:           req.Status,
		PaymentDeadline:  req.PaymentDeadline,
	}
	if req.Status == StatusPending {
		exp := req.ExpiresAt
		p.ExpiresAt = &exp
	}
	if req.CoachAdjustedPriceCents != nil {
		p.Amount = payment.FormatAmount(*req.CoachAdjustedPriceCents)
	}
	return p
}

func (p eventPayload) withSession(s *Session) eventPayload {
	p.SessionID = s.ID
	p.PaymentID = s.PaymentID
	at := s.ScheduledAt
	p.ScheduledAt = &at
	return p
}
