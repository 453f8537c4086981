package booking

import (
	"coachbook/internal/domain/payment"
)

type CreateRequestInput struct {
	CoachID         int64       `json:"coach_id" validate:"required,gt=0"`
	SessionType     SessionType `json:"session_type" validate:"required,oneof=individual group package"`
	DurationMinutes int         `json:"duration_minutes" validate:"required,min=15,max=480"`
	PreferredDate   *string     `json:"preferred_date,omitempty" validate:"omitempty,isodate"`
	PreferredTime   *string     `json:"preferred_time,omitempty" validate:"omitempty,hhmm"`
	Notes           string      `json:"notes,omitempty" validate:"max=2000"`
	AreaOfFocus     string      `json:"area_of_focus,omitempty" validate:"max=255"`
}

type AcceptInput struct {
	FinalPriceCents int64   `json:"final_price_cents" validate:"gt=0"`
	CoachRateID     *int64  `json:"coach_rate_id,omitempty" validate:"omitempty,gt=0"`
	CoachNotes      *string `json:"coach_notes,omitempty" validate:"omitempty,max=2000"`
}

type RejectInput struct {
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=2000"`
}

// BillingDetails overrides the profile when creating the gateway customer.
type BillingDetails struct {
	Name  string `json:"name" validate:"max=255"`
	Email string `json:"email" validate:"omitempty,email"`
}

type PayInput struct {
	SourceID       string          `json:"source_id" validate:"required,max=255"`
	BillingDetails *BillingDetails `json:"billing_details,omitempty"`
}

type PayResult struct {
	Request *Request         `json:"booking_request"`
	Session *Session         `json:"session"`
	Payment *payment.Payment `json:"payment"`
}

type CompleteInput struct {
	Notes *string `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

type ListQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

type createdResponse struct {
	ID        int64  `json:"id"`
	Status    Status `json:"status"`
	ExpiresAt string `json:"expires_at"`
}

type listResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}
