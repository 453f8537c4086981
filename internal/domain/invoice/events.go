package invoice

import (
	"time"

	"coachbook/internal/domain/payment"
)

// Event is the outbox payload for invoice lifecycle events. Amount is the
// total for created/sent/paid and the balance due for overdue reminders.
type Event struct {
	InvoiceID     int64     `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	CoachID       int64     `json:"coach_id"`
	ClientID      int64     `json:"client_id"`
	SessionID     int64     `json:"session_id,omitempty"`
	Status        Status    `json:"status"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	DueDate       time.Time `json:"due_date"`
}

func newEvent(inv *Invoice, amountCents int64) Event {
	evt := Event{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		CoachID:       inv.CoachID,
		ClientID:      inv.ClientID,
		Status:        inv.Status,
		Amount:        payment.FormatAmount(amountCents),
		Currency:      inv.Currency,
		DueDate:       inv.DueDate,
	}
	if inv.SessionID != nil {
		evt.SessionID = *inv.SessionID
	}
	return evt
}
