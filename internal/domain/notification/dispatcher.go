package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"coachbook/internal/outbox"
)

// eventPayload is the subset of outbox payload fields used for message text.
type eventPayload struct {
	BookingRequestID int64      `json:"booking_request_id"`
	SessionID        int64      `json:"session_id"`
	SessionType      string     `json:"session_type"`
	InvoiceID        int64      `json:"invoice_id"`
	InvoiceNumber    string     `json:"invoice_number"`
	Amount           string     `json:"amount"`
	Currency         string     `json:"currency"`
	Reason           string     `json:"reason"`
	ScheduledAt      *time.Time `json:"scheduled_at"`
	PaymentDeadline  *time.Time `json:"payment_deadline"`
}

// Dispatcher turns relayed outbox events into stored notifications.
type Dispatcher struct {
	service *Service
	log     *zap.Logger
}

func NewDispatcher(service *Service, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{service: service, log: log}
}

func (d *Dispatcher) Name() string { return "notifications" }

func (d *Dispatcher) Handle(ctx context.Context, evt *outbox.Event) error {
	var p eventPayload
	if err := evt.Decode(&p); err != nil {
		// malformed payloads never become deliverable
		d.log.Error("notification dispatcher: bad payload", zap.String("event_id", evt.ID.String()), zap.Error(err))
		return nil
	}

	title, message, ok := render(evt.EventType, p)
	if !ok {
		return nil
	}

	for _, userID := range evt.RecipientIDs() {
		source := evt.ID.String()
		_, err := d.service.Create(ctx, &Notification{
			UserID:   userID,
			Type:     Type(evt.EventType),
			Title:    title,
			Message:  message,
			Data:     evt.Payload,
			SourceID: &source,
		})
		if err != nil {
			return fmt.Errorf("notify user %d: %w", userID, err)
		}
	}
	return nil
}

func render(eventType string, p eventPayload) (string, string, bool) {
	switch eventType {
	case outbox.BookingRequestCreated:
		return "New booking request", fmt.Sprintf("A client requested a %s session (request #%d).", p.SessionType, p.BookingRequestID), true
	case outbox.BookingAccepted:
		msg := fmt.Sprintf("Your booking request #%d was accepted. Amount due: %s %s.", p.BookingRequestID, p.Amount, p.Currency)
		if p.PaymentDeadline != nil {
			msg += " Pay before " + p.PaymentDeadline.UTC().Format("2006-01-02 15:04 MST") + "."
		}
		return "Booking accepted", msg, true
	case outbox.BookingRejected:
		msg := fmt.Sprintf("Your booking request #%d was declined.", p.BookingRequestID)
		if p.Reason != "" {
			msg += " Reason: " + p.Reason
		}
		return "Booking declined", msg, true
	case outbox.BookingExpired:
		return "Booking request expired", fmt.Sprintf("Booking request #%d expired.", p.BookingRequestID), true
	case outbox.BookingPaymentReminder:
		msg := fmt.Sprintf("Payment for booking request #%d is still pending.", p.BookingRequestID)
		if p.PaymentDeadline != nil {
			msg += " The deadline is " + p.PaymentDeadline.UTC().Format("2006-01-02 15:04 MST") + "."
		}
		return "Payment reminder", msg, true
	case outbox.BookingConfirmed:
		msg := fmt.Sprintf("Session #%d is confirmed.", p.SessionID)
		if p.ScheduledAt != nil {
			msg = fmt.Sprintf("Session #%d is confirmed for %s.", p.SessionID, p.ScheduledAt.UTC().Format("2006-01-02 15:04 MST"))
		}
		return "Booking confirmed", msg, true
	case outbox.PaymentCompleted:
		return "Payment received", fmt.Sprintf("Payment of %s %s received.", p.Amount, p.Currency), true
	case outbox.PaymentFailed:
		msg := fmt.Sprintf("Payment for booking request #%d did not go through.", p.BookingRequestID)
		if p.Reason != "" {
			msg += " " + p.Reason
		}
		return "Payment failed", msg, true
	case outbox.PaymentRefunded:
		return "Payment refunded", fmt.Sprintf("A refund of %s %s was issued.", p.Amount, p.Currency), true
	case outbox.SessionCompleted:
		return "Session completed", fmt.Sprintf("Session #%d was marked completed.", p.SessionID), true
	case outbox.InvoiceSent:
		return "New invoice", fmt.Sprintf("Invoice %s for %s %s was issued.", p.InvoiceNumber, p.Amount, p.Currency), true
	case outbox.InvoicePaid:
		return "Invoice paid", fmt.Sprintf("Invoice %s is paid in full.", p.InvoiceNumber), true
	case outbox.InvoiceOverdueReminder:
		return "Invoice overdue", fmt.Sprintf("Invoice %s is overdue. Balance due: %s %s.", p.InvoiceNumber, p.Amount, p.Currency), true
	case outbox.InvoiceCancelled:
		return "Invoice cancelled", fmt.Sprintf("Invoice %s was cancelled. Nothing is due.", p.InvoiceNumber), true
	case outbox.InvoiceRefunded:
		return "Invoice refunded", fmt.Sprintf("Invoice %s was refunded: %s %s.", p.InvoiceNumber, p.Amount, p.Currency), true
	}
	return "", "", false
}
