package booking

import (
	"context"
	"time"

	"coachbook/internal/domain/invoice"
	"coachbook/internal/domain/payment"
	"coachbook/internal/domain/profile"
)

// Payments is the slice of the payment orchestrator the booking flow needs.
type Payments interface {
	GetOrCreateCustomer(ctx context.Context, userID int64, details payment.CustomerDetails) (string, error)
	Charge(ctx context.Context, req payment.ChargeRequest) (*payment.PaymentResult, error)
	Currency() string
}

type Directory interface {
	GetUser(ctx context.Context, id int64) (*profile.User, error)
	GetClientProfile(ctx context.Context, userID int64) (*profile.ClientProfile, error)
	GetActiveCoach(ctx context.Context, userID int64) (*profile.CoachProfile, error)
	GetCoachRate(ctx context.Context, coachID, rateID int64) (*profile.CoachRate, error)
}

// ReminderScheduler queues reminders ahead of a confirmed session.
type ReminderScheduler interface {
	ScheduleSessionReminders(ctx context.Context, sessionID int64, scheduledAt time.Time, userIDs ...int64) error
}

type Invoicer interface {
	BillSession(ctx context.Context, in invoice.SessionInput) (*invoice.Invoice, error)
}
