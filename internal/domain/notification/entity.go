package notification

import "time"

// Type is the user-facing notification kind. Values mirror outbox event types.
type Type string

const (
	TypeBookingRequested Type = "booking.request_created"
	TypeBookingAccepted  Type = "booking.accepted"
	TypeBookingRejected  Type = "booking.rejected"
	TypeBookingExpired   Type = "booking.expired"
	TypeBookingConfirmed Type = "booking.confirmed"
	TypePaymentReminder  Type = "booking.payment_reminder"
	TypeSessionCompleted Type = "session.completed"
	TypePaymentCompleted Type = "payment.completed"
	TypePaymentFailed    Type = "payment.failed"
	TypePaymentRefunded  Type = "payment.refunded"
	TypeInvoiceSent      Type = "invoice.sent"
	TypeInvoicePaid      Type = "invoice.paid"
	TypeInvoiceOverdue   Type = "invoice.overdue_reminder"
	TypeInvoiceCancelled Type = "invoice.cancelled"
	TypeInvoiceRefunded  Type = "invoice.refunded"
	TypeSessionReminder  Type = "session.reminder"
)

// Notification represents a user notification
type Notification struct {
	ID        int64      `json:"id" gorm:"primaryKey"`
	UserID    int64      `json:"user_id" gorm:"not null;index:idx_notifications_user_unread;uniqueIndex:idx_notifications_source"`
	Type      Type       `json:"type" gorm:"size:64;not null"`
	Title     string     `json:"title" gorm:"size:255;not null"`
	Message   string     `json:"message" gorm:"type:text"`
	Data      string     `json:"data,omitempty" gorm:"type:text"`
	SourceID  *string    `json:"-" gorm:"size:64;uniqueIndex:idx_notifications_source"`
	IsRead    bool       `json:"is_read" gorm:"not null;default:false;index:idx_notifications_user_unread"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at" gorm:"index"`
}

func (Notification) TableName() string {
	return "notifications"
}

type ListResponse struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int64          `json:"unread_count"`
	Total         int64          `json:"total"`
}
