package invoice

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Create inserts the invoice and its items.
func (r *Repository) Create(ctx context.Context, inv *Invoice) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Invoice, error) {
	var inv Invoice
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC, id ASC") }).
		First(&inv, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *Repository) GetByIDForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	var inv Invoice
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&inv, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *Repository) GetBySession(ctx context.Context, sessionID int64) (*Invoice, error) {
	var inv Invoice
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// GetByPaymentIDForUpdate locks the invoice billed for a gateway payment.
func (r *Repository) GetByPaymentIDForUpdate(ctx context.Context, paymentID int64) (*Invoice, error) {
	var inv Invoice
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payment_id = ?", paymentID).
		Order("id ASC").
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// HasPaymentReference reports whether a payment row with reference exists on
// the invoice.
func (r *Repository) HasPaymentReference(ctx context.Context, invoiceID int64, reference string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Payment{}).
		Where("invoice_id = ? AND reference = ?", invoiceID, reference).
		Count(&n).Error
	return n > 0, err
}

// SaveRefund writes the refund columns of inv back under the caller's lock.
func (r *Repository) SaveRefund(ctx context.Context, inv *Invoice) error {
	return r.db.WithContext(ctx).Model(&Invoice{}).
		Where("id = ?", inv.ID).
		Updates(map[string]any{
			"refunded_cents":    inv.RefundedCents,
			"balance_due_cents": inv.BalanceDueCents,
			"status":            inv.Status,
			"updated_at":        time.Now().UTC(),
		}).Error
}

// Cancel is a compare-and-swap to cancelled for invoices nobody has paid.
func (r *Repository) Cancel(ctx context.Context, id int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Invoice{}).
		Where("id = ? AND status IN ? AND amount_paid_cents = 0", id, cancellable).
		Updates(map[string]any{"status": StatusCancelled, "balance_due_cents": 0, "updated_at": at})
	return res.RowsAffected == 1, res.Error
}

// SavePayment writes the payment columns of inv back under the row lock the
// caller already holds.
func (r *Repository) SavePayment(ctx context.Context, inv *Invoice) error {
	return r.db.WithContext(ctx).Model(&Invoice{}).
		Where("id = ?", inv.ID).
		Updates(map[string]any{
			"amount_paid_cents": inv.AmountPaidCents,
			"balance_due_cents": inv.BalanceDueCents,
			"status":            inv.Status,
			"paid_date":         inv.PaidDate,
			"updated_at":        time.Now().UTC(),
		}).Error
}

func (r *Repository) AddPayment(ctx context.Context, p *Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *Repository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	var out []Payment
	err := r.db.WithContext(ctx).Where("invoice_id = ?", invoiceID).Order("paid_at ASC, id ASC").Find(&out).Error
	return out, err
}

// MarkSent flips draft/pending to sent. Other statuses only get sent_at.
func (r *Repository) MarkSent(ctx context.Context, id int64, at time.Time) error {
	db := r.db.WithContext(ctx)
	err := db.Model(&Invoice{}).
		Where("id = ? AND status IN ?", id, []Status{StatusDraft, StatusPending}).
		Updates(map[string]any{"status": StatusSent, "sent_at": at, "updated_at": at}).Error
	if err != nil {
		return err
	}
	return db.Model(&Invoice{}).Where("id = ?", id).
		Updates(map[string]any{"sent_at": at, "updated_at": at}).Error
}

// ListDueForOverdue returns ids of open invoices whose due date is before cutoff.
func (r *Repository) ListDueForOverdue(ctx context.Context, cutoff time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&Invoice{}).
		Where("status IN ? AND due_date < ?", []Status{StatusPending, StatusSent}, cutoff).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// MarkOverdue is a compare-and-swap from pending or sent.
func (r *Repository) MarkOverdue(ctx context.Context, id int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Invoice{}).
		Where("id = ? AND status IN ?", id, []Status{StatusPending, StatusSent}).
		Updates(map[string]any{"status": StatusOverdue, "updated_at": at})
	return res.RowsAffected == 1, res.Error
}

func (r *Repository) ListOverdueWithBalance(ctx context.Context) ([]Invoice, error) {
	var out []Invoice
	err := r.db.WithContext(ctx).
		Where("status = ? AND balance_due_cents > 0", StatusOverdue).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// ClaimReminder inserts the dedup row. False means a reminder of this type
// already went out for the invoice on that date.
func (r *Repository) ClaimReminder(ctx context.Context, invoiceID int64, reminderType, date string, at time.Time) (bool, error) {
	rem := Reminder{InvoiceID: invoiceID, ReminderType: reminderType, ReminderDate: date, SentAt: at}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rem)
	return res.RowsAffected == 1, res.Error
}

type ListFilter struct {
	CoachID  int64
	ClientID int64
	Status   Status
	Limit    int
	Offset   int
}

func (r *Repository) List(ctx context.Context, f ListFilter) ([]Invoice, int64, error) {
	q := r.db.WithContext(ctx).Model(&Invoice{})
	if f.CoachID > 0 {
		q = q.Where("coach_id = ?", f.CoachID)
	}
	if f.ClientID > 0 {
		q = q.Where("client_id = ?", f.ClientID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []Invoice
	err := q.Order("issue_date DESC, id DESC").Limit(limit).Offset(f.Offset).Find(&out).Error
	return out, total, err
}

type StatusTotals struct {
	Status      Status
	Count       int64
	Total       int64
	Paid        int64
	Refunded    int64
	Outstanding int64
}

func (r *Repository) Metrics(ctx context.Context, coachID int64) ([]StatusTotals, error) {
	q := r.db.WithContext(ctx).Model(&Invoice{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total_cents),0) AS total, " +
			"COALESCE(SUM(amount_paid_cents),0) AS paid, COALESCE(SUM(refunded_cents),0) AS refunded, " +
			"COALESCE(SUM(balance_due_cents),0) AS outstanding")
	if coachID > 0 {
		q = q.Where("coach_id = ?", coachID)
	}
	var rows []StatusTotals
	err := q.Group("status").Scan(&rows).Error
	return rows, err
}

func (r *Repository) CreateRecurring(ctx context.Context, ri *RecurringInvoice) error {
	return r.db.WithContext(ctx).Create(ri).Error
}

// ListDueRecurring returns ids of active templates whose next date is on or
// before today.
func (r *Repository) ListDueRecurring(ctx context.Context, today time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&RecurringInvoice{}).
		Where("is_active = ? AND next_invoice_date <= ?", true, today).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *Repository) GetRecurringForUpdate(ctx context.Context, id int64) (*RecurringInvoice, error) {
	var ri RecurringInvoice
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC, id ASC") }).
		First(&ri, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecurringNotFound
		}
		return nil, err
	}
	return &ri, nil
}

// AdvanceRecurring moves the template forward only if nobody else did since
// it was read.
func (r *Repository) AdvanceRecurring(ctx context.Context, id int64, prev, next time.Time, active bool, lastInvoiceID *int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&RecurringInvoice{}).
		Where("id = ? AND next_invoice_date = ?", id, prev).
		Updates(map[string]any{
			"next_invoice_date": next,
			"is_active":         active,
			"last_invoice_id":   lastInvoiceID,
			"updated_at":        time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}
