package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"coachbook/internal/database"
	"coachbook/internal/domain/profile"
	"coachbook/internal/outbox"
	"coachbook/internal/pkg/apperr"
	"coachbook/internal/pkg/jwt"
)

const dateLayout = "2006-01-02"

var errTemplateMoved = errors.New("recurring template advanced concurrently")

// Directory resolves the people printed on and emailed an invoice.
type Directory interface {
	GetUser(ctx context.Context, id int64) (*profile.User, error)
}

type Options struct {
	Currency string
	DueDays  int
	Terms    string
}

type Service struct {
	db        *gorm.DB
	renderer  Renderer
	mailer    Mailer
	directory Directory
	opts      Options
	log       *zap.Logger
	now       func() time.Time
}

func NewService(db *gorm.DB, renderer Renderer, mailer Mailer, directory Directory, opts Options, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.DueDays <= 0 {
		opts.DueDays = 14
	}
	return &Service{
		db:        db,
		renderer:  renderer,
		mailer:    mailer,
		directory: directory,
		opts:      opts,
		log:       log,
		now:       time.Now,
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type ItemInput struct {
	Description    string          `json:"description" binding:"required,max=500"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPriceCents int64           `json:"unit_price_cents" binding:"gte=0"`
	DiscountCents  int64           `json:"discount_cents" binding:"gte=0"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
}

type CreateInput struct {
	CoachID            int64           `json:"-"`
	ClientID           int64           `json:"client_id" binding:"required,gt=0"`
	BookingID          *int64          `json:"booking_id,omitempty"`
	SessionID          *int64          `json:"-"`
	PaymentID          *int64          `json:"payment_id,omitempty"`
	RecurringInvoiceID *int64          `json:"-"`
	Items              []ItemInput     `json:"items" binding:"required,min=1,dive"`
	TaxRate            decimal.Decimal `json:"tax_rate"`
	DiscountCents      int64           `json:"discount_cents" binding:"gte=0"`
	DueDate            *time.Time      `json:"due_date,omitempty"`
	DueDays            int             `json:"due_days" binding:"gte=0,lte=365"`
	Notes              string          `json:"notes" binding:"max=2000"`
	Terms              string          `json:"terms" binding:"max=2000"`
	Draft              bool            `json:"draft"`
}

func buildItems(in []ItemInput) []Item {
	items := make([]Item, len(in))
	for i, it := range in {
		qty := it.Quantity
		if qty.IsZero() {
			qty = decimal.NewFromInt(1)
		}
		items[i] = Item{
			Description:    strings.TrimSpace(it.Description),
			Quantity:       qty,
			UnitPriceCents: it.UnitPriceCents,
			DiscountCents:  it.DiscountCents,
			TaxRate:        it.TaxRate,
			SortOrder:      i + 1,
		}
	}
	return items
}

// Create numbers and stores an invoice with its items in one transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Invoice, error) {
	if in.CoachID <= 0 || in.ClientID <= 0 {
		return nil, apperr.Validation("coach and client are required")
	}
	if _, err := s.directory.GetUser(ctx, in.ClientID); err != nil {
		if errors.Is(err, profile.ErrProfileNotFound) {
			return nil, apperr.NotFound("client", in.ClientID)
		}
		return nil, err
	}

	var inv *Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inv, err = s.createTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice created",
		zap.Int64("invoice_id", inv.ID),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.Int64("coach_id", inv.CoachID),
		zap.Int64("total_cents", inv.TotalCents),
	)
	return inv, nil
}

func (s *Service) createTx(ctx context.Context, tx *gorm.DB, in CreateInput) (*Invoice, error) {
	items := buildItems(in.Items)
	totals, err := ComputeTotals(items, in.TaxRate, in.DiscountCents)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	issue := dateOnly(now)
	due := issue.AddDate(0, 0, s.opts.DueDays)
	switch {
	case in.DueDate != nil:
		due = dateOnly(*in.DueDate)
		if due.Before(issue) {
			return nil, apperr.Validation("due_date cannot be before the issue date")
		}
	case in.DueDays > 0:
		due = issue.AddDate(0, 0, in.DueDays)
	}

	terms := in.Terms
	if terms == "" {
		terms = s.opts.Terms
	}

	number, err := NextNumber(ctx, tx, in.CoachID, now)
	if err != nil {
		return nil, err
	}

	inv := &Invoice{
		InvoiceNumber:      number,
		CoachID:            in.CoachID,
		ClientID:           in.ClientID,
		BookingID:          in.BookingID,
		SessionID:          in.SessionID,
		PaymentID:          in.PaymentID,
		RecurringInvoiceID: in.RecurringInvoiceID,
		Status:             StatusPending,
		IssueDate:          issue,
		DueDate:            due,
		SubtotalCents:      totals.SubtotalCents,
		TaxRate:            in.TaxRate,
		TaxAmountCents:     totals.TaxAmountCents,
		DiscountCents:      totals.DiscountCents,
		TotalCents:         totals.TotalCents,
		BalanceDueCents:    totals.TotalCents,
		Currency:           s.opts.Currency,
		Notes:              in.Notes,
		Terms:              terms,
		Items:              items,
	}
	switch {
	case in.Draft:
		inv.Status = StatusDraft
	case inv.TotalCents == 0:
		inv.Status = StatusPaid
		inv.PaidDate = &now
	}

	if err := NewRepository(tx).Create(ctx, inv); err != nil {
		if database.IsUniqueViolation(err) && in.SessionID != nil {
			return nil, fmt.Errorf("%w: session %d is already invoiced", apperr.ErrConflict, *in.SessionID)
		}
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	if err := outbox.Emit(tx.WithContext(ctx), "invoice", inv.ID, outbox.InvoiceCreated, newEvent(inv, inv.TotalCents), inv.CoachID); err != nil {
		return nil, err
	}
	return inv, nil
}

// SessionInput describes a completed session to bill.
type SessionInput struct {
	SessionID        int64
	BookingRequestID int64
	PaymentID        *int64
	CoachID          int64
	ClientID         int64
	Description      string
	AmountCents      int64
	PaidCents        int64
}

// CreateForSession invoices a completed session once and applies the payment
// already captured for it. A second call returns the existing invoice.
func (s *Service) CreateForSession(ctx context.Context, in SessionInput) (*Invoice, error) {
	repo := NewRepository(s.db)
	if existing, err := repo.GetBySession(ctx, in.SessionID); err == nil {
		return repo.GetByID(ctx, existing.ID)
	} else if !errors.Is(err, ErrInvoiceNotFound) {
		return nil, err
	}

	bookingID := in.BookingRequestID
	sessionID := in.SessionID
	create := CreateInput{
		CoachID:   in.CoachID,
		ClientID:  in.ClientID,
		BookingID: &bookingID,
		SessionID: &sessionID,
		PaymentID: in.PaymentID,
		Items: []ItemInput{{
			Description:    in.Description,
			Quantity:       decimal.NewFromInt(1),
			UnitPriceCents: in.AmountCents,
		}},
	}

	var inv *Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inv, err = s.createTx(ctx, tx, create)
		if err != nil {
			return err
		}
		if in.PaidCents <= 0 || inv.TotalCents == 0 {
			return nil
		}
		_, err = s.recordPaymentTx(ctx, tx, inv.ID, RecordPaymentInput{
			AmountCents:   in.PaidCents,
			PaymentMethod: "card",
			Reference:     fmt.Sprintf("booking-%d", in.BookingRequestID),
			PaymentID:     in.PaymentID,
		}, 0)
		return err
	})
	if errors.Is(err, apperr.ErrConflict) {
		if existing, getErr := repo.GetBySession(ctx, in.SessionID); getErr == nil {
			return repo.GetByID(ctx, existing.ID)
		}
	}
	if err != nil {
		return nil, err
	}
	return repo.GetByID(ctx, inv.ID)
}

func canView(inv *Invoice, userID int64, role string) bool {
	return role == jwt.RoleAdmin || inv.CoachID == userID || inv.ClientID == userID
}

func canManage(inv *Invoice, userID int64, role string) bool {
	return role == jwt.RoleAdmin || inv.CoachID == userID
}

func (s *Service) load(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := NewRepository(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			return nil, apperr.NotFound("invoice", id)
		}
		return nil, err
	}
	return inv, nil
}

type Detail struct {
	Invoice
	Payments []Payment `json:"payments"`
}

func (s *Service) Get(ctx context.Context, userID int64, role string, id int64) (*Detail, error) {
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(inv, userID, role) {
		return nil, fmt.Errorf("%w: invoice %d", apperr.ErrForbidden, id)
	}
	payments, err := NewRepository(s.db).ListPayments(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Invoice: *inv, Payments: payments}, nil
}

// Send renders and emails the invoice, then marks it sent. A render or
// dispatch failure leaves the stored status untouched.
func (s *Service) Send(ctx context.Context, userID int64, role string, id int64) (*Invoice, error) {
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(inv, userID, role) {
		return nil, fmt.Errorf("%w: invoice %d", apperr.ErrForbidden, id)
	}
	return s.send(ctx, inv)
}

func (s *Service) send(ctx context.Context, inv *Invoice) (*Invoice, error) {
	if !inv.Status.Sendable() {
		return nil, apperr.InvalidState("invoice", inv.ID, string(inv.Status), "send")
	}
	return s.sendDocument(ctx, inv)
}

// sendDocument also serves paid invoices, which go out as receipts.
func (s *Service) sendDocument(ctx context.Context, inv *Invoice) (*Invoice, error) {
	coach, client, err := s.parties(ctx, inv)
	if err != nil {
		return nil, err
	}
	doc, err := s.renderer.Render(inv, coach, client)
	if err != nil {
		return nil, err
	}
	err = s.mailer.Send(ctx, &Email{
		Subject:     fmt.Sprintf("Invoice %s from %s", inv.InvoiceNumber, coach.Name),
		To:          []string{client.Email},
		HTMLCode:    string(doc.Body),
		Attachments: []Attachment{attachmentFrom(doc)},
	})
	if err != nil {
		s.log.Warn("invoice email dispatch failed", zap.Int64("invoice_id", inv.ID), zap.Error(err))
		return nil, fmt.Errorf("dispatch invoice %s: %w", inv.InvoiceNumber, err)
	}

	now := s.now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := NewRepository(tx).MarkSent(ctx, inv.ID, now); err != nil {
			return err
		}
		return outbox.Emit(tx.WithContext(ctx), "invoice", inv.ID, outbox.InvoiceSent, newEvent(inv, inv.TotalCents), inv.ClientID)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice sent", zap.Int64("invoice_id", inv.ID), zap.String("invoice_number", inv.InvoiceNumber))
	return NewRepository(s.db).GetByID(ctx, inv.ID)
}

func (s *Service) parties(ctx context.Context, inv *Invoice) (Party, Party, error) {
	coach, err := s.directory.GetUser(ctx, inv.CoachID)
	if err != nil {
		return Party{}, Party{}, fmt.Errorf("load coach %d: %w", inv.CoachID, err)
	}
	client, err := s.directory.GetUser(ctx, inv.ClientID)
	if err != nil {
		return Party{}, Party{}, fmt.Errorf("load client %d: %w", inv.ClientID, err)
	}
	return toParty(coach), toParty(client), nil
}

func toParty(u *profile.User) Party {
	name := u.Name
	if name == "" {
		name = u.Email
	}
	return Party{Name: name, Email: u.Email}
}

type RecordPaymentInput struct {
	AmountCents      int64      `json:"amount_cents" binding:"required,gt=0"`
	PaymentMethod    string     `json:"payment_method" binding:"omitempty,oneof=card bank_transfer cash other"`
	Reference        string     `json:"reference" binding:"max=255"`
	Notes            string     `json:"notes" binding:"max=2000"`
	PaymentID        *int64     `json:"payment_id,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	AllowOverpayment bool       `json:"allow_overpayment"`
}

// RecordPayment applies money to an invoice under a row lock.
func (s *Service) RecordPayment(ctx context.Context, userID int64, role string, id int64, in RecordPaymentInput) (*Invoice, error) {
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(inv, userID, role) {
		return nil, fmt.Errorf("%w: invoice %d", apperr.ErrForbidden, id)
	}

	var out *Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = s.recordPaymentTx(ctx, tx, id, in, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice payment recorded",
		zap.Int64("invoice_id", id),
		zap.Int64("amount_cents", in.AmountCents),
		zap.Int64("balance_due_cents", out.BalanceDueCents),
		zap.String("status", string(out.Status)),
	)
	return out, nil
}

func (s *Service) recordPaymentTx(ctx context.Context, tx *gorm.DB, id int64, in RecordPaymentInput, recordedBy int64) (*Invoice, error) {
	repo := NewRepository(tx)
	inv, err := repo.GetByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			return nil, apperr.NotFound("invoice", id)
		}
		return nil, err
	}
	if !inv.Status.AcceptsPayment() {
		return nil, apperr.InvalidState("invoice", inv.ID, string(inv.Status), "record payment")
	}

	now := s.now().UTC()
	paidAt := now
	if in.PaidAt != nil {
		paidAt = in.PaidAt.UTC()
	}
	wasPaid := inv.Status == StatusPaid
	over, err := applyPayment(inv, in.AmountCents, paidAt, in.AllowOverpayment)
	if err != nil {
		return nil, err
	}

	if err := repo.SavePayment(ctx, inv); err != nil {
		return nil, fmt.Errorf("update invoice balance: %w", err)
	}
	method := in.PaymentMethod
	if method == "" {
		method = "other"
	}
	if err := repo.AddPayment(ctx, &Payment{
		InvoiceID:     inv.ID,
		PaymentID:     in.PaymentID,
		AmountCents:   in.AmountCents,
		PaymentMethod: method,
		Reference:     in.Reference,
		Notes:         in.Notes,
		IsOverpayment: over,
		RecordedBy:    recordedBy,
		PaidAt:        paidAt,
	}); err != nil {
		return nil, fmt.Errorf("record invoice payment: %w", err)
	}

	if inv.Status == StatusPaid && !wasPaid {
		if err := outbox.Emit(tx.WithContext(ctx), "invoice", inv.ID, outbox.InvoicePaid, newEvent(inv, inv.TotalCents), inv.ClientID, inv.CoachID); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

// Cancel voids an invoice nobody has paid. Money already applied is
// unwound through refunds instead.
func (s *Service) Cancel(ctx context.Context, userID int64, role string, id int64) (*Invoice, error) {
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(inv, userID, role) {
		return nil, fmt.Errorf("%w: invoice %d", apperr.ErrForbidden, id)
	}

	now := s.now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := NewRepository(tx).Cancel(ctx, id, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidState("invoice", id, string(inv.Status), "cancel")
		}
		inv.Status = StatusCancelled
		return outbox.Emit(tx.WithContext(ctx), "invoice", inv.ID, outbox.InvoiceCancelled, newEvent(inv, inv.TotalCents), inv.ClientID)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice cancelled", zap.Int64("invoice_id", id), zap.Int64("user_id", userID))
	return NewRepository(s.db).GetByID(ctx, id)
}

// RefundInput is a gateway refund of the payment an invoice was billed for.
type RefundInput struct {
	PaymentID     int64
	RefundID      int64
	AmountCents   int64
	FullyRefunded bool
}

// ApplyRefund mirrors a gateway refund onto the invoice linked to the
// payment. The refund is recorded once per RefundID; a payment with no
// invoice yields (nil, nil).
func (s *Service) ApplyRefund(ctx context.Context, in RefundInput) (*Invoice, error) {
	if in.AmountCents <= 0 {
		return nil, apperr.Validation("amount_cents must be positive")
	}

	var out *Invoice
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		inv, err := repo.GetByPaymentIDForUpdate(ctx, in.PaymentID)
		if errors.Is(err, ErrInvoiceNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out = inv

		ref := fmt.Sprintf("refund:%d", in.RefundID)
		done, err := repo.HasPaymentReference(ctx, inv.ID, ref)
		if err != nil || done {
			return err
		}

		inv.RefundedCents += in.AmountCents
		if in.FullyRefunded || (inv.AmountPaidCents > 0 && inv.RefundedCents >= inv.AmountPaidCents) {
			inv.Status = StatusRefunded
			inv.BalanceDueCents = 0
		}
		if err := repo.SaveRefund(ctx, inv); err != nil {
			return fmt.Errorf("update invoice refund: %w", err)
		}
		paymentID := in.PaymentID
		if err := repo.AddPayment(ctx, &Payment{
			InvoiceID:     inv.ID,
			PaymentID:     &paymentID,
			AmountCents:   -in.AmountCents,
			PaymentMethod: "refund",
			Reference:     ref,
			PaidAt:        s.now().UTC(),
		}); err != nil {
			return fmt.Errorf("record invoice refund: %w", err)
		}
		applied = true
		return outbox.Emit(tx.WithContext(ctx), "invoice", inv.ID, outbox.InvoiceRefunded, newEvent(inv, in.AmountCents), inv.ClientID)
	})
	if err != nil {
		return nil, err
	}
	if out != nil && applied {
		s.log.Info("invoice refund applied",
			zap.Int64("invoice_id", out.ID),
			zap.Int64("refund_id", in.RefundID),
			zap.Int64("amount_cents", in.AmountCents),
			zap.String("status", string(out.Status)),
		)
	}
	return out, nil
}

type OverdueResult struct {
	Marked   int `json:"marked"`
	Reminded int `json:"reminded"`
	Failed   int `json:"failed"`
}

// CheckOverdue flips past-due open invoices to overdue and queues at most one
// reminder per invoice per calendar day.
func (s *Service) CheckOverdue(ctx context.Context) (OverdueResult, error) {
	var res OverdueResult
	now := s.now().UTC()
	today := dateOnly(now)
	repo := NewRepository(s.db)

	ids, err := repo.ListDueForOverdue(ctx, today)
	if err != nil {
		return res, fmt.Errorf("list overdue candidates: %w", err)
	}
	for _, id := range ids {
		ok, err := repo.MarkOverdue(ctx, id, now)
		if err != nil {
			res.Failed++
			s.log.Error("mark invoice overdue failed", zap.Int64("invoice_id", id), zap.Error(err))
			continue
		}
		if ok {
			res.Marked++
		}
	}

	overdue, err := repo.ListOverdueWithBalance(ctx)
	if err != nil {
		return res, fmt.Errorf("list overdue invoices: %w", err)
	}
	day := today.Format(dateLayout)
	for i := range overdue {
		inv := &overdue[i]
		var claimed bool
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			claimed, err = NewRepository(tx).ClaimReminder(ctx, inv.ID, ReminderOverdue, day, now)
			if err != nil || !claimed {
				return err
			}
			return outbox.Emit(tx.WithContext(ctx), "invoice", inv.ID, outbox.InvoiceOverdueReminder, newEvent(inv, inv.BalanceDueCents), inv.ClientID)
		})
		if err != nil {
			res.Failed++
			s.log.Error("overdue reminder failed", zap.Int64("invoice_id", inv.ID), zap.Error(err))
			continue
		}
		if claimed {
			res.Reminded++
		}
	}

	s.log.Info("overdue sweep finished",
		zap.Int("marked", res.Marked),
		zap.Int("reminded", res.Reminded),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

type RecurringResult struct {
	Generated   int `json:"generated"`
	Deactivated int `json:"deactivated"`
	Failed      int `json:"failed"`
}

// ProcessRecurring generates one invoice per due template and moves its next
// date past today, so a second run on the same day is a no-op.
func (s *Service) ProcessRecurring(ctx context.Context) (RecurringResult, error) {
	var res RecurringResult
	today := dateOnly(s.now())

	ids, err := NewRepository(s.db).ListDueRecurring(ctx, today)
	if err != nil {
		return res, fmt.Errorf("list due recurring invoices: %w", err)
	}

	for _, id := range ids {
		generated, deactivated, err := s.processTemplate(ctx, id, today)
		switch {
		case errors.Is(err, errTemplateMoved):
			s.log.Info("recurring template already processed", zap.Int64("recurring_invoice_id", id))
		case err != nil:
			res.Failed++
			s.log.Error("recurring invoice generation failed", zap.Int64("recurring_invoice_id", id), zap.Error(err))
		default:
			if generated {
				res.Generated++
			}
			if deactivated {
				res.Deactivated++
			}
		}
	}

	s.log.Info("recurring sweep finished",
		zap.Int("generated", res.Generated),
		zap.Int("deactivated", res.Deactivated),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (s *Service) processTemplate(ctx context.Context, id int64, today time.Time) (generated, deactivated bool, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		ri, err := repo.GetRecurringForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !ri.IsActive || ri.NextInvoiceDate.After(today) {
			return errTemplateMoved
		}
		prev := ri.NextInvoiceDate

		if ri.EndDate != nil && dateOnly(prev).After(dateOnly(*ri.EndDate)) {
			ok, err := repo.AdvanceRecurring(ctx, ri.ID, prev, prev, false, ri.LastInvoiceID)
			if err != nil {
				return err
			}
			if !ok {
				return errTemplateMoved
			}
			deactivated = true
			return nil
		}

		items := make([]ItemInput, len(ri.Items))
		for i, it := range ri.Items {
			items[i] = ItemInput{
				Description:    it.Description,
				Quantity:       it.Quantity,
				UnitPriceCents: it.UnitPriceCents,
				DiscountCents:  it.DiscountCents,
				TaxRate:        it.TaxRate,
			}
		}
		templateID := ri.ID
		inv, err := s.createTx(ctx, tx, CreateInput{
			CoachID:            ri.CoachID,
			ClientID:           ri.ClientID,
			RecurringInvoiceID: &templateID,
			Items:              items,
			TaxRate:            ri.TaxRate,
			DiscountCents:      ri.DiscountCents,
			DueDays:            ri.DueDays,
			Notes:              ri.Notes,
			Terms:              ri.Terms,
		})
		if err != nil {
			return err
		}

		next := prev
		for !next.After(today) {
			if next, err = ri.Frequency.Advance(next); err != nil {
				return err
			}
		}
		active := ri.EndDate == nil || !dateOnly(next).After(dateOnly(*ri.EndDate))

		ok, err := repo.AdvanceRecurring(ctx, ri.ID, prev, next, active, &inv.ID)
		if err != nil {
			return err
		}
		if !ok {
			return errTemplateMoved
		}
		generated = true
		deactivated = !active
		return nil
	})
	if err != nil {
		return false, false, err
	}
	return generated, deactivated, nil
}

type RecurringInput struct {
	CoachID       int64           `json:"-"`
	ClientID      int64           `json:"client_id" binding:"required,gt=0"`
	Frequency     Frequency       `json:"frequency" binding:"required,oneof=weekly biweekly monthly quarterly annually"`
	StartDate     time.Time       `json:"start_date" binding:"required"`
	EndDate       *time.Time      `json:"end_date,omitempty"`
	Items         []ItemInput     `json:"items" binding:"required,min=1,dive"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	DiscountCents int64           `json:"discount_cents" binding:"gte=0"`
	DueDays       int             `json:"due_days" binding:"gte=0,lte=365"`
	Notes         string          `json:"notes" binding:"max=2000"`
	Terms         string          `json:"terms" binding:"max=2000"`
}

func (s *Service) CreateRecurring(ctx context.Context, in RecurringInput) (*RecurringInvoice, error) {
	if _, err := in.Frequency.Advance(in.StartDate); err != nil {
		return nil, apperr.Validation("%v", err)
	}
	start := dateOnly(in.StartDate)
	var end *time.Time
	if in.EndDate != nil {
		e := dateOnly(*in.EndDate)
		if e.Before(start) {
			return nil, apperr.Validation("end_date cannot be before start_date")
		}
		end = &e
	}
	// validates the items the same way a generated invoice will
	if _, err := ComputeTotals(buildItems(in.Items), in.TaxRate, in.DiscountCents); err != nil {
		return nil, err
	}
	if _, err := s.directory.GetUser(ctx, in.ClientID); err != nil {
		if errors.Is(err, profile.ErrProfileNotFound) {
			return nil, apperr.NotFound("client", in.ClientID)
		}
		return nil, err
	}

	dueDays := in.DueDays
	if dueDays == 0 {
		dueDays = s.opts.DueDays
	}
	ri := &RecurringInvoice{
		CoachID:         in.CoachID,
		ClientID:        in.ClientID,
		Frequency:       in.Frequency,
		StartDate:       start,
		NextInvoiceDate: start,
		EndDate:         end,
		IsActive:        true,
		TaxRate:         in.TaxRate,
		DiscountCents:   in.DiscountCents,
		DueDays:         dueDays,
		Notes:           in.Notes,
		Terms:           in.Terms,
	}
	for i, it := range buildItems(in.Items) {
		ri.Items = append(ri.Items, RecurringItem{
			Description:    it.Description,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			DiscountCents:  it.DiscountCents,
			TaxRate:        it.TaxRate,
			SortOrder:      i + 1,
		})
	}
	if err := NewRepository(s.db).CreateRecurring(ctx, ri); err != nil {
		return nil, fmt.Errorf("create recurring invoice: %w", err)
	}
	return ri, nil
}

// ListByCoach returns a coach's invoices. Coaches only see their own.
func (s *Service) ListByCoach(ctx context.Context, userID int64, role string, coachID int64, f ListFilter) ([]Invoice, int64, error) {
	if role != jwt.RoleAdmin && userID != coachID {
		return nil, 0, fmt.Errorf("%w: invoices of coach %d", apperr.ErrForbidden, coachID)
	}
	f.CoachID = coachID
	f.ClientID = 0
	return NewRepository(s.db).List(ctx, f)
}

// ListByClient returns a client's invoices. A coach sees only the ones they
// issued to that client.
func (s *Service) ListByClient(ctx context.Context, userID int64, role string, clientID int64, f ListFilter) ([]Invoice, int64, error) {
	f.ClientID = clientID
	f.CoachID = 0
	switch role {
	case jwt.RoleAdmin:
	case jwt.RoleCoach:
		f.CoachID = userID
	default:
		if userID != clientID {
			return nil, 0, fmt.Errorf("%w: invoices of client %d", apperr.ErrForbidden, clientID)
		}
	}
	return NewRepository(s.db).List(ctx, f)
}

// Metrics aggregates invoice amounts. Admins may pass coachID 0 for the
// whole platform; coaches always get their own numbers.
func (s *Service) Metrics(ctx context.Context, userID int64, role string, coachID int64) (*Metrics, error) {
	switch role {
	case jwt.RoleAdmin:
	case jwt.RoleCoach:
		coachID = userID
	default:
		return nil, fmt.Errorf("%w: invoice metrics", apperr.ErrForbidden)
	}

	rows, err := NewRepository(s.db).Metrics(ctx, coachID)
	if err != nil {
		return nil, err
	}
	m := &Metrics{Counts: map[Status]int64{}, Currency: s.opts.Currency}
	for _, r := range rows {
		m.Counts[r.Status] = r.Count
		if r.Status == StatusDraft || r.Status == StatusCancelled {
			continue
		}
		m.InvoicedCents += r.Total
		m.CollectedCents += r.Paid - r.Refunded
		if r.Status != StatusRefunded && r.Outstanding > 0 {
			m.OutstandingCents += r.Outstanding
		}
		if r.Status == StatusOverdue {
			m.OverdueCents += r.Outstanding
		}
	}
	return m, nil
}

// RenderDocument returns the printable invoice for its coach, client or an admin.
func (s *Service) RenderDocument(ctx context.Context, userID int64, role string, id int64) (*Document, error) {
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(inv, userID, role) {
		return nil, fmt.Errorf("%w: invoice %d", apperr.ErrForbidden, id)
	}
	coach, client, err := s.parties(ctx, inv)
	if err != nil {
		return nil, err
	}
	return s.renderer.Render(inv, coach, client)
}

// BillSession invoices a completed session and emails it to the client. The
// email is best effort: a failed send is logged and retried on the next call,
// while the invoice itself is only ever created once.
func (s *Service) BillSession(ctx context.Context, in SessionInput) (*Invoice, error) {
	inv, err := s.CreateForSession(ctx, in)
	if err != nil {
		return nil, err
	}
	if inv.SentAt != nil || inv.Status == StatusCancelled || inv.Status == StatusRefunded {
		return inv, nil
	}
	sent, err := s.sendDocument(ctx, inv)
	if err != nil {
		s.log.Warn("session invoice created but not sent",
			zap.Int64("invoice_id", inv.ID),
			zap.Int64("session_id", in.SessionID),
			zap.Error(err),
		)
		return inv, nil
	}
	return sent, nil
}
