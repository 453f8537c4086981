package invoice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"coachbook/internal/domain/profile"
	"coachbook/internal/outbox"
	"coachbook/internal/pkg/apperr"
	"coachbook/internal/pkg/jwt"
)

const (
	coachID      int64 = 1
	clientID     int64 = 2
	otherCoachID int64 = 3
	otherClient  int64 = 4
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []*Email
	err  error
}

func (m *fakeMailer) Send(_ context.Context, email *Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type failingRenderer struct{}

func (failingRenderer) Render(*Invoice, Party, Party) (*Document, error) {
	return nil, errors.New("template exploded")
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:invoice_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	models := append(Models(), outbox.Models()...)
	models = append(models, profile.Models()...)
	require.NoError(t, db.AutoMigrate(models...))

	users := []profile.User{
		{ID: coachID, Email: "coach@example.com", Role: jwt.RoleCoach, Name: "Casey Coach"},
		{ID: clientID, Email: "client@example.com", Role: jwt.RoleClient, Name: "Chris Client"},
		{ID: otherCoachID, Email: "other-coach@example.com", Role: jwt.RoleCoach},
		{ID: otherClient, Email: "other@example.com", Role: jwt.RoleClient},
	}
	require.NoError(t, db.Create(&users).Error)
	return db
}

func setupTestService(t *testing.T) (*Service, *gorm.DB, *fakeMailer, *clock) {
	t.Helper()
	db := setupTestDB(t)
	mailer := &fakeMailer{}
	clk := &clock{t: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	svc := NewService(db, NewHTMLRenderer(), mailer, profile.NewRepository(db), Options{Currency: "USD", DueDays: 14}, nil)
	svc.now = clk.now
	return svc, db, mailer, clk
}

func oneItem(unitPrice int64) []ItemInput {
	return []ItemInput{{Description: "Coaching session", Quantity: decimal.NewFromInt(1), UnitPriceCents: unitPrice}}
}

func countOutbox(t *testing.T, db *gorm.DB, eventType string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&outbox.Event{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestComputeTotals(t *testing.T) {
	t.Run("invoice tax rate", func(t *testing.T) {
		items := []Item{{Quantity: decimal.NewFromInt(1), UnitPriceCents: 10000}}
		got, err := ComputeTotals(items, decimal.NewFromInt(10), 0)
		require.NoError(t, err)
		assert.Equal(t, Totals{SubtotalCents: 10000, TaxAmountCents: 1000, TotalCents: 11000}, got)
		assert.Equal(t, int64(10000), items[0].AmountCents)
	})

	t.Run("item discounts and fractional quantity", func(t *testing.T) {
		items := []Item{
			{Quantity: decimal.RequireFromString("1.5"), UnitPriceCents: 3333, DiscountCents: 100},
			{Quantity: decimal.NewFromInt(2), UnitPriceCents: 2500},
		}
		got, err := ComputeTotals(items, decimal.Zero, 500)
		require.NoError(t, err)
		// 1.5 * 3333 = 4999.5 rounds to 5000
		assert.Equal(t, int64(4900), items[0].AmountCents)
		assert.Equal(t, int64(9900), got.SubtotalCents)
		assert.Equal(t, int64(9400), got.TotalCents)
	})

	t.Run("per item tax when invoice rate is zero", func(t *testing.T) {
		items := []Item{
			{Quantity: decimal.NewFromInt(1), UnitPriceCents: 1000, TaxRate: decimal.NewFromInt(20)},
			{Quantity: decimal.NewFromInt(1), UnitPriceCents: 1000},
		}
		got, err := ComputeTotals(items, decimal.Zero, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(200), got.TaxAmountCents)
		assert.Equal(t, int64(2200), got.TotalCents)
	})

	t.Run("rejects", func(t *testing.T) {
		_, err := ComputeTotals(nil, decimal.Zero, 0)
		assert.ErrorIs(t, err, ErrNoItems)

		_, err = ComputeTotals([]Item{{Quantity: decimal.NewFromInt(1), UnitPriceCents: 100}}, decimal.Zero, 101)
		assert.ErrorIs(t, err, ErrNegativeTotal)

		_, err = ComputeTotals([]Item{{Quantity: decimal.Zero, UnitPriceCents: 100}}, decimal.Zero, 0)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestFrequencyAdvance(t *testing.T) {
	base := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	cases := map[Frequency]time.Time{
		FrequencyWeekly:    time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC),
		FrequencyBiweekly:  time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC),
		FrequencyMonthly:   time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
		FrequencyQuarterly: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		FrequencyAnnually:  time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	for f, want := range cases {
		got, err := f.Advance(base)
		require.NoError(t, err, f)
		assert.Equal(t, want, got, f)
	}

	_, err := Frequency("daily").Advance(base)
	assert.ErrorIs(t, err, ErrUnknownFrequency)
}

func TestCreateAndPayInFull(t *testing.T) {
	svc, db, _, _ := setupTestService(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, CreateInput{
		CoachID:  coachID,
		ClientID: clientID,
		Items:    oneItem(10000),
		TaxRate:  decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-202603-0001", inv.InvoiceNumber)
	assert.Equal(t, StatusPending, inv.Status)
	assert.Equal(t, int64(10000), inv.SubtotalCents)
	assert.Equal(t, int64(1000), inv.TaxAmountCents)
	assert.Equal(t, int64(11000), inv.TotalCents)
	assert.Equal(t, int64(11000), inv.BalanceDueCents)
	assert.Equal(t, time.Date(2026, 3, 29, 0, 0, 0, 0, time.UTC), inv.DueDate)

	paid, err := svc.RecordPayment(ctx, coachID, jwt.RoleCoach, inv.ID, RecordPaymentInput{AmountCents: 11000, PaymentMethod: "bank_transfer"})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
	assert.Equal(t, int64(0), paid.BalanceDueCents)
	require.NotNil(t, paid.PaidDate)

	var stored Invoice
	require.NoError(t, db.First(&stored, inv.ID).Error)
	assert.Equal(t, stored.TotalCents, stored.SubtotalCents+stored.TaxAmountCents-stored.DiscountCents)
	assert.Equal(t, stored.BalanceDueCents, stored.TotalCents-stored.AmountPaidCents)
	assert.Equal(t, int64(1), countOutbox(t, db, outbox.InvoicePaid))
}

func TestInvoiceNumbersPerCoachAndMonth(t *testing.T) {
	svc, _, _, clk := setupTestService(t)
	ctx := context.Background()

	create := func(coach int64) string {
		inv, err := svc.Create(ctx, CreateInput{CoachID: coach, ClientID: clientID, Items: oneItem(500)})
		require.NoError(t, err)
		return inv.InvoiceNumber
	}

	assert.Equal(t, "INV-202603-0001", create(coachID))
	assert.Equal(t, "INV-202603-0002", create(coachID))
	assert.Equal(t, "INV-202603-0001", create(otherCoachID))
	assert.Equal(t, "INV-202603-0003", create(coachID))

	clk.t = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "INV-202604-0001", create(coachID))
}

func TestCreateUnknownClient(t *testing.T) {
	svc, _, _, _ := setupTestService(t)
	_, err := svc.Create(context.Background(), CreateInput{CoachID: coachID, ClientID: 999, Items: oneItem(500)})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRecordPaymentPartialAndOverpayment(t *testing.T) {
	svc, db, _, _ := setupTestService(t)
	ctx := context.Background()
	inv, err := svc.Create(ctx, CreateInput{CoachID: coachID, ClientID: clientID, Items: oneItem(10000)})
	require.NoError(t, err)

	got, err := svc.RecordPayment(ctx, coachID, jwt.RoleCoach, inv.ID, RecordPaymentInput{AmountCents: 4000})
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyPaid, got.Status)
	assert.Equal(t, int64(6000), got.BalanceDueCents)
	assert.Nil(t, got.PaidDate)

	_, err = svc.RecordPayment(ctx, coachID, jwt.RoleCoach, inv.ID, RecordPaymentInput{AmountCents: 7000})
	assert.ErrorIs(t, err, ErrOverpayment)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	var stored Invoice
	require.NoError(t, db.First(&stored, inv.ID).Error)
	assert.Equal(t, int64(4000), stored.AmountPaidCents)

	got, err = svc.RecordPayment(ctx, coachID, jwt.RoleCoach, inv.ID, RecordPaymentInput{AmountCents: 7000, AllowOverpayment: true})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status)
	assert.Equal(t, int64(-1000), got.BalanceDueCents)

	var payments []Payment
	require.NoError(t, db.Where("invoice_id = ?", inv.ID).Order("id").Find(&payments).Error)
	require.Len(t, payments, 2)
	assert.False(t, payments[0].IsOverpayment)
	assert.True(t, payments[1].IsOverpayment)
}

func TestRecordPaymentAccess(t *testing.T) {
	svc, db, _, _ := setupTestService(t)
	ctx := context.Background()
	inv, err := svc.Create(ctx, CreateInput{CoachID: coachID, ClientID: clientID, Items: oneItem(1000)})
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, otherCoachID, jwt.RoleCoach, inv.ID, RecordPaymentInput{AmountCents: 100})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = svc.RecordPayment(ctx, clientID, jwt.RoleClient, inv.ID, RecordPaymentInput{AmountCents: 100})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = svc.RecordPayment(ctx, 99, jwt.RoleAdmin, 12345, RecordPaymentInput{AmountCents: 100})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, db.Model(&Invoice{}).Where("id = ?", inv.ID).Update("status", StatusCancelled).Error)
	_, err = svc.RecordPayment(ctx, 99, jwt.RoleAdmin, inv.ID, RecordPaymentInput{AmountCents: 100})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestSend(t *testing.T) {
	svc, db, mailer, _ := setupTestService(t)
	ctx := context.Background()
	inv, err := svc.Create(ctx, CreateInput{CoachID: coachID, ClientID: clientID, Items: oneItem(2500)})
	require.NoError(t, err)

	sent, err := svc.Send(ctx, coachID, jwt.RoleCoach, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)
	require.Equal(t, 1, mailer.count())
	assert.Equal(t, []string{"client@example.com"}, mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].HTMLCode, inv.InvoiceNumber)
	assert.Contains(t, mailer.sent[0].HTMLCode, "25.00")
	assert.Equal(t, int64(1), countOutbox(t, db, outbox.InvoiceSent))

	_, err = svc.Send(ctx, coachID, jwt.RoleCoach, 4040)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.Send(ctx, otherCoachID, jwt.RoleCoach, inv.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestSendFailureKeepsStatus(t *testing.T) {
	svc, db, mailer, _ := setupTestService(t)
	ctx := context.Background()
	inv, err := svc.Create(ctx, CreateInput{CoachID: coachID, ClientID: clientID, Items: oneItem(2500)})
	require.NoError(t, err)

	mailer.err = errors.New("broker down")
	_, err = svc.Send(ctx, coachID, jwt.RoleCoach, inv.ID)
	require.Error(t, err)

	svc.renderer = failingRenderer{}
	mailer.err = nil
	_, err = svc.Send(ctx, coachID, jwt.RoleCoach, inv.ID)
	require.Error(t, err)

	var stored Invoice
	require.NoError(t, db.First(&stored, inv.ID).Error)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Nil(t, stored.SentAt)
	assert.Zero(t, countOutbox(t, db, outbox.InvoiceSent))
}

func TestSendPaidInvoiceIsRejected(t *testing.T) {
	svc, _, _, _ := setupTestService(t)
	ctx := context.Background()
	inv, err := svc.Create(ctx, CreateInput{CoachID: coachID, ClientID: clientID, Items: oneItem(1000)})
	require.NoError(t, err)
	_, err = svc.RecordPayment(ctx, coachID, jwt.RoleCoach, inv.ID, RecordPaymentInput{AmountCents: 1000})
	require.NoError(t, err)

	_, err = svc.Send(ctx, coachID, jwt.RoleCoach, inv.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestCheckOverdueIsIdempotentPerDay(t *testing.T) {
	svc, db, _, clk := setupTestService(t)
	ctx := context.Background()

	clk.t = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	late, err := svc.Create(ctx, CreateInput{CoachID: coachID, ClientID: clientID, Items: oneItem(5000), DueDays: 7})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{CoachID: coachID, ClientID: clientID, Items: oneItem(5000), DueDays: 30})
	require.NoError(t, err)
	draft, err := svc.Create(ctx, CreateInput{CoachID: coachID, ClientID: clientID, Items: oneItem(5000), DueDays: 1, Draft: true})
	require.NoError(t, err)

	clk.t = time.Date(2026, 3, 15, 7, 0, 0, 0, time.UTC)
	res, err := svc.CheckOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, OverdueResult{Marked: 1, Reminded: 1}, res)

	clk.t = clk.t.Add(6 * time.Hour)
	res, err = svc.CheckOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, OverdueResult{}, res)
	assert.Equal(t, int64(1), countOutbox(t, db, outbox.InvoiceOverdueReminder))

	var stored Invoice
	require.NoError(t, db.First(&stored, late.ID).Error)
	assert.Equal(t, StatusOverdue, stored.Status)
	require.NoError(t, db.First(&stored, draft.ID).Error)
	assert.Equal(t, StatusDraft, stored.Status)

	clk.t = time.Date(2026, 3, 16, 7, 0, 0, 0, time.UTC)
	res, err = svc.CheckOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reminded)
	assert.Equal(t, int64(2), countOutbox(t, db, outbox.InvoiceOverdueReminder))
}

func TestProcessRecurringTwiceSameDay(t *testing.T) {
	svc, db, _, clk := setupTestService(t)
	ctx := context.Background()
	today := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	ri, err := svc.CreateRecurring(ctx, RecurringInput{
		CoachID:   coachID,
		ClientID:  clientID,
		Frequency: FrequencyMonthly,
		StartDate: today,
		Items:     oneItem(12000),
		TaxRate:   decimal.NewFromInt(5),
	})
	require.NoError(t, err)

	res, err := svc.ProcessRecurring(ctx)
	require.NoError(t, err)
	assert.Equal(t, RecurringResult{Generated: 1}, res)

	clk.t = clk.t.Add(3 * time.Hour)
	res, err = svc.ProcessRecurring(ctx)
	require.NoError(t, err)
	assert.Equal(t, RecurringResult{}, res)

	var invoices []Invoice
	require.NoError(t, db.Where("recurring_invoice_id = ?", ri.ID).Find(&invoices).Error)
	require.Len(t, invoices, 1)
	assert.Equal(t, int64(12600), invoices[0].TotalCents)

	var stored RecurringInvoice
	require.NoError(t, db.First(&stored, ri.ID).Error)
	assert.Equal(t, time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC), stored.NextInvoiceDate.UTC())
	assert.True(t, stored.IsActive)
	require.NotNil(t, stored.LastInvoiceID)
	assert.Equal(t, invoices[0].ID, *stored.LastInvoiceID)
}

func TestProcessRecurringCatchesUpAndDeactivates(t *testing.T) {
	svc, db, _, _ := setupTestService(t)
	ctx := context.Background()
	today := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	behind, err := svc.CreateRecurring(ctx, RecurringInput{
		CoachID: coachID, ClientID: clientID, Frequency: FrequencyWeekly,
		StartDate: today.AddDate(0, 0, -21), Items: oneItem(1000),
	})
	require.NoError(t, err)

	end := today.AddDate(0, 0, 10)
	ending, err := svc.CreateRecurring(ctx, RecurringInput{
		CoachID: coachID, ClientID: clientID, Frequency: FrequencyBiweekly,
		StartDate: today, EndDate: &end, Items: oneItem(1000),
	})
	require.NoError(t, err)

	expiredEnd := today.AddDate(0, 0, -2)
	expired, err := svc.CreateRecurring(ctx, RecurringInput{
		CoachID: coachID, ClientID: clientID, Frequency: FrequencyWeekly,
		StartDate: today.AddDate(0, 0, -7), EndDate: &expiredEnd, Items: oneItem(1000),
	})
	require.NoError(t, err)
	// the template missed its last run while it was still in range
	require.NoError(t, db.Model(&RecurringInvoice{}).Where("id = ?", expired.ID).
		Update("next_invoice_date", today.AddDate(0, 0, -1)).Error)

	res, err := svc.ProcessRecurring(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Generated)
	assert.Equal(t, 2, res.Deactivated)
	assert.Zero(t, res.Failed)

	var stored RecurringInvoice
	require.NoError(t, db.First(&stored, behind.ID).Error)
	assert.Equal(t, time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC), stored.NextInvoiceDate.UTC())
	assert.True(t, stored.IsActive)

	require.NoError(t, db.First(&stored, ending.ID).Error)
	assert.False(t, stored.IsActive)

	require.NoError(t, db.First(&stored, expired.ID).Error)
	assert.False(t, stored.IsActive)
	var n int64
	require.NoError(t, db.Model(&Invoice{}).Where("recurring_invoice_id = ?", expired.ID).Count(&n).Error)
	assert.Zero(t, n)
}

func TestCreateForSessionIsIdempotent(t *testing.T) {
	svc, db, _, _ := setupTestService(t)
	ctx := context.Background()
	paymentID := int64(77)
	in := SessionInput{
		SessionID:        5,
		BookingRequestID: 9,
		PaymentID:        &paymentID,
		CoachID:          coachID,
		ClientID:         clientID,
		Description:      "Coaching session",
		AmountCents:      9000,
		PaidCents:        9000,
	}

	first, err := svc.CreateForSession(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, first.Status)
	assert.Equal(t, int64(0), first.BalanceDueCents)

	second, err := svc.CreateForSession(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var n int64
	require.NoError(t, db.Model(&Payment{}).Where("invoice_id = ?", first.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestBillSessionSendsReceiptOnce(t *testing.T) {
	svc, db, mailer, _ := setupTestService(t)
	ctx := context.Background()
	paymentID := int64(12)
	in := SessionInput{
		SessionID: 5, BookingRequestID: 9, PaymentID: &paymentID,
		CoachID: coachID, ClientID: clientID, Description: "Coaching session (individual, 60 min)",
		AmountCents: 9000, PaidCents: 9000,
	}

	mailer.err = errors.New("broker down")
	inv, err := svc.BillSession(ctx, in)
	require.NoError(t, err)
	assert.Nil(t, inv.SentAt)

	mailer.err = nil
	inv, err = svc.BillSession(ctx, in)
	require.NoError(t, err)
	assert.NotNil(t, inv.SentAt)
	_, err = svc.BillSession(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 1, mailer.count())

	var invoices []Invoice
	require.NoError(t, db.Find(&invoices).Error)
	require.Len(t, invoices, 1)
	assert.Equal(t, StatusPaid, invoices[0].Status)
}

func TestMetrics(t *testing.T) {
	svc, _, _, _ := setupTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateInput{CoachID: coachID, ClientID: clientID, Items: oneItem(10000)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{CoachID: coachID, ClientID: clientID, Items: oneItem(3000)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{CoachID: otherCoachID, ClientID: clientID, Items: oneItem(999)})
	require.NoError(t, err)
	_, err = svc.RecordPayment(ctx, coachID, jwt.RoleCoach, a.ID, RecordPaymentInput{AmountCents: 2500})
	require.NoError(t, err)

	m, err := svc.Metrics(ctx, coachID, jwt.RoleCoach, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(13000), m.InvoicedCents)
	assert.Equal(t, int64(2500), m.CollectedCents)
	assert.Equal(t, int64(10500), m.OutstandingCents)
	assert.Equal(t, int64(1), m.Counts[StatusPartiallyPaid])
	assert.Equal(t, int64(1), m.Counts[StatusPending])

	all, err := svc.Metrics(ctx, 1000, jwt.RoleAdmin, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(13999), all.InvoicedCents)

	_, err = svc.Metrics(ctx, clientID, jwt.RoleClient, 0)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestListAndGetAccess(t *testing.T) {
	svc, _, _, _ := setupTestService(t)
	ctx := context.Background()
	inv, err := svc.Create(ctx, CreateInput{CoachID: coachID, ClientID: clientID, Items: oneItem(1000)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{CoachID: otherCoachID, ClientID: clientID, Items: oneItem(1000)})
	require.NoError(t, err)

	got, err := svc.Get(ctx, clientID, jwt.RoleClient, inv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)
	_, err = svc.Get(ctx, otherClient, jwt.RoleClient, inv.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	list, total, err := svc.ListByClient(ctx, clientID, jwt.RoleClient, clientID, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, list, 2)

	_, total, err = svc.ListByClient(ctx, coachID, jwt.RoleCoach, clientID, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, _, err = svc.ListByCoach(ctx, otherCoachID, jwt.RoleCoach, coachID, ListFilter{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, _, err = svc.ListByClient(ctx, otherClient, jwt.RoleClient, clientID, ListFilter{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
