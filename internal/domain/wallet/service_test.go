package wallet

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"coachbook/internal/domain/payment"
	"coachbook/internal/outbox"
	"coachbook/internal/pkg/apperr"
)

func setupTestDB(t *testing.T, prefix string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", prefix, t.Name())
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	return db
}

func setupTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(setupTestDB(t, "wallet_test"), "USD", nil)
}

func TestGetOrCreateWalletCreatesOnFirstRequest(t *testing.T) {
	svc := setupTestService(t)

	wallet, err := svc.GetOrCreateWallet(context.Background(), 1001)
	if err != nil {
		t.Fatalf("GetOrCreateWallet returned error: %v", err)
	}
	if wallet.BalanceCents != 0 || wallet.Currency != "USD" {
		t.Fatalf("expected empty USD wallet, got %d %s", wallet.BalanceCents, wallet.Currency)
	}

	again, err := svc.GetOrCreateWallet(context.Background(), 1001)
	if err != nil {
		t.Fatalf("GetOrCreateWallet second call returned error: %v", err)
	}
	if wallet.ID != again.ID {
		t.Fatalf("expected same wallet id, got %s and %s", wallet.ID, again.ID)
	}
}

func TestCreditIsIdempotentPerReference(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	paymentID := int64(7)

	wallet, applied, err := svc.Credit(ctx, 101, 7650, "payment:7", &paymentID)
	if err != nil {
		t.Fatalf("Credit returned error: %v", err)
	}
	if !applied || wallet.BalanceCents != 7650 {
		t.Fatalf("expected applied credit of 7650, got applied=%v balance=%d", applied, wallet.BalanceCents)
	}

	wallet, applied, err = svc.Credit(ctx, 101, 7650, "payment:7", &paymentID)
	if err != nil {
		t.Fatalf("replayed Credit returned error: %v", err)
	}
	if applied || wallet.BalanceCents != 7650 {
		t.Fatalf("expected replay to be ignored, got applied=%v balance=%d", applied, wallet.BalanceCents)
	}
}

func TestPayoutFlow(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Credit(ctx, 101, 150, "payment:1", nil); err != nil {
		t.Fatalf("Credit returned error: %v", err)
	}

	wallet, entry, err := svc.Payout(ctx, 101, 40)
	if err != nil {
		t.Fatalf("Payout returned error: %v", err)
	}
	if wallet.BalanceCents != 110 {
		t.Fatalf("expected balance 110, got %d", wallet.BalanceCents)
	}
	if entry.Type != EntryPayout || entry.AmountCents != -40 {
		t.Fatalf("expected payout entry of -40, got %s %d", entry.Type, entry.AmountCents)
	}

	_, _, err = svc.Payout(ctx, 101, 500)
	if !errors.Is(err, ErrInsufficientFunds) || !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	entries, err := svc.ListTransactions(ctx, 101, 0, 0)
	if err != nil {
		t.Fatalf("ListTransactions returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(entries))
	}
}

func TestReverseCanGoNegative(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Credit(ctx, 5, 1000, "payment:1", nil); err != nil {
		t.Fatalf("Credit returned error: %v", err)
	}
	if _, _, err := svc.Payout(ctx, 5, 1000); err != nil {
		t.Fatalf("Payout returned error: %v", err)
	}
	wallet, applied, err := svc.Reverse(ctx, 5, 850, "refund:3", nil)
	if err != nil || !applied {
		t.Fatalf("Reverse failed: applied=%v err=%v", applied, err)
	}
	if wallet.BalanceCents != -850 {
		t.Fatalf("expected balance -850, got %d", wallet.BalanceCents)
	}
}

func TestListTransactionsCreatesEmptyWallet(t *testing.T) {
	svc := setupTestService(t)

	entries, err := svc.ListTransactions(context.Background(), 999, 10, 0)
	if err != nil {
		t.Fatalf("ListTransactions returned error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected 0 transactions, got %d", len(entries))
	}
}

func TestRejectsNonPositiveAmounts(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Credit(ctx, 102, 0, "payment:0", nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount from Credit, got %v", err)
	}
	if _, _, err := svc.Reverse(ctx, 102, -5, "refund:0", nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount from Reverse, got %v", err)
	}
	if _, _, err := svc.Payout(ctx, 103, -1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount from Payout, got %v", err)
	}
}

func TestLedgerHandlerAppliesPaymentEvents(t *testing.T) {
	svc := setupTestService(t)
	h := NewLedgerHandler(svc, nil)
	ctx := context.Background()

	completed, err := outbox.New("payment", 12, outbox.PaymentCompleted, payment.CompletedEvent{
		PaymentID: 12, CoachID: 1, AmountCents: 9000, PlatformFeeCents: 1350, CoachEarningsCents: 7650,
	})
	if err != nil {
		t.Fatalf("outbox.New: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := h.Handle(ctx, completed); err != nil {
			t.Fatalf("Handle completed: %v", err)
		}
	}

	refunded, err := outbox.New("payment", 12, outbox.PaymentRefunded, payment.RefundedEvent{
		PaymentID: 12, RefundID: 3, CoachID: 1, AmountCents: 3000, EarningsReversalCents: 2550,
	})
	if err != nil {
		t.Fatalf("outbox.New: %v", err)
	}
	if err := h.Handle(ctx, refunded); err != nil {
		t.Fatalf("Handle refunded: %v", err)
	}

	ignored, _ := outbox.New("invoice", 1, outbox.InvoicePaid, map[string]any{"invoice_id": 1})
	if err := h.Handle(ctx, ignored); err != nil {
		t.Fatalf("Handle unrelated event: %v", err)
	}

	wallet, err := svc.GetOrCreateWallet(ctx, 1)
	if err != nil {
		t.Fatalf("GetOrCreateWallet: %v", err)
	}
	if wallet.BalanceCents != 5100 {
		t.Fatalf("expected balance 5100, got %d", wallet.BalanceCents)
	}
}
