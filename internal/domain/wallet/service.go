package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coachbook/internal/database"
	"coachbook/internal/pkg/apperr"
)

var (
	ErrInvalidAmount     = fmt.Errorf("%w: amount must be positive", apperr.ErrValidation)
	ErrInsufficientFunds = fmt.Errorf("%w: insufficient balance", apperr.ErrConflict)
)

type Service struct {
	db       *gorm.DB
	currency string
	log      *zap.Logger
}

func NewService(db *gorm.DB, currency string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if currency == "" {
		currency = "USD"
	}
	return &Service{db: db, currency: currency, log: log}
}

func (s *Service) GetOrCreateWallet(ctx context.Context, coachID int64) (*Wallet, error) {
	wallet, err := s.getWalletByCoachID(ctx, coachID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	wallet = &Wallet{CoachID: coachID, Currency: s.currency}
	if err := s.db.WithContext(ctx).Create(wallet).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return s.getWalletByCoachID(ctx, coachID)
		}
		return nil, err
	}
	return wallet, nil
}

// Credit adds coach earnings for a captured payment. A reference that was
// already applied leaves the balance untouched and reports applied=false.
func (s *Service) Credit(ctx context.Context, coachID, amount int64, reference string, paymentID *int64) (*Wallet, bool, error) {
	return s.apply(ctx, coachID, EntryEarning, amount, reference, paymentID)
}

// Reverse takes back earnings after a refund.
func (s *Service) Reverse(ctx context.Context, coachID, amount int64, reference string, paymentID *int64) (*Wallet, bool, error) {
	return s.apply(ctx, coachID, EntryReversal, -amount, reference, paymentID)
}

func (s *Service) Payout(ctx context.Context, coachID, amount int64) (*Wallet, *Entry, error) {
	if amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	var wallet Wallet
	var entry Entry

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.getOrCreateWalletForUpdate(tx, coachID, &wallet); err != nil {
			return err
		}
		if wallet.BalanceCents < amount {
			return ErrInsufficientFunds
		}

		wallet.BalanceCents -= amount
		if err := tx.Model(&Wallet{}).Where("id = ?", wallet.ID).Update("balance_cents", wallet.BalanceCents).Error; err != nil {
			return err
		}

		entry = Entry{WalletID: wallet.ID, Type: EntryPayout, AmountCents: -amount, Reference: "payout:" + uuid.NewString()}
		return tx.Create(&entry).Error
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("coach payout requested", zap.Int64("coach_id", coachID), zap.Int64("amount_cents", amount))
	return &wallet, &entry, nil
}

func (s *Service) apply(ctx context.Context, coachID int64, entryType string, delta int64, reference string, paymentID *int64) (*Wallet, bool, error) {
	if delta == 0 {
		return nil, false, ErrInvalidAmount
	}
	if entryType == EntryEarning && delta < 0 {
		return nil, false, ErrInvalidAmount
	}
	if entryType == EntryReversal && delta > 0 {
		return nil, false, ErrInvalidAmount
	}

	var wallet Wallet
	applied := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.getOrCreateWalletForUpdate(tx, coachID, &wallet); err != nil {
			return err
		}

		entry := Entry{WalletID: wallet.ID, Type: entryType, AmountCents: delta, PaymentID: paymentID, Reference: reference}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		wallet.BalanceCents += delta
		applied = true
		return tx.Model(&Wallet{}).Where("id = ?", wallet.ID).Update("balance_cents", wallet.BalanceCents).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &wallet, applied, nil
}

func (s *Service) ListTransactions(ctx context.Context, coachID int64, limit, offset int) ([]Entry, error) {
	wallet, err := s.GetOrCreateWallet(ctx, coachID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var entries []Entry
	if err := s.db.WithContext(ctx).
		Where("wallet_id = ?", wallet.ID).
		Order("created_at desc").
		Limit(limit).Offset(offset).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) getWalletByCoachID(ctx context.Context, coachID int64) (*Wallet, error) {
	var wallet Wallet
	if err := s.db.WithContext(ctx).Where("coach_id = ?", coachID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (s *Service) getOrCreateWalletForUpdate(tx *gorm.DB, coachID int64, wallet *Wallet) error {
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("coach_id = ?", coachID).First(wallet).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		fresh := Wallet{CoachID: coachID, Currency: s.currency}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
			return err
		}
		// a concurrent creator may have won; read back whichever row exists
		*wallet = Wallet{}
		return tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("coach_id = ?", coachID).First(wallet).Error
	}
	return nil
}
