package wallet

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EntryEarning  = "EARNING"
	EntryReversal = "REVERSAL"
	EntryPayout   = "PAYOUT"
)

// Wallet holds a coach's accumulated earnings. Reversals may push the balance
// below zero when a refund lands after a payout.
type Wallet struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CoachID      int64     `json:"coach_id" gorm:"not null;uniqueIndex"`
	BalanceCents int64     `json:"balance_cents" gorm:"not null;default:0"`
	Currency     string    `json:"currency" gorm:"size:3;not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Wallet) TableName() string {
	return "earnings_wallets"
}

func (w *Wallet) BeforeCreate(_ *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// Entry is one ledger line. Reference is unique so replayed events are
// applied once.
type Entry struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	WalletID    uuid.UUID `json:"wallet_id" gorm:"type:uuid;not null;index"`
	Type        string    `json:"type" gorm:"type:varchar(16);not null;index;check:type IN ('EARNING','REVERSAL','PAYOUT')"`
	AmountCents int64     `json:"amount_cents" gorm:"not null"`
	PaymentID   *int64    `json:"payment_id,omitempty" gorm:"index"`
	Reference   string    `json:"reference" gorm:"size:128;not null;uniqueIndex"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (Entry) TableName() string {
	return "earnings_ledger"
}

func (e *Entry) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

func Models() []any {
	return []any{&Wallet{}, &Entry{}}
}
