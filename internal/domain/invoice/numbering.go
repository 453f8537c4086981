package invoice

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const numberPrefix = "INV"

// NextNumber reserves the next invoice number for coachID in the month of at.
// It must run inside the transaction that inserts the invoice: the counter row
// stays locked until commit, so concurrent creators queue instead of colliding.
func NextNumber(ctx context.Context, tx *gorm.DB, coachID int64, at time.Time) (string, error) {
	period := at.UTC().Format("200601")

	seq := Sequence{CoachID: coachID, Period: period, LastValue: 1}
	err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "coach_id"}, {Name: "period"}},
		DoUpdates: clause.Assignments(map[string]any{"last_value": gorm.Expr("invoice_sequences.last_value + 1")}),
	}).Create(&seq).Error
	if err != nil {
		return "", fmt.Errorf("bump invoice sequence: %w", err)
	}

	var value int64
	err = tx.WithContext(ctx).Model(&Sequence{}).
		Where("coach_id = ? AND period = ?", coachID, period).
		Pluck("last_value", &value).Error
	if err != nil {
		return "", fmt.Errorf("read invoice sequence: %w", err)
	}
	return FormatNumber(period, value), nil
}

func FormatNumber(period string, value int64) string {
	return fmt.Sprintf("%s-%s-%04d", numberPrefix, period, value)
}
