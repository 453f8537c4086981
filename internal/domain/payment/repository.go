package payment

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

// NewRepository accepts either the root handle or an open transaction.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, p *Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Payment, error) {
	var p Payment
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repository) GetByIDForUpdate(ctx context.Context, id int64) (*Payment, error) {
	var p Payment
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repository) GetByGatewayIDForUpdate(ctx context.Context, gatewayPaymentID string) (*Payment, error) {
	var p Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("gateway_payment_id = ?", gatewayPaymentID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repository) GetByBookingRequest(ctx context.Context, bookingRequestID int64) (*Payment, error) {
	var p Payment
	err := r.db.WithContext(ctx).
		Where("booking_request_id = ? AND status <> ?", bookingRequestID, StatusFailed).
		Order("id desc").
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// TransitionFromProcessing moves a processing payment to status. It reports
// false when the row was already resolved.
func (r *Repository) TransitionFromProcessing(ctx context.Context, id int64, status Status, reason string, at time.Time) (bool, error) {
	updates := map[string]any{"status": status, "updated_at": at}
	if reason != "" {
		updates["failure_reason"] = reason
	}
	res := r.db.WithContext(ctx).
		Model(&Payment{}).
		Where("id = ? AND status = ?", id, StatusProcessing).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AddRefunded increments refunded_cents while it stays within the amount.
func (r *Repository) AddRefunded(ctx context.Context, id, amount int64, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&Payment{}).
		Where("id = ? AND refunded_cents + ? <= amount_cents", id, amount).
		Updates(map[string]any{
			"refunded_cents": gorm.Expr("refunded_cents + ?", amount),
			"updated_at":     at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRefundExceeds
	}
	return nil
}

func (r *Repository) CreateRefund(ctx context.Context, refund *Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *Repository) ListRefunds(ctx context.Context, paymentID int64) ([]Refund, error) {
	var out []Refund
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Order("id asc").Find(&out).Error
	return out, err
}
