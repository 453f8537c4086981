package profile

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"coachbook/internal/database"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to an open transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repository) GetClientProfile(ctx context.Context, userID int64) (*ClientProfile, error) {
	var p ClientProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &p, nil
}

// EnsureClientProfile returns the existing profile or creates an empty one.
func (r *Repository) EnsureClientProfile(ctx context.Context, userID int64) (*ClientProfile, error) {
	p, err := r.GetClientProfile(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}

	p = &ClientProfile{UserID: userID}
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return r.GetClientProfile(ctx, userID)
		}
		return nil, err
	}
	return p, nil
}

func (r *Repository) SetGatewayCustomerID(ctx context.Context, userID int64, customerID string) error {
	res := r.db.WithContext(ctx).
		Model(&ClientProfile{}).
		Where("user_id = ?", userID).
		Update("gateway_customer_id", customerID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (r *Repository) GetCoachProfile(ctx context.Context, userID int64) (*CoachProfile, error) {
	var p CoachProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetActiveCoach returns the coach profile only when it accepts bookings.
func (r *Repository) GetActiveCoach(ctx context.Context, userID int64) (*CoachProfile, error) {
	p, err := r.GetCoachProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrCoachInactive
	}
	return p, nil
}

// GetCoachRate loads a rate owned by coachID. Inactive rates are reported as missing.
func (r *Repository) GetCoachRate(ctx context.Context, coachID, rateID int64) (*CoachRate, error) {
	var rate CoachRate
	err := r.db.WithContext(ctx).
		Where("id = ? AND coach_id = ? AND is_active = ?", rateID, coachID, true).
		First(&rate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRateNotFound
		}
		return nil, err
	}
	return &rate, nil
}

func (r *Repository) ListCoachRates(ctx context.Context, coachID int64) ([]CoachRate, error) {
	var rates []CoachRate
	err := r.db.WithContext(ctx).
		Where("coach_id = ? AND is_active = ?", coachID, true).
		Order("price_cents asc").
		Find(&rates).Error
	return rates, err
}

// GatewayCustomerID returns the stored payment gateway link for a client, or
// "" when none exists yet. An empty profile is created on first use.
func (r *Repository) GatewayCustomerID(ctx context.Context, userID int64) (string, error) {
	p, err := r.EnsureClientProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	if p.GatewayCustomerID == nil {
		return "", nil
	}
	return *p.GatewayCustomerID, nil
}
