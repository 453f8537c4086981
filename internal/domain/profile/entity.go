package profile

import "time"

// User is the account row; credentials are issued elsewhere.
type User struct {
	ID           int64     `json:"id" gorm:"primaryKey"`
	Email        string    `json:"email" gorm:"size:255;not null;uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"size:255"`
	Role         string    `json:"role" gorm:"size:16;not null;index"`
	Name         string    `json:"name" gorm:"size:255"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// ClientProfile carries the billing identity of a client.
type ClientProfile struct {
	ID                int64     `json:"id" gorm:"primaryKey"`
	UserID            int64     `json:"user_id" gorm:"not null;uniqueIndex"`
	FirstName         string    `json:"first_name" gorm:"size:128"`
	LastName          string    `json:"last_name" gorm:"size:128"`
	Phone             string    `json:"phone,omitempty" gorm:"size:32"`
	GatewayCustomerID *string   `json:"-" gorm:"size:128"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (ClientProfile) TableName() string { return "client_profiles" }

// DisplayName returns the best available human name.
func (p *ClientProfile) DisplayName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	case p.LastName != "":
		return p.LastName
	}
	return "Client"
}

type CoachProfile struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	UserID      int64     `json:"user_id" gorm:"not null;uniqueIndex"`
	DisplayName string    `json:"display_name" gorm:"size:255"`
	Bio         string    `json:"bio,omitempty" gorm:"type:text"`
	IsActive    bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (CoachProfile) TableName() string { return "coach_profiles" }

// CoachRate is a published price for one session shape.
type CoachRate struct {
	ID              int64     `json:"id" gorm:"primaryKey"`
	CoachID         int64     `json:"coach_id" gorm:"not null;index"`
	Name            string    `json:"name" gorm:"size:128;not null"`
	SessionType     string    `json:"session_type" gorm:"size:16;not null"`
	DurationMinutes int       `json:"duration_minutes" gorm:"not null"`
	PriceCents      int64     `json:"price_cents" gorm:"not null"`
	IsActive        bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (CoachRate) TableName() string { return "coach_rates" }

// Models lists the tables owned by this package, in migration order.
func Models() []any {
	return []any{&User{}, &ClientProfile{}, &CoachProfile{}, &CoachRate{}}
}
