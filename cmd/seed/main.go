package main

import (
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"coachbook/internal/app"
	"coachbook/internal/config"
	"coachbook/internal/database"
	"coachbook/internal/domain/profile"
	jwtsvc "coachbook/internal/pkg/jwt"
)

type seedUser struct {
	email    string
	name     string
	role     string
	password string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL, nil)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}

	log.Println("Running AutoMigrate...")
	if err := database.Migrate(db, app.Models()...); err != nil {
		log.Fatal("AutoMigrate failed:", err)
	}

	log.Println("Cleaning old data...")
	for _, table := range []string{
		"outbox_deliveries", "outbox_events", "notifications",
		"earnings_ledger", "earnings_wallets",
		"invoice_reminders", "invoice_payments", "invoice_items", "invoices",
		"recurring_invoice_items", "recurring_invoices", "invoice_sequences",
		"payment_refunds", "payments",
		"booking_events", "coaching_sessions", "booking_requests",
		"coach_rates", "coach_profiles", "client_profiles", "users",
	} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			log.Fatalf("clean %s: %v", table, err)
		}
	}

	j := jwtsvc.New(cfg.JWTSecret, cfg.JWTAccessTTL)

	log.Println("Creating users...")
	admin := createUser(db, seedUser{"admin@coachbook.local", "Platform Admin", jwtsvc.RoleAdmin, "admin123"})
	printToken(j, admin)

	coaches := []seedUser{
		{"maria@coachbook.local", "Maria Lopez", jwtsvc.RoleCoach, "coach123"},
		{"tom@coachbook.local", "Tom Becker", jwtsvc.RoleCoach, "coach123"},
	}
	for i, cu := range coaches {
		coach := createUser(db, cu)
		must(db.Create(&profile.CoachProfile{
			UserID:      coach.ID,
			DisplayName: cu.name,
			Bio:         "Certified strength and conditioning coach",
			IsActive:    true,
		}).Error)
		for _, r := range []profile.CoachRate{
			{Name: "1:1 hour", SessionType: "individual", DurationMinutes: 60, PriceCents: int64(9000 + i*1000)},
			{Name: "Group 90", SessionType: "group", DurationMinutes: 90, PriceCents: int64(4500 + i*500)},
		} {
			r.CoachID = coach.ID
			r.IsActive = true
			must(db.Create(&r).Error)
		}
		printToken(j, coach)
	}

	clients := []struct {
		seedUser
		first, last string
	}{
		{seedUser{"ana@example.com", "Ana Silva", jwtsvc.RoleClient, "client123"}, "Ana", "Silva"},
		{seedUser{"ben@example.com", "Ben Ortiz", jwtsvc.RoleClient, "client123"}, "Ben", "Ortiz"},
		{seedUser{"chen@example.com", "Chen Wei", jwtsvc.RoleClient, "client123"}, "", ""},
	}
	for _, cu := range clients {
		client := createUser(db, cu.seedUser)
		must(db.Create(&profile.ClientProfile{UserID: client.ID, FirstName: cu.first, LastName: cu.last}).Error)
		printToken(j, client)
	}

	log.Println("Seed completed")
}

func createUser(db *gorm.DB, u seedUser) *profile.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
	must(err)
	user := &profile.User{Email: u.email, PasswordHash: string(hash), Role: u.role, Name: u.name}
	must(db.Create(user).Error)
	log.Printf("%s created: %s / %s", u.role, u.email, u.password)
	return user
}

func printToken(j *jwtsvc.Service, u *profile.User) {
	token, err := j.GenerateToken(u.ID, u.Role)
	must(err)
	fmt.Printf("%-6s %-24s id=%d token=%s\n", u.Role, u.Email, u.ID, token)
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
