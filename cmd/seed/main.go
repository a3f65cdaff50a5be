// seed inserts development sample data for local testing. Run via go run ./cmd/seed.
// Idempotent: skips inserts if the dev doctor (doctor@example.com) already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"clinic-messaging/backend/internal/config"
	"clinic-messaging/backend/internal/db"
	identitydomain "clinic-messaging/backend/internal/identity/domain"
	identityrepo "clinic-messaging/backend/internal/identity/repository"
	messagingdomain "clinic-messaging/backend/internal/messaging/domain"
	messagingrepo "clinic-messaging/backend/internal/messaging/repository"
	"clinic-messaging/backend/internal/security"
)

// Fixed UUIDs so reruns and docs reference stable ids. The id columns are
// UUID-typed, so these must stay parseable as UUIDs.
const (
	doctorEmail  = "doctor@example.com"
	patientEmail = "patient@example.com"
	devPassword  = "password-please-change"
	doctorID     = "11111111-1111-4111-8111-111111111111"
	patientID    = "22222222-2222-4222-8222-222222222222"
	threadID     = "33333333-3333-4333-8333-333333333333"
	messageID    = "44444444-4444-4444-8444-444444444444"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	users := identityrepo.NewPostgresRepository(conn)
	threads := messagingrepo.NewPostgresRepository(conn)

	existing, err := users.GetByEmail(ctx, doctorEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (doctor@example.com exists). Skipping.")
		os.Exit(0)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()

	if err := users.Create(ctx, &identitydomain.User{
		ID:           doctorID,
		Email:        doctorEmail,
		PasswordHash: passwordHash,
		Role:         identitydomain.RoleDoctor,
		FullName:     "Dr. Dev Doctor",
		CreatedAt:    now,
	}); err != nil {
		log.Fatalf("create doctor: %v", err)
	}

	if err := users.Create(ctx, &identitydomain.User{
		ID:           patientID,
		Email:        patientEmail,
		PasswordHash: passwordHash,
		Role:         identitydomain.RolePatient,
		FullName:     "Pat Patient",
		CreatedAt:    now,
	}); err != nil {
		log.Fatalf("create patient: %v", err)
	}

	if err := threads.CreateThread(ctx, &messagingdomain.Thread{
		ID:        threadID,
		DoctorID:  doctorID,
		PatientID: patientID,
		CreatedAt: now,
	}); err != nil {
		log.Fatalf("create thread: %v", err)
	}

	if err := threads.CreateMessage(ctx, &messagingdomain.Message{
		ID:        messageID,
		ThreadID:  threadID,
		SenderID:  doctorID,
		Body:      "Hi, how are you feeling after the new prescription?",
		CreatedAt: now,
	}); err != nil {
		log.Fatalf("create message: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Doctor login: %s / %s\n", doctorEmail, devPassword)
	fmt.Printf("Patient login: %s / %s\n", patientEmail, devPassword)
}
