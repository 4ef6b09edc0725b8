package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Connect opens a Postgres pool and verifies connectivity.
func Connect(databaseURL string) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Connected to PostgreSQL database")
	return db, nil
}

// Migrate creates the schema if it does not exist yet. Statements are
// idempotent so they run on every startup.
func Migrate(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ipos (
			id UUID PRIMARY KEY,
			company_name TEXT NOT NULL,
			company_logo TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT 'Mainboard',
			sector TEXT NOT NULL DEFAULT '',
			price_min DOUBLE PRECISION NOT NULL DEFAULT 0,
			price_max DOUBLE PRECISION NOT NULL DEFAULT 0,
			lot_size INTEGER NOT NULL DEFAULT 0,
			min_investment DOUBLE PRECISION NOT NULL DEFAULT 0,
			issue_size DOUBLE PRECISION NOT NULL DEFAULT 0,
			face_value DOUBLE PRECISION NOT NULL DEFAULT 0,
			open_date TIMESTAMPTZ,
			close_date TIMESTAMPTZ,
			allotment_date TIMESTAMPTZ,
			listing_date TIMESTAMPTZ,
			status TEXT NOT NULL DEFAULT 'upcoming',
			subscription JSONB NOT NULL DEFAULT '{}',
			gmp JSONB NOT NULL DEFAULT '[]',
			listing_price DOUBLE PRECISION,
			listing_gain JSONB,
			company_description TEXT NOT NULL DEFAULT '',
			financials JSONB NOT NULL DEFAULT '{}',
			lead_managers JSONB NOT NULL DEFAULT '[]',
			registrar TEXT NOT NULL DEFAULT '',
			allotment_link TEXT NOT NULL DEFAULT '',
			recommendation TEXT NOT NULL DEFAULT '',
			recommendation_note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ipos_status ON ipos(status)`,
		`CREATE INDEX IF NOT EXISTS idx_ipos_category ON ipos(category)`,
		`CREATE INDEX IF NOT EXISTS idx_ipos_open_date ON ipos(open_date)`,

		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			is_verified BOOLEAN NOT NULL DEFAULT FALSE,
			otp_code TEXT,
			otp_expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS applications (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			ipo_id UUID NOT NULL REFERENCES ipos(id) ON DELETE CASCADE,
			pan_card TEXT NOT NULL,
			application_number TEXT NOT NULL DEFAULT '',
			applied_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			lot_size INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'pending'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_applications_user ON applications(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_applications_ipo ON applications(ipo_id)`,

		`CREATE TABLE IF NOT EXISTS subscribers (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			subscribed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			source TEXT NOT NULL DEFAULT 'newsletter',
			preferences JSONB NOT NULL DEFAULT '{}',
			unsubscribe_token TEXT NOT NULL UNIQUE,
			last_notification_sent TIMESTAMPTZ,
			notification_count INTEGER NOT NULL DEFAULT 0,
			user_id UUID REFERENCES users(id) ON DELETE SET NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscribers_active ON subscribers(is_active)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id UUID PRIMARY KEY,
			type TEXT NOT NULL,
			ipo_id UUID,
			ipo_name TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			previous_value JSONB,
			new_value JSONB,
			is_processed BOOLEAN NOT NULL DEFAULT FALSE,
			processed_at TIMESTAMPTZ,
			emails_sent INTEGER NOT NULL DEFAULT 0,
			emails_failed INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_pending ON notifications(is_processed, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	logrus.Info("Database schema is up to date")
	return nil
}
