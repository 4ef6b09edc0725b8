package models

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Subscription sources.
const (
	SourceNewsletter   = "newsletter"
	SourceRegistration = "registration"
	SourceManual       = "manual"
)

// Preferences are per-notification-type opt-ins. New subscribers opt in to
// everything.
type Preferences struct {
	NewIPO          bool `json:"new_ipo"`
	StatusChange    bool `json:"status_change"`
	GMPUpdates      bool `json:"gmp_updates"`
	AllotmentStatus bool `json:"allotment_status"`
	DailyDigest     bool `json:"daily_digest"`
}

// DefaultPreferences returns the opt-in-to-everything default.
func DefaultPreferences() Preferences {
	return Preferences{
		NewIPO:          true,
		StatusChange:    true,
		GMPUpdates:      true,
		AllotmentStatus: true,
		DailyDigest:     true,
	}
}

type Subscriber struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	SubscribedAt time.Time `json:"subscribed_at"`
	IsActive     bool      `json:"is_active"`
	Source       string    `json:"source"`

	Preferences Preferences `json:"preferences"`

	// Opaque token embedded in every email for one-click unsubscribe.
	UnsubscribeToken string `json:"unsubscribe_token"`

	LastNotificationSent *time.Time `json:"last_notification_sent"`
	NotificationCount    int        `json:"notification_count"`

	// Weak back-reference to a registered user, if any.
	UserID *uuid.UUID `json:"user_id"`
}

// NewUnsubscribeToken generates a 64-character hex token.
func NewUnsubscribeToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// UUID so subscription creation cannot break.
		return hex.EncodeToString([]byte(uuid.NewString()))[:64]
	}
	return hex.EncodeToString(b)
}
