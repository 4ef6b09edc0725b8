package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification types.
const (
	NotificationNewIPO             = "new_ipo"
	NotificationStatusChange       = "status_change"
	NotificationGMPUpdate          = "gmp_update"
	NotificationSubscriptionUpdate = "subscription_update"
	NotificationAllotmentAvailable = "allotment_available"
	NotificationListing            = "listing"
)

// Notification records one subscriber-visible change event. It is created
// once per trigger and marked processed exactly once after fan-out, with the
// aggregate send counters written at that point.
type Notification struct {
	ID    uuid.UUID `json:"id"`
	Type  string    `json:"type"`
	IPOID uuid.UUID `json:"ipo_id"`

	// Denormalized so history stays readable after an IPO is deleted.
	IPOName string `json:"ipo_name"`

	Title   string `json:"title"`
	Message string `json:"message"`

	// Loosely typed change payload (previous/new GMP value, status, ...).
	PreviousValue json.RawMessage `json:"previous_value"`
	NewValue      json.RawMessage `json:"new_value"`

	IsProcessed bool       `json:"is_processed"`
	ProcessedAt *time.Time `json:"processed_at"`

	EmailsSent   int `json:"emails_sent"`
	EmailsFailed int `json:"emails_failed"`

	CreatedAt time.Time `json:"created_at"`
}
