package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Application statuses for a tracked IPO application.
const (
	ApplicationPending         = "pending"
	ApplicationAllotted        = "allotted"
	ApplicationNotAllotted     = "not_allotted"
	ApplicationCheckedExternal = "checked_external"
)

type User struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Password   string    `json:"-"`
	Role       string    `json:"role"`
	IsVerified bool      `json:"is_verified"`

	// Transient OTP state for email verification and password reset.
	OTPCode      *string    `json:"-"`
	OTPExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// Application is a user's record of one IPO application, real or merely
// "checked". A user holds at most one per IPO; the invariant is enforced by
// the allotment service, not by a database constraint.
type Application struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
	IPOID  uuid.UUID `json:"ipo_id"`

	// Fernet-encrypted PAN. Never serialized.
	PANCard string `json:"-"`

	ApplicationNumber string    `json:"application_number"`
	AppliedDate       time.Time `json:"applied_date"`
	LotSize           int       `json:"lot_size"`
	Status            string    `json:"status"`
}

// ValidApplicationStatus reports whether s is a known application status.
func ValidApplicationStatus(s string) bool {
	switch s {
	case ApplicationPending, ApplicationAllotted, ApplicationNotAllotted, ApplicationCheckedExternal:
		return true
	}
	return false
}
