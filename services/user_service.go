package services

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/fenilmodi00/ipogains-backend/models"
	"github.com/fenilmodi00/ipogains-backend/shared"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const (
	otpLength   = 6
	otpValidity = 10 * time.Minute
	bcryptCost  = 10
)

type UserService struct {
	db          *sql.DB
	subscribers *SubscriberService
	mailer      Mailer
	senderEmail string
	frontendURL string
	metrics     *shared.ServiceMetrics
}

func NewUserService(db *sql.DB, subscribers *SubscriberService, mailer Mailer, senderEmail, frontendURL string) *UserService {
	return &UserService{
		db:          db,
		subscribers: subscribers,
		mailer:      mailer,
		senderEmail: senderEmail,
		frontendURL: frontendURL,
		metrics:     shared.NewServiceMetrics("user_service"),
	}
}

const userColumns = `id, email, password, role, is_verified, otp_code, otp_expires_at, created_at`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.Role, &u.IsVerified,
		&u.OTPCode, &u.OTPExpiresAt, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Register creates a verified account, subscribes the user to the
// newsletter, and returns the stored user. Duplicate emails conflict.
func (s *UserService) Register(email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return nil, shared.NewValidationError("A valid email address is required")
	}
	if len(password) < 8 {
		return nil, shared.NewValidationError("Password must be at least 8 characters")
	}

	var exists bool
	if err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)", email).Scan(&exists); err != nil {
		s.metrics.RecordOperation(false)
		return nil, shared.NewInternalError("Failed to check existing user", err)
	}
	if exists {
		return nil, shared.NewConflictError("An account with this email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		s.metrics.RecordOperation(false)
		return nil, shared.NewInternalError("Failed to hash password", err)
	}

	user := &models.User{
		ID:         uuid.New(),
		Email:      email,
		Password:   string(hash),
		Role:       models.RoleUser,
		IsVerified: true,
		CreatedAt:  time.Now(),
	}

	_, err = s.db.Exec(`INSERT INTO users (id, email, password, role, is_verified, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		user.ID, user.Email, user.Password, user.Role, user.IsVerified, user.CreatedAt)
	if err != nil {
		s.metrics.RecordOperation(false)
		return nil, shared.NewInternalError("Failed to create user", err)
	}

	// Subscribe with the registration source. Failure here never fails the
	// registration itself.
	if s.subscribers != nil {
		if _, err := s.subscribers.EnsureSubscribed(email, "", models.SourceRegistration, &user.ID); err != nil {
			logrus.WithFields(logrus.Fields{
				"email": email,
				"error": err,
			}).Warn("Failed to auto-subscribe new user")
		}
	}

	s.metrics.RecordOperation(true)
	s.metrics.IncrementCounter("registrations")
	logrus.WithField("email", email).Info("User registered")
	return user, nil
}

// Authenticate checks credentials and returns the user on success.
func (s *UserService) Authenticate(email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.GetByEmail(email)
	if err != nil {
		if shared.AsAPIError(err).Category == shared.ErrorCategoryNotFound {
			return nil, shared.NewAuthError("Invalid email or password")
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		s.metrics.IncrementCounter("failed_logins")
		return nil, shared.NewAuthError("Invalid email or password")
	}

	// Unverified accounts get a fresh code instead of a session.
	if !user.IsVerified {
		if err := s.issueOTP(user, "Verify your IPOGains account",
			"Use this code to verify your email address."); err != nil {
			logrus.WithField("email", user.Email).WithError(err).Warn("Failed to reissue verification code")
		}
		return nil, shared.NewAuthError("Account not verified; a new verification code has been sent")
	}

	s.metrics.RecordOperation(true)
	s.metrics.IncrementCounter("logins")
	go s.sendLoginAlert(user)
	return user, nil
}

func (s *UserService) sendLoginAlert(user *models.User) {
	msg := EmailMessage{
		To:      user.Email,
		From:    s.senderEmail,
		Subject: "New sign-in to your IPOGains account",
		HTML:    renderLoginAlert(time.Now(), s.frontendURL),
	}
	if err := s.mailer.Send(msg); err != nil {
		logrus.WithField("email", user.Email).WithError(err).Debug("Failed to send login alert")
	}
}

// GetByID fetches a user by id.
func (s *UserService) GetByID(id uuid.UUID) (*models.User, error) {
	row := s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = $1", id)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, shared.NewNotFoundError("User not found")
	}
	if err != nil {
		return nil, shared.NewInternalError("Failed to fetch user", err)
	}
	return user, nil
}

// GetByEmail fetches a user by email.
func (s *UserService) GetByEmail(email string) (*models.User, error) {
	row := s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE email = $1", strings.ToLower(email))
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, shared.NewNotFoundError("User not found")
	}
	if err != nil {
		return nil, shared.NewInternalError("Failed to fetch user", err)
	}
	return user, nil
}

func generateOTP() (string, error) {
	code := make([]byte, otpLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}

func (s *UserService) issueOTP(user *models.User, subject, intro string) error {
	code, err := generateOTP()
	if err != nil {
		return shared.NewInternalError("Failed to generate OTP", err)
	}
	expires := time.Now().Add(otpValidity)

	_, err = s.db.Exec("UPDATE users SET otp_code = $2, otp_expires_at = $3 WHERE id = $1",
		user.ID, code, expires)
	if err != nil {
		return shared.NewInternalError("Failed to store OTP", err)
	}

	msg := EmailMessage{
		To:      user.Email,
		From:    s.senderEmail,
		Subject: subject,
		HTML:    renderOTPEmail(intro, code, otpValidity),
	}
	if err := s.mailer.Send(msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"email": user.Email,
			"error": err,
		}).Error("Failed to send OTP email")
		return shared.NewInternalError("Failed to send verification email", err)
	}
	return nil
}

// ResendOTP issues a fresh verification code for an unverified account.
func (s *UserService) ResendOTP(email string) error {
	user, err := s.GetByEmail(email)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return shared.NewConflictError("Account is already verified")
	}
	return s.issueOTP(user, "Verify your IPOGains account",
		"Use this code to verify your email address.")
}

// VerifyOTP marks the account verified when the code matches and has not
// expired. The code is single-use.
func (s *UserService) VerifyOTP(email, code string) error {
	user, err := s.GetByEmail(email)
	if err != nil {
		return err
	}
	if err := s.checkOTP(user, code); err != nil {
		return err
	}

	_, err = s.db.Exec("UPDATE users SET is_verified = TRUE, otp_code = NULL, otp_expires_at = NULL WHERE id = $1", user.ID)
	if err != nil {
		return shared.NewInternalError("Failed to verify account", err)
	}
	s.metrics.IncrementCounter("verifications")
	return nil
}

func (s *UserService) checkOTP(user *models.User, code string) error {
	if user.OTPCode == nil || user.OTPExpiresAt == nil {
		return shared.NewValidationError("No verification code was requested")
	}
	if time.Now().After(*user.OTPExpiresAt) {
		return shared.NewValidationError("Verification code has expired")
	}
	if *user.OTPCode != code {
		return shared.NewValidationError("Invalid verification code")
	}
	return nil
}

// ForgotPassword sends a reset code. It reports success even when the email
// is unknown so account existence is not leaked.
func (s *UserService) ForgotPassword(email string) error {
	user, err := s.GetByEmail(email)
	if err != nil {
		if shared.AsAPIError(err).Category == shared.ErrorCategoryNotFound {
			logrus.WithField("email", email).Debug("Password reset requested for unknown email")
			return nil
		}
		return err
	}
	return s.issueOTP(user, "Reset your IPOGains password",
		"Use this code to reset your password.")
}

// ResetPassword sets a new password after validating the reset code.
func (s *UserService) ResetPassword(email, code, newPassword string) error {
	if len(newPassword) < 8 {
		return shared.NewValidationError("Password must be at least 8 characters")
	}
	user, err := s.GetByEmail(email)
	if err != nil {
		return err
	}
	if err := s.checkOTP(user, code); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return shared.NewInternalError("Failed to hash password", err)
	}

	_, err = s.db.Exec("UPDATE users SET password = $2, otp_code = NULL, otp_expires_at = NULL WHERE id = $1",
		user.ID, string(hash))
	if err != nil {
		return shared.NewInternalError("Failed to reset password", err)
	}
	s.metrics.IncrementCounter("password_resets")
	logrus.WithField("email", user.Email).Info("Password reset")
	return nil
}

// SetRole changes a user's role. Admin-only at the handler layer.
func (s *UserService) SetRole(id uuid.UUID, role string) error {
	if role != models.RoleUser && role != models.RoleAdmin {
		return shared.NewValidationError(fmt.Sprintf("Unknown role: %s", role))
	}
	result, err := s.db.Exec("UPDATE users SET role = $2 WHERE id = $1", id, role)
	if err != nil {
		return shared.NewInternalError("Failed to update role", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return shared.NewNotFoundError("User not found")
	}
	logrus.WithFields(logrus.Fields{"user_id": id, "role": role}).Info("User role updated")
	return nil
}

// DeleteUser removes an account. Applications cascade away; the linked
// subscriber row survives with its user reference cleared.
func (s *UserService) DeleteUser(id uuid.UUID) error {
	result, err := s.db.Exec("DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return shared.NewInternalError("Failed to delete user", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return shared.NewNotFoundError("User not found")
	}
	logrus.WithField("user_id", id).Info("User deleted")
	return nil
}

// ListUsers returns all users, newest first. Admin-only.
func (s *UserService) ListUsers() ([]*models.User, error) {
	rows, err := s.db.Query("SELECT " + userColumns + " FROM users ORDER BY created_at DESC")
	if err != nil {
		return nil, shared.NewInternalError("Failed to list users", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, shared.NewInternalError("Failed to scan user", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
