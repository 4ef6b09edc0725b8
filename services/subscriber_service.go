package services

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fenilmodi00/ipogains-backend/models"
	"github.com/fenilmodi00/ipogains-backend/shared"
)

type SubscriberService struct {
	db          *sql.DB
	mailer      Mailer
	senderEmail string
	frontendURL string
	apiURL      string
	metrics     *shared.ServiceMetrics
}

func NewSubscriberService(db *sql.DB, mailer Mailer, senderEmail, frontendURL, apiURL string) *SubscriberService {
	return &SubscriberService{
		db:          db,
		mailer:      mailer,
		senderEmail: senderEmail,
		frontendURL: frontendURL,
		apiURL:      apiURL,
		metrics:     shared.NewServiceMetrics("subscriber_service"),
	}
}

const subscriberColumns = `id, email, name, subscribed_at, is_active, source,
	preferences, unsubscribe_token, last_notification_sent, notification_count, user_id`

func scanSubscriber(row rowScanner) (*models.Subscriber, error) {
	var sub models.Subscriber
	var prefsJSON []byte
	err := row.Scan(&sub.ID, &sub.Email, &sub.Name, &sub.SubscribedAt, &sub.IsActive,
		&sub.Source, &prefsJSON, &sub.UnsubscribeToken,
		&sub.LastNotificationSent, &sub.NotificationCount, &sub.UserID)
	if err != nil {
		return nil, err
	}
	sub.Preferences = models.DefaultPreferences()
	if len(prefsJSON) > 0 && string(prefsJSON) != "{}" {
		if err := json.Unmarshal(prefsJSON, &sub.Preferences); err != nil {
			return nil, err
		}
	}
	return &sub, nil
}

// Subscribe adds an email to the list. An inactive subscription is
// reactivated with fresh defaults; an active one conflicts.
func (s *SubscriberService) Subscribe(email, name, source string) (*models.Subscriber, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return nil, shared.NewValidationError("A valid email address is required")
	}
	if source == "" {
		source = models.SourceNewsletter
	}

	existing, err := s.getByEmail(email)
	if err != nil {
		if shared.AsAPIError(err).Category != shared.ErrorCategoryNotFound {
			return nil, err
		}
		existing = nil
	}

	if existing != nil {
		if existing.IsActive {
			return nil, shared.NewConflictError("This email is already subscribed")
		}
		return s.reactivate(existing, name, source)
	}

	sub := &models.Subscriber{
		ID:               uuid.New(),
		Email:            email,
		Name:             name,
		SubscribedAt:     time.Now(),
		IsActive:         true,
		Source:           source,
		Preferences:      models.DefaultPreferences(),
		UnsubscribeToken: models.NewUnsubscribeToken(),
	}

	prefsJSON, _ := json.Marshal(sub.Preferences)
	_, err = s.db.Exec(`INSERT INTO subscribers
			(id, email, name, subscribed_at, is_active, source, preferences, unsubscribe_token, notification_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0)`,
		sub.ID, sub.Email, sub.Name, sub.SubscribedAt, sub.IsActive, sub.Source,
		prefsJSON, sub.UnsubscribeToken)
	if err != nil {
		s.metrics.RecordOperation(false)
		return nil, shared.NewInternalError("Failed to create subscriber", err)
	}

	s.sendWelcome(sub)
	s.metrics.RecordOperation(true)
	s.metrics.IncrementCounter("subscriptions")
	logrus.WithFields(logrus.Fields{"email": email, "source": source}).Info("New subscriber")
	return sub, nil
}

func (s *SubscriberService) reactivate(sub *models.Subscriber, name, source string) (*models.Subscriber, error) {
	sub.IsActive = true
	sub.SubscribedAt = time.Now()
	sub.Source = source
	sub.Preferences = models.DefaultPreferences()
	sub.UnsubscribeToken = models.NewUnsubscribeToken()
	if name != "" {
		sub.Name = name
	}

	prefsJSON, _ := json.Marshal(sub.Preferences)
	_, err := s.db.Exec(`UPDATE subscribers SET
			is_active = TRUE, subscribed_at = $2, source = $3, name = $4,
			preferences = $5, unsubscribe_token = $6
		WHERE id = $1`,
		sub.ID, sub.SubscribedAt, sub.Source, sub.Name, prefsJSON, sub.UnsubscribeToken)
	if err != nil {
		s.metrics.RecordOperation(false)
		return nil, shared.NewInternalError("Failed to reactivate subscriber", err)
	}

	s.sendWelcome(sub)
	s.metrics.RecordOperation(true)
	s.metrics.IncrementCounter("resubscriptions")
	logrus.WithField("email", sub.Email).Info("Subscriber reactivated")
	return sub, nil
}

// EnsureSubscribed subscribes the email if it is not already active,
// swallowing the conflict. Used by registration.
func (s *SubscriberService) EnsureSubscribed(email, name, source string, userID *uuid.UUID) (*models.Subscriber, error) {
	sub, err := s.Subscribe(email, name, source)
	if err != nil {
		if shared.AsAPIError(err).Category == shared.ErrorCategoryConflict {
			sub, err = s.getByEmail(email)
		}
		if err != nil {
			return nil, err
		}
	}
	if userID != nil {
		if _, err := s.db.Exec("UPDATE subscribers SET user_id = $2 WHERE id = $1", sub.ID, userID); err != nil {
			logrus.WithField("email", email).WithError(err).Warn("Failed to link subscriber to user")
		} else {
			sub.UserID = userID
		}
	}
	return sub, nil
}

func (s *SubscriberService) sendWelcome(sub *models.Subscriber) {
	msg := EmailMessage{
		To:      sub.Email,
		From:    s.senderEmail,
		Subject: "Welcome to IPOGains updates",
		HTML:    renderWelcomeEmail(sub, s.frontendURL, s.unsubscribeURL(sub)),
	}
	if err := s.mailer.Send(msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"email": sub.Email,
			"error": err,
		}).Warn("Failed to send welcome email")
	}
}

func (s *SubscriberService) unsubscribeURL(sub *models.Subscriber) string {
	return s.apiURL + "/api/subscribers/unsubscribe/" + sub.UnsubscribeToken
}

// UnsubscribeByToken deactivates the matching subscription. Idempotent: an
// already-inactive subscriber unsubscribes successfully again.
func (s *SubscriberService) UnsubscribeByToken(token string) (*models.Subscriber, error) {
	row := s.db.QueryRow("SELECT "+subscriberColumns+" FROM subscribers WHERE unsubscribe_token = $1", token)
	sub, err := scanSubscriber(row)
	if err == sql.ErrNoRows {
		return nil, shared.NewNotFoundError("Invalid unsubscribe link")
	}
	if err != nil {
		return nil, shared.NewInternalError("Failed to look up subscriber", err)
	}

	if sub.IsActive {
		if _, err := s.db.Exec("UPDATE subscribers SET is_active = FALSE WHERE id = $1", sub.ID); err != nil {
			return nil, shared.NewInternalError("Failed to unsubscribe", err)
		}
		sub.IsActive = false
		s.metrics.IncrementCounter("unsubscribes")
		logrus.WithField("email", sub.Email).Info("Subscriber unsubscribed")
	}
	return sub, nil
}

// PreferencesUpdate carries a partial preferences change. Nil fields are
// left untouched.
type PreferencesUpdate struct {
	NewIPO          *bool `json:"new_ipo"`
	StatusChange    *bool `json:"status_change"`
	GMPUpdates      *bool `json:"gmp_updates"`
	AllotmentStatus *bool `json:"allotment_status"`
	DailyDigest     *bool `json:"daily_digest"`
}

// UpdatePreferences applies a partial preferences update, keyed by the
// unsubscribe token so the link works without an account.
func (s *SubscriberService) UpdatePreferences(token string, update PreferencesUpdate) (*models.Subscriber, error) {
	row := s.db.QueryRow("SELECT "+subscriberColumns+" FROM subscribers WHERE unsubscribe_token = $1", token)
	sub, err := scanSubscriber(row)
	if err == sql.ErrNoRows {
		return nil, shared.NewNotFoundError("Invalid preferences link")
	}
	if err != nil {
		return nil, shared.NewInternalError("Failed to look up subscriber", err)
	}

	if update.NewIPO != nil {
		sub.Preferences.NewIPO = *update.NewIPO
	}
	if update.StatusChange != nil {
		sub.Preferences.StatusChange = *update.StatusChange
	}
	if update.GMPUpdates != nil {
		sub.Preferences.GMPUpdates = *update.GMPUpdates
	}
	if update.AllotmentStatus != nil {
		sub.Preferences.AllotmentStatus = *update.AllotmentStatus
	}
	if update.DailyDigest != nil {
		sub.Preferences.DailyDigest = *update.DailyDigest
	}

	prefsJSON, _ := json.Marshal(sub.Preferences)
	if _, err := s.db.Exec("UPDATE subscribers SET preferences = $2 WHERE id = $1", sub.ID, prefsJSON); err != nil {
		return nil, shared.NewInternalError("Failed to update preferences", err)
	}
	return sub, nil
}

func (s *SubscriberService) getByEmail(email string) (*models.Subscriber, error) {
	row := s.db.QueryRow("SELECT "+subscriberColumns+" FROM subscribers WHERE email = $1", strings.ToLower(email))
	sub, err := scanSubscriber(row)
	if err == sql.ErrNoRows {
		return nil, shared.NewNotFoundError("Subscriber not found")
	}
	if err != nil {
		return nil, shared.NewInternalError("Failed to fetch subscriber", err)
	}
	return sub, nil
}

// IsSubscribed reports whether the email has an active subscription.
func (s *SubscriberService) IsSubscribed(email string) (bool, error) {
	var active bool
	err := s.db.QueryRow("SELECT is_active FROM subscribers WHERE email = $1", strings.ToLower(email)).Scan(&active)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, shared.NewInternalError("Failed to check subscription", err)
	}
	return active, nil
}

// ListActive returns every active subscriber, used by the notification
// fan-out and the daily digest.
func (s *SubscriberService) ListActive() ([]*models.Subscriber, error) {
	rows, err := s.db.Query("SELECT " + subscriberColumns + " FROM subscribers WHERE is_active = TRUE ORDER BY subscribed_at")
	if err != nil {
		return nil, shared.NewInternalError("Failed to list subscribers", err)
	}
	defer rows.Close()

	var subs []*models.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, shared.NewInternalError("Failed to scan subscriber", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// List returns all subscribers, active and inactive. Admin-only.
func (s *SubscriberService) List() ([]*models.Subscriber, error) {
	rows, err := s.db.Query("SELECT " + subscriberColumns + " FROM subscribers ORDER BY subscribed_at DESC")
	if err != nil {
		return nil, shared.NewInternalError("Failed to list subscribers", err)
	}
	defer rows.Close()

	var subs []*models.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, shared.NewInternalError("Failed to scan subscriber", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// SubscriberStats is the aggregate view served by the admin stats endpoint.
type SubscriberStats struct {
	Total    int            `json:"total"`
	Active   int            `json:"active"`
	Inactive int            `json:"inactive"`
	BySource map[string]int `json:"by_source"`
}

// Stats counts subscribers by activity and source.
func (s *SubscriberService) Stats() (*SubscriberStats, error) {
	stats := &SubscriberStats{BySource: make(map[string]int)}

	rows, err := s.db.Query("SELECT source, is_active, COUNT(*) FROM subscribers GROUP BY source, is_active")
	if err != nil {
		return nil, shared.NewInternalError("Failed to compute subscriber stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var active bool
		var count int
		if err := rows.Scan(&source, &active, &count); err != nil {
			return nil, shared.NewInternalError("Failed to scan subscriber stats", err)
		}
		stats.Total += count
		if active {
			stats.Active += count
			stats.BySource[source] += count
		} else {
			stats.Inactive += count
		}
	}
	return stats, rows.Err()
}

// RecordNotificationSent bumps the per-subscriber delivery counters after a
// successful send.
func (s *SubscriberService) RecordNotificationSent(id uuid.UUID) {
	if _, err := s.db.Exec(`UPDATE subscribers SET
			last_notification_sent = NOW(), notification_count = notification_count + 1
		WHERE id = $1`, id); err != nil {
		logrus.WithField("subscriber_id", id).WithError(err).Warn("Failed to record notification send")
	}
}
