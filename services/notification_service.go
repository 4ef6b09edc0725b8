package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fenilmodi00/ipogains-backend/models"
	"github.com/fenilmodi00/ipogains-backend/shared"
)

// gmpChangeThreshold is the fraction of the previous GMP value a move must
// exceed before subscribers are notified about it.
const gmpChangeThreshold = 0.10

// NotificationConfig carries the delivery wiring for the dispatcher.
type NotificationConfig struct {
	Mailer      Mailer
	SenderEmail string
	FrontendURL string
	BackendURL  string
	SendDelay   time.Duration
}

type NotificationService struct {
	db          *sql.DB
	ipos        *IPOService
	subscribers *SubscriberService
	cfg         NotificationConfig

	limiter *shared.SendRateLimiter
	metrics *shared.ServiceMetrics

	// Guards against overlapping sweeps when a slow SMTP relay makes one
	// run outlast the ticker interval.
	processing atomic.Bool
}

func NewNotificationService(db *sql.DB, ipos *IPOService, subscribers *SubscriberService, cfg NotificationConfig) *NotificationService {
	if cfg.SendDelay <= 0 {
		cfg.SendDelay = 100 * time.Millisecond
	}
	return &NotificationService{
		db:          db,
		ipos:        ipos,
		subscribers: subscribers,
		cfg:         cfg,
		limiter:     shared.NewSendRateLimiter(cfg.SendDelay),
		metrics:     shared.NewServiceMetrics("notification_service"),
	}
}

// SignificantGMPChange reports whether the move from previous to latest
// clears the notification threshold. The first sample is always significant.
func SignificantGMPChange(previous *models.GMPSample, latest models.GMPSample) bool {
	if previous == nil {
		return true
	}
	if previous.Value == 0 {
		return latest.Value != 0
	}
	return math.Abs(latest.Value-previous.Value) > gmpChangeThreshold*math.Abs(previous.Value)
}

const notificationColumns = `id, type, ipo_id, ipo_name, title, message,
	previous_value, new_value, is_processed, processed_at, emails_sent, emails_failed, created_at`

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	var prevJSON, newJSON []byte
	err := row.Scan(&n.ID, &n.Type, &n.IPOID, &n.IPOName, &n.Title, &n.Message,
		&prevJSON, &newJSON, &n.IsProcessed, &n.ProcessedAt,
		&n.EmailsSent, &n.EmailsFailed, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	n.PreviousValue = prevJSON
	n.NewValue = newJSON
	return &n, nil
}

func (s *NotificationService) create(n *models.Notification) {
	n.ID = uuid.New()
	n.CreatedAt = time.Now()

	_, err := s.db.Exec(`INSERT INTO notifications
			(id, type, ipo_id, ipo_name, title, message, previous_value, new_value, is_processed, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,FALSE,$9)`,
		n.ID, n.Type, n.IPOID, n.IPOName, n.Title, n.Message,
		nullableJSON(n.PreviousValue), nullableJSON(n.NewValue), n.CreatedAt)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"type":  n.Type,
			"ipo":   n.IPOName,
			"error": err,
		}).Error("Failed to queue notification")
		s.metrics.RecordOperation(false)
		return
	}
	s.metrics.RecordOperation(true)
	s.metrics.IncrementCounter("queued_" + n.Type)
	logrus.WithFields(logrus.Fields{"type": n.Type, "ipo": n.IPOName}).Debug("Notification queued")
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// NotifyNewIPO queues a new-IPO announcement.
func (s *NotificationService) NotifyNewIPO(ipo *models.IPO) {
	s.create(&models.Notification{
		Type:    models.NotificationNewIPO,
		IPOID:   ipo.ID,
		IPOName: ipo.CompanyName,
		Title:   fmt.Sprintf("New IPO: %s", ipo.CompanyName),
		Message: fmt.Sprintf("%s has been added to the IPO calendar.", ipo.CompanyName),
	})
}

// NotifyStatusChange queues a lifecycle transition announcement.
func (s *NotificationService) NotifyStatusChange(ipo *models.IPO, oldStatus, newStatus string) {
	var message string
	switch newStatus {
	case models.StatusOpen:
		message = fmt.Sprintf("%s is now open for bidding.", ipo.CompanyName)
	case models.StatusClosed:
		message = fmt.Sprintf("Bidding for %s has closed.", ipo.CompanyName)
	case models.StatusListed:
		message = fmt.Sprintf("%s has listed on the exchange.", ipo.CompanyName)
	default:
		message = fmt.Sprintf("%s status changed from %s to %s.", ipo.CompanyName, oldStatus, newStatus)
	}
	s.create(&models.Notification{
		Type:          models.NotificationStatusChange,
		IPOID:         ipo.ID,
		IPOName:       ipo.CompanyName,
		Title:         fmt.Sprintf("%s is now %s", ipo.CompanyName, newStatus),
		Message:       message,
		PreviousValue: mustJSON(oldStatus),
		NewValue:      mustJSON(newStatus),
	})
}

// NotifyGMPUpdate queues a grey-market premium move announcement.
func (s *NotificationService) NotifyGMPUpdate(ipo *models.IPO, previous *models.GMPSample, latest models.GMPSample) {
	message := fmt.Sprintf("GMP for %s is now ₹%.0f (%.1f%% over the upper band).",
		ipo.CompanyName, latest.Value, latest.Percentage)
	var prevJSON json.RawMessage
	if previous != nil {
		prevJSON = mustJSON(previous.Value)
		direction := "up"
		if latest.Value < previous.Value {
			direction = "down"
		}
		message = fmt.Sprintf("GMP for %s moved %s from ₹%.0f to ₹%.0f.",
			ipo.CompanyName, direction, previous.Value, latest.Value)
	}
	s.create(&models.Notification{
		Type:          models.NotificationGMPUpdate,
		IPOID:         ipo.ID,
		IPOName:       ipo.CompanyName,
		Title:         fmt.Sprintf("GMP update: %s", ipo.CompanyName),
		Message:       message,
		PreviousValue: prevJSON,
		NewValue:      mustJSON(latest.Value),
	})
}

// NotifySubscriptionUpdate queues a subscription figures announcement.
func (s *NotificationService) NotifySubscriptionUpdate(ipo *models.IPO, previous, next models.Subscription) {
	s.create(&models.Notification{
		Type:          models.NotificationSubscriptionUpdate,
		IPOID:         ipo.ID,
		IPOName:       ipo.CompanyName,
		Title:         fmt.Sprintf("Subscription update: %s", ipo.CompanyName),
		Message:       fmt.Sprintf("%s is subscribed %.2fx overall.", ipo.CompanyName, next.Total),
		PreviousValue: mustJSON(previous.Total),
		NewValue:      mustJSON(next.Total),
	})
}

// NotifyListing queues a listing announcement with the day-one gain.
func (s *NotificationService) NotifyListing(ipo *models.IPO) {
	message := fmt.Sprintf("%s has listed.", ipo.CompanyName)
	if ipo.ListingPrice != nil && ipo.ListingGain != nil {
		message = fmt.Sprintf("%s listed at ₹%.2f, a %+.1f%% move over the upper band.",
			ipo.CompanyName, *ipo.ListingPrice, ipo.ListingGain.Percentage)
	}
	s.create(&models.Notification{
		Type:     models.NotificationListing,
		IPOID:    ipo.ID,
		IPOName:  ipo.CompanyName,
		Title:    fmt.Sprintf("%s has listed", ipo.CompanyName),
		Message:  message,
		NewValue: mustJSON(ipo.ListingPrice),
	})
}

// NotifyAllotmentAvailable queues an allotment-results announcement.
func (s *NotificationService) NotifyAllotmentAvailable(ipo *models.IPO) {
	s.create(&models.Notification{
		Type:    models.NotificationAllotmentAvailable,
		IPOID:   ipo.ID,
		IPOName: ipo.CompanyName,
		Title:   fmt.Sprintf("Allotment out: %s", ipo.CompanyName),
		Message: fmt.Sprintf("Allotment results for %s are available.", ipo.CompanyName),
	})
}

// AnnounceAllotments queues an allotment-results announcement for every
// closed IPO whose allotment date has arrived, at most once per IPO. Run
// from the background sweep so the announcement fires without an admin
// touching the record.
func (s *NotificationService) AnnounceAllotments() {
	ipos, err := s.ipos.GetIPOsByStatuses(models.StatusClosed)
	if err != nil {
		logrus.WithError(err).Warn("Failed to load closed IPOs for allotment announcements")
		return
	}
	now := time.Now()
	for _, ipo := range ipos {
		if ipo.AllotmentDate == nil || now.Before(atClock(*ipo.AllotmentDate, 0)) {
			continue
		}
		var announced bool
		err := s.db.QueryRow("SELECT EXISTS (SELECT 1 FROM notifications WHERE ipo_id = $1 AND type = $2)",
			ipo.ID, models.NotificationAllotmentAvailable).Scan(&announced)
		if err != nil {
			logrus.WithError(err).Warn("Failed to check for an existing allotment announcement")
			continue
		}
		if !announced {
			s.NotifyAllotmentAvailable(ipo)
		}
	}
}

// ProcessPending dispatches every unprocessed notification, oldest first.
// Only one sweep runs at a time; overlapping calls return immediately.
func (s *NotificationService) ProcessPending() error {
	if !s.processing.CompareAndSwap(false, true) {
		logrus.Debug("Notification sweep already running, skipping")
		return nil
	}
	defer s.processing.Store(false)

	rows, err := s.db.Query("SELECT " + notificationColumns +
		" FROM notifications WHERE is_processed = FALSE ORDER BY created_at ASC")
	if err != nil {
		return shared.NewInternalError("Failed to fetch pending notifications", err)
	}

	var pending []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			rows.Close()
			return shared.NewInternalError("Failed to scan notification", err)
		}
		pending = append(pending, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return shared.NewInternalError("Failed to read pending notifications", err)
	}

	if len(pending) == 0 {
		return nil
	}
	logrus.WithField("count", len(pending)).Info("Processing pending notifications")

	for _, n := range pending {
		if err := s.dispatch(n); err != nil {
			logrus.WithFields(logrus.Fields{
				"notification_id": n.ID,
				"error":           err,
			}).Error("Failed to dispatch notification")
		}
	}
	return nil
}

// dispatch fans one notification out to every opted-in active subscriber,
// then marks it processed with the aggregate counters. The notification is
// marked processed even when some sends fail; failed recipients are counted,
// not retried.
func (s *NotificationService) dispatch(n *models.Notification) error {
	var ipo *models.IPO
	if n.IPOID != uuid.Nil {
		loaded, err := s.ipos.GetIPOByID(n.IPOID)
		if err == nil {
			ipo = loaded
		}
		// A deleted IPO is fine: templates fall back to the denormalized name.
	}

	subs, err := s.subscribers.ListActive()
	if err != nil {
		return err
	}

	sent, failed := 0, 0
	for _, sub := range subs {
		content := templateFor(n, ipo, sub, s.cfg.FrontendURL, s.unsubscribeURL(sub))
		if content == nil {
			continue
		}

		s.limiter.EnforceRateLimit()
		msg := EmailMessage{
			To:      sub.Email,
			From:    s.cfg.SenderEmail,
			Subject: content.Subject,
			HTML:    content.HTML,
		}
		if err := s.cfg.Mailer.Send(msg); err != nil {
			failed++
			logrus.WithFields(logrus.Fields{
				"email": sub.Email,
				"type":  n.Type,
				"error": err,
			}).Warn("Failed to send notification email")
			continue
		}
		sent++
		s.subscribers.RecordNotificationSent(sub.ID)
	}

	now := time.Now()
	_, err = s.db.Exec(`UPDATE notifications SET
			is_processed = TRUE, processed_at = $2, emails_sent = $3, emails_failed = $4
		WHERE id = $1`, n.ID, now, sent, failed)
	if err != nil {
		return shared.NewInternalError("Failed to mark notification processed", err)
	}

	s.metrics.AddToCounter("emails_sent", int64(sent))
	s.metrics.AddToCounter("emails_failed", int64(failed))
	logrus.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"type":            n.Type,
		"sent":            sent,
		"failed":          failed,
	}).Info("Notification dispatched")
	return nil
}

func (s *NotificationService) unsubscribeURL(sub *models.Subscriber) string {
	return s.cfg.BackendURL + "/api/subscribers/unsubscribe/" + sub.UnsubscribeToken
}

// SendDailyDigest emails the morning summary to digest subscribers. Sends
// nothing when there are no open or upcoming IPOs and no recent activity.
func (s *NotificationService) SendDailyDigest() error {
	open, err := s.ipos.GetIPOsByStatuses(models.StatusOpen)
	if err != nil {
		return err
	}
	upcoming, err := s.ipos.GetIPOsByStatuses(models.StatusUpcoming)
	if err != nil {
		return err
	}
	recent, err := s.recentNotifications(24*time.Hour, 10)
	if err != nil {
		return err
	}

	if len(open) == 0 && len(upcoming) == 0 && len(recent) == 0 {
		logrus.Info("Daily digest skipped: nothing to report")
		return nil
	}

	subs, err := s.subscribers.ListActive()
	if err != nil {
		return err
	}

	sent := 0
	for _, sub := range subs {
		if !sub.Preferences.DailyDigest {
			continue
		}
		content := renderDailyDigest(open, upcoming, recent, s.cfg.FrontendURL, s.unsubscribeURL(sub))
		if content == nil {
			continue
		}

		s.limiter.EnforceRateLimit()
		msg := EmailMessage{
			To:      sub.Email,
			From:    s.cfg.SenderEmail,
			Subject: content.Subject,
			HTML:    content.HTML,
		}
		if err := s.cfg.Mailer.Send(msg); err != nil {
			logrus.WithFields(logrus.Fields{
				"email": sub.Email,
				"error": err,
			}).Warn("Failed to send daily digest")
			continue
		}
		sent++
		s.subscribers.RecordNotificationSent(sub.ID)
	}

	s.metrics.AddToCounter("digests_sent", int64(sent))
	logrus.WithField("sent", sent).Info("Daily digest dispatched")
	return nil
}

func (s *NotificationService) recentNotifications(window time.Duration, limit int) ([]*models.Notification, error) {
	rows, err := s.db.Query("SELECT "+notificationColumns+
		" FROM notifications WHERE created_at > $1 ORDER BY created_at DESC LIMIT $2",
		time.Now().Add(-window), limit)
	if err != nil {
		return nil, shared.NewInternalError("Failed to list recent notifications", err)
	}
	defer rows.Close()

	var list []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, shared.NewInternalError("Failed to scan notification", err)
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// History returns the most recent notifications, newest first.
func (s *NotificationService) History(limit int) ([]*models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.Query("SELECT "+notificationColumns+
		" FROM notifications ORDER BY created_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, shared.NewInternalError("Failed to list notifications", err)
	}
	defer rows.Close()

	var list []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, shared.NewInternalError("Failed to scan notification", err)
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// PendingCount returns how many notifications await dispatch.
func (s *NotificationService) PendingCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM notifications WHERE is_processed = FALSE").Scan(&count)
	if err != nil {
		return 0, shared.NewInternalError("Failed to count pending notifications", err)
	}
	return count, nil
}
