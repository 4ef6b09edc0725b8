package jobs

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/fenilmodi00/ipogains-backend/services"
)

// Scheduler owns the background jobs: the five-minute notification sweep and
// the 9 AM IST daily digest.
type Scheduler struct {
	cron          *cron.Cron
	notifications *services.NotificationService
}

func NewScheduler(notifications *services.NotificationService) (*Scheduler, error) {
	location, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Containers without tzdata fall back to a fixed offset; IST has no
		// daylight saving so the offset never drifts.
		location = time.FixedZone("IST", 5*3600+1800)
	}

	s := &Scheduler{
		cron:          cron.New(cron.WithLocation(location)),
		notifications: notifications,
	}

	if _, err := s.cron.AddFunc("*/5 * * * *", s.sweepPending); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc("0 9 * * *", s.sendDigest); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the cron loop and runs one immediate sweep so
// notifications queued before startup are not stuck until the first tick.
func (s *Scheduler) Start() {
	s.cron.Start()
	go s.sweepPending()
	logrus.Info("Scheduler started: notification sweep every 5m, daily digest at 09:00 IST")
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logrus.Info("Scheduler stopped")
}

func (s *Scheduler) sweepPending() {
	// Queue allotment-day announcements first so the same sweep sends them.
	s.notifications.AnnounceAllotments()
	if err := s.notifications.ProcessPending(); err != nil {
		logrus.WithError(err).Error("Notification sweep failed")
	}
}

func (s *Scheduler) sendDigest() {
	if err := s.notifications.SendDailyDigest(); err != nil {
		logrus.WithError(err).Error("Daily digest failed")
	}
}
