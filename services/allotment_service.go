package services

import (
	"database/sql"
	"fmt"
	"html/template"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fenilmodi00/ipogains-backend/models"
	"github.com/fenilmodi00/ipogains-backend/shared"
)

// panPattern is the Indian PAN format: five letters, four digits, one letter.
var panPattern = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)

type AllotmentService struct {
	db          *sql.DB
	codec       *shared.PANCodec
	ipos        *IPOService
	mailer      Mailer
	senderEmail string
	frontendURL string
	metrics     *shared.ServiceMetrics
}

func NewAllotmentService(db *sql.DB, codec *shared.PANCodec, ipos *IPOService, mailer Mailer, senderEmail, frontendURL string) *AllotmentService {
	return &AllotmentService{
		db:          db,
		codec:       codec,
		ipos:        ipos,
		mailer:      mailer,
		senderEmail: senderEmail,
		frontendURL: frontendURL,
		metrics:     shared.NewServiceMetrics("allotment_service"),
	}
}

const applicationColumns = `id, user_id, ipo_id, pan_card, application_number, applied_date, lot_size, status`

func scanApplication(row rowScanner) (*models.Application, error) {
	var a models.Application
	err := row.Scan(&a.ID, &a.UserID, &a.IPOID, &a.PANCard,
		&a.ApplicationNumber, &a.AppliedDate, &a.LotSize, &a.Status)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// NormalizePAN uppercases and trims a PAN and validates its format.
func NormalizePAN(pan string) (string, error) {
	pan = strings.ToUpper(strings.TrimSpace(pan))
	if !panPattern.MatchString(pan) {
		return "", shared.NewValidationError("PAN must match the format ABCDE1234F")
	}
	return pan, nil
}

// Apply records a new IPO application. The IPO must currently be open for
// bidding, and a user holds at most one application per IPO.
func (s *AllotmentService) Apply(userID, ipoID uuid.UUID, pan, applicationNumber string, lots int) (*models.Application, error) {
	pan, err := NormalizePAN(pan)
	if err != nil {
		return nil, err
	}
	if lots < 1 {
		return nil, shared.NewValidationError("Lot count must be at least 1")
	}

	ipo, err := s.ipos.GetIPOByID(ipoID)
	if err != nil {
		return nil, err
	}
	if ipo.Status != models.StatusOpen {
		return nil, shared.NewValidationError(
			fmt.Sprintf("Applications are only accepted while the IPO is open; %s is %s", ipo.CompanyName, ipo.Status))
	}

	existing, err := s.getByUserAndIPO(userID, ipoID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, shared.NewConflictError("You already have an application for this IPO")
	}

	encrypted, err := s.codec.Encrypt(pan)
	if err != nil {
		s.metrics.RecordOperation(false)
		return nil, shared.NewInternalError("Failed to encrypt PAN", err)
	}

	app := &models.Application{
		ID:                uuid.New(),
		UserID:            userID,
		IPOID:             ipoID,
		PANCard:           encrypted,
		ApplicationNumber: applicationNumber,
		AppliedDate:       time.Now(),
		LotSize:           lots,
		Status:            models.ApplicationPending,
	}

	_, err = s.db.Exec(`INSERT INTO applications
			(id, user_id, ipo_id, pan_card, application_number, applied_date, lot_size, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		app.ID, app.UserID, app.IPOID, app.PANCard, app.ApplicationNumber,
		app.AppliedDate, app.LotSize, app.Status)
	if err != nil {
		s.metrics.RecordOperation(false)
		return nil, shared.NewInternalError("Failed to save application", err)
	}

	s.metrics.RecordOperation(true)
	s.metrics.IncrementCounter("applications")
	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"ipo_id":  ipoID,
	}).Info("IPO application recorded")
	return app, nil
}

// AllotmentResult is what a PAN lookup returns.
type AllotmentResult struct {
	Found   bool   `json:"found"`
	Status  string `json:"status"`
	Lots    int    `json:"lots,omitempty"`
	IPOName string `json:"ipo_name"`
}

// FindApplication looks up the allotment status for a PAN in one IPO. Every
// stored application for the IPO is decrypted and compared; a record whose
// PAN cannot be decrypted is treated as a non-match. When the caller is
// authenticated, the result also upserts their tracking record; an
// authenticated caller with no PAN match still gets their own record as a
// fallback.
func (s *AllotmentService) FindApplication(ipoID uuid.UUID, pan string, requesterID *uuid.UUID) (*AllotmentResult, error) {
	pan, err := NormalizePAN(pan)
	if err != nil {
		return nil, err
	}

	ipo, err := s.ipos.GetIPOByID(ipoID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query("SELECT "+applicationColumns+" FROM applications WHERE ipo_id = $1", ipoID)
	if err != nil {
		return nil, shared.NewInternalError("Failed to scan applications", err)
	}
	defer rows.Close()

	var match *models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, shared.NewInternalError("Failed to scan application", err)
		}
		stored, err := s.codec.Decrypt(app.PANCard)
		if err != nil {
			// Undecryptable record, likely from a rotated-out key. Skip it.
			logrus.WithField("application_id", app.ID).Debug("Skipping undecryptable PAN")
			continue
		}
		if stored == pan {
			match = app
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, shared.NewInternalError("Failed to read applications", err)
	}

	result := &AllotmentResult{IPOName: ipo.CompanyName}
	if match != nil {
		result.Found = true
		result.Status = match.Status
		result.Lots = match.LotSize
	} else {
		result.Status = models.ApplicationCheckedExternal
	}

	if requesterID != nil {
		// Authenticated caller whose PAN did not match anything still sees
		// their own pre-existing record if they have one. Read it before the
		// tracking upsert so a first fruitless check stays found=false.
		if match == nil {
			if own, err := s.getByUserAndIPO(*requesterID, ipoID); err == nil && own != nil {
				result.Found = true
				result.Status = own.Status
				result.Lots = own.LotSize
			}
		}
		s.upsertTracking(*requesterID, ipoID, match, pan, "CHK")
	}

	s.metrics.IncrementCounter("allotment_checks")
	return result, nil
}

// trackingAction is what an allotment check does to the requester's record.
type trackingAction int

const (
	trackingNone trackingAction = iota
	trackingCreate
	trackingUpdate
)

// planTracking decides how a check result updates the requester's own
// application record. Only checked_external placeholders are upgraded when
// the scan finds a real result; a record the user entered themselves,
// pending included, is never touched.
func planTracking(existing *models.Application, match *models.Application) (trackingAction, string) {
	foundStatus := models.ApplicationCheckedExternal
	if match != nil {
		foundStatus = match.Status
	}

	if existing == nil {
		return trackingCreate, foundStatus
	}
	if existing.Status == models.ApplicationCheckedExternal && existing.Status != foundStatus {
		return trackingUpdate, foundStatus
	}
	return trackingNone, existing.Status
}

func (s *AllotmentService) upsertTracking(userID, ipoID uuid.UUID, match *models.Application, pan, numberPrefix string) {
	// The matched record already belongs to the requester: nothing to track.
	if match != nil && match.UserID == userID {
		return
	}

	existing, err := s.getByUserAndIPO(userID, ipoID)
	if err != nil {
		logrus.WithError(err).Warn("Failed to load tracking record")
		return
	}

	action, status := planTracking(existing, match)
	switch action {
	case trackingCreate:
		encrypted, err := s.codec.Encrypt(pan)
		if err != nil {
			logrus.WithError(err).Warn("Failed to encrypt PAN for tracking record")
			return
		}
		lots := 0
		number := fmt.Sprintf("%s-%d", numberPrefix, time.Now().UnixMilli())
		applied := time.Now()
		if match != nil {
			lots = match.LotSize
			number = match.ApplicationNumber
			applied = match.AppliedDate
		}
		_, err = s.db.Exec(`INSERT INTO applications
				(id, user_id, ipo_id, pan_card, application_number, applied_date, lot_size, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			uuid.New(), userID, ipoID, encrypted, number, applied, lots, status)
		if err != nil {
			logrus.WithError(err).Warn("Failed to create tracking record")
		}
	case trackingUpdate:
		// Update implies a real matched result; carry its details over.
		_, err := s.db.Exec(`UPDATE applications
			SET status = $3, lot_size = $4, application_number = $5
			WHERE user_id = $1 AND ipo_id = $2`,
			userID, ipoID, status, match.LotSize, match.ApplicationNumber)
		if err != nil {
			logrus.WithError(err).Warn("Failed to update tracking record")
		}
	}
}

// ApplicationView is an application joined with its IPO's headline fields.
type ApplicationView struct {
	models.Application
	IPOName   string     `json:"ipo_name"`
	IPOStatus string     `json:"ipo_status"`
	ListingAt *time.Time `json:"listing_date"`
}

// MyApplications lists the user's applications with IPO context, newest
// first.
func (s *AllotmentService) MyApplications(userID uuid.UUID) ([]*ApplicationView, error) {
	rows, err := s.db.Query(`SELECT a.id, a.user_id, a.ipo_id, a.pan_card,
			a.application_number, a.applied_date, a.lot_size, a.status,
			i.company_name, i.status, i.listing_date
		FROM applications a JOIN ipos i ON i.id = a.ipo_id
		WHERE a.user_id = $1 ORDER BY a.applied_date DESC`, userID)
	if err != nil {
		return nil, shared.NewInternalError("Failed to list applications", err)
	}
	defer rows.Close()

	var views []*ApplicationView
	for rows.Next() {
		var v ApplicationView
		err := rows.Scan(&v.ID, &v.UserID, &v.IPOID, &v.PANCard,
			&v.ApplicationNumber, &v.AppliedDate, &v.LotSize, &v.Status,
			&v.IPOName, &v.IPOStatus, &v.ListingAt)
		if err != nil {
			return nil, shared.NewInternalError("Failed to scan application", err)
		}
		views = append(views, &v)
	}
	return views, rows.Err()
}

// UpdateOwnStatus lets a user record the allotment outcome on their own
// application, e.g. after checking the registrar site themselves. An
// allotted result adopts the reported lot count; not_allotted zeroes it.
func (s *AllotmentService) UpdateOwnStatus(userID, applicationID uuid.UUID, status string, lots int) (*models.Application, error) {
	if !models.ValidApplicationStatus(status) {
		return nil, shared.NewValidationError(fmt.Sprintf("Unknown application status: %s", status))
	}

	app, err := s.getByID(applicationID)
	if err != nil {
		return nil, err
	}
	if app.UserID != userID {
		return nil, shared.NewForbiddenError("This application belongs to another user")
	}

	newLots := app.LotSize
	switch status {
	case models.ApplicationAllotted:
		if lots < 0 {
			lots = 0
		}
		newLots = lots
	case models.ApplicationNotAllotted:
		newLots = 0
	}

	if _, err := s.db.Exec("UPDATE applications SET status = $2, lot_size = $3 WHERE id = $1",
		applicationID, status, newLots); err != nil {
		return nil, shared.NewInternalError("Failed to update application", err)
	}
	app.Status = status
	app.LotSize = newLots
	s.metrics.IncrementCounter("status_updates")
	return app, nil
}

// AdminUpdateStatus sets an application's status and emails the owner.
func (s *AllotmentService) AdminUpdateStatus(applicationID uuid.UUID, status string) (*models.Application, error) {
	if !models.ValidApplicationStatus(status) {
		return nil, shared.NewValidationError(fmt.Sprintf("Unknown application status: %s", status))
	}

	app, err := s.getByID(applicationID)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.Exec("UPDATE applications SET status = $2 WHERE id = $1", applicationID, status); err != nil {
		return nil, shared.NewInternalError("Failed to update application", err)
	}
	app.Status = status

	s.notifyOwner(app)
	return app, nil
}

func (s *AllotmentService) notifyOwner(app *models.Application) {
	var email string
	if err := s.db.QueryRow("SELECT email FROM users WHERE id = $1", app.UserID).Scan(&email); err != nil {
		logrus.WithField("user_id", app.UserID).WithError(err).Warn("Failed to resolve application owner")
		return
	}
	ipo, err := s.ipos.GetIPOByID(app.IPOID)
	if err != nil {
		logrus.WithField("ipo_id", app.IPOID).WithError(err).Warn("Failed to resolve application IPO")
		return
	}

	var verdict string
	switch app.Status {
	case models.ApplicationAllotted:
		verdict = fmt.Sprintf("Congratulations, you have been allotted shares in %s.", ipo.CompanyName)
	case models.ApplicationNotAllotted:
		verdict = fmt.Sprintf("Unfortunately, you were not allotted shares in %s.", ipo.CompanyName)
	default:
		verdict = fmt.Sprintf("Your application status for %s was updated to %s.", ipo.CompanyName, app.Status)
	}

	msg := EmailMessage{
		To:      email,
		From:    s.senderEmail,
		Subject: fmt.Sprintf("Allotment result: %s", ipo.CompanyName),
		HTML: renderLayout(layoutData{
			Heading: "Allotment result",
			Body:    template.HTML("<p>" + template.HTMLEscapeString(verdict) + "</p>"),
			CTALink: fmt.Sprintf("%s/ipo/%s", s.frontendURL, ipo.ID),
			CTAText: "View IPO",
		}),
	}
	if err := s.mailer.Send(msg); err != nil {
		logrus.WithField("email", email).WithError(err).Warn("Failed to send allotment email")
	}
}

// LogExternalCheck records that the user verified their allotment on the
// registrar's site. Creates a checked_external placeholder when the user has
// no record yet; an application the user already recorded is left alone.
func (s *AllotmentService) LogExternalCheck(userID, ipoID uuid.UUID, pan string) (*models.Application, error) {
	pan, err := NormalizePAN(pan)
	if err != nil {
		return nil, err
	}
	if _, err := s.ipos.GetIPOByID(ipoID); err != nil {
		return nil, err
	}

	s.upsertTracking(userID, ipoID, nil, pan, "EXT")
	s.metrics.IncrementCounter("external_checks")

	app, err := s.getByUserAndIPO(userID, ipoID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, shared.NewInternalError("Failed to record external check", nil)
	}

	// Repeat checks just refresh the timestamp while the record is still a
	// placeholder.
	if app.Status == models.ApplicationCheckedExternal {
		now := time.Now()
		if _, err := s.db.Exec("UPDATE applications SET applied_date = $2 WHERE id = $1", app.ID, now); err == nil {
			app.AppliedDate = now
		}
	}
	return app, nil
}

// DeleteApplication removes one of the user's own applications.
func (s *AllotmentService) DeleteApplication(userID, applicationID uuid.UUID) error {
	app, err := s.getByID(applicationID)
	if err != nil {
		return err
	}
	if app.UserID != userID {
		return shared.NewForbiddenError("This application belongs to another user")
	}
	if _, err := s.db.Exec("DELETE FROM applications WHERE id = $1", applicationID); err != nil {
		return shared.NewInternalError("Failed to delete application", err)
	}
	return nil
}

func (s *AllotmentService) getByID(id uuid.UUID) (*models.Application, error) {
	row := s.db.QueryRow("SELECT "+applicationColumns+" FROM applications WHERE id = $1", id)
	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, shared.NewNotFoundError("Application not found")
	}
	if err != nil {
		return nil, shared.NewInternalError("Failed to fetch application", err)
	}
	return app, nil
}

func (s *AllotmentService) getByUserAndIPO(userID, ipoID uuid.UUID) (*models.Application, error) {
	row := s.db.QueryRow("SELECT "+applicationColumns+" FROM applications WHERE user_id = $1 AND ipo_id = $2",
		userID, ipoID)
	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, shared.NewInternalError("Failed to fetch application", err)
	}
	return app, nil
}
