package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fenilmodi00/ipogains-backend/models"
	"github.com/fenilmodi00/ipogains-backend/shared"
)

// ChangeNotifier receives IPO change events and queues subscriber
// notifications for them. Implemented by NotificationService; injected after
// construction to break the service cycle.
type ChangeNotifier interface {
	NotifyNewIPO(ipo *models.IPO)
	NotifyStatusChange(ipo *models.IPO, oldStatus, newStatus string)
	NotifyGMPUpdate(ipo *models.IPO, previous *models.GMPSample, latest models.GMPSample)
	NotifySubscriptionUpdate(ipo *models.IPO, previous, next models.Subscription)
	NotifyListing(ipo *models.IPO)
}

type IPOService struct {
	db       *sql.DB
	notifier ChangeNotifier
	metrics  *shared.ServiceMetrics
}

func NewIPOService(db *sql.DB) *IPOService {
	return &IPOService{
		db:      db,
		metrics: shared.NewServiceMetrics("ipo_service"),
	}
}

// SetNotifier wires the notification sink. Must be called before any write
// path runs; reads work without it.
func (s *IPOService) SetNotifier(n ChangeNotifier) {
	s.notifier = n
}

const ipoColumns = `id, company_name, company_logo, category, sector,
	price_min, price_max, lot_size, min_investment, issue_size, face_value,
	open_date, close_date, allotment_date, listing_date, status,
	subscription, gmp, listing_price, listing_gain,
	company_description, financials, lead_managers, registrar,
	allotment_link, recommendation, recommendation_note,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIPO(row rowScanner) (*models.IPO, error) {
	var ipo models.IPO
	var subscriptionJSON, gmpJSON, financialsJSON, leadManagersJSON []byte
	var listingGainJSON []byte

	err := row.Scan(
		&ipo.ID, &ipo.CompanyName, &ipo.CompanyLogo, &ipo.Category, &ipo.Sector,
		&ipo.PriceRange.Min, &ipo.PriceRange.Max, &ipo.LotSize, &ipo.MinInvestment,
		&ipo.IssueSize, &ipo.FaceValue,
		&ipo.OpenDate, &ipo.CloseDate, &ipo.AllotmentDate, &ipo.ListingDate, &ipo.Status,
		&subscriptionJSON, &gmpJSON, &ipo.ListingPrice, &listingGainJSON,
		&ipo.CompanyDescription, &financialsJSON, &leadManagersJSON, &ipo.Registrar,
		&ipo.AllotmentLink, &ipo.Recommendation, &ipo.RecommendationNote,
		&ipo.CreatedAt, &ipo.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(subscriptionJSON) > 0 {
		if err := json.Unmarshal(subscriptionJSON, &ipo.Subscription); err != nil {
			return nil, fmt.Errorf("failed to decode subscription: %w", err)
		}
	}
	if len(gmpJSON) > 0 {
		if err := json.Unmarshal(gmpJSON, &ipo.GMP); err != nil {
			return nil, fmt.Errorf("failed to decode gmp: %w", err)
		}
	}
	if len(listingGainJSON) > 0 {
		if err := json.Unmarshal(listingGainJSON, &ipo.ListingGain); err != nil {
			return nil, fmt.Errorf("failed to decode listing_gain: %w", err)
		}
	}
	if len(financialsJSON) > 0 {
		if err := json.Unmarshal(financialsJSON, &ipo.Financials); err != nil {
			return nil, fmt.Errorf("failed to decode financials: %w", err)
		}
	}
	if len(leadManagersJSON) > 0 {
		if err := json.Unmarshal(leadManagersJSON, &ipo.LeadManagers); err != nil {
			return nil, fmt.Errorf("failed to decode lead_managers: %w", err)
		}
	}
	if ipo.LeadManagers == nil {
		ipo.LeadManagers = []string{}
	}
	if ipo.GMP == nil {
		ipo.GMP = []models.GMPSample{}
	}
	return &ipo, nil
}

// IPOFilter narrows list queries. Zero values mean "no filter".
type IPOFilter struct {
	Status   string
	Category string
	Sector   string
	Search   string
	Limit    int
	Offset   int
}

func (f *IPOFilter) normalize() {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// GetIPOs lists IPOs matching the filter, newest first. Statuses are
// reconciled against the clock before returning, so a stale stored status is
// never served.
func (s *IPOService) GetIPOs(filter IPOFilter) ([]*models.IPO, int, error) {
	filter.normalize()

	var conditions []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		conditions = append(conditions, "status = "+arg(filter.Status))
	}
	if filter.Category != "" {
		conditions = append(conditions, "category = "+arg(filter.Category))
	}
	if filter.Sector != "" {
		conditions = append(conditions, "sector = "+arg(filter.Sector))
	}
	if filter.Search != "" {
		conditions = append(conditions, "company_name ILIKE "+arg("%"+filter.Search+"%"))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM ipos"+where, args...).Scan(&total); err != nil {
		s.metrics.RecordOperation(false)
		return nil, 0, shared.NewInternalError("Failed to count IPOs", err)
	}

	query := "SELECT " + ipoColumns + " FROM ipos" + where +
		" ORDER BY open_date DESC NULLS LAST, created_at DESC" +
		" LIMIT " + arg(filter.Limit) + " OFFSET " + arg(filter.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		s.metrics.RecordOperation(false)
		return nil, 0, shared.NewInternalError("Failed to list IPOs", err)
	}
	defer rows.Close()

	var ipos []*models.IPO
	for rows.Next() {
		ipo, err := scanIPO(rows)
		if err != nil {
			s.metrics.RecordOperation(false)
			return nil, 0, shared.NewInternalError("Failed to scan IPO", err)
		}
		ipos = append(ipos, ipo)
	}
	if err := rows.Err(); err != nil {
		s.metrics.RecordOperation(false)
		return nil, 0, shared.NewInternalError("Failed to read IPO rows", err)
	}

	now := time.Now()
	for _, ipo := range ipos {
		s.reconcileStatus(ipo, now)
	}

	s.metrics.RecordOperation(true)
	return ipos, total, nil
}

// GetIPOByID fetches a single IPO with its status reconciled.
func (s *IPOService) GetIPOByID(id uuid.UUID) (*models.IPO, error) {
	row := s.db.QueryRow("SELECT "+ipoColumns+" FROM ipos WHERE id = $1", id)
	ipo, err := scanIPO(row)
	if err == sql.ErrNoRows {
		return nil, shared.NewNotFoundError("IPO not found")
	}
	if err != nil {
		return nil, shared.NewInternalError("Failed to fetch IPO", err)
	}
	s.reconcileStatus(ipo, time.Now())
	return ipo, nil
}

// CreateIPO inserts a new IPO and queues a new-IPO notification.
func (s *IPOService) CreateIPO(ipo *models.IPO) (*models.IPO, error) {
	if strings.TrimSpace(ipo.CompanyName) == "" {
		return nil, shared.NewValidationError("Company name is required")
	}
	if ipo.Category == "" {
		ipo.Category = models.CategoryMainboard
	}
	if !models.ValidCategory(ipo.Category) {
		return nil, shared.NewValidationError("Category must be Mainboard or SME")
	}
	if ipo.PriceRange.Min > ipo.PriceRange.Max {
		return nil, shared.NewValidationError("Price range min cannot exceed max")
	}
	if ipo.OpenDate != nil && ipo.CloseDate != nil && ipo.CloseDate.Before(*ipo.OpenDate) {
		return nil, shared.NewValidationError("Close date cannot be before open date")
	}

	ipo.ID = uuid.New()
	now := time.Now()
	ipo.CreatedAt = now
	ipo.UpdatedAt = now
	ipo.Status = DeriveStatus(ipo, now)
	if ipo.GMP == nil {
		ipo.GMP = []models.GMPSample{}
	}
	if ipo.LeadManagers == nil {
		ipo.LeadManagers = []string{}
	}

	if err := s.insertIPO(ipo); err != nil {
		s.metrics.RecordOperation(false)
		return nil, shared.NewInternalError("Failed to create IPO", err)
	}

	if s.notifier != nil {
		s.notifier.NotifyNewIPO(ipo)
	}

	s.metrics.RecordOperation(true)
	s.metrics.IncrementCounter("ipos_created")
	logrus.WithFields(logrus.Fields{
		"ipo_id":  ipo.ID,
		"company": ipo.CompanyName,
		"status":  ipo.Status,
	}).Info("IPO created")
	return ipo, nil
}

func (s *IPOService) insertIPO(ipo *models.IPO) error {
	subscriptionJSON, _ := json.Marshal(ipo.Subscription)
	gmpJSON, _ := json.Marshal(ipo.GMP)
	financialsJSON, _ := json.Marshal(ipo.Financials)
	leadManagersJSON, _ := json.Marshal(ipo.LeadManagers)
	var listingGainJSON []byte
	if ipo.ListingGain != nil {
		listingGainJSON, _ = json.Marshal(ipo.ListingGain)
	}

	_, err := s.db.Exec(`INSERT INTO ipos (
			id, company_name, company_logo, category, sector,
			price_min, price_max, lot_size, min_investment, issue_size, face_value,
			open_date, close_date, allotment_date, listing_date, status,
			subscription, gmp, listing_price, listing_gain,
			company_description, financials, lead_managers, registrar,
			allotment_link, recommendation, recommendation_note, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29)`,
		ipo.ID, ipo.CompanyName, ipo.CompanyLogo, ipo.Category, ipo.Sector,
		ipo.PriceRange.Min, ipo.PriceRange.Max, ipo.LotSize, ipo.MinInvestment,
		ipo.IssueSize, ipo.FaceValue,
		ipo.OpenDate, ipo.CloseDate, ipo.AllotmentDate, ipo.ListingDate, ipo.Status,
		subscriptionJSON, gmpJSON, ipo.ListingPrice, listingGainJSON,
		ipo.CompanyDescription, financialsJSON, leadManagersJSON, ipo.Registrar,
		ipo.AllotmentLink, ipo.Recommendation, ipo.RecommendationNote,
		ipo.CreatedAt, ipo.UpdatedAt,
	)
	return err
}

// UpdateIPO replaces the mutable fields of an existing IPO. The status is
// re-derived from the updated dates; a resulting transition queues a
// status-change notification.
func (s *IPOService) UpdateIPO(id uuid.UUID, update *models.IPO) (*models.IPO, error) {
	existing, err := s.GetIPOByID(id)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(update.CompanyName) == "" {
		return nil, shared.NewValidationError("Company name is required")
	}
	if !models.ValidCategory(update.Category) {
		return nil, shared.NewValidationError("Category must be Mainboard or SME")
	}
	if update.PriceRange.Min > update.PriceRange.Max {
		return nil, shared.NewValidationError("Price range min cannot exceed max")
	}
	if update.OpenDate != nil && update.CloseDate != nil && update.CloseDate.Before(*update.OpenDate) {
		return nil, shared.NewValidationError("Close date cannot be before open date")
	}

	oldStatus := existing.Status

	update.ID = existing.ID
	update.CreatedAt = existing.CreatedAt
	update.UpdatedAt = time.Now()
	// GMP history and subscription figures have dedicated endpoints; a full
	// update must not silently wipe them when the caller omits them.
	if update.GMP == nil {
		update.GMP = existing.GMP
	}
	if update.Subscription == (models.Subscription{}) {
		update.Subscription = existing.Subscription
	}
	if update.LeadManagers == nil {
		update.LeadManagers = existing.LeadManagers
	}
	update.Status = DeriveStatus(update, time.Now())

	if err := s.persistIPO(update); err != nil {
		s.metrics.RecordOperation(false)
		return nil, shared.NewInternalError("Failed to update IPO", err)
	}

	if update.Status != oldStatus && s.notifier != nil {
		s.notifier.NotifyStatusChange(update, oldStatus, update.Status)
	}

	s.metrics.RecordOperation(true)
	logrus.WithFields(logrus.Fields{
		"ipo_id":  update.ID,
		"company": update.CompanyName,
	}).Info("IPO updated")
	return update, nil
}

func (s *IPOService) persistIPO(ipo *models.IPO) error {
	subscriptionJSON, _ := json.Marshal(ipo.Subscription)
	gmpJSON, _ := json.Marshal(ipo.GMP)
	financialsJSON, _ := json.Marshal(ipo.Financials)
	leadManagersJSON, _ := json.Marshal(ipo.LeadManagers)
	var listingGainJSON []byte
	if ipo.ListingGain != nil {
		listingGainJSON, _ = json.Marshal(ipo.ListingGain)
	}

	_, err := s.db.Exec(`UPDATE ipos SET
			company_name = $2, company_logo = $3, category = $4, sector = $5,
			price_min = $6, price_max = $7, lot_size = $8, min_investment = $9,
			issue_size = $10, face_value = $11,
			open_date = $12, close_date = $13, allotment_date = $14, listing_date = $15,
			status = $16, subscription = $17, gmp = $18, listing_price = $19,
			listing_gain = $20, company_description = $21, financials = $22,
			lead_managers = $23, registrar = $24, allotment_link = $25,
			recommendation = $26, recommendation_note = $27, updated_at = $28
		WHERE id = $1`,
		ipo.ID, ipo.CompanyName, ipo.CompanyLogo, ipo.Category, ipo.Sector,
		ipo.PriceRange.Min, ipo.PriceRange.Max, ipo.LotSize, ipo.MinInvestment,
		ipo.IssueSize, ipo.FaceValue,
		ipo.OpenDate, ipo.CloseDate, ipo.AllotmentDate, ipo.ListingDate,
		ipo.Status, subscriptionJSON, gmpJSON, ipo.ListingPrice,
		listingGainJSON, ipo.CompanyDescription, financialsJSON,
		leadManagersJSON, ipo.Registrar, ipo.AllotmentLink,
		ipo.Recommendation, ipo.RecommendationNote, ipo.UpdatedAt,
	)
	return err
}

// DeleteIPO removes an IPO. Applications referencing it cascade away;
// notification history keeps the denormalized company name.
func (s *IPOService) DeleteIPO(id uuid.UUID) error {
	result, err := s.db.Exec("DELETE FROM ipos WHERE id = $1", id)
	if err != nil {
		s.metrics.RecordOperation(false)
		return shared.NewInternalError("Failed to delete IPO", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return shared.NewNotFoundError("IPO not found")
	}
	s.metrics.RecordOperation(true)
	logrus.WithField("ipo_id", id).Info("IPO deleted")
	return nil
}

// UpdateSubscription replaces the subscription figures and queues a
// subscription-update notification. Total is the simple average across the
// four investor categories.
func (s *IPOService) UpdateSubscription(id uuid.UUID, sub models.Subscription) (*models.IPO, error) {
	if sub.Retail < 0 || sub.NII < 0 || sub.QIB < 0 || sub.Shareholder < 0 {
		return nil, shared.NewValidationError("Subscription figures cannot be negative")
	}

	ipo, err := s.GetIPOByID(id)
	if err != nil {
		return nil, err
	}

	previous := ipo.Subscription
	sub.Total = (sub.Retail + sub.NII + sub.QIB + sub.Shareholder) / 4
	sub.LastUpdated = time.Now()
	ipo.Subscription = sub
	ipo.UpdatedAt = time.Now()

	if err := s.persistIPO(ipo); err != nil {
		s.metrics.RecordOperation(false)
		return nil, shared.NewInternalError("Failed to update subscription", err)
	}

	if s.notifier != nil {
		s.notifier.NotifySubscriptionUpdate(ipo, previous, sub)
	}

	s.metrics.RecordOperation(true)
	s.metrics.IncrementCounter("subscription_updates")
	return ipo, nil
}

// AddGMP appends a grey-market premium sample. The percentage is computed
// against the upper price band. A significant move against the previous
// sample queues a GMP notification.
func (s *IPOService) AddGMP(id uuid.UUID, value float64) (*models.IPO, error) {
	ipo, err := s.GetIPOByID(id)
	if err != nil {
		return nil, err
	}
	if ipo.PriceRange.Max <= 0 {
		return nil, shared.NewValidationError("IPO has no price band; cannot record GMP")
	}

	previous := ipo.LatestGMP()
	sample := models.GMPSample{
		Value:      value,
		Percentage: value / ipo.PriceRange.Max * 100,
		Date:       time.Now(),
	}
	ipo.GMP = append(ipo.GMP, sample)
	ipo.UpdatedAt = time.Now()

	if err := s.persistIPO(ipo); err != nil {
		s.metrics.RecordOperation(false)
		return nil, shared.NewInternalError("Failed to record GMP", err)
	}

	if s.notifier != nil && SignificantGMPChange(previous, sample) {
		s.notifier.NotifyGMPUpdate(ipo, previous, sample)
	}

	s.metrics.RecordOperation(true)
	s.metrics.IncrementCounter("gmp_samples")
	return ipo, nil
}

// UpdateListing records the listing price, computes the listing gain against
// the upper band, forces the status to listed and queues a listing
// notification.
func (s *IPOService) UpdateListing(id uuid.UUID, listingPrice float64) (*models.IPO, error) {
	if listingPrice <= 0 {
		return nil, shared.NewValidationError("Listing price must be positive")
	}

	ipo, err := s.GetIPOByID(id)
	if err != nil {
		return nil, err
	}
	if ipo.PriceRange.Max <= 0 {
		return nil, shared.NewValidationError("IPO has no price band; cannot record listing")
	}

	oldStatus := ipo.Status
	amount := listingPrice - ipo.PriceRange.Max
	ipo.ListingPrice = &listingPrice
	ipo.ListingGain = &models.ListingGain{
		Amount:     amount,
		Percentage: amount / ipo.PriceRange.Max * 100,
	}
	ipo.Status = models.StatusListed
	ipo.UpdatedAt = time.Now()

	if err := s.persistIPO(ipo); err != nil {
		s.metrics.RecordOperation(false)
		return nil, shared.NewInternalError("Failed to record listing", err)
	}

	if s.notifier != nil {
		s.notifier.NotifyListing(ipo)
		if oldStatus != models.StatusListed {
			s.notifier.NotifyStatusChange(ipo, oldStatus, models.StatusListed)
		}
	}

	s.metrics.RecordOperation(true)
	return ipo, nil
}

// IPOStats is the aggregate view served by the stats endpoint.
type IPOStats struct {
	Total    int `json:"total"`
	Upcoming int `json:"upcoming"`
	Open     int `json:"open"`
	Closed   int `json:"closed"`
	Listed   int `json:"listed"`
}

// GetStats counts IPOs per lifecycle status.
func (s *IPOService) GetStats() (*IPOStats, error) {
	rows, err := s.db.Query("SELECT status, COUNT(*) FROM ipos GROUP BY status")
	if err != nil {
		return nil, shared.NewInternalError("Failed to compute stats", err)
	}
	defer rows.Close()

	var stats IPOStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, shared.NewInternalError("Failed to scan stats", err)
		}
		stats.Total += count
		switch status {
		case models.StatusUpcoming:
			stats.Upcoming = count
		case models.StatusOpen:
			stats.Open = count
		case models.StatusClosed:
			stats.Closed = count
		case models.StatusListed:
			stats.Listed = count
		}
	}
	return &stats, rows.Err()
}

// GetIPOsByStatuses fetches all IPOs in any of the given statuses, used by
// the daily digest.
func (s *IPOService) GetIPOsByStatuses(statuses ...string) ([]*models.IPO, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, st := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = st
	}
	query := "SELECT " + ipoColumns + " FROM ipos WHERE status IN (" +
		strings.Join(placeholders, ",") + ") ORDER BY open_date ASC NULLS LAST"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, shared.NewInternalError("Failed to list IPOs by status", err)
	}
	defer rows.Close()

	var ipos []*models.IPO
	now := time.Now()
	for rows.Next() {
		ipo, err := scanIPO(rows)
		if err != nil {
			return nil, shared.NewInternalError("Failed to scan IPO", err)
		}
		s.reconcileStatus(ipo, now)
		ipos = append(ipos, ipo)
	}
	return ipos, rows.Err()
}

// reconcileStatus re-derives the status against the clock and persists the
// correction when the stored value drifted. Transitions discovered here are
// queued for notification but never block the read path.
func (s *IPOService) reconcileStatus(ipo *models.IPO, now time.Time) {
	derived := DeriveStatus(ipo, now)
	if derived == ipo.Status {
		return
	}
	oldStatus := ipo.Status
	ipo.Status = derived

	if _, err := s.db.Exec("UPDATE ipos SET status = $2, updated_at = NOW() WHERE id = $1", ipo.ID, derived); err != nil {
		logrus.WithFields(logrus.Fields{
			"ipo_id": ipo.ID,
			"error":  err,
		}).Warn("Failed to persist reconciled status")
		return
	}
	logrus.WithFields(logrus.Fields{
		"ipo_id":     ipo.ID,
		"company":    ipo.CompanyName,
		"old_status": oldStatus,
		"new_status": derived,
	}).Info("IPO status reconciled")

	if s.notifier != nil {
		s.notifier.NotifyStatusChange(ipo, oldStatus, derived)
	}
}
