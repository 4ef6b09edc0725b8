package services

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenilmodi00/ipogains-backend/database"
	"github.com/fenilmodi00/ipogains-backend/models"
	"github.com/fenilmodi00/ipogains-backend/shared"
)

type integrationSuite struct {
	db          *sql.DB
	ipos        *IPOService
	users       *UserService
	subscribers *SubscriberService
	allotments  *AllotmentService
}

func setupIntegrationSuite(t *testing.T) *integrationSuite {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://localhost/ipogains_test?sslmode=disable"
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Skipf("Skipping integration tests - database not available: %v", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Skipf("Skipping integration tests - database ping failed: %v", err)
		return nil
	}

	require.NoError(t, database.Migrate(db))

	key, err := shared.GeneratePANKey()
	require.NoError(t, err)
	codec, err := shared.NewPANCodec(key)
	require.NoError(t, err)

	mailer := LogMailer{}
	subscribers := NewSubscriberService(db, mailer, "test@ipogains.com", "https://example.com", "http://localhost:8080")
	ipos := NewIPOService(db)
	users := NewUserService(db, subscribers, mailer, "test@ipogains.com", "https://example.com")
	allotments := NewAllotmentService(db, codec, ipos, mailer, "test@ipogains.com", "https://example.com")

	return &integrationSuite{db: db, ipos: ipos, users: users, subscribers: subscribers, allotments: allotments}
}

func (s *integrationSuite) close() {
	if s != nil && s.db != nil {
		s.db.Close()
	}
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%s@example.com", prefix, uuid.NewString()[:8])
}

func TestIntegrationIPOCRUD(t *testing.T) {
	s := setupIntegrationSuite(t)
	defer s.close()

	open := time.Now().AddDate(0, 0, 5)
	close := open.AddDate(0, 0, 2)
	created, err := s.ipos.CreateIPO(&models.IPO{
		CompanyName: "Integration Test Industries " + uuid.NewString()[:8],
		Category:    models.CategoryMainboard,
		PriceRange:  models.PriceRange{Min: 90, Max: 100},
		LotSize:     150,
		OpenDate:    &open,
		CloseDate:   &close,
	})
	require.NoError(t, err)
	defer s.ipos.DeleteIPO(created.ID)

	assert.Equal(t, models.StatusUpcoming, created.Status)

	fetched, err := s.ipos.GetIPOByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.CompanyName, fetched.CompanyName)

	// GMP samples accumulate with the percentage taken from the upper band.
	withGMP, err := s.ipos.AddGMP(created.ID, 25)
	require.NoError(t, err)
	require.Len(t, withGMP.GMP, 1)
	assert.InDelta(t, 25.0, withGMP.GMP[0].Percentage, 0.001)

	// Listing forces the status regardless of dates.
	listed, err := s.ipos.UpdateListing(created.ID, 130)
	require.NoError(t, err)
	assert.Equal(t, models.StatusListed, listed.Status)
	require.NotNil(t, listed.ListingGain)
	assert.InDelta(t, 30.0, listed.ListingGain.Percentage, 0.001)
}

func TestIntegrationSubscriberLifecycle(t *testing.T) {
	s := setupIntegrationSuite(t)
	defer s.close()

	email := uniqueEmail("sub")
	sub, err := s.subscribers.Subscribe(email, "Test Reader", "")
	require.NoError(t, err)
	assert.True(t, sub.IsActive)
	assert.Equal(t, models.DefaultPreferences(), sub.Preferences)

	// Duplicate active subscription conflicts.
	_, err = s.subscribers.Subscribe(email, "", "")
	apiErr := shared.AsAPIError(err)
	require.NotNil(t, apiErr)
	assert.Equal(t, shared.ErrorCategoryConflict, apiErr.Category)

	// Unsubscribe is idempotent.
	unsubbed, err := s.subscribers.UnsubscribeByToken(sub.UnsubscribeToken)
	require.NoError(t, err)
	assert.False(t, unsubbed.IsActive)
	_, err = s.subscribers.UnsubscribeByToken(sub.UnsubscribeToken)
	assert.NoError(t, err)

	// Resubscribing reactivates with a fresh token.
	again, err := s.subscribers.Subscribe(email, "", "")
	require.NoError(t, err)
	assert.True(t, again.IsActive)
	assert.NotEqual(t, sub.UnsubscribeToken, again.UnsubscribeToken)
}

func TestIntegrationRegisterAutoSubscribes(t *testing.T) {
	s := setupIntegrationSuite(t)
	defer s.close()

	email := uniqueEmail("user")
	user, err := s.users.Register(email, "strongpassword1")
	require.NoError(t, err)
	assert.True(t, user.IsVerified)
	assert.Equal(t, models.RoleUser, user.Role)

	subscribed, err := s.subscribers.IsSubscribed(email)
	require.NoError(t, err)
	assert.True(t, subscribed)

	// Credentials round-trip.
	authed, err := s.users.Authenticate(email, "strongpassword1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)

	_, err = s.users.Authenticate(email, "wrongpassword")
	apiErr := shared.AsAPIError(err)
	require.NotNil(t, apiErr)
	assert.Equal(t, shared.ErrorCategoryAuth, apiErr.Category)
}

func TestIntegrationAllotmentFlow(t *testing.T) {
	s := setupIntegrationSuite(t)
	defer s.close()

	open := time.Now().AddDate(0, 0, -1)
	close := time.Now().AddDate(0, 0, 2)
	ipo, err := s.ipos.CreateIPO(&models.IPO{
		CompanyName: "Allotment Flow Ltd " + uuid.NewString()[:8],
		Category:    models.CategorySME,
		PriceRange:  models.PriceRange{Min: 50, Max: 60},
		OpenDate:    &open,
		CloseDate:   &close,
	})
	require.NoError(t, err)
	defer s.ipos.DeleteIPO(ipo.ID)
	require.Equal(t, models.StatusOpen, ipo.Status)

	applicant, err := s.users.Register(uniqueEmail("applicant"), "strongpassword1")
	require.NoError(t, err)
	checker, err := s.users.Register(uniqueEmail("checker"), "strongpassword1")
	require.NoError(t, err)

	app, err := s.allotments.Apply(applicant.ID, ipo.ID, "ABCDE1234F", "APP-001", 2)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationPending, app.Status)

	// A second application for the same IPO conflicts.
	_, err = s.allotments.Apply(applicant.ID, ipo.ID, "ABCDE1234F", "APP-002", 1)
	apiErr := shared.AsAPIError(err)
	require.NotNil(t, apiErr)
	assert.Equal(t, shared.ErrorCategoryConflict, apiErr.Category)

	// Anonymous PAN lookup finds the stored application via decryption.
	result, err := s.allotments.FindApplication(ipo.ID, "abcde1234f", nil)
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, models.ApplicationPending, result.Status)

	// A different authenticated user checking the same PAN gets a tracking
	// record copied from the match.
	_, err = s.allotments.FindApplication(ipo.ID, "ABCDE1234F", &checker.ID)
	require.NoError(t, err)
	tracked, err := s.allotments.MyApplications(checker.ID)
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	assert.Equal(t, models.ApplicationPending, tracked[0].Status)
	assert.Equal(t, "APP-001", tracked[0].ApplicationNumber)
	assert.Equal(t, 2, tracked[0].LotSize)
	assert.WithinDuration(t, app.AppliedDate, tracked[0].AppliedDate, time.Second)

	// The applicant's own entry is untouched by other people's checks.
	own, err := s.allotments.MyApplications(applicant.ID)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, models.ApplicationPending, own[0].Status)
	assert.Equal(t, "APP-001", own[0].ApplicationNumber)

	// An unknown PAN yields no match.
	miss, err := s.allotments.FindApplication(ipo.ID, "ZZZZZ9999Z", nil)
	require.NoError(t, err)
	assert.False(t, miss.Found)
	assert.Equal(t, models.ApplicationCheckedExternal, miss.Status)

	// A first fruitless authenticated check reports not found while still
	// leaving a placeholder; a repeat check then surfaces that placeholder.
	late, err := s.users.Register(uniqueEmail("late"), "strongpassword1")
	require.NoError(t, err)
	first, err := s.allotments.FindApplication(ipo.ID, "ZZZZZ9999Z", &late.ID)
	require.NoError(t, err)
	assert.False(t, first.Found)
	repeat, err := s.allotments.FindApplication(ipo.ID, "ZZZZZ9999Z", &late.ID)
	require.NoError(t, err)
	assert.True(t, repeat.Found)
	assert.Equal(t, models.ApplicationCheckedExternal, repeat.Status)

	// When a real result turns up later, the placeholder is upgraded with
	// the matched application's details.
	other, err := s.users.Register(uniqueEmail("other"), "strongpassword1")
	require.NoError(t, err)
	otherApp, err := s.allotments.Apply(other.ID, ipo.ID, "ZZZZZ9999Z", "APP-777", 3)
	require.NoError(t, err)
	s.allotments.upsertTracking(late.ID, ipo.ID, otherApp, "ZZZZZ9999Z", "CHK")
	lateApps, err := s.allotments.MyApplications(late.ID)
	require.NoError(t, err)
	require.Len(t, lateApps, 1)
	assert.Equal(t, models.ApplicationPending, lateApps[0].Status)
	assert.Equal(t, "APP-777", lateApps[0].ApplicationNumber)
	assert.Equal(t, 3, lateApps[0].LotSize)
}

func TestIntegrationAllotmentAnnouncement(t *testing.T) {
	s := setupIntegrationSuite(t)
	defer s.close()

	notifications := NewNotificationService(s.db, s.ipos, s.subscribers, NotificationConfig{
		Mailer:      LogMailer{},
		SenderEmail: "test@ipogains.com",
		FrontendURL: "https://example.com",
	})

	open := time.Now().AddDate(0, 0, -7)
	close := time.Now().AddDate(0, 0, -4)
	allotment := time.Now().AddDate(0, 0, -1)
	ipo, err := s.ipos.CreateIPO(&models.IPO{
		CompanyName:   "Allotment Day Ltd " + uuid.NewString()[:8],
		Category:      models.CategoryMainboard,
		PriceRange:    models.PriceRange{Min: 100, Max: 110},
		OpenDate:      &open,
		CloseDate:     &close,
		AllotmentDate: &allotment,
	})
	require.NoError(t, err)
	defer s.ipos.DeleteIPO(ipo.ID)
	require.Equal(t, models.StatusClosed, ipo.Status)

	announcements := func() int {
		var n int
		require.NoError(t, s.db.QueryRow(
			"SELECT COUNT(*) FROM notifications WHERE ipo_id = $1 AND type = $2",
			ipo.ID, models.NotificationAllotmentAvailable).Scan(&n))
		return n
	}

	notifications.AnnounceAllotments()
	assert.Equal(t, 1, announcements())

	// A repeat sweep does not announce the same IPO twice.
	notifications.AnnounceAllotments()
	assert.Equal(t, 1, announcements())
}
