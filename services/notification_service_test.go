package services

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/fenilmodi00/ipogains-backend/models"
)

func TestSignificantGMPChange(t *testing.T) {
	sample := func(v float64) models.GMPSample {
		return models.GMPSample{Value: v, Date: time.Now()}
	}

	t.Run("first sample is always significant", func(t *testing.T) {
		assert.True(t, SignificantGMPChange(nil, sample(50)))
		assert.True(t, SignificantGMPChange(nil, sample(0)))
	})

	t.Run("move above ten percent is significant", func(t *testing.T) {
		prev := sample(100)
		assert.True(t, SignificantGMPChange(&prev, sample(111)))
		assert.True(t, SignificantGMPChange(&prev, sample(89)))
	})

	t.Run("move at or below ten percent is not", func(t *testing.T) {
		prev := sample(100)
		assert.False(t, SignificantGMPChange(&prev, sample(110)))
		assert.False(t, SignificantGMPChange(&prev, sample(90)))
		assert.False(t, SignificantGMPChange(&prev, sample(100)))
	})

	t.Run("zero baseline notifies on any move", func(t *testing.T) {
		prev := sample(0)
		assert.True(t, SignificantGMPChange(&prev, sample(1)))
		assert.False(t, SignificantGMPChange(&prev, sample(0)))
	})

	t.Run("negative GMP uses magnitude of previous", func(t *testing.T) {
		prev := sample(-50)
		assert.True(t, SignificantGMPChange(&prev, sample(-56)))
		assert.False(t, SignificantGMPChange(&prev, sample(-54)))
	})
}

func testSubscriber(prefs models.Preferences) *models.Subscriber {
	return &models.Subscriber{
		ID:               uuid.New(),
		Email:            "reader@example.com",
		IsActive:         true,
		Preferences:      prefs,
		UnsubscribeToken: models.NewUnsubscribeToken(),
	}
}

func TestTemplateForPreferenceGate(t *testing.T) {
	ipo := &models.IPO{ID: uuid.New(), CompanyName: "Acme Industries"}
	notif := func(kind string) *models.Notification {
		return &models.Notification{
			ID:       uuid.New(),
			Type:     kind,
			IPOID:    ipo.ID,
			IPOName:  ipo.CompanyName,
			Title:    "Acme Industries update",
			Message:  "Something changed.",
			NewValue: json.RawMessage(`"open"`),
		}
	}

	gateFor := map[string]func(*models.Preferences, bool){
		models.NotificationNewIPO:             func(p *models.Preferences, v bool) { p.NewIPO = v },
		models.NotificationStatusChange:       func(p *models.Preferences, v bool) { p.StatusChange = v },
		models.NotificationListing:            func(p *models.Preferences, v bool) { p.StatusChange = v },
		models.NotificationGMPUpdate:          func(p *models.Preferences, v bool) { p.GMPUpdates = v },
		models.NotificationSubscriptionUpdate: func(p *models.Preferences, v bool) { p.GMPUpdates = v },
		models.NotificationAllotmentAvailable: func(p *models.Preferences, v bool) { p.AllotmentStatus = v },
	}

	for kind, set := range gateFor {
		t.Run(kind, func(t *testing.T) {
			prefs := models.DefaultPreferences()
			sub := testSubscriber(prefs)
			content := templateFor(notif(kind), ipo, sub, "https://example.com", "https://example.com/u/x")
			assert.NotNil(t, content, "opted-in subscriber should get content")
			assert.NotEmpty(t, content.Subject)
			assert.Contains(t, content.HTML, "Acme Industries")

			set(&prefs, false)
			sub = testSubscriber(prefs)
			assert.Nil(t, templateFor(notif(kind), ipo, sub, "https://example.com", ""),
				"opted-out subscriber should be skipped")
		})
	}
}

func TestTemplateForUnknownType(t *testing.T) {
	sub := testSubscriber(models.DefaultPreferences())
	n := &models.Notification{Type: "mystery"}
	assert.Nil(t, templateFor(n, nil, sub, "https://example.com", ""))
}

func TestTemplateForSurvivesDeletedIPO(t *testing.T) {
	sub := testSubscriber(models.DefaultPreferences())
	n := &models.Notification{
		Type:    models.NotificationNewIPO,
		IPOName: "Ghost Corp",
		Title:   "New IPO: Ghost Corp",
	}
	content := templateFor(n, nil, sub, "https://example.com", "")
	assert.NotNil(t, content)
	assert.Contains(t, content.HTML, "Ghost Corp")
}

func TestTemplateEscapesCompanyName(t *testing.T) {
	sub := testSubscriber(models.DefaultPreferences())
	ipo := &models.IPO{ID: uuid.New(), CompanyName: `<script>alert(1)</script>`}
	n := &models.Notification{Type: models.NotificationNewIPO, IPOID: ipo.ID, IPOName: ipo.CompanyName}

	content := templateFor(n, ipo, sub, "https://example.com", "")
	assert.NotNil(t, content)
	assert.NotContains(t, content.HTML, "<script>")
}

func TestRenderDailyDigest(t *testing.T) {
	t.Run("empty digest is skipped", func(t *testing.T) {
		assert.Nil(t, renderDailyDigest(nil, nil, nil, "https://example.com", ""))
	})

	t.Run("open and upcoming sections render", func(t *testing.T) {
		close := time.Date(2026, 9, 3, 0, 0, 0, 0, istZone)
		open := []*models.IPO{{
			CompanyName: "Acme Industries",
			Category:    models.CategoryMainboard,
			Status:      models.StatusOpen,
			CloseDate:   &close,
			GMP:         []models.GMPSample{{Value: 42}},
		}}
		upcoming := []*models.IPO{{
			CompanyName: "Beta SME",
			Category:    models.CategorySME,
			Status:      models.StatusUpcoming,
		}}
		recent := []*models.Notification{{Title: "Acme Industries is now open"}}

		content := renderDailyDigest(open, upcoming, recent, "https://example.com", "https://example.com/u/t")
		assert.NotNil(t, content)
		assert.True(t, strings.Contains(content.Subject, "daily digest"))
		assert.Contains(t, content.HTML, "Acme Industries")
		assert.Contains(t, content.HTML, "Beta SME")
		assert.Contains(t, content.HTML, "GMP ₹42")
		assert.Contains(t, content.HTML, "Last 24 hours")
	})
}
