package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/fenilmodi00/ipogains-backend/models"
	"github.com/fenilmodi00/ipogains-backend/shared"
)

func TestNormalizePAN(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"ABCDE1234F", "ABCDE1234F", false},
		{"abcde1234f", "ABCDE1234F", false},
		{"  ABCDE1234F  ", "ABCDE1234F", false},
		{"ABCDE1234", "", true},
		{"ABCDE12345", "", true},
		{"1BCDE1234F", "", true},
		{"ABCDE1234FX", "", true},
		{"", "", true},
	}

	for _, tc := range cases {
		got, err := NormalizePAN(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			apiErr := shared.AsAPIError(err)
			assert.NotNil(t, apiErr)
			assert.Equal(t, shared.ErrorCategoryValidation, apiErr.Category)
		} else {
			assert.NoError(t, err, "input %q", tc.in)
			assert.Equal(t, tc.want, got)
		}
	}
}

func TestPlanTracking(t *testing.T) {
	allottedMatch := &models.Application{ID: uuid.New(), Status: models.ApplicationAllotted}
	pendingMatch := &models.Application{ID: uuid.New(), Status: models.ApplicationPending}

	t.Run("no record and no match creates placeholder", func(t *testing.T) {
		action, status := planTracking(nil, nil)
		assert.Equal(t, trackingCreate, action)
		assert.Equal(t, models.ApplicationCheckedExternal, status)
	})

	t.Run("no record copies found status", func(t *testing.T) {
		action, status := planTracking(nil, allottedMatch)
		assert.Equal(t, trackingCreate, action)
		assert.Equal(t, models.ApplicationAllotted, status)
	})

	t.Run("placeholder upgrades on real result", func(t *testing.T) {
		existing := &models.Application{Status: models.ApplicationCheckedExternal}
		action, status := planTracking(existing, allottedMatch)
		assert.Equal(t, trackingUpdate, action)
		assert.Equal(t, models.ApplicationAllotted, status)
	})

	t.Run("pending entry is never touched", func(t *testing.T) {
		existing := &models.Application{Status: models.ApplicationPending}

		action, status := planTracking(existing, allottedMatch)
		assert.Equal(t, trackingNone, action)
		assert.Equal(t, models.ApplicationPending, status)

		action, status = planTracking(existing, nil)
		assert.Equal(t, trackingNone, action)
		assert.Equal(t, models.ApplicationPending, status)
	})

	t.Run("placeholder stays when scan finds nothing new", func(t *testing.T) {
		existing := &models.Application{Status: models.ApplicationCheckedExternal}
		action, _ := planTracking(existing, nil)
		assert.Equal(t, trackingNone, action)
	})

	t.Run("manual final status is never overwritten", func(t *testing.T) {
		existing := &models.Application{Status: models.ApplicationNotAllotted}
		action, status := planTracking(existing, allottedMatch)
		assert.Equal(t, trackingNone, action)
		assert.Equal(t, models.ApplicationNotAllotted, status)

		existing = &models.Application{Status: models.ApplicationAllotted}
		action, status = planTracking(existing, pendingMatch)
		assert.Equal(t, trackingNone, action)
		assert.Equal(t, models.ApplicationAllotted, status)
	})
}
