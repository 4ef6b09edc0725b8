package services

import (
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/fenilmodi00/ipogains-backend/models"
)

func dateAt(t *testing.T, value string) *time.Time {
	t.Helper()
	parsed, err := time.ParseInLocation("2006-01-02", value, istZone)
	if err != nil {
		t.Fatalf("bad date %q: %v", value, err)
	}
	return &parsed
}

func TestDeriveStatusLifecycle(t *testing.T) {
	open := dateAt(t, "2026-09-01")
	close := dateAt(t, "2026-09-03")
	listing := dateAt(t, "2026-09-08")

	ipo := &models.IPO{
		CompanyName: "Acme Industries",
		OpenDate:    open,
		CloseDate:   close,
		ListingDate: listing,
	}

	cases := []struct {
		name string
		now  string
		want string
	}{
		{"day before open", "2026-08-31 12:00", models.StatusUpcoming},
		{"open day before 9am", "2026-09-01 08:59", models.StatusUpcoming},
		{"open day at 9am", "2026-09-01 09:00", models.StatusOpen},
		{"mid window", "2026-09-02 14:00", models.StatusOpen},
		{"close day before 5pm", "2026-09-03 16:59", models.StatusOpen},
		{"close day at 5pm", "2026-09-03 17:00", models.StatusClosed},
		{"close day after 5pm", "2026-09-03 17:01", models.StatusClosed},
		{"days after close", "2026-09-06 10:00", models.StatusClosed},
		{"listing day before 10am", "2026-09-08 09:30", models.StatusClosed},
		{"listing day at 10am", "2026-09-08 10:00", models.StatusListed},
		{"well after listing", "2026-09-15 10:00", models.StatusListed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now, err := time.ParseInLocation("2006-01-02 15:04", tc.now, istZone)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, DeriveStatus(ipo, now))
		})
	}
}

func TestDeriveStatusNoDates(t *testing.T) {
	ipo := &models.IPO{CompanyName: "Draft Ltd"}
	assert.Equal(t, models.StatusUpcoming, DeriveStatus(ipo, time.Now()))
}

func TestDeriveStatusListingPriceWins(t *testing.T) {
	price := 142.50
	open := dateAt(t, "2026-09-20")

	// Listing price forces listed even while the date fields still say the
	// issue has not opened.
	ipo := &models.IPO{
		CompanyName:  "Early Bird Ltd",
		OpenDate:     open,
		ListingPrice: &price,
	}
	now, _ := time.ParseInLocation("2006-01-02 15:04", "2026-09-01 12:00", istZone)
	assert.Equal(t, models.StatusListed, DeriveStatus(ipo, now))
}

func TestDeriveStatusOpenWithoutClose(t *testing.T) {
	open := dateAt(t, "2026-09-01")
	ipo := &models.IPO{CompanyName: "No Close Ltd", OpenDate: open}

	now, _ := time.ParseInLocation("2006-01-02 15:04", "2026-12-01 12:00", istZone)
	assert.Equal(t, models.StatusOpen, DeriveStatus(ipo, now))
}

func genOptionalDate(base time.Time) gopter.Gen {
	ptrType := reflect.TypeOf((*time.Time)(nil))
	return gen.IntRange(-40, 40).FlatMap(func(v interface{}) gopter.Gen {
		offset := v.(int)
		if offset%7 == 0 {
			return gen.Const((*time.Time)(nil))
		}
		d := base.AddDate(0, 0, offset)
		return gen.Const(&d)
	}, ptrType)
}

func TestDeriveStatusProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	base := time.Date(2026, 9, 1, 0, 0, 0, 0, istZone)

	newIPO := func(open, close, listing *time.Time) *models.IPO {
		return &models.IPO{CompanyName: "Prop Ltd", OpenDate: open, CloseDate: close, ListingDate: listing}
	}

	properties.Property("derivation is deterministic and idempotent", prop.ForAll(
		func(open, close, listing *time.Time, dayOffset int) bool {
			now := base.AddDate(0, 0, dayOffset)
			ipo := newIPO(open, close, listing)
			first := DeriveStatus(ipo, now)
			ipo.Status = first
			return DeriveStatus(ipo, now) == first
		},
		genOptionalDate(base), genOptionalDate(base), genOptionalDate(base), gen.IntRange(-50, 50),
	))

	properties.Property("result is always a known status", prop.ForAll(
		func(open, close, listing *time.Time, dayOffset int) bool {
			now := base.AddDate(0, 0, dayOffset)
			switch DeriveStatus(newIPO(open, close, listing), now) {
			case models.StatusUpcoming, models.StatusOpen, models.StatusClosed, models.StatusListed:
				return true
			}
			return false
		},
		genOptionalDate(base), genOptionalDate(base), genOptionalDate(base), gen.IntRange(-50, 50),
	))

	properties.Property("a listing price always yields listed", prop.ForAll(
		func(open, close, listing *time.Time, price float64) bool {
			ipo := newIPO(open, close, listing)
			ipo.ListingPrice = &price
			return DeriveStatus(ipo, base) == models.StatusListed
		},
		genOptionalDate(base), genOptionalDate(base), genOptionalDate(base), gen.Float64Range(1, 5000),
	))

	properties.TestingRun(t)
}
