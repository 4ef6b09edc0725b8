package services

import (
	"time"

	"github.com/fenilmodi00/ipogains-backend/models"
)

// Indian market clock. Lifecycle dates are stored as bare dates; the
// transition inside the day follows the exchange schedule: bidding opens
// 09:00 IST, closes 17:00 IST, shares list 10:00 IST.
var istZone = time.FixedZone("IST", 5*3600+1800)

const (
	openHourIST    = 9
	closeHourIST   = 17
	listingHourIST = 10
)

// atClock pins d to the given hour on its calendar day in IST.
func atClock(d time.Time, hour int) time.Time {
	y, m, day := d.In(istZone).Date()
	return time.Date(y, m, day, hour, 0, 0, 0, istZone)
}

// DeriveStatus computes the lifecycle status from the IPO's dates and
// listing price. A recorded listing price wins over everything; otherwise
// the dates decide, most advanced phase first. Missing dates leave the IPO
// upcoming.
func DeriveStatus(ipo *models.IPO, now time.Time) string {
	if ipo.ListingPrice != nil {
		return models.StatusListed
	}
	if ipo.ListingDate != nil && !now.Before(atClock(*ipo.ListingDate, listingHourIST)) {
		return models.StatusListed
	}
	if ipo.CloseDate != nil && !now.Before(atClock(*ipo.CloseDate, closeHourIST)) {
		return models.StatusClosed
	}
	if ipo.OpenDate != nil && !now.Before(atClock(*ipo.OpenDate, openHourIST)) {
		return models.StatusOpen
	}
	return models.StatusUpcoming
}
