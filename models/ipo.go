package models

import (
	"time"

	"github.com/google/uuid"
)

// IPO lifecycle statuses, derived from the date fields and listing price.
const (
	StatusUpcoming = "upcoming"
	StatusOpen     = "open"
	StatusClosed   = "closed"
	StatusListed   = "listed"
)

// IPO categories.
const (
	CategoryMainboard = "Mainboard"
	CategorySME       = "SME"
)

// Recommendation values an admin can attach to an IPO.
const (
	RecommendationSubscribe = "Subscribe"
	RecommendationAvoid     = "Avoid"
	RecommendationNeutral   = "Neutral"
)

// PriceRange is the issue price band in rupees.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Subscription holds the category-wise subscription multiples.
type Subscription struct {
	Retail      float64   `json:"retail"`
	NII         float64   `json:"nii"`
	QIB         float64   `json:"qib"`
	Shareholder float64   `json:"shareholder"`
	Total       float64   `json:"total"`
	LastUpdated time.Time `json:"last_updated"`
}

// GMPSample is one grey-market premium observation. Samples are kept in
// chronological order; the last entry is the current GMP.
type GMPSample struct {
	Value      float64   `json:"value"`
	Percentage float64   `json:"percentage"`
	Date       time.Time `json:"date"`
}

// ListingGain is the difference between listing price and the upper band.
type ListingGain struct {
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
}

// Financials holds the headline numbers shown on the detail page.
type Financials struct {
	Revenue float64 `json:"revenue"`
	Profit  float64 `json:"profit"`
	PERatio float64 `json:"pe_ratio"`
}

type IPO struct {
	ID          uuid.UUID `json:"id"`
	CompanyName string    `json:"company_name"`
	CompanyLogo string    `json:"company_logo"`
	Category    string    `json:"category"`
	Sector      string    `json:"sector"`

	// Issue details
	PriceRange    PriceRange `json:"price_range"`
	LotSize       int        `json:"lot_size"`
	MinInvestment float64    `json:"min_investment"`
	IssueSize     float64    `json:"issue_size"`
	FaceValue     float64    `json:"face_value"`

	// Lifecycle dates. All optional; drafts may carry none.
	OpenDate      *time.Time `json:"open_date"`
	CloseDate     *time.Time `json:"close_date"`
	AllotmentDate *time.Time `json:"allotment_date"`
	ListingDate   *time.Time `json:"listing_date"`

	// Derived from the dates and listing price on every load/save.
	Status string `json:"status"`

	Subscription Subscription `json:"subscription"`
	GMP          []GMPSample  `json:"gmp"`

	// Listing performance. ListingPrice set forces status "listed".
	ListingPrice *float64     `json:"listing_price"`
	ListingGain  *ListingGain `json:"listing_gain"`

	CompanyDescription string     `json:"company_description"`
	Financials         Financials `json:"financials"`

	LeadManagers  []string `json:"lead_managers"`
	Registrar     string   `json:"registrar"`
	AllotmentLink string   `json:"allotment_link"`

	Recommendation     string `json:"recommendation"`
	RecommendationNote string `json:"recommendation_note"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LatestGMP returns the most recent GMP sample, or nil if none recorded.
func (i *IPO) LatestGMP() *GMPSample {
	if len(i.GMP) == 0 {
		return nil
	}
	return &i.GMP[len(i.GMP)-1]
}

// ValidCategory reports whether c is a known IPO category.
func ValidCategory(c string) bool {
	return c == CategoryMainboard || c == CategorySME
}
