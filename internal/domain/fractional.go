package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FractionalListing splits one physical item into total_shares fixed-price
// units. SharePrice = TotalValue / TotalShares, computed once at creation and
// held fixed. Invariant: sum of all holders' shares + AvailableShares ==
// TotalShares at all times.
type FractionalListing struct {
	ID                        int64           `json:"id"`
	OwnerID                   string          `json:"owner_id"`
	Title                     string          `json:"title"`
	TotalValue                decimal.Decimal `json:"total_value"`
	TotalShares               int64           `json:"total_shares"`
	AvailableShares           int64           `json:"available_shares"`
	SharePrice                decimal.Decimal `json:"share_price"`
	MinShares                 int64           `json:"min_shares"`
	DailyVerificationRequired bool            `json:"daily_verification_required"`
	NextVerificationDue       *time.Time      `json:"next_verification_due,omitempty"`
	CreatedAt                 time.Time       `json:"created_at"`
	UpdatedAt                 time.Time       `json:"updated_at"`
}

// Ownership is one holder's position in one fractional listing.
type Ownership struct {
	ID          int64     `json:"id"`
	ListingID   int64     `json:"listing_id"`
	HolderID    string    `json:"holder_id"`
	SharesOwned int64     `json:"shares_owned"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ResaleStatus string

const (
	ResaleStatusActive    ResaleStatus = "active"
	ResaleStatusSold      ResaleStatus = "sold"
	ResaleStatusCancelled ResaleStatus = "cancelled"
)

// ResaleListing offers part of a holder's position for secondary sale at a
// price chosen by the holder (independent of the original share price).
type ResaleListing struct {
	ID            int64           `json:"id"`
	ListingID     int64           `json:"listing_id"`
	SellerID      string          `json:"seller_id"`
	Quantity      int64           `json:"quantity"`
	PricePerShare decimal.Decimal `json:"price_per_share"`
	Status        ResaleStatus    `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// SharePriceFor computes the fixed per-share price at listing creation,
// rounded to cents.
func SharePriceFor(totalValue decimal.Decimal, totalShares int64) decimal.Decimal {
	return totalValue.Div(decimal.NewFromInt(totalShares)).Round(2)
}
