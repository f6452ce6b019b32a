package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"marketplace-core/pkg/xerrors"
)

type AuctionStatus string

const (
	AuctionStatusActive    AuctionStatus = "active"
	AuctionStatusSold      AuctionStatus = "sold"
	AuctionStatusEnded     AuctionStatus = "ended"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

// Auction represents one item for sale by timed bidding.
type Auction struct {
	ID              int64            `json:"id"`
	SellerID        string           `json:"seller_id"`
	Title           string           `json:"title"`
	StartingPrice   decimal.Decimal  `json:"starting_price"`
	BidIncrement    decimal.Decimal  `json:"bid_increment"`
	CurrentBid      *decimal.Decimal `json:"current_bid,omitempty"`
	HighestBidderID *string          `json:"highest_bidder_id,omitempty"`
	BidCount        int64            `json:"bid_count"`
	ReservePrice    *decimal.Decimal `json:"reserve_price,omitempty"`
	BuyNowPrice     *decimal.Decimal `json:"buy_now_price,omitempty"`
	FinalPrice      *decimal.Decimal `json:"final_price,omitempty"`
	WinnerID        *string          `json:"winner_id,omitempty"`
	Status          AuctionStatus    `json:"status"`
	StartsAt        time.Time        `json:"starts_at"`
	EndsAt          time.Time        `json:"ends_at"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Bid on an auction. At most one bid per auction carries IsWinning=true.
type Bid struct {
	ID        int64            `json:"id"`
	AuctionID int64            `json:"auction_id"`
	BidderID  string           `json:"bidder_id"`
	Amount    decimal.Decimal  `json:"amount"`
	MaxBid    *decimal.Decimal `json:"max_bid,omitempty"`
	IsWinning bool             `json:"is_winning"`
	CreatedAt time.Time        `json:"created_at"`
}

// MinimumBid is current_bid + increment once bidding has started, otherwise
// the starting price.
func (a *Auction) MinimumBid() decimal.Decimal {
	if a.CurrentBid != nil {
		return a.CurrentBid.Add(a.BidIncrement)
	}
	return a.StartingPrice
}

// ValidateBid applies the acceptance rules for a new bid. Shared by the
// postgres and in-memory repositories so the two cannot drift.
func (a *Auction) ValidateBid(bidderID string, amount decimal.Decimal, now time.Time) error {
	if a.Status != AuctionStatusActive || now.After(a.EndsAt) {
		return xerrors.ErrAuctionNotActive
	}
	if bidderID == a.SellerID {
		return xerrors.ErrSelfBidDisallowed
	}
	if amount.LessThan(a.MinimumBid()) {
		return xerrors.ErrBidTooLow
	}
	return nil
}

// ReserveMet reports whether the current bid satisfies the reserve price.
// An auction without a reserve is always met once it has a bid.
func (a *Auction) ReserveMet() bool {
	if a.CurrentBid == nil {
		return false
	}
	if a.ReservePrice == nil {
		return true
	}
	return a.CurrentBid.GreaterThanOrEqual(*a.ReservePrice)
}
