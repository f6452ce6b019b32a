package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-core/pkg/xerrors"
)

func activeAuction(starting, increment string) *Auction {
	now := time.Now()
	return &Auction{
		ID:            1,
		SellerID:      "seller-1",
		StartingPrice: decimal.RequireFromString(starting),
		BidIncrement:  decimal.RequireFromString(increment),
		Status:        AuctionStatusActive,
		StartsAt:      now.Add(-time.Hour),
		EndsAt:        now.Add(time.Hour),
	}
}

func TestMinimumBid(t *testing.T) {
	a := activeAuction("100", "10")
	assert.True(t, a.MinimumBid().Equal(decimal.RequireFromString("100")))

	cur := decimal.RequireFromString("100")
	a.CurrentBid = &cur
	assert.True(t, a.MinimumBid().Equal(decimal.RequireFromString("110")))
}

func TestValidateBid_Floor(t *testing.T) {
	now := time.Now()
	a := activeAuction("100", "10")

	err := a.ValidateBid("bidder-1", decimal.RequireFromString("99"), now)
	require.ErrorIs(t, err, xerrors.ErrBidTooLow)

	require.NoError(t, a.ValidateBid("bidder-1", decimal.RequireFromString("100"), now))

	cur := decimal.RequireFromString("100")
	a.CurrentBid = &cur
	require.ErrorIs(t, a.ValidateBid("bidder-1", decimal.RequireFromString("109"), now), xerrors.ErrBidTooLow)
	require.NoError(t, a.ValidateBid("bidder-1", decimal.RequireFromString("110"), now))
}

func TestValidateBid_StatusGate(t *testing.T) {
	now := time.Now()

	a := activeAuction("50", "5")
	a.Status = AuctionStatusSold
	require.ErrorIs(t, a.ValidateBid("b", decimal.RequireFromString("60"), now), xerrors.ErrAuctionNotActive)

	a = activeAuction("50", "5")
	a.EndsAt = now.Add(-time.Minute)
	require.ErrorIs(t, a.ValidateBid("b", decimal.RequireFromString("60"), now), xerrors.ErrAuctionNotActive)
}

func TestValidateBid_SelfBid(t *testing.T) {
	a := activeAuction("50", "5")
	err := a.ValidateBid("seller-1", decimal.RequireFromString("60"), time.Now())
	require.ErrorIs(t, err, xerrors.ErrSelfBidDisallowed)
}

func TestReserveMet(t *testing.T) {
	a := activeAuction("50", "5")
	assert.False(t, a.ReserveMet(), "no bid yet")

	cur := decimal.RequireFromString("60")
	a.CurrentBid = &cur
	assert.True(t, a.ReserveMet(), "no reserve set")

	res := decimal.RequireFromString("100")
	a.ReservePrice = &res
	assert.False(t, a.ReserveMet())

	cur2 := decimal.RequireFromString("100")
	a.CurrentBid = &cur2
	assert.True(t, a.ReserveMet())
}

func TestEffectiveTier(t *testing.T) {
	now := time.Now()
	assert.Equal(t, TierFree, EffectiveTier(nil, now))

	s := &Subscription{Tier: TierPro, ExpiresAt: now.Add(time.Hour)}
	assert.Equal(t, TierPro, EffectiveTier(s, now))

	s.ExpiresAt = now.Add(-time.Minute)
	assert.Equal(t, TierFree, EffectiveTier(s, now))
}

func TestNextExpiry(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, from.Add(30*24*time.Hour), NextExpiry(from, CycleMonthly))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), NextExpiry(from, CycleYearly))
}

func TestSharePriceFor(t *testing.T) {
	price := SharePriceFor(decimal.RequireFromString("1000"), 100)
	assert.True(t, price.Equal(decimal.RequireFromString("10")))

	price = SharePriceFor(decimal.RequireFromString("999.99"), 100)
	assert.True(t, price.Equal(decimal.RequireFromString("10")), "rounded to cents, got %s", price)
}
