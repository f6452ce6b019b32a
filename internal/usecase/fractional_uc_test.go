package usecase

import (
	"context"
	"testing"

	"marketplace-core/internal/domain"
	"marketplace-core/pkg/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createListing(t *testing.T, f *fixture, ownerID string, in CreateListingInput) *domain.FractionalListing {
	t.Helper()
	l, err := f.fractionalUC.CreateListing(context.Background(), ownerID, in)
	require.NoError(t, err)
	return l
}

func TestCreateListingDerivesSharePrice(t *testing.T) {
	f := newFixture(t)

	l := createListing(t, f, "owner", CreateListingInput{
		Title:       "Graded rookie card",
		TotalValue:  dec("1000"),
		TotalShares: 100,
		MinShares:   5,
	})
	assert.Equal(t, "10", l.SharePrice.String())
	assert.Equal(t, int64(100), l.AvailableShares)

	// Price rounds to cents when the division is not exact.
	odd := createListing(t, f, "owner", CreateListingInput{
		Title:       "Odd split",
		TotalValue:  dec("100"),
		TotalShares: 3,
		MinShares:   1,
	})
	assert.Equal(t, "33.33", odd.SharePrice.String())

	_, err := f.fractionalUC.CreateListing(context.Background(), "owner", CreateListingInput{
		Title:       "Bad",
		TotalValue:  dec("100"),
		TotalShares: 10,
		MinShares:   20,
	})
	assert.ErrorIs(t, err, xerrors.ErrInvalidRequest)
}

func TestPurchaseSharesConservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "owner", "0")
	f.fundedUser(t, "alice", "500")
	f.fundedUser(t, "bob", "500")

	l := createListing(t, f, "owner", CreateListingInput{
		Title:       "Shared card",
		TotalValue:  dec("1000"),
		TotalShares: 100,
		MinShares:   5,
	})

	res, err := f.fractionalUC.PurchaseShares(ctx, "alice", l.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(30), res.Ownership.SharesOwned)
	assert.Equal(t, "300", res.Cost.String())
	assert.Equal(t, "200", f.balance(t, "alice").String())
	assert.Equal(t, "300", f.balance(t, "owner").String())

	_, err = f.fractionalUC.PurchaseShares(ctx, "bob", l.ID, 20)
	require.NoError(t, err)

	// Sold shares plus the remaining pool always equal the total.
	got, err := f.fractionalUC.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.AvailableShares)

	aliceOwn, err := f.fractional.GetOwnership(ctx, l.ID, "alice")
	require.NoError(t, err)
	bobOwn, err := f.fractional.GetOwnership(ctx, l.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, got.TotalShares, aliceOwn.SharesOwned+bobOwn.SharesOwned+got.AvailableShares)
}

func TestPurchaseSharesOversellRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "owner", "0")
	f.fundedUser(t, "alice", "5000")

	l := createListing(t, f, "owner", CreateListingInput{
		Title:       "Small pool",
		TotalValue:  dec("100"),
		TotalShares: 10,
		MinShares:   1,
	})

	_, err := f.fractionalUC.PurchaseShares(ctx, "alice", l.ID, 11)
	assert.ErrorIs(t, err, xerrors.ErrInsufficientShares)

	_, err = f.fractionalUC.PurchaseShares(ctx, "alice", l.ID, 10)
	require.NoError(t, err)

	_, err = f.fractionalUC.PurchaseShares(ctx, "alice", l.ID, 1)
	assert.ErrorIs(t, err, xerrors.ErrInsufficientShares)
}

func TestPurchaseSharesMinimumAndTopUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "owner", "0")
	f.fundedUser(t, "alice", "500")

	l := createListing(t, f, "owner", CreateListingInput{
		Title:       "Min five",
		TotalValue:  dec("1000"),
		TotalShares: 100,
		MinShares:   5,
	})

	// Below the minimum with no existing position.
	_, err := f.fractionalUC.PurchaseShares(ctx, "alice", l.ID, 3)
	assert.ErrorIs(t, err, xerrors.ErrBelowMinimum)

	_, err = f.fractionalUC.PurchaseShares(ctx, "alice", l.ID, 5)
	require.NoError(t, err)

	// Top-ups below the minimum are fine once the position clears it.
	res, err := f.fractionalUC.PurchaseShares(ctx, "alice", l.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Ownership.SharesOwned)
}

func TestPurchaseSharesInsufficientFundsRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "owner", "0")
	f.fundedUser(t, "poor", "10")

	l := createListing(t, f, "owner", CreateListingInput{
		Title:       "Too expensive",
		TotalValue:  dec("1000"),
		TotalShares: 100,
		MinShares:   5,
	})

	_, err := f.fractionalUC.PurchaseShares(ctx, "poor", l.ID, 5)
	assert.ErrorIs(t, err, xerrors.ErrInsufficientFunds)

	// The pool is untouched by the failed purchase.
	got, err := f.fractionalUC.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.AvailableShares)
	assert.Equal(t, "10", f.balance(t, "poor").String())
}

func TestListSharesForResaleCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "owner", "0")
	f.fundedUser(t, "alice", "500")

	l := createListing(t, f, "owner", CreateListingInput{
		Title:       "Resale source",
		TotalValue:  dec("1000"),
		TotalShares: 100,
		MinShares:   5,
	})
	_, err := f.fractionalUC.PurchaseShares(ctx, "alice", l.ID, 20)
	require.NoError(t, err)

	// More than owned.
	_, err = f.fractionalUC.ListSharesForResale(ctx, "alice", l.ID, 21, dec("12"))
	assert.ErrorIs(t, err, xerrors.ErrExceedsOwnedBalance)

	_, err = f.fractionalUC.ListSharesForResale(ctx, "alice", l.ID, 15, dec("12"))
	require.NoError(t, err)

	// Shares already committed to an active listing cannot be listed again.
	_, err = f.fractionalUC.ListSharesForResale(ctx, "alice", l.ID, 10, dec("12"))
	assert.ErrorIs(t, err, xerrors.ErrExceedsOwnedBalance)

	_, err = f.fractionalUC.ListSharesForResale(ctx, "alice", l.ID, 5, dec("12"))
	require.NoError(t, err)
}

func TestPurchaseResaleMovesSharesAndMoney(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "owner", "0")
	f.fundedUser(t, "alice", "500")
	f.fundedUser(t, "bob", "500")

	l := createListing(t, f, "owner", CreateListingInput{
		Title:       "Secondary market",
		TotalValue:  dec("1000"),
		TotalShares: 100,
		MinShares:   5,
	})
	_, err := f.fractionalUC.PurchaseShares(ctx, "alice", l.ID, 20)
	require.NoError(t, err)

	rl, err := f.fractionalUC.ListSharesForResale(ctx, "alice", l.ID, 10, dec("15"))
	require.NoError(t, err)

	aliceBefore := f.balance(t, "alice")
	res, err := f.fractionalUC.PurchaseResaleShares(ctx, "bob", rl.ID)
	require.NoError(t, err)
	assert.Equal(t, "150", res.Cost.String())
	assert.Equal(t, int64(10), res.Ownership.SharesOwned)

	assert.Equal(t, aliceBefore.Add(dec("150")).String(), f.balance(t, "alice").String())
	assert.Equal(t, "350", f.balance(t, "bob").String())

	aliceOwn, err := f.fractional.GetOwnership(ctx, l.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10), aliceOwn.SharesOwned)

	// Listing is sold out; a second buyout fails.
	_, err = f.fractionalUC.PurchaseResaleShares(ctx, "bob", rl.ID)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestPurchaseResaleOwnListingRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "owner", "0")
	f.fundedUser(t, "alice", "500")

	l := createListing(t, f, "owner", CreateListingInput{
		Title:       "Wash trade",
		TotalValue:  dec("1000"),
		TotalShares: 100,
		MinShares:   5,
	})
	_, err := f.fractionalUC.PurchaseShares(ctx, "alice", l.ID, 10)
	require.NoError(t, err)
	rl, err := f.fractionalUC.ListSharesForResale(ctx, "alice", l.ID, 5, dec("12"))
	require.NoError(t, err)

	_, err = f.fractionalUC.PurchaseResaleShares(ctx, "alice", rl.ID)
	assert.ErrorIs(t, err, xerrors.ErrInvalidRequest)
}

func TestPurchaseSharesEmitsLedgerEventPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "owner", "0")
	f.fundedUser(t, "alice", "500")

	l := createListing(t, f, "owner", CreateListingInput{
		Title:       "Event source",
		TotalValue:  dec("1000"),
		TotalShares: 100,
		MinShares:   5,
	})
	f.producer.reset()

	_, err := f.fractionalUC.PurchaseShares(ctx, "alice", l.ID, 10)
	require.NoError(t, err)

	// Buyer debit and owner credit both reach the ledger stream.
	events := f.producer.events()
	require.Len(t, events, 2)
	assert.Equal(t, "-100", events[0].Amount.String())
	assert.Equal(t, "100", events[1].Amount.String())
}

func TestPurchaseResaleEmitsLedgerEventPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "owner", "0")
	f.fundedUser(t, "alice", "500")
	f.fundedUser(t, "bob", "500")

	l := createListing(t, f, "owner", CreateListingInput{
		Title:       "Secondary events",
		TotalValue:  dec("1000"),
		TotalShares: 100,
		MinShares:   5,
	})
	_, err := f.fractionalUC.PurchaseShares(ctx, "alice", l.ID, 20)
	require.NoError(t, err)
	rl, err := f.fractionalUC.ListSharesForResale(ctx, "alice", l.ID, 10, dec("12"))
	require.NoError(t, err)
	f.producer.reset()

	_, err = f.fractionalUC.PurchaseResaleShares(ctx, "bob", rl.ID)
	require.NoError(t, err)

	events := f.producer.events()
	require.Len(t, events, 2)
	assert.Equal(t, "-120", events[0].Amount.String())
	assert.Equal(t, "120", events[1].Amount.String())
}

func TestPurchaseSharesMissingOwnerWalletMovesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "owner", "0")
	buyer := f.fundedUser(t, "alice", "500")

	l := createListing(t, f, "owner", CreateListingInput{
		Title:       "Orphan owner",
		TotalValue:  dec("1000"),
		TotalShares: 100,
		MinShares:   5,
	})

	_, err := f.fractional.PurchaseShares(ctx, l.ID, "alice", buyer.ID, 9999, 10, "ref-1")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	// The failed purchase leaves no partial debit and no missing shares.
	assert.Equal(t, "500", f.balance(t, "alice").String())
	got, err := f.fractionalUC.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.AvailableShares)
}

func TestPurchaseResaleMissingSellerWalletMovesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "owner", "0")
	f.fundedUser(t, "alice", "500")
	buyer := f.fundedUser(t, "bob", "500")

	l := createListing(t, f, "owner", CreateListingInput{
		Title:       "Orphan reseller",
		TotalValue:  dec("1000"),
		TotalShares: 100,
		MinShares:   5,
	})
	_, err := f.fractionalUC.PurchaseShares(ctx, "alice", l.ID, 20)
	require.NoError(t, err)
	rl, err := f.fractionalUC.ListSharesForResale(ctx, "alice", l.ID, 10, dec("12"))
	require.NoError(t, err)

	_, err = f.fractional.PurchaseResale(ctx, rl.ID, "bob", buyer.ID, 9999, "ref-2")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	assert.Equal(t, "500", f.balance(t, "bob").String())
	aliceOwn, err := f.fractional.GetOwnership(ctx, l.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(20), aliceOwn.SharesOwned)
	got, err := f.fractional.GetResale(ctx, rl.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ResaleStatusActive, got.Status)
}
