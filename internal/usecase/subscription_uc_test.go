package usecase

import (
	"context"
	"testing"
	"time"

	"marketplace-core/internal/domain"
	"marketplace-core/pkg/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeChargesFirstPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "user-1", "20")

	s, err := f.subUC.Subscribe(ctx, "user-1", domain.TierPro, domain.CycleMonthly)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, s.Tier)
	assert.True(t, s.AutoRenew)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), s.ExpiresAt, time.Minute)

	assert.Equal(t, "10.01", f.balance(t, "user-1").String())

	_, err = f.subUC.Subscribe(ctx, "user-1", "platinum", domain.CycleMonthly)
	assert.ErrorIs(t, err, xerrors.ErrInvalidRequest)

	// Cannot afford yearly pro with the remainder.
	_, err = f.subUC.Subscribe(ctx, "user-1", domain.TierPro, domain.CycleYearly)
	assert.ErrorIs(t, err, xerrors.ErrInsufficientFunds)
}

func TestRenewExtendsExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "user-1", "50")

	s, err := f.subUC.Subscribe(ctx, "user-1", domain.TierLite, domain.CycleMonthly)
	require.NoError(t, err)
	firstExpiry := s.ExpiresAt

	renewed, err := f.subUC.Renew(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierLite, renewed.Tier)
	assert.True(t, renewed.ExpiresAt.After(firstExpiry))
	assert.WithinDuration(t, firstExpiry.Add(30*24*time.Hour), renewed.ExpiresAt, time.Minute)

	// Two charges of 4.99 against the 50 start.
	assert.Equal(t, "40.02", f.balance(t, "user-1").String())
}

func TestRenewInsufficientFundsDowngrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "user-1", "12")

	_, err := f.subUC.Subscribe(ctx, "user-1", domain.TierPro, domain.CycleMonthly)
	require.NoError(t, err)
	assert.Equal(t, "2.01", f.balance(t, "user-1").String())

	// The renewal cannot be covered: tier drops to free, auto-renew off,
	// and the remaining balance is untouched.
	down, err := f.subUC.Renew(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, down.Tier)
	assert.False(t, down.AutoRenew)
	assert.Equal(t, "2.01", f.balance(t, "user-1").String())

	notes := f.notifier.byType(domain.NotificationSubscriptionDowngraded)
	require.Len(t, notes, 1)
	assert.Equal(t, "user-1", notes[0].UserID)
}

func TestEffectiveTierHonorsExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "user-1", "50")

	tier, err := f.subUC.EffectiveTier(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, tier)

	_, err = f.subUC.Subscribe(ctx, "user-1", domain.TierPro, domain.CycleMonthly)
	require.NoError(t, err)

	tier, err = f.subUC.EffectiveTier(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, tier)

	// A lapsed subscription behaves as free even while the row says pro.
	lapsed := &domain.Subscription{Tier: domain.TierPro, ExpiresAt: time.Now().Add(-time.Hour)}
	assert.Equal(t, domain.TierFree, domain.EffectiveTier(lapsed, time.Now()))
}

func TestRenewDueSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "rich", "100")
	f.fundedUser(t, "broke", "6")

	richSub, err := f.subUC.Subscribe(ctx, "rich", domain.TierLite, domain.CycleMonthly)
	require.NoError(t, err)
	brokeSub, err := f.subUC.Subscribe(ctx, "broke", domain.TierLite, domain.CycleMonthly)
	require.NoError(t, err)

	// Nothing is due yet; the sweep is a no-op.
	require.NoError(t, f.subUC.RenewDue(ctx))
	s, err := f.subUC.GetSubscription(ctx, "rich")
	require.NoError(t, err)
	assert.Equal(t, richSub.ExpiresAt, s.ExpiresAt)

	// Force both past expiry, then sweep.
	f.expireSubscription(t, richSub.ID)
	f.expireSubscription(t, brokeSub.ID)
	require.NoError(t, f.subUC.RenewDue(ctx))

	s, err = f.subUC.GetSubscription(ctx, "rich")
	require.NoError(t, err)
	assert.Equal(t, domain.TierLite, s.Tier)
	assert.True(t, s.ExpiresAt.After(time.Now()))

	s, err = f.subUC.GetSubscription(ctx, "broke")
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, s.Tier)
	assert.False(t, s.AutoRenew)
	assert.Equal(t, "1.01", f.balance(t, "broke").String())
}

func TestSubscriptionChargesEmitLedgerEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "user-1", "50")
	f.producer.reset()

	s, err := f.subUC.Subscribe(ctx, "user-1", domain.TierLite, domain.CycleMonthly)
	require.NoError(t, err)
	events := f.producer.events()
	require.Len(t, events, 1)
	assert.Equal(t, "-4.99", events[0].Amount.String())

	f.expireSubscription(t, s.ID)
	_, err = f.subUC.Renew(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, f.producer.events(), 2)
}

func TestFailedRenewalEmitsNoLedgerEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "user-1", "4.99")

	s, err := f.subUC.Subscribe(ctx, "user-1", domain.TierLite, domain.CycleMonthly)
	require.NoError(t, err)
	f.expireSubscription(t, s.ID)
	f.producer.reset()

	// The wallet is empty: the renewal downgrades and never touches the
	// ledger, so no event reaches the stream.
	down, err := f.subUC.Renew(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, down.Tier)
	assert.Empty(t, f.producer.events())
}
