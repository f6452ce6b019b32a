package usecase

import (
	"context"
	"testing"

	"marketplace-core/internal/domain"
	"marketplace-core/pkg/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscrowHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "buyer", "500")
	f.fundedUser(t, "seller", "0")

	o, err := f.escrowUC.CreateOrder(ctx, "buyer", CreateOrderInput{SellerID: "seller", OrderTotal: dec("100")})
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusPending, o.Status)

	o, err = f.escrowUC.LockFunds(ctx, "buyer", o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusFundsLocked, o.Status)
	require.NotNil(t, o.LockedAt)
	assert.Equal(t, "400", f.balance(t, "buyer").String())

	o, err = f.escrowUC.MarkShipped(ctx, "seller", o.ID)
	require.NoError(t, err)
	require.NotNil(t, o.ShippedAt)

	o, err = f.escrowUC.MarkDelivered(ctx, "buyer", o.ID)
	require.NoError(t, err)
	require.NotNil(t, o.DeliveredAt)

	o, err = f.escrowUC.Release(ctx, "buyer", o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusReleased, o.Status)
	require.NotNil(t, o.ReleasedAt)

	// Seller receives the total minus the 2.5% platform fee.
	assert.Equal(t, "97.5", f.balance(t, "seller").String())
	assert.Equal(t, "400", f.balance(t, "buyer").String())
}

func TestEscrowForwardOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "buyer", "500")
	f.fundedUser(t, "seller", "0")

	o, err := f.escrowUC.CreateOrder(ctx, "buyer", CreateOrderInput{SellerID: "seller", OrderTotal: dec("100")})
	require.NoError(t, err)

	// No skipping: pending cannot go straight to shipped or delivered.
	_, err = f.escrowUC.MarkShipped(ctx, "seller", o.ID)
	assert.ErrorIs(t, err, xerrors.ErrInvalidTransition)
	_, err = f.escrowUC.MarkDelivered(ctx, "buyer", o.ID)
	assert.ErrorIs(t, err, xerrors.ErrInvalidTransition)
	_, err = f.escrowUC.Release(ctx, "buyer", o.ID)
	assert.ErrorIs(t, err, xerrors.ErrInvalidTransition)

	_, err = f.escrowUC.LockFunds(ctx, "buyer", o.ID)
	require.NoError(t, err)

	// No re-entry: locking twice fails and the buyer is charged once.
	_, err = f.escrowUC.LockFunds(ctx, "buyer", o.ID)
	assert.ErrorIs(t, err, xerrors.ErrInvalidTransition)
	assert.Equal(t, "400", f.balance(t, "buyer").String())
}

func TestEscrowActorChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "buyer", "500")
	f.fundedUser(t, "seller", "0")

	o, err := f.escrowUC.CreateOrder(ctx, "buyer", CreateOrderInput{SellerID: "seller", OrderTotal: dec("100")})
	require.NoError(t, err)

	// Only the buyer locks funds; only the seller marks shipped.
	_, err = f.escrowUC.LockFunds(ctx, "seller", o.ID)
	assert.ErrorIs(t, err, xerrors.ErrInvalidRequest)

	_, err = f.escrowUC.LockFunds(ctx, "buyer", o.ID)
	require.NoError(t, err)

	_, err = f.escrowUC.MarkShipped(ctx, "buyer", o.ID)
	assert.ErrorIs(t, err, xerrors.ErrInvalidRequest)

	// Outsiders cannot even see the order.
	_, err = f.escrowUC.GetOrder(ctx, "stranger", o.ID)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	_, err = f.escrowUC.CreateOrder(ctx, "buyer", CreateOrderInput{SellerID: "buyer", OrderTotal: dec("100")})
	assert.ErrorIs(t, err, xerrors.ErrInvalidRequest)
}

func TestEscrowLockFundsInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "buyer", "50")
	f.fundedUser(t, "seller", "0")

	o, err := f.escrowUC.CreateOrder(ctx, "buyer", CreateOrderInput{SellerID: "seller", OrderTotal: dec("100")})
	require.NoError(t, err)

	_, err = f.escrowUC.LockFunds(ctx, "buyer", o.ID)
	assert.ErrorIs(t, err, xerrors.ErrInsufficientFunds)

	// Neither the wallet nor the order moved.
	assert.Equal(t, "50", f.balance(t, "buyer").String())
	got, err := f.escrowUC.GetOrder(ctx, "buyer", o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusPending, got.Status)
	assert.Nil(t, got.LockedAt)
}

func TestEscrowDisputeAndRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "buyer", "500")
	f.fundedUser(t, "seller", "0")

	o, err := f.escrowUC.CreateOrder(ctx, "buyer", CreateOrderInput{SellerID: "seller", OrderTotal: dec("100")})
	require.NoError(t, err)
	_, err = f.escrowUC.LockFunds(ctx, "buyer", o.ID)
	require.NoError(t, err)
	_, err = f.escrowUC.MarkShipped(ctx, "seller", o.ID)
	require.NoError(t, err)

	// Dispute from mid-chain, then refund out of the dispute.
	o, err = f.escrowUC.Dispute(ctx, "buyer", o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusDisputed, o.Status)

	o, err = f.escrowUC.Refund(ctx, "buyer", o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusRefunded, o.Status)
	assert.Equal(t, "500", f.balance(t, "buyer").String())
	assert.True(t, f.balance(t, "seller").IsZero())

	// Refunded is terminal.
	_, err = f.escrowUC.Dispute(ctx, "buyer", o.ID)
	assert.ErrorIs(t, err, xerrors.ErrInvalidTransition)
	_, err = f.escrowUC.Refund(ctx, "buyer", o.ID)
	assert.ErrorIs(t, err, xerrors.ErrInvalidTransition)
}

func TestEscrowRefundBeforeLockReturnsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "buyer", "500")
	f.fundedUser(t, "seller", "0")

	o, err := f.escrowUC.CreateOrder(ctx, "buyer", CreateOrderInput{SellerID: "seller", OrderTotal: dec("100")})
	require.NoError(t, err)

	// Refund straight from pending: no funds were locked, none move.
	o, err = f.escrowUC.Refund(ctx, "buyer", o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusRefunded, o.Status)
	assert.Equal(t, "500", f.balance(t, "buyer").String())
}

func TestEscrowReleaseAfterRefundRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "buyer", "500")
	f.fundedUser(t, "seller", "0")

	o, err := f.escrowUC.CreateOrder(ctx, "buyer", CreateOrderInput{SellerID: "seller", OrderTotal: dec("100")})
	require.NoError(t, err)
	_, err = f.escrowUC.LockFunds(ctx, "buyer", o.ID)
	require.NoError(t, err)
	_, err = f.escrowUC.Refund(ctx, "buyer", o.ID)
	require.NoError(t, err)

	_, err = f.escrowUC.Release(ctx, "buyer", o.ID)
	assert.ErrorIs(t, err, xerrors.ErrInvalidTransition)
	assert.True(t, f.balance(t, "seller").IsZero())
}

func TestEscrowMoneyMovesEmitLedgerEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "buyer", "500")
	f.fundedUser(t, "seller", "0")

	o, err := f.escrowUC.CreateOrder(ctx, "buyer", CreateOrderInput{SellerID: "seller", OrderTotal: dec("100")})
	require.NoError(t, err)
	f.producer.reset()

	_, err = f.escrowUC.LockFunds(ctx, "buyer", o.ID)
	require.NoError(t, err)
	events := f.producer.events()
	require.Len(t, events, 1)
	assert.Equal(t, "-100", events[0].Amount.String())

	_, err = f.escrowUC.MarkShipped(ctx, "seller", o.ID)
	require.NoError(t, err)
	_, err = f.escrowUC.MarkDelivered(ctx, "buyer", o.ID)
	require.NoError(t, err)
	// Non-monetary transitions emit nothing.
	assert.Len(t, f.producer.events(), 1)

	_, err = f.escrowUC.Release(ctx, "buyer", o.ID)
	require.NoError(t, err)
	events = f.producer.events()
	require.Len(t, events, 2)
	assert.Equal(t, "97.5", events[1].Amount.String())
}

func TestEscrowRefundLedgerEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedUser(t, "buyer", "500")
	f.fundedUser(t, "seller", "0")

	// A refund from pending moved no money, so no event either.
	o, err := f.escrowUC.CreateOrder(ctx, "buyer", CreateOrderInput{SellerID: "seller", OrderTotal: dec("100")})
	require.NoError(t, err)
	f.producer.reset()
	_, err = f.escrowUC.Refund(ctx, "buyer", o.ID)
	require.NoError(t, err)
	assert.Empty(t, f.producer.events())

	// After locking, the refund credit reaches the stream.
	o, err = f.escrowUC.CreateOrder(ctx, "buyer", CreateOrderInput{SellerID: "seller", OrderTotal: dec("100")})
	require.NoError(t, err)
	_, err = f.escrowUC.LockFunds(ctx, "buyer", o.ID)
	require.NoError(t, err)
	f.producer.reset()
	_, err = f.escrowUC.Refund(ctx, "buyer", o.ID)
	require.NoError(t, err)
	events := f.producer.events()
	require.Len(t, events, 1)
	assert.Equal(t, "100", events[0].Amount.String())
}
