package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"marketplace-core/config"
	"marketplace-core/internal/domain"
	"marketplace-core/internal/repository"
	"marketplace-core/pkg/id"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordNotifier captures notifications for assertions.
type recordNotifier struct {
	mu   sync.Mutex
	sent []*domain.Notification
}

func (n *recordNotifier) Notify(_ context.Context, note *domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
}

func (n *recordNotifier) byType(typ string) []*domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*domain.Notification
	for _, note := range n.sent {
		if note.Type == typ {
			out = append(out, note)
		}
	}
	return out
}

// recordProducer captures published ledger events.
type recordProducer struct {
	mu        sync.Mutex
	published []*domain.Transaction
}

func (p *recordProducer) PublishTransaction(_ context.Context, t *domain.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, t)
}

func (p *recordProducer) events() []*domain.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*domain.Transaction(nil), p.published...)
}

// reset discards events emitted during setup (seed top-ups) so tests can
// assert on the operation under test alone.
func (p *recordProducer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = nil
}

// fixture wires every usecase against the in-memory repositories.
type fixture struct {
	wallets    *repository.MemoryWalletRepo
	auctions   *repository.MemoryAuctionRepo
	escrows    *repository.MemoryEscrowRepo
	fractional *repository.MemoryFractionalRepo
	subs       *repository.MemorySubscriptionRepo

	notifier *recordNotifier
	producer *recordProducer

	walletUC     *WalletUsecase
	auctionUC    *AuctionUsecase
	escrowUC     *EscrowUsecase
	fractionalUC *FractionalUsecase
	subUC        *SubscriptionUsecase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ids, err := id.NewSnowflake(1)
	require.NoError(t, err)
	logger := zap.NewNop()

	f := &fixture{
		wallets:  repository.NewMemoryWalletRepo(),
		auctions: repository.NewMemoryAuctionRepo(),
		notifier: &recordNotifier{},
		producer: &recordProducer{},
	}
	f.escrows = repository.NewMemoryEscrowRepo(f.wallets)
	f.fractional = repository.NewMemoryFractionalRepo(f.wallets)
	f.subs = repository.NewMemorySubscriptionRepo(f.wallets)

	feePct := decimal.RequireFromString("2.5")
	f.walletUC = NewWalletUsecase(f.wallets, nil, f.producer, ids, logger)
	f.auctionUC = NewAuctionUsecase(f.auctions, f.notifier, logger)
	f.escrowUC = NewEscrowUsecase(f.escrows, f.wallets, f.notifier, nil, f.producer, ids, feePct, logger)
	f.fractionalUC = NewFractionalUsecase(f.fractional, f.wallets, f.notifier, nil, f.producer, ids, logger)
	f.subUC = NewSubscriptionUsecase(f.subs, f.wallets, f.notifier, nil, f.producer, ids, config.DefaultPricingTable(), logger)
	return f
}

// fundedUser creates a wallet and seeds it with the given balance.
func (f *fixture) fundedUser(t *testing.T, userID, balance string) *domain.Wallet {
	t.Helper()
	ctx := context.Background()

	w, err := f.walletUC.CreateWallet(ctx, userID)
	require.NoError(t, err)
	amount := decimal.RequireFromString(balance)
	if amount.IsPositive() {
		_, err = f.walletUC.TopUp(ctx, userID, amount)
		require.NoError(t, err)
	}
	w, err = f.walletUC.GetWallet(ctx, userID)
	require.NoError(t, err)
	return w
}

func (f *fixture) expireSubscription(t *testing.T, subID int64) {
	t.Helper()
	f.subs.SetExpiry(subID, time.Now().Add(-time.Minute))
}

func (f *fixture) balance(t *testing.T, userID string) decimal.Decimal {
	t.Helper()
	w, err := f.walletUC.GetWallet(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance
}
