package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace-core/internal/domain"
	"marketplace-core/internal/repository"
	"marketplace-core/pkg/id"
	"marketplace-core/pkg/xerrors"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const walletCacheTTL = 30 * time.Second

type WalletUsecase struct {
	wallets repository.WalletRepository
	redis   *redis.Client
	events  EventProducer
	ids     *id.Snowflake
	logger  *zap.Logger
}

func NewWalletUsecase(wallets repository.WalletRepository, rdb *redis.Client, events EventProducer, ids *id.Snowflake, logger *zap.Logger) *WalletUsecase {
	return &WalletUsecase{wallets: wallets, redis: rdb, events: events, ids: ids, logger: logger}
}

func (uc *WalletUsecase) CreateWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	w, err := uc.wallets.Create(ctx, userID)
	if err != nil {
		return nil, err
	}
	uc.cacheWallet(ctx, w)
	return w, nil
}

func (uc *WalletUsecase) GetWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	if w := uc.cachedWallet(ctx, userID); w != nil {
		return w, nil
	}
	w, err := uc.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	uc.cacheWallet(ctx, w)
	return w, nil
}

// TopUp credits the caller's wallet. Funding source validation (card, bank)
// happens upstream; by the time this runs the money is considered collected.
func (uc *WalletUsecase) TopUp(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Transaction, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: top-up amount must be positive", xerrors.ErrInvalidRequest)
	}

	w, err := uc.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	t, err := uc.wallets.Credit(ctx, w.ID, amount, "wallet top-up", uc.ids.Generate())
	if err != nil {
		return nil, err
	}

	uc.invalidateWallet(ctx, userID)
	uc.events.PublishTransaction(ctx, t)
	uc.logger.Info("wallet topped up",
		zap.String("user_id", userID),
		zap.Int64("wallet_id", w.ID),
		zap.String("amount", amount.String()))
	return t, nil
}

func (uc *WalletUsecase) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]*domain.Transaction, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	w, err := uc.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return uc.wallets.ListTransactions(ctx, w.ID, limit, offset)
}

func walletCacheKey(userID string) string {
	return "wallet:user:" + userID
}

func (uc *WalletUsecase) cachedWallet(ctx context.Context, userID string) *domain.Wallet {
	if uc.redis == nil {
		return nil
	}
	raw, err := uc.redis.Get(ctx, walletCacheKey(userID)).Result()
	if err != nil {
		return nil
	}
	var w domain.Wallet
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil
	}
	return &w
}

func (uc *WalletUsecase) cacheWallet(ctx context.Context, w *domain.Wallet) {
	if uc.redis == nil {
		return
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return
	}
	if err := uc.redis.Set(ctx, walletCacheKey(w.UserID), raw, walletCacheTTL).Err(); err != nil {
		uc.logger.Warn("wallet cache set failed", zap.Error(err))
	}
}

func (uc *WalletUsecase) invalidateWallet(ctx context.Context, userID string) {
	invalidateWalletCache(ctx, uc.redis, uc.logger, userID)
}

// invalidateWalletCache drops cached balances after any operation that moved
// money. Shared with the escrow, fractional and subscription usecases, which
// debit and credit wallets of their own accord.
func invalidateWalletCache(ctx context.Context, rdb *redis.Client, logger *zap.Logger, userIDs ...string) {
	if rdb == nil {
		return
	}
	for _, userID := range userIDs {
		if userID == "" {
			continue
		}
		if err := rdb.Del(ctx, walletCacheKey(userID)).Err(); err != nil {
			logger.Warn("wallet cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}
