package usecase

import (
	"context"
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

type FractionalUsecase struct {
	fractional repository.FractionalRepository
	wallets    repository.WalletRepository
	notifier   Notifier
	redis      *redis.Client
	events     EventProducer
	ids        *id.Snowflake
	logger     *zap.Logger
}

func NewFractionalUsecase(
	fractional repository.FractionalRepository,
	wallets repository.WalletRepository,
	notifier Notifier,
	rdb *redis.Client,
	events EventProducer,
	ids *id.Snowflake,
	logger *zap.Logger,
) *FractionalUsecase {
	return &FractionalUsecase{
		fractional: fractional,
		wallets:    wallets,
		notifier:   notifier,
		redis:      rdb,
		events:     events,
		ids:        ids,
		logger:     logger,
	}
}

type CreateListingInput struct {
	Title                     string          `json:"title"`
	TotalValue                decimal.Decimal `json:"total_value"`
	TotalShares               int64           `json:"total_shares"`
	MinShares                 int64           `json:"min_shares"`
	DailyVerificationRequired bool            `json:"daily_verification_required"`
}

func (uc *FractionalUsecase) CreateListing(ctx context.Context, ownerID string, in CreateListingInput) (*domain.FractionalListing, error) {
	if err := requireActor(ownerID); err != nil {
		return nil, err
	}
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", xerrors.ErrInvalidRequest)
	}
	if !in.TotalValue.IsPositive() {
		return nil, fmt.Errorf("%w: total value must be positive", xerrors.ErrInvalidRequest)
	}
	if in.TotalShares <= 0 {
		return nil, fmt.Errorf("%w: total shares must be positive", xerrors.ErrInvalidRequest)
	}
	if in.MinShares < 1 || in.MinShares > in.TotalShares {
		return nil, fmt.Errorf("%w: min shares must be between 1 and total shares", xerrors.ErrInvalidRequest)
	}

	l := &domain.FractionalListing{
		OwnerID:                   ownerID,
		Title:                     in.Title,
		TotalValue:                in.TotalValue,
		TotalShares:               in.TotalShares,
		MinShares:                 in.MinShares,
		DailyVerificationRequired: in.DailyVerificationRequired,
	}
	if l.DailyVerificationRequired {
		due := time.Now().Add(24 * time.Hour)
		l.NextVerificationDue = &due
	}
	if err := uc.fractional.CreateListing(ctx, l); err != nil {
		return nil, err
	}
	uc.logger.Info("fractional listing created",
		zap.Int64("listing_id", l.ID),
		zap.String("owner_id", ownerID),
		zap.Int64("total_shares", l.TotalShares),
		zap.String("share_price", l.SharePrice.String()))
	return l, nil
}

func (uc *FractionalUsecase) GetListing(ctx context.Context, id int64) (*domain.FractionalListing, error) {
	return uc.fractional.GetListing(ctx, id)
}

func (uc *FractionalUsecase) ListHoldings(ctx context.Context, holderID string) ([]*domain.Ownership, error) {
	if err := requireActor(holderID); err != nil {
		return nil, err
	}
	return uc.fractional.ListHoldings(ctx, holderID)
}

// PurchaseShares buys quantity shares from the listing's unsold pool. The
// buyer pays quantity * share_price; the listing owner receives it.
func (uc *FractionalUsecase) PurchaseShares(ctx context.Context, buyerID string, listingID, quantity int64) (*repository.PurchaseResult, error) {
	if err := requireActor(buyerID); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", xerrors.ErrInvalidRequest)
	}

	l, err := uc.fractional.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.OwnerID == buyerID {
		return nil, fmt.Errorf("%w: owner cannot buy own shares", xerrors.ErrInvalidRequest)
	}

	buyerWallet, err := uc.wallets.GetByUserID(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	ownerWallet, err := uc.wallets.GetByUserID(ctx, l.OwnerID)
	if err != nil {
		return nil, err
	}

	res, err := uc.fractional.PurchaseShares(ctx, listingID, buyerID, buyerWallet.ID, ownerWallet.ID, quantity, uc.ids.Generate())
	if err != nil {
		return nil, err
	}

	invalidateWalletCache(ctx, uc.redis, uc.logger, buyerID, l.OwnerID)
	publishTransactions(ctx, uc.events, res.Transactions...)
	uc.logger.Info("shares purchased",
		zap.Int64("listing_id", listingID),
		zap.String("buyer_id", buyerID),
		zap.Int64("quantity", quantity),
		zap.String("cost", res.Cost.String()))
	uc.notifier.Notify(ctx, newNotification(buyerID, domain.NotificationSharesPurchased,
		"Shares purchased",
		fmt.Sprintf("You bought %d shares of %q for %s.", quantity, l.Title, res.Cost.StringFixed(2)),
		map[string]string{"listing_id": fmt.Sprintf("%d", listingID)}))
	return res, nil
}

// ListSharesForResale offers part of the caller's position for secondary sale.
// Shares already committed to active resale listings cannot be listed again.
func (uc *FractionalUsecase) ListSharesForResale(ctx context.Context, sellerID string, listingID, quantity int64, pricePerShare decimal.Decimal) (*domain.ResaleListing, error) {
	if err := requireActor(sellerID); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", xerrors.ErrInvalidRequest)
	}
	if !pricePerShare.IsPositive() {
		return nil, fmt.Errorf("%w: price per share must be positive", xerrors.ErrInvalidRequest)
	}

	rl, err := uc.fractional.ListForResale(ctx, listingID, sellerID, quantity, pricePerShare)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("shares listed for resale",
		zap.Int64("resale_id", rl.ID),
		zap.Int64("listing_id", listingID),
		zap.String("seller_id", sellerID),
		zap.Int64("quantity", quantity))
	return rl, nil
}

// PurchaseResaleShares buys out an active resale listing in full.
func (uc *FractionalUsecase) PurchaseResaleShares(ctx context.Context, buyerID string, resaleID int64) (*repository.PurchaseResult, error) {
	if err := requireActor(buyerID); err != nil {
		return nil, err
	}

	rl, err := uc.fractional.GetResale(ctx, resaleID)
	if err != nil {
		return nil, err
	}
	// A holder buying back their own resale listing would be a wash trade.
	if rl.SellerID == buyerID {
		return nil, fmt.Errorf("%w: cannot buy own resale listing", xerrors.ErrInvalidRequest)
	}

	buyerWallet, err := uc.wallets.GetByUserID(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	sellerWallet, err := uc.wallets.GetByUserID(ctx, rl.SellerID)
	if err != nil {
		return nil, err
	}

	res, err := uc.fractional.PurchaseResale(ctx, resaleID, buyerID, buyerWallet.ID, sellerWallet.ID, uc.ids.Generate())
	if err != nil {
		return nil, err
	}

	invalidateWalletCache(ctx, uc.redis, uc.logger, buyerID, rl.SellerID)
	publishTransactions(ctx, uc.events, res.Transactions...)
	uc.logger.Info("resale purchased",
		zap.Int64("resale_id", resaleID),
		zap.String("buyer_id", buyerID),
		zap.String("cost", res.Cost.String()))
	uc.notifier.Notify(ctx, newNotification(rl.SellerID, domain.NotificationSharesPurchased,
		"Resale completed",
		fmt.Sprintf("Your resale listing sold for %s.", res.Cost.StringFixed(2)),
		map[string]string{"resale_id": fmt.Sprintf("%d", resaleID)}))
	return res, nil
}
