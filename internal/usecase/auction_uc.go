package usecase

import (
	"context"
	"fmt"
	"time"

	"marketplace-core/internal/domain"
	"marketplace-core/internal/repository"
	"marketplace-core/pkg/xerrors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AuctionUsecase struct {
	auctions repository.AuctionRepository
	notifier Notifier
	logger   *zap.Logger
}

func NewAuctionUsecase(auctions repository.AuctionRepository, notifier Notifier, logger *zap.Logger) *AuctionUsecase {
	return &AuctionUsecase{auctions: auctions, notifier: notifier, logger: logger}
}

type CreateAuctionInput struct {
	Title         string           `json:"title"`
	StartingPrice decimal.Decimal  `json:"starting_price"`
	BidIncrement  decimal.Decimal  `json:"bid_increment"`
	ReservePrice  *decimal.Decimal `json:"reserve_price,omitempty"`
	BuyNowPrice   *decimal.Decimal `json:"buy_now_price,omitempty"`
	Duration      time.Duration    `json:"duration"`
}

func (uc *AuctionUsecase) CreateAuction(ctx context.Context, sellerID string, in CreateAuctionInput) (*domain.Auction, error) {
	if err := requireActor(sellerID); err != nil {
		return nil, err
	}
	if in.Duration <= 0 {
		return nil, xerrors.ErrInvalidDuration
	}
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", xerrors.ErrInvalidRequest)
	}
	if !in.StartingPrice.IsPositive() {
		return nil, fmt.Errorf("%w: starting price must be positive", xerrors.ErrInvalidRequest)
	}
	if !in.BidIncrement.IsPositive() {
		return nil, fmt.Errorf("%w: bid increment must be positive", xerrors.ErrInvalidRequest)
	}
	if in.BuyNowPrice != nil && in.BuyNowPrice.LessThan(in.StartingPrice) {
		return nil, fmt.Errorf("%w: buy now price below starting price", xerrors.ErrInvalidRequest)
	}

	now := time.Now()
	a := &domain.Auction{
		SellerID:      sellerID,
		Title:         in.Title,
		StartingPrice: in.StartingPrice,
		BidIncrement:  in.BidIncrement,
		ReservePrice:  in.ReservePrice,
		BuyNowPrice:   in.BuyNowPrice,
		Status:        domain.AuctionStatusActive,
		StartsAt:      now,
		EndsAt:        now.Add(in.Duration),
	}
	if err := uc.auctions.Create(ctx, a); err != nil {
		return nil, err
	}
	uc.logger.Info("auction created",
		zap.Int64("auction_id", a.ID),
		zap.String("seller_id", sellerID),
		zap.Time("ends_at", a.EndsAt))
	return a, nil
}

func (uc *AuctionUsecase) GetAuction(ctx context.Context, id int64) (*domain.Auction, error) {
	return uc.auctions.GetByID(ctx, id)
}

func (uc *AuctionUsecase) ListBids(ctx context.Context, auctionID int64) ([]*domain.Bid, error) {
	if _, err := uc.auctions.GetByID(ctx, auctionID); err != nil {
		return nil, err
	}
	return uc.auctions.ListBids(ctx, auctionID)
}

func (uc *AuctionUsecase) PlaceBid(ctx context.Context, auctionID int64, bidderID string, amount decimal.Decimal, maxBid *decimal.Decimal) (*domain.Bid, error) {
	if err := requireActor(bidderID); err != nil {
		return nil, err
	}

	res, err := uc.auctions.PlaceBid(ctx, auctionID, bidderID, amount, maxBid, time.Now())
	if err != nil {
		return nil, err
	}

	uc.logger.Info("bid placed",
		zap.Int64("auction_id", auctionID),
		zap.String("bidder_id", bidderID),
		zap.String("amount", amount.String()),
		zap.Int64("bid_count", res.Auction.BidCount))

	data := map[string]string{
		"auction_id": fmt.Sprintf("%d", auctionID),
		"amount":     amount.String(),
	}
	uc.notifier.Notify(ctx, newNotification(bidderID, domain.NotificationBidAccepted,
		"Bid accepted",
		fmt.Sprintf("Your bid of %s on %q is now the highest.", amount.StringFixed(2), res.Auction.Title),
		data))
	if res.OutbidUserID != "" {
		uc.notifier.Notify(ctx, newNotification(res.OutbidUserID, domain.NotificationBidOutbid,
			"You have been outbid",
			fmt.Sprintf("Someone bid %s on %q.", amount.StringFixed(2), res.Auction.Title),
			data))
	}
	return res.Bid, nil
}

func (uc *AuctionUsecase) BuyNow(ctx context.Context, auctionID int64, buyerID string) (*domain.Auction, error) {
	if err := requireActor(buyerID); err != nil {
		return nil, err
	}

	a, err := uc.auctions.BuyNow(ctx, auctionID, buyerID, time.Now())
	if err != nil {
		return nil, err
	}

	uc.logger.Info("auction bought out",
		zap.Int64("auction_id", auctionID),
		zap.String("buyer_id", buyerID),
		zap.String("price", a.FinalPrice.String()))

	data := map[string]string{
		"auction_id": fmt.Sprintf("%d", auctionID),
		"price":      a.FinalPrice.String(),
	}
	uc.notifier.Notify(ctx, newNotification(a.SellerID, domain.NotificationAuctionSold,
		"Auction sold",
		fmt.Sprintf("%q sold at the buy-now price of %s.", a.Title, a.FinalPrice.StringFixed(2)),
		data))
	return a, nil
}

// CloseAuction settles an auction whose end time has passed. Reserve met means
// the highest bidder wins; otherwise the auction ends without a sale.
func (uc *AuctionUsecase) CloseAuction(ctx context.Context, auctionID int64) (*domain.Auction, error) {
	a, err := uc.auctions.Close(ctx, auctionID, time.Now())
	if err != nil {
		return nil, err
	}

	uc.logger.Info("auction closed",
		zap.Int64("auction_id", auctionID),
		zap.String("status", string(a.Status)))

	if a.Status == domain.AuctionStatusSold && a.WinnerID != nil {
		data := map[string]string{
			"auction_id": fmt.Sprintf("%d", auctionID),
			"price":      a.FinalPrice.String(),
		}
		uc.notifier.Notify(ctx, newNotification(a.SellerID, domain.NotificationAuctionSold,
			"Auction sold",
			fmt.Sprintf("%q sold for %s.", a.Title, a.FinalPrice.StringFixed(2)),
			data))
		uc.notifier.Notify(ctx, newNotification(*a.WinnerID, domain.NotificationAuctionSold,
			"You won the auction",
			fmt.Sprintf("You won %q for %s.", a.Title, a.FinalPrice.StringFixed(2)),
			data))
	}
	return a, nil
}
