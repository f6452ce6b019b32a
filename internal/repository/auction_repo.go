package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-core/internal/domain"
	"marketplace-core/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PlaceBidResult carries everything the caller needs after an accepted bid:
// the new winning bid, the updated auction, and who (if anyone) was outbid.
type PlaceBidResult struct {
	Bid          *domain.Bid
	Auction      *domain.Auction
	OutbidUserID string
}

type AuctionRepository interface {
	Create(ctx context.Context, a *domain.Auction) error
	GetByID(ctx context.Context, id int64) (*domain.Auction, error)

	// PlaceBid validates and applies a bid in one transaction: insert the new
	// bid with is_winning=true, flip every other bid on the auction to
	// is_winning=false, and update current_bid / highest_bidder / bid_count.
	PlaceBid(ctx context.Context, auctionID int64, bidderID string, amount decimal.Decimal, maxBid *decimal.Decimal, now time.Time) (*PlaceBidResult, error)

	// BuyNow short-circuits an active auction at the buy-now price.
	BuyNow(ctx context.Context, auctionID int64, buyerID string, now time.Time) (*domain.Auction, error)

	// Close settles an auction whose end time has passed: reserve met -> sold,
	// otherwise ended.
	Close(ctx context.Context, auctionID int64, now time.Time) (*domain.Auction, error)

	ListBids(ctx context.Context, auctionID int64) ([]*domain.Bid, error)
}

type auctionRepo struct {
	db *pgxpool.Pool
}

func NewAuctionRepo(db *pgxpool.Pool) AuctionRepository {
	return &auctionRepo{db: db}
}

func (r *auctionRepo) Create(ctx context.Context, a *domain.Auction) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO auctions
			(seller_id, title, starting_price, bid_increment, reserve_price,
			 buy_now_price, status, starts_at, ends_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())
		RETURNING id, created_at, updated_at
	`, a.SellerID, a.Title, a.StartingPrice.String(), a.BidIncrement.String(),
		decimalPtrString(a.ReservePrice), decimalPtrString(a.BuyNowPrice),
		a.Status, a.StartsAt, a.EndsAt).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create auction: %w", err)
	}
	return nil
}

const auctionColumns = `
	id, seller_id, title, starting_price, bid_increment, current_bid,
	highest_bidder_id, bid_count, reserve_price, buy_now_price, final_price,
	winner_id, status, starts_at, ends_at, created_at, updated_at`

func (r *auctionRepo) GetByID(ctx context.Context, id int64) (*domain.Auction, error) {
	a, err := scanAuction(r.db.QueryRow(ctx, `SELECT`+auctionColumns+` FROM auctions WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("get auction: %w", err)
	}
	return a, nil
}

func (r *auctionRepo) lockAuction(ctx context.Context, tx pgx.Tx, id int64) (*domain.Auction, error) {
	a, err := scanAuction(tx.QueryRow(ctx, `SELECT`+auctionColumns+` FROM auctions WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("lock auction: %w", err)
	}
	return a, nil
}

func (r *auctionRepo) PlaceBid(ctx context.Context, auctionID int64, bidderID string, amount decimal.Decimal, maxBid *decimal.Decimal, now time.Time) (*PlaceBidResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin place bid: %w", errors.Join(xerrors.ErrTransient, err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := r.lockAuction(ctx, tx, auctionID)
	if err != nil {
		return nil, err
	}
	if err := a.ValidateBid(bidderID, amount, now); err != nil {
		return nil, err
	}

	outbid := ""
	if a.HighestBidderID != nil && *a.HighestBidderID != bidderID {
		outbid = *a.HighestBidderID
	}

	// Previous winner loses the flag in the same transaction as the insert:
	// never a window with two winning bids, nor zero once one exists.
	if _, err := tx.Exec(ctx, `
		UPDATE bids SET is_winning=false WHERE auction_id=$1 AND is_winning=true
	`, auctionID); err != nil {
		return nil, fmt.Errorf("clear winning bids: %w", err)
	}

	bid := &domain.Bid{
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		MaxBid:    maxBid,
		IsWinning: true,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO bids (auction_id, bidder_id, amount, max_bid, is_winning, created_at)
		VALUES ($1,$2,$3,$4,true,now())
		RETURNING id, created_at
	`, auctionID, bidderID, amount.String(), decimalPtrString(maxBid)).Scan(&bid.ID, &bid.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert bid: %w", err)
	}

	err = tx.QueryRow(ctx, `
		UPDATE auctions
		SET current_bid=$2, highest_bidder_id=$3, bid_count=bid_count+1, updated_at=now()
		WHERE id=$1
		RETURNING bid_count, updated_at
	`, auctionID, amount.String(), bidderID).Scan(&a.BidCount, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update auction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit place bid: %w", errors.Join(xerrors.ErrTransient, err))
	}

	a.CurrentBid = &amount
	a.HighestBidderID = &bidderID
	return &PlaceBidResult{Bid: bid, Auction: a, OutbidUserID: outbid}, nil
}

func (r *auctionRepo) BuyNow(ctx context.Context, auctionID int64, buyerID string, now time.Time) (*domain.Auction, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin buy now: %w", errors.Join(xerrors.ErrTransient, err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := r.lockAuction(ctx, tx, auctionID)
	if err != nil {
		return nil, err
	}
	if a.Status != domain.AuctionStatusActive || now.After(a.EndsAt) {
		return nil, xerrors.ErrAuctionNotActive
	}
	if a.BuyNowPrice == nil {
		return nil, xerrors.ErrBuyNowUnavailable
	}

	if _, err := tx.Exec(ctx, `
		UPDATE auctions
		SET status=$2, winner_id=$3, final_price=$4, updated_at=now()
		WHERE id=$1
	`, auctionID, domain.AuctionStatusSold, buyerID, a.BuyNowPrice.String()); err != nil {
		return nil, fmt.Errorf("mark sold: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit buy now: %w", errors.Join(xerrors.ErrTransient, err))
	}

	a.Status = domain.AuctionStatusSold
	a.WinnerID = &buyerID
	a.FinalPrice = a.BuyNowPrice
	return a, nil
}

func (r *auctionRepo) Close(ctx context.Context, auctionID int64, now time.Time) (*domain.Auction, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin close: %w", errors.Join(xerrors.ErrTransient, err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := r.lockAuction(ctx, tx, auctionID)
	if err != nil {
		return nil, err
	}
	if a.Status != domain.AuctionStatusActive {
		return nil, xerrors.ErrAuctionNotActive
	}
	if now.Before(a.EndsAt) {
		return nil, fmt.Errorf("%w: auction has not ended yet", xerrors.ErrInvalidRequest)
	}

	if a.ReserveMet() {
		a.Status = domain.AuctionStatusSold
		a.WinnerID = a.HighestBidderID
		a.FinalPrice = a.CurrentBid
	} else {
		a.Status = domain.AuctionStatusEnded
	}

	if _, err := tx.Exec(ctx, `
		UPDATE auctions
		SET status=$2, winner_id=$3, final_price=$4, updated_at=now()
		WHERE id=$1
	`, auctionID, a.Status, a.WinnerID, decimalPtrString(a.FinalPrice)); err != nil {
		return nil, fmt.Errorf("close auction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit close: %w", errors.Join(xerrors.ErrTransient, err))
	}
	return a, nil
}

func (r *auctionRepo) ListBids(ctx context.Context, auctionID int64) ([]*domain.Bid, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, auction_id, bidder_id, amount, max_bid, is_winning, created_at
		FROM bids
		WHERE auction_id=$1
		ORDER BY created_at DESC
	`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer rows.Close()

	var out []*domain.Bid
	for rows.Next() {
		var b domain.Bid
		var amount string
		var maxBid *string
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &amount, &maxBid, &b.IsWinning, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Amount, _ = decimal.NewFromString(amount)
		b.MaxBid = decimalFromPtr(maxBid)
		out = append(out, &b)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	var a domain.Auction
	var starting, increment string
	var current, reserve, buyNow, final *string
	err := row.Scan(
		&a.ID, &a.SellerID, &a.Title, &starting, &increment, &current,
		&a.HighestBidderID, &a.BidCount, &reserve, &buyNow, &final,
		&a.WinnerID, &a.Status, &a.StartsAt, &a.EndsAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.StartingPrice, _ = decimal.NewFromString(starting)
	a.BidIncrement, _ = decimal.NewFromString(increment)
	a.CurrentBid = decimalFromPtr(current)
	a.ReservePrice = decimalFromPtr(reserve)
	a.BuyNowPrice = decimalFromPtr(buyNow)
	a.FinalPrice = decimalFromPtr(final)
	return &a, nil
}

func decimalPtrString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func decimalFromPtr(s *string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil
	}
	return &d
}
