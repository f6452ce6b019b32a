package repository

import (
	"context"
	"errors"
	"fmt"

	"marketplace-core/internal/domain"
	"marketplace-core/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PurchaseResult reports a completed share purchase. Transactions holds the
// ledger entries the purchase committed (buyer debit, seller credit) so the
// caller can forward them to the event stream.
type PurchaseResult struct {
	Ownership    *domain.Ownership
	Cost         decimal.Decimal
	Transactions []*domain.Transaction
}

type FractionalRepository interface {
	CreateListing(ctx context.Context, l *domain.FractionalListing) error
	GetListing(ctx context.Context, id int64) (*domain.FractionalListing, error)
	GetOwnership(ctx context.Context, listingID int64, holderID string) (*domain.Ownership, error)
	ListHoldings(ctx context.Context, holderID string) ([]*domain.Ownership, error)
	GetResale(ctx context.Context, resaleID int64) (*domain.ResaleListing, error)

	// PurchaseShares applies the whole primary purchase in one transaction:
	// conditional decrement of available_shares, buyer debit, owner credit,
	// ownership upsert.
	PurchaseShares(ctx context.Context, listingID int64, buyerID string, buyerWalletID, ownerWalletID, quantity int64, reference string) (*PurchaseResult, error)

	// ListForResale inserts an active resale listing after checking the
	// seller's unlisted balance under lock. No shares or funds move yet.
	ListForResale(ctx context.Context, listingID int64, sellerID string, quantity int64, pricePerShare decimal.Decimal) (*domain.ResaleListing, error)

	// PurchaseResale buys out an active resale listing in one transaction:
	// buyer debit, reseller credit, shares moved between holders, listing
	// marked sold.
	PurchaseResale(ctx context.Context, resaleID int64, buyerID string, buyerWalletID, sellerWalletID int64, reference string) (*PurchaseResult, error)
}

type fractionalRepo struct {
	db      *pgxpool.Pool
	wallets WalletRepository
}

func NewFractionalRepo(db *pgxpool.Pool, wallets WalletRepository) FractionalRepository {
	return &fractionalRepo{db: db, wallets: wallets}
}

func (r *fractionalRepo) CreateListing(ctx context.Context, l *domain.FractionalListing) error {
	l.AvailableShares = l.TotalShares
	l.SharePrice = domain.SharePriceFor(l.TotalValue, l.TotalShares)
	err := r.db.QueryRow(ctx, `
		INSERT INTO fractional_listings
			(owner_id, title, total_value, total_shares, available_shares,
			 share_price, min_shares, daily_verification_required,
			 next_verification_due, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())
		RETURNING id, created_at, updated_at
	`, l.OwnerID, l.Title, l.TotalValue.String(), l.TotalShares, l.AvailableShares,
		l.SharePrice.String(), l.MinShares, l.DailyVerificationRequired,
		l.NextVerificationDue).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create fractional listing: %w", err)
	}
	return nil
}

const listingColumns = `
	id, owner_id, title, total_value, total_shares, available_shares,
	share_price, min_shares, daily_verification_required,
	next_verification_due, created_at, updated_at`

func (r *fractionalRepo) GetListing(ctx context.Context, id int64) (*domain.FractionalListing, error) {
	l, err := scanListing(r.db.QueryRow(ctx, `SELECT`+listingColumns+` FROM fractional_listings WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("get fractional listing: %w", err)
	}
	return l, nil
}

func (r *fractionalRepo) GetOwnership(ctx context.Context, listingID int64, holderID string) (*domain.Ownership, error) {
	var o domain.Ownership
	err := r.db.QueryRow(ctx, `
		SELECT id, listing_id, holder_id, shares_owned, created_at, updated_at
		FROM fractional_ownerships
		WHERE listing_id=$1 AND holder_id=$2
	`, listingID, holderID).Scan(&o.ID, &o.ListingID, &o.HolderID, &o.SharesOwned, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("get ownership: %w", err)
	}
	return &o, nil
}

func (r *fractionalRepo) ListHoldings(ctx context.Context, holderID string) ([]*domain.Ownership, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, listing_id, holder_id, shares_owned, created_at, updated_at
		FROM fractional_ownerships
		WHERE holder_id=$1 AND shares_owned > 0
		ORDER BY updated_at DESC
	`, holderID)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	defer rows.Close()

	var out []*domain.Ownership
	for rows.Next() {
		var o domain.Ownership
		if err := rows.Scan(&o.ID, &o.ListingID, &o.HolderID, &o.SharesOwned, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (r *fractionalRepo) GetResale(ctx context.Context, resaleID int64) (*domain.ResaleListing, error) {
	var rl domain.ResaleListing
	var price string
	err := r.db.QueryRow(ctx, `
		SELECT id, listing_id, seller_id, quantity, price_per_share, status, created_at, updated_at
		FROM share_resale_listings
		WHERE id=$1
	`, resaleID).Scan(&rl.ID, &rl.ListingID, &rl.SellerID, &rl.Quantity, &price, &rl.Status, &rl.CreatedAt, &rl.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("get resale listing: %w", err)
	}
	rl.PricePerShare, _ = decimal.NewFromString(price)
	return &rl, nil
}

func (r *fractionalRepo) PurchaseShares(ctx context.Context, listingID int64, buyerID string, buyerWalletID, ownerWalletID, quantity int64, reference string) (*PurchaseResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin purchase: %w", errors.Join(xerrors.ErrTransient, err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	l, err := scanListing(tx.QueryRow(ctx, `SELECT`+listingColumns+` FROM fractional_listings WHERE id=$1 FOR UPDATE`, listingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("lock listing: %w", err)
	}

	if quantity > l.AvailableShares {
		return nil, xerrors.ErrInsufficientShares
	}
	if quantity < l.MinShares {
		// Top-ups below the minimum are allowed once the buyer already holds
		// at least min_shares in this listing.
		var held int64
		err := tx.QueryRow(ctx, `
			SELECT shares_owned FROM fractional_ownerships
			WHERE listing_id=$1 AND holder_id=$2
		`, listingID, buyerID).Scan(&held)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("check holding: %w", err)
		}
		if held < l.MinShares {
			return nil, xerrors.ErrBelowMinimum
		}
	}

	// Conditional even though the row is locked: the decrement can never
	// oversell regardless of how this transaction is reached.
	ct, err := tx.Exec(ctx, `
		UPDATE fractional_listings
		SET available_shares = available_shares - $2, updated_at = now()
		WHERE id = $1 AND available_shares >= $2
	`, listingID, quantity)
	if err != nil {
		return nil, fmt.Errorf("decrement shares: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, xerrors.ErrInsufficientShares
	}

	cost := l.SharePrice.Mul(decimal.NewFromInt(quantity))
	desc := fmt.Sprintf("purchase of %d shares in listing #%d", quantity, listingID)
	debit, err := r.wallets.DebitTx(ctx, tx, buyerWalletID, cost, desc, reference)
	if err != nil {
		return nil, err
	}
	proceeds := fmt.Sprintf("sale of %d shares in listing #%d", quantity, listingID)
	credit, err := r.wallets.CreditTx(ctx, tx, ownerWalletID, cost, proceeds, reference)
	if err != nil {
		return nil, err
	}

	own, err := r.upsertOwnership(ctx, tx, listingID, buyerID, quantity)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit purchase: %w", errors.Join(xerrors.ErrTransient, err))
	}
	return &PurchaseResult{Ownership: own, Cost: cost, Transactions: []*domain.Transaction{debit, credit}}, nil
}

func (r *fractionalRepo) upsertOwnership(ctx context.Context, tx pgx.Tx, listingID int64, holderID string, delta int64) (*domain.Ownership, error) {
	var o domain.Ownership
	err := tx.QueryRow(ctx, `
		INSERT INTO fractional_ownerships (listing_id, holder_id, shares_owned, created_at, updated_at)
		VALUES ($1,$2,$3,now(),now())
		ON CONFLICT (listing_id, holder_id)
		DO UPDATE SET shares_owned = fractional_ownerships.shares_owned + EXCLUDED.shares_owned,
		              updated_at = now()
		RETURNING id, listing_id, holder_id, shares_owned, created_at, updated_at
	`, listingID, holderID, delta).Scan(&o.ID, &o.ListingID, &o.HolderID, &o.SharesOwned, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert ownership: %w", err)
	}
	return &o, nil
}

func (r *fractionalRepo) ListForResale(ctx context.Context, listingID int64, sellerID string, quantity int64, pricePerShare decimal.Decimal) (*domain.ResaleListing, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin list for resale: %w", errors.Join(xerrors.ErrTransient, err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var owned int64
	err = tx.QueryRow(ctx, `
		SELECT shares_owned FROM fractional_ownerships
		WHERE listing_id=$1 AND holder_id=$2
		FOR UPDATE
	`, listingID, sellerID).Scan(&owned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("lock ownership: %w", err)
	}

	var alreadyListed int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM share_resale_listings
		WHERE listing_id=$1 AND seller_id=$2 AND status='active'
	`, listingID, sellerID).Scan(&alreadyListed)
	if err != nil {
		return nil, fmt.Errorf("sum active resale listings: %w", err)
	}

	if quantity > owned-alreadyListed {
		return nil, xerrors.ErrExceedsOwnedBalance
	}

	rl := &domain.ResaleListing{
		ListingID:     listingID,
		SellerID:      sellerID,
		Quantity:      quantity,
		PricePerShare: pricePerShare,
		Status:        domain.ResaleStatusActive,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO share_resale_listings (listing_id, seller_id, quantity, price_per_share, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,'active',now(),now())
		RETURNING id, created_at, updated_at
	`, listingID, sellerID, quantity, pricePerShare.String()).Scan(&rl.ID, &rl.CreatedAt, &rl.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert resale listing: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit list for resale: %w", errors.Join(xerrors.ErrTransient, err))
	}
	return rl, nil
}

func (r *fractionalRepo) PurchaseResale(ctx context.Context, resaleID int64, buyerID string, buyerWalletID, sellerWalletID int64, reference string) (*PurchaseResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin resale purchase: %w", errors.Join(xerrors.ErrTransient, err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var rl domain.ResaleListing
	var price string
	err = tx.QueryRow(ctx, `
		SELECT id, listing_id, seller_id, quantity, price_per_share, status, created_at, updated_at
		FROM share_resale_listings
		WHERE id=$1 AND status='active'
		FOR UPDATE
	`, resaleID).Scan(&rl.ID, &rl.ListingID, &rl.SellerID, &rl.Quantity, &price, &rl.Status, &rl.CreatedAt, &rl.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("lock resale listing: %w", err)
	}
	rl.PricePerShare, _ = decimal.NewFromString(price)

	// Move shares off the reseller; conditional so a concurrent move can
	// never push the position negative.
	ct, err := tx.Exec(ctx, `
		UPDATE fractional_ownerships
		SET shares_owned = shares_owned - $3, updated_at = now()
		WHERE listing_id=$1 AND holder_id=$2 AND shares_owned >= $3
	`, rl.ListingID, rl.SellerID, rl.Quantity)
	if err != nil {
		return nil, fmt.Errorf("decrement reseller shares: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, xerrors.ErrInsufficientShares
	}

	cost := rl.PricePerShare.Mul(decimal.NewFromInt(rl.Quantity))
	desc := fmt.Sprintf("resale purchase of %d shares in listing #%d", rl.Quantity, rl.ListingID)
	debit, err := r.wallets.DebitTx(ctx, tx, buyerWalletID, cost, desc, reference)
	if err != nil {
		return nil, err
	}
	proceeds := fmt.Sprintf("resale of %d shares in listing #%d", rl.Quantity, rl.ListingID)
	credit, err := r.wallets.CreditTx(ctx, tx, sellerWalletID, cost, proceeds, reference)
	if err != nil {
		return nil, err
	}

	own, err := r.upsertOwnership(ctx, tx, rl.ListingID, buyerID, rl.Quantity)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE share_resale_listings SET status='sold', updated_at=now() WHERE id=$1
	`, resaleID); err != nil {
		return nil, fmt.Errorf("mark resale sold: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit resale purchase: %w", errors.Join(xerrors.ErrTransient, err))
	}
	return &PurchaseResult{Ownership: own, Cost: cost, Transactions: []*domain.Transaction{debit, credit}}, nil
}

func scanListing(row rowScanner) (*domain.FractionalListing, error) {
	var l domain.FractionalListing
	var value, price string
	err := row.Scan(
		&l.ID, &l.OwnerID, &l.Title, &value, &l.TotalShares, &l.AvailableShares,
		&price, &l.MinShares, &l.DailyVerificationRequired,
		&l.NextVerificationDue, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.TotalValue, _ = decimal.NewFromString(value)
	l.SharePrice, _ = decimal.NewFromString(price)
	return &l, nil
}
