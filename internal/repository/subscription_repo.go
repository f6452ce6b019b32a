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

type SubscriptionRepository interface {
	GetByUserID(ctx context.Context, userID string) (*domain.Subscription, error)

	// Subscribe debits the wallet and upserts the subscription row in one
	// transaction (initial purchase or tier change). The charge's ledger
	// entry is returned alongside; nil when the price is zero.
	Subscribe(ctx context.Context, userID string, walletID int64, tier domain.Tier, cycle domain.BillingCycle, price decimal.Decimal, reference string, now time.Time) (*domain.Subscription, *domain.Transaction, error)

	// Renew debits the wallet and extends expires_at by one billing period
	// atomically. Fails with xerrors.ErrInsufficientFunds without touching
	// either row.
	Renew(ctx context.Context, subID, walletID int64, price decimal.Decimal, reference string, now time.Time) (*domain.Subscription, *domain.Transaction, error)

	// Downgrade sets tier=free and auto_renew=false; the fail-safe outcome of
	// a renewal the wallet cannot cover.
	Downgrade(ctx context.Context, subID int64) (*domain.Subscription, error)

	// ListDueForRenewal returns auto-renewing subscriptions whose expiry has
	// passed, for the periodic sweep.
	ListDueForRenewal(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error)
}

type subscriptionRepo struct {
	db      *pgxpool.Pool
	wallets WalletRepository
}

func NewSubscriptionRepo(db *pgxpool.Pool, wallets WalletRepository) SubscriptionRepository {
	return &subscriptionRepo{db: db, wallets: wallets}
}

const subscriptionColumns = `
	id, user_id, tier, price, billing_cycle, started_at, expires_at,
	auto_renew, created_at, updated_at`

func (r *subscriptionRepo) GetByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	s, err := scanSubscription(r.db.QueryRow(ctx, `SELECT`+subscriptionColumns+` FROM subscriptions WHERE user_id=$1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return s, nil
}

func (r *subscriptionRepo) Subscribe(ctx context.Context, userID string, walletID int64, tier domain.Tier, cycle domain.BillingCycle, price decimal.Decimal, reference string, now time.Time) (*domain.Subscription, *domain.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("begin subscribe: %w", errors.Join(xerrors.ErrTransient, err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var charge *domain.Transaction
	if price.IsPositive() {
		desc := fmt.Sprintf("%s subscription (%s)", tier, cycle)
		charge, err = r.wallets.DebitTx(ctx, tx, walletID, price, desc, reference)
		if err != nil {
			return nil, nil, err
		}
	}

	expires := domain.NextExpiry(now, cycle)
	s, err := scanSubscription(tx.QueryRow(ctx, `
		INSERT INTO subscriptions (user_id, tier, price, billing_cycle, started_at, expires_at, auto_renew, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,true,now(),now())
		ON CONFLICT (user_id)
		DO UPDATE SET tier=EXCLUDED.tier, price=EXCLUDED.price,
		              billing_cycle=EXCLUDED.billing_cycle,
		              started_at=EXCLUDED.started_at,
		              expires_at=EXCLUDED.expires_at,
		              auto_renew=true, updated_at=now()
		RETURNING`+subscriptionColumns, userID, tier, price.String(), cycle, now, expires))
	if err != nil {
		return nil, nil, fmt.Errorf("upsert subscription: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit subscribe: %w", errors.Join(xerrors.ErrTransient, err))
	}
	return s, charge, nil
}

func (r *subscriptionRepo) Renew(ctx context.Context, subID, walletID int64, price decimal.Decimal, reference string, now time.Time) (*domain.Subscription, *domain.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("begin renew: %w", errors.Join(xerrors.ErrTransient, err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s, err := scanSubscription(tx.QueryRow(ctx, `SELECT`+subscriptionColumns+` FROM subscriptions WHERE id=$1 FOR UPDATE`, subID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, xerrors.ErrNotFound
		}
		return nil, nil, fmt.Errorf("lock subscription: %w", err)
	}

	var charge *domain.Transaction
	if price.IsPositive() {
		desc := fmt.Sprintf("%s subscription renewal (%s)", s.Tier, s.BillingCycle)
		charge, err = r.wallets.DebitTx(ctx, tx, walletID, price, desc, reference)
		if err != nil {
			return nil, nil, err
		}
	}

	// Extend from the current expiry when it is still in the future, from
	// now when the subscription lapsed before the sweep reached it.
	base := s.ExpiresAt
	if now.After(base) {
		base = now
	}
	s.ExpiresAt = domain.NextExpiry(base, s.BillingCycle)
	s.Price = price

	err = tx.QueryRow(ctx, `
		UPDATE subscriptions SET expires_at=$2, price=$3, updated_at=now()
		WHERE id=$1
		RETURNING updated_at
	`, subID, s.ExpiresAt, price.String()).Scan(&s.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("extend subscription: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit renew: %w", errors.Join(xerrors.ErrTransient, err))
	}
	return s, charge, nil
}

func (r *subscriptionRepo) Downgrade(ctx context.Context, subID int64) (*domain.Subscription, error) {
	s, err := scanSubscription(r.db.QueryRow(ctx, `
		UPDATE subscriptions
		SET tier='free', price=0, auto_renew=false, updated_at=now()
		WHERE id=$1
		RETURNING`+subscriptionColumns, subID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("downgrade subscription: %w", err)
	}
	return s, nil
}

func (r *subscriptionRepo) ListDueForRenewal(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	rows, err := r.db.Query(ctx, `
		SELECT`+subscriptionColumns+`
		FROM subscriptions
		WHERE auto_renew=true AND expires_at <= $1 AND tier <> 'free'
		ORDER BY expires_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var s domain.Subscription
	var price string
	err := row.Scan(
		&s.ID, &s.UserID, &s.Tier, &price, &s.BillingCycle, &s.StartedAt,
		&s.ExpiresAt, &s.AutoRenew, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Price, _ = decimal.NewFromString(price)
	return &s, nil
}
