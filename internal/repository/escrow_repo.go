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

type EscrowRepository interface {
	Create(ctx context.Context, o *domain.EscrowOrder) error
	GetByID(ctx context.Context, id int64) (*domain.EscrowOrder, error)

	// LockFunds moves pending -> funds_locked and debits the buyer's wallet
	// for the order total in the same transaction. The ledger entry the debit
	// produced is returned alongside the order.
	LockFunds(ctx context.Context, orderID, buyerWalletID int64, reference string) (*domain.EscrowOrder, *domain.Transaction, error)

	// Advance applies a non-monetary transition (shipped, delivered,
	// disputed). Monetary transitions go through LockFunds, Release, Refund.
	Advance(ctx context.Context, orderID int64, to domain.EscrowStatus) (*domain.EscrowOrder, error)

	// Release moves delivered -> released and credits the seller's wallet the
	// net proceeds (order total minus platform fee) atomically.
	Release(ctx context.Context, orderID, sellerWalletID int64, netProceeds decimal.Decimal, reference string) (*domain.EscrowOrder, *domain.Transaction, error)

	// Refund moves any non-terminal state -> refunded and credits the buyer
	// back the order total atomically. The ledger entry is nil when funds
	// were never locked.
	Refund(ctx context.Context, orderID, buyerWalletID int64, reference string) (*domain.EscrowOrder, *domain.Transaction, error)
}

type escrowRepo struct {
	db      *pgxpool.Pool
	wallets WalletRepository
}

func NewEscrowRepo(db *pgxpool.Pool, wallets WalletRepository) EscrowRepository {
	return &escrowRepo{db: db, wallets: wallets}
}

func (r *escrowRepo) Create(ctx context.Context, o *domain.EscrowOrder) error {
	o.Status = domain.EscrowStatusPending
	err := r.db.QueryRow(ctx, `
		INSERT INTO escrow_orders
			(buyer_id, seller_id, order_total, status, ship_by_deadline,
			 delivery_deadline, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
		RETURNING id, created_at, updated_at
	`, o.BuyerID, o.SellerID, o.OrderTotal.String(), o.Status,
		o.ShipByDeadline, o.DeliveryDeadline).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create escrow order: %w", err)
	}
	return nil
}

const escrowColumns = `
	id, buyer_id, seller_id, order_total, status, locked_at, shipped_at,
	delivered_at, released_at, ship_by_deadline, delivery_deadline,
	created_at, updated_at`

func (r *escrowRepo) GetByID(ctx context.Context, id int64) (*domain.EscrowOrder, error) {
	o, err := scanEscrow(r.db.QueryRow(ctx, `SELECT`+escrowColumns+` FROM escrow_orders WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("get escrow order: %w", err)
	}
	return o, nil
}

// statusTimestamp maps a target state to the column set exactly once when the
// state is entered. Values are fixed identifiers, never user input.
var statusTimestamp = map[domain.EscrowStatus]string{
	domain.EscrowStatusFundsLocked: "locked_at",
	domain.EscrowStatusShipped:     "shipped_at",
	domain.EscrowStatusDelivered:   "delivered_at",
	domain.EscrowStatusReleased:    "released_at",
}

func (r *escrowRepo) transition(ctx context.Context, tx pgx.Tx, orderID int64, to domain.EscrowStatus) (*domain.EscrowOrder, error) {
	o, err := scanEscrow(tx.QueryRow(ctx, `SELECT`+escrowColumns+` FROM escrow_orders WHERE id=$1 FOR UPDATE`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("lock escrow order: %w", err)
	}
	if !domain.CanTransition(o.Status, to) {
		return nil, xerrors.ErrInvalidTransition
	}

	query := `UPDATE escrow_orders SET status=$2, updated_at=now() WHERE id=$1 RETURNING updated_at`
	if col, ok := statusTimestamp[to]; ok {
		query = `UPDATE escrow_orders SET status=$2, ` + col + `=now(), updated_at=now() WHERE id=$1 RETURNING updated_at`
	}
	if err := tx.QueryRow(ctx, query, orderID, to).Scan(&o.UpdatedAt); err != nil {
		return nil, fmt.Errorf("transition escrow order: %w", err)
	}
	o.Status = to
	if col, ok := statusTimestamp[to]; ok {
		ts := o.UpdatedAt
		switch col {
		case "locked_at":
			o.LockedAt = &ts
		case "shipped_at":
			o.ShippedAt = &ts
		case "delivered_at":
			o.DeliveredAt = &ts
		case "released_at":
			o.ReleasedAt = &ts
		}
	}
	return o, nil
}

func (r *escrowRepo) LockFunds(ctx context.Context, orderID, buyerWalletID int64, reference string) (*domain.EscrowOrder, *domain.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("begin lock funds: %w", errors.Join(xerrors.ErrTransient, err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := r.transition(ctx, tx, orderID, domain.EscrowStatusFundsLocked)
	if err != nil {
		return nil, nil, err
	}
	desc := fmt.Sprintf("escrow payment for order #%d", orderID)
	entry, err := r.wallets.DebitTx(ctx, tx, buyerWalletID, o.OrderTotal, desc, reference)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit lock funds: %w", errors.Join(xerrors.ErrTransient, err))
	}
	return o, entry, nil
}

func (r *escrowRepo) Advance(ctx context.Context, orderID int64, to domain.EscrowStatus) (*domain.EscrowOrder, error) {
	switch to {
	case domain.EscrowStatusFundsLocked, domain.EscrowStatusReleased, domain.EscrowStatusRefunded:
		// monetary transitions have dedicated entry points
		return nil, xerrors.ErrInvalidTransition
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin advance: %w", errors.Join(xerrors.ErrTransient, err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := r.transition(ctx, tx, orderID, to)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit advance: %w", errors.Join(xerrors.ErrTransient, err))
	}
	return o, nil
}

func (r *escrowRepo) Release(ctx context.Context, orderID, sellerWalletID int64, netProceeds decimal.Decimal, reference string) (*domain.EscrowOrder, *domain.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("begin release: %w", errors.Join(xerrors.ErrTransient, err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := r.transition(ctx, tx, orderID, domain.EscrowStatusReleased)
	if err != nil {
		return nil, nil, err
	}
	desc := fmt.Sprintf("escrow release for order #%d", orderID)
	entry, err := r.wallets.CreditTx(ctx, tx, sellerWalletID, netProceeds, desc, reference)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit release: %w", errors.Join(xerrors.ErrTransient, err))
	}
	return o, entry, nil
}

func (r *escrowRepo) Refund(ctx context.Context, orderID, buyerWalletID int64, reference string) (*domain.EscrowOrder, *domain.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("begin refund: %w", errors.Join(xerrors.ErrTransient, err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := r.transition(ctx, tx, orderID, domain.EscrowStatusRefunded)
	if err != nil {
		return nil, nil, err
	}
	// Funds only return to the buyer if they were locked in the first place.
	var entry *domain.Transaction
	if o.LockedAt != nil {
		desc := fmt.Sprintf("escrow refund for order #%d", orderID)
		entry, err = r.wallets.CreditTx(ctx, tx, buyerWalletID, o.OrderTotal, desc, reference)
		if err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit refund: %w", errors.Join(xerrors.ErrTransient, err))
	}
	return o, entry, nil
}

func scanEscrow(row rowScanner) (*domain.EscrowOrder, error) {
	var o domain.EscrowOrder
	var total string
	err := row.Scan(
		&o.ID, &o.BuyerID, &o.SellerID, &total, &o.Status, &o.LockedAt,
		&o.ShippedAt, &o.DeliveredAt, &o.ReleasedAt, &o.ShipByDeadline,
		&o.DeliveryDeadline, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.OrderTotal, _ = decimal.NewFromString(total)
	return &o, nil
}
