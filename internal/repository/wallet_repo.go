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

type WalletRepository interface {
	Create(ctx context.Context, userID string) (*domain.Wallet, error)
	GetByID(ctx context.Context, id int64) (*domain.Wallet, error)
	GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error)

	// Debit fails with xerrors.ErrInsufficientFunds when amount > balance and
	// leaves the balance untouched. The balance update and the ledger entry
	// are committed together or not at all.
	Debit(ctx context.Context, walletID int64, amount decimal.Decimal, description, reference string) (*domain.Transaction, error)
	Credit(ctx context.Context, walletID int64, amount decimal.Decimal, description, reference string) (*domain.Transaction, error)

	// Tx variants compose into a caller-owned transaction (escrow release,
	// fractional purchase, subscription renewal).
	DebitTx(ctx context.Context, tx pgx.Tx, walletID int64, amount decimal.Decimal, description, reference string) (*domain.Transaction, error)
	CreditTx(ctx context.Context, tx pgx.Tx, walletID int64, amount decimal.Decimal, description, reference string) (*domain.Transaction, error)

	ListTransactions(ctx context.Context, walletID int64, limit, offset int) ([]*domain.Transaction, error)
}

type walletRepo struct {
	db *pgxpool.Pool
}

func NewWalletRepo(db *pgxpool.Pool) WalletRepository {
	return &walletRepo{db: db}
}

func (r *walletRepo) Create(ctx context.Context, userID string) (*domain.Wallet, error) {
	w := &domain.Wallet{UserID: userID, Balance: decimal.Zero}
	err := r.db.QueryRow(ctx, `
		INSERT INTO wallets (user_id, balance, created_at, updated_at)
		VALUES ($1, 0, now(), now())
		RETURNING id, created_at, updated_at
	`, userID).Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if xerrors.ParsePGErrorCode(err) == "23505" {
			return r.GetByUserID(ctx, userID)
		}
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	return w, nil
}

func (r *walletRepo) GetByID(ctx context.Context, id int64) (*domain.Wallet, error) {
	return r.getWallet(ctx, `WHERE id=$1`, id)
}

func (r *walletRepo) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	return r.getWallet(ctx, `WHERE user_id=$1`, userID)
}

func (r *walletRepo) getWallet(ctx context.Context, where string, arg any) (*domain.Wallet, error) {
	var w domain.Wallet
	var balance string
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, balance, created_at, updated_at
		FROM wallets `+where, arg).Scan(&w.ID, &w.UserID, &balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	w.Balance, _ = decimal.NewFromString(balance)
	return &w, nil
}

func (r *walletRepo) Debit(ctx context.Context, walletID int64, amount decimal.Decimal, description, reference string) (*domain.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin debit: %w", errors.Join(xerrors.ErrTransient, err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	t, err := r.DebitTx(ctx, tx, walletID, amount, description, reference)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit debit: %w", errors.Join(xerrors.ErrTransient, err))
	}
	return t, nil
}

func (r *walletRepo) Credit(ctx context.Context, walletID int64, amount decimal.Decimal, description, reference string) (*domain.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin credit: %w", errors.Join(xerrors.ErrTransient, err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	t, err := r.CreditTx(ctx, tx, walletID, amount, description, reference)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit credit: %w", errors.Join(xerrors.ErrTransient, err))
	}
	return t, nil
}

// DebitTx decrements the balance only if it covers the amount, in a single
// conditional statement. Never read-then-write across round-trips.
func (r *walletRepo) DebitTx(ctx context.Context, tx pgx.Tx, walletID int64, amount decimal.Decimal, description, reference string) (*domain.Transaction, error) {
	ct, err := tx.Exec(ctx, `
		UPDATE wallets
		SET balance = balance - $2, updated_at = now()
		WHERE id = $1 AND balance >= $2
	`, walletID, amount.String())
	if err != nil {
		return nil, fmt.Errorf("debit wallet: %w", err)
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM wallets WHERE id=$1)`, walletID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check wallet: %w", err)
		}
		if !exists {
			return nil, xerrors.ErrNotFound
		}
		return nil, xerrors.ErrInsufficientFunds
	}

	return r.insertTransaction(ctx, tx, walletID, domain.TransactionTypeWithdrawal, amount.Neg(), description, reference)
}

func (r *walletRepo) CreditTx(ctx context.Context, tx pgx.Tx, walletID int64, amount decimal.Decimal, description, reference string) (*domain.Transaction, error) {
	ct, err := tx.Exec(ctx, `
		UPDATE wallets
		SET balance = balance + $2, updated_at = now()
		WHERE id = $1
	`, walletID, amount.String())
	if err != nil {
		return nil, fmt.Errorf("credit wallet: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, xerrors.ErrNotFound
	}

	return r.insertTransaction(ctx, tx, walletID, domain.TransactionTypeDeposit, amount, description, reference)
}

func (r *walletRepo) insertTransaction(ctx context.Context, tx pgx.Tx, walletID int64, typ domain.TransactionType, amount decimal.Decimal, description, reference string) (*domain.Transaction, error) {
	t := &domain.Transaction{
		WalletID:    walletID,
		Type:        typ,
		Amount:      amount,
		Description: description,
		Reference:   reference,
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO wallet_transactions (wallet_id, type, amount, description, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, created_at
	`, walletID, typ, amount.String(), description, reference).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	return t, nil
}

func (r *walletRepo) ListTransactions(ctx context.Context, walletID int64, limit, offset int) ([]*domain.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, wallet_id, type, amount, description, reference, created_at
		FROM wallet_transactions
		WHERE wallet_id=$1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, walletID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var amount string
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Type, &amount, &t.Description, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Amount, _ = decimal.NewFromString(amount)
		out = append(out, &t)
	}
	return out, rows.Err()
}
