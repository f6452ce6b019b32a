package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a user's USD balance. The balance is only ever mutated through
// ledger-entry-producing operations and must never go negative.
type Wallet struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
)

// Transaction is an immutable ledger entry. Every balance mutation produces
// exactly one. Amount is signed: negative for withdrawals, positive for
// deposits.
type Transaction struct {
	ID          int64           `json:"id"`
	WalletID    int64           `json:"wallet_id"`
	Type        TransactionType `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference"` // receipt reference, snowflake
	CreatedAt   time.Time       `json:"created_at"`
}
