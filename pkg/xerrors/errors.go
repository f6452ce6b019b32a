package xerrors

import "errors"
import "github.com/jackc/pgx/v5/pgconn"

func ParsePGErrorCode(err error) string {
	if pgErr, ok := err.(*pgconn.PgError); ok {
		return pgErr.Code // e.g. 23505 for unique_violation
	}
	return "unknown"
}

// Generic
var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInternalServer  = errors.New("internal server error")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not found")

	// ErrTransient wraps infrastructure failures (persistence unavailable).
	// Callers may retry; nothing in this module retries automatically.
	ErrTransient = errors.New("transient failure")
)

// Wallet / ledger
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Auctions
var (
	ErrAuctionNotActive  = errors.New("auction is not active")
	ErrSelfBidDisallowed = errors.New("seller cannot bid on own auction")
	ErrBidTooLow         = errors.New("bid is below the minimum")
	ErrBuyNowUnavailable = errors.New("buy now is not available for this auction")
	ErrInvalidDuration   = errors.New("auction duration must be positive")
)

// Escrow
var (
	ErrInvalidTransition = errors.New("invalid escrow transition")
)

// Fractional ownership
var (
	ErrInsufficientShares  = errors.New("not enough shares available")
	ErrBelowMinimum        = errors.New("quantity below minimum purchase")
	ErrExceedsOwnedBalance = errors.New("quantity exceeds owned unlisted balance")
)
