package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EscrowStatus string

const (
	EscrowStatusPending     EscrowStatus = "pending"
	EscrowStatusFundsLocked EscrowStatus = "funds_locked"
	EscrowStatusShipped     EscrowStatus = "shipped"
	EscrowStatusDelivered   EscrowStatus = "delivered"
	EscrowStatusReleased    EscrowStatus = "released"
	EscrowStatusDisputed    EscrowStatus = "disputed"
	EscrowStatusRefunded    EscrowStatus = "refunded"
)

// forwardNext is the strictly-ordered custody chain. Disputed and refunded are
// exception branches reachable from any non-terminal state, not part of the
// chain.
var forwardNext = map[EscrowStatus]EscrowStatus{
	EscrowStatusPending:     EscrowStatusFundsLocked,
	EscrowStatusFundsLocked: EscrowStatusShipped,
	EscrowStatusShipped:     EscrowStatusDelivered,
	EscrowStatusDelivered:   EscrowStatusReleased,
}

// Terminal reports whether no further transitions are allowed.
func (s EscrowStatus) Terminal() bool {
	return s == EscrowStatusReleased || s == EscrowStatusRefunded
}

// CanTransition is the single source of truth for escrow transitions: only the
// immediate forward successor, or disputed/refunded from a non-terminal state.
func CanTransition(from, to EscrowStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == EscrowStatusDisputed || to == EscrowStatusRefunded {
		return from != to
	}
	return forwardNext[from] == to
}

// EscrowOrder tracks custody of payment for a single buyer/seller transaction.
// The four forward timestamps are each set exactly once, when the state is
// entered, and are immutable thereafter.
type EscrowOrder struct {
	ID               int64           `json:"id"`
	BuyerID          string          `json:"buyer_id"`
	SellerID         string          `json:"seller_id"`
	OrderTotal       decimal.Decimal `json:"order_total"`
	Status           EscrowStatus    `json:"status"`
	LockedAt         *time.Time      `json:"locked_at,omitempty"`
	ShippedAt        *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt      *time.Time      `json:"delivered_at,omitempty"`
	ReleasedAt       *time.Time      `json:"released_at,omitempty"`
	ShipByDeadline   *time.Time      `json:"ship_by_deadline,omitempty"`   // advisory
	DeliveryDeadline *time.Time      `json:"delivery_deadline,omitempty"`  // advisory
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
