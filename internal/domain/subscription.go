package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Tier string

const (
	TierFree       Tier = "free"
	TierLite       Tier = "lite"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

type Subscription struct {
	ID           int64           `json:"id"`
	UserID       string          `json:"user_id"`
	Tier         Tier            `json:"tier"`
	Price        decimal.Decimal `json:"price"`
	BillingCycle BillingCycle    `json:"billing_cycle"`
	StartedAt    time.Time       `json:"started_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
	AutoRenew    bool            `json:"auto_renew"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// EffectiveTier is what privilege checks must use: a subscription past its
// expiry behaves as free regardless of the stored tier, until renewed.
func EffectiveTier(s *Subscription, now time.Time) Tier {
	if s == nil || now.After(s.ExpiresAt) {
		return TierFree
	}
	return s.Tier
}

// NextExpiry extends an expiry by one billing period: 30 days for monthly,
// one calendar year for yearly.
func NextExpiry(from time.Time, cycle BillingCycle) time.Time {
	if cycle == CycleYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.Add(30 * 24 * time.Hour)
}

func ValidTier(t Tier) bool {
	switch t {
	case TierFree, TierLite, TierPro, TierEnterprise:
		return true
	}
	return false
}

func ValidCycle(c BillingCycle) bool {
	return c == CycleMonthly || c == CycleYearly
}
