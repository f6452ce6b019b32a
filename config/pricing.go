package config

import "github.com/shopspring/decimal"

// PricingTable maps subscription tier -> billing cycle -> price in USD.
// It is injected into both the subscription handlers and the renewal sweep so
// the two can never disagree on what a tier costs.
type PricingTable map[string]map[string]decimal.Decimal

func DefaultPricingTable() PricingTable {
	return PricingTable{
		"free": {
			"monthly": decimal.Zero,
			"yearly":  decimal.Zero,
		},
		"lite": {
			"monthly": decimal.RequireFromString("4.99"),
			"yearly":  decimal.RequireFromString("49.99"),
		},
		"pro": {
			"monthly": decimal.RequireFromString("9.99"),
			"yearly":  decimal.RequireFromString("99.99"),
		},
		"enterprise": {
			"monthly": decimal.RequireFromString("29.99"),
			"yearly":  decimal.RequireFromString("299.99"),
		},
	}
}

// Price looks up the price for a tier/cycle pair.
func (t PricingTable) Price(tier, cycle string) (decimal.Decimal, bool) {
	cycles, ok := t[tier]
	if !ok {
		return decimal.Zero, false
	}
	price, ok := cycles[cycle]
	return price, ok
}
