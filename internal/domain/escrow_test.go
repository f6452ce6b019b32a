package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_ForwardChain(t *testing.T) {
	cases := []struct {
		from, to EscrowStatus
		want     bool
	}{
		{EscrowStatusPending, EscrowStatusFundsLocked, true},
		{EscrowStatusFundsLocked, EscrowStatusShipped, true},
		{EscrowStatusShipped, EscrowStatusDelivered, true},
		{EscrowStatusDelivered, EscrowStatusReleased, true},

		// no skipping stages
		{EscrowStatusPending, EscrowStatusShipped, false},
		{EscrowStatusPending, EscrowStatusDelivered, false},
		{EscrowStatusPending, EscrowStatusReleased, false},
		{EscrowStatusFundsLocked, EscrowStatusDelivered, false},

		// no going backwards or re-entering a completed stage
		{EscrowStatusShipped, EscrowStatusFundsLocked, false},
		{EscrowStatusDelivered, EscrowStatusShipped, false},
		{EscrowStatusShipped, EscrowStatusShipped, false},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestCanTransition_ExceptionBranches(t *testing.T) {
	nonTerminal := []EscrowStatus{
		EscrowStatusPending,
		EscrowStatusFundsLocked,
		EscrowStatusShipped,
		EscrowStatusDelivered,
		EscrowStatusDisputed,
	}
	for _, from := range nonTerminal {
		if from != EscrowStatusDisputed {
			assert.True(t, CanTransition(from, EscrowStatusDisputed), "%s -> disputed", from)
		}
		assert.True(t, CanTransition(from, EscrowStatusRefunded), "%s -> refunded", from)
	}
}

func TestCanTransition_TerminalStates(t *testing.T) {
	all := []EscrowStatus{
		EscrowStatusPending, EscrowStatusFundsLocked, EscrowStatusShipped,
		EscrowStatusDelivered, EscrowStatusReleased, EscrowStatusDisputed,
		EscrowStatusRefunded,
	}
	for _, to := range all {
		assert.False(t, CanTransition(EscrowStatusReleased, to), "released -> %s", to)
		assert.False(t, CanTransition(EscrowStatusRefunded, to), "refunded -> %s", to)
	}
}
