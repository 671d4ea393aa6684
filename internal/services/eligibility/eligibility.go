// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package eligibility implements the role allow/deny policy gate. The gate is
// consulted at issuance and again at verification, because role assignment may
// change between the two.
package eligibility

import "slices"

// Gate decides whether a role may request or redeem a login link.
type Gate struct {
	allowed []string
	denied  []string
}

// NewGate creates a gate from the configured allow- and deny-lists. Empty
// lists mean unrestricted.
func NewGate(allowed, denied []string) *Gate {
	return &Gate{allowed: allowed, denied: denied}
}

// IsEligible evaluates the policy for a role ID. A nil role is treated as the
// empty role ID. The allow-list narrows first; the deny-list can still veto.
func (g *Gate) IsEligible(role *string) bool {
	id := ""
	if role != nil {
		id = *role
	}

	if len(g.allowed) > 0 {
		if !slices.Contains(g.allowed, id) {
			return false
		}
		return !slices.Contains(g.denied, id)
	}

	if len(g.denied) > 0 {
		return !slices.Contains(g.denied, id)
	}

	return true
}
