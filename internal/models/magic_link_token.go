// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// MagicLinkToken is one row of the issuance ledger. Rows are never deleted;
// they are mutated only to flip Used or to record the delivery outcome.
type MagicLinkToken struct { //nolint:govet // fieldalignment: readability over optimization
	ID         string    `db:"id" json:"id"`
	Email      string    `db:"email" json:"email"`
	Token      string    `db:"token" json:"-"` // bearer secret, 256 bits hex
	ExpiresAt  time.Time `db:"expires_at" json:"expires_at"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  *string   `db:"user_agent" json:"user_agent,omitempty"`
	Used       bool      `db:"used" json:"used"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	EmailSent  *bool     `db:"email_sent" json:"email_sent,omitempty"` // nil until delivery settles
	EmailError *string   `db:"email_error" json:"email_error,omitempty"`
}

// Live reports whether the token can still be redeemed at the given instant.
func (t *MagicLinkToken) Live(now time.Time) bool {
	return !t.Used && t.ExpiresAt.After(now)
}
