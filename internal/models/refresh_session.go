// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// RefreshSession stores an issued refresh credential together with the
// request context it was bound to.
type RefreshSession struct { //nolint:govet // fieldalignment: readability over optimization
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Token     string    `db:"token" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	IPAddress string    `db:"ip_address" json:"ip_address"`
	UserAgent *string   `db:"user_agent" json:"user_agent,omitempty"`
	Origin    *string   `db:"origin" json:"origin,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
