// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/carwei/directus-magic-link-auth/internal/models"
)

// CreateMagicLinkToken inserts a new token row into the ledger.
func (r *Repository) CreateMagicLinkToken(ctx context.Context, token *models.MagicLinkToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO magic_link_tokens
		   (id, email, token, expires_at, ip_address, user_agent, used, created_at, email_sent, email_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		token.ID, token.Email, token.Token, token.ExpiresAt, token.IPAddress,
		token.UserAgent, token.Used, token.CreatedAt, token.EmailSent, token.EmailError)
	return err
}

// GetMagicLinkToken retrieves a token row by its exact secret value.
func (r *Repository) GetMagicLinkToken(ctx context.Context, token string) (*models.MagicLinkToken, error) {
	var row models.MagicLinkToken
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM magic_link_tokens WHERE token = ?`, token)
	if err != nil {
		return nil, wrapError(err)
	}
	return &row, nil
}

// SupersedeLiveTokens marks every live token for the email as used. The reason
// is recorded in email_error unless a delivery error is already stored there.
// Returns the number of rows superseded.
func (r *Repository) SupersedeLiveTokens(ctx context.Context, email, reason string, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE magic_link_tokens
		    SET used = 1, email_error = COALESCE(email_error, ?)
		  WHERE email = ? AND used = 0 AND expires_at > ?`,
		reason, email, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountTokensSince counts all ledger rows for the email created at or after
// the given instant. Audit rows count towards the total.
func (r *Repository) CountTokensSince(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM magic_link_tokens WHERE email = ? AND created_at >= ?`,
		email, since)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// SetEmailOutcome records the delivery result for a token row.
func (r *Repository) SetEmailOutcome(ctx context.Context, id string, sent bool, sendErr *string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE magic_link_tokens SET email_sent = ?, email_error = ? WHERE id = ?`,
		sent, sendErr, id)
	return err
}
