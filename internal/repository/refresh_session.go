// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"github.com/carwei/directus-magic-link-auth/internal/models"
)

// CreateRefreshSession stores a newly issued refresh credential.
func (r *Repository) CreateRefreshSession(ctx context.Context, session *models.RefreshSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_sessions
		   (id, user_id, token, expires_at, ip_address, user_agent, origin, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.Token, session.ExpiresAt,
		session.IPAddress, session.UserAgent, session.Origin, session.CreatedAt)
	return err
}

// GetRefreshSession retrieves a refresh session by its token value.
func (r *Repository) GetRefreshSession(ctx context.Context, token string) (*models.RefreshSession, error) {
	var session models.RefreshSession
	err := r.db.GetContext(ctx, &session,
		`SELECT * FROM refresh_sessions WHERE token = ?`, token)
	if err != nil {
		return nil, wrapError(err)
	}
	return &session, nil
}
