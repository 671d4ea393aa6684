// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package magiclink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/carwei/directus-magic-link-auth/internal/models"
	"github.com/carwei/directus-magic-link-auth/internal/repository"
	"github.com/carwei/directus-magic-link-auth/internal/services/session"
)

// RejectReason is the internal cause of a verification failure.
type RejectReason string

const (
	ReasonMissingToken   RejectReason = "missing token"
	ReasonNotFound       RejectReason = "token not found"
	ReasonExpired        RejectReason = "token expired"
	ReasonAlreadyUsed    RejectReason = "token already used"
	ReasonUserVanished   RejectReason = "user no longer exists"
	ReasonRoleIneligible RejectReason = "role not allowed by policy"
)

// Rejection carries the specific cause of a failed verification. Handlers
// collapse every rejection to a single generic external message so the
// reason cannot be probed from outside.
type Rejection struct {
	Reason RejectReason
}

func (r *Rejection) Error() string {
	return string(r.Reason)
}

// VerifyResult is returned on successful verification.
type VerifyResult struct {
	User        *models.User
	Credentials *session.Credentials
}

// Verify runs the verification state machine and, on success, exchanges the
// identity for credentials. The token is deliberately not marked used on
// success: email clients and link-preview bots follow links ahead of the
// user, and the short expiry plus supersession already bound the window.
func (s *Service) Verify(ctx context.Context, token string, rc session.RequestContext) (*VerifyResult, error) {
	if token == "" {
		return nil, s.reject(ReasonMissingToken)
	}

	row, err := s.repo.GetMagicLinkToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, s.reject(ReasonNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up token: %w", err)
	}

	if row.ExpiresAt.Before(time.Now()) {
		return nil, s.reject(ReasonExpired)
	}
	if row.Used {
		return nil, s.reject(ReasonAlreadyUsed)
	}

	user, err := s.repo.GetUserByEmail(ctx, row.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, s.reject(ReasonUserVanished)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	// Role assignment may have changed since issuance.
	if !s.gate.IsEligible(user.Role) {
		return nil, s.reject(ReasonRoleIneligible)
	}

	creds, err := s.exchanger.Exchange(ctx, user, rc)
	if err != nil {
		// The token stays live so the client can retry.
		return nil, fmt.Errorf("exchanging session: %w", err)
	}

	slog.Info("magic link verified", "email", user.Email)
	return &VerifyResult{User: user, Credentials: creds}, nil
}

func (s *Service) reject(reason RejectReason) error {
	slog.Info("magic link verification rejected", "reason", reason)
	return &Rejection{Reason: reason}
}
