// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package magiclink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/carwei/directus-magic-link-auth/internal/models"
	"github.com/carwei/directus-magic-link-auth/internal/repository"
)

// LinkRequest is the input to the asynchronous issuance phase.
type LinkRequest struct {
	Email       string
	RedirectURL string
	IPAddress   string
	UserAgent   *string
}

// RequestLink runs the issuance flow. The HTTP acknowledgment has already
// been sent when this is called, so rejections are never visible to the
// requester; every branch leaves a row in the ledger. The returned error
// covers infrastructure failures only and is meant for the caller's log.
func (s *Service) RequestLink(ctx context.Context, req LinkRequest) error {
	now := time.Now()

	count, err := s.repo.CountTokensSince(ctx, req.Email, now.Add(-rateWindow))
	if err != nil {
		return fmt.Errorf("counting recent requests: %w", err)
	}
	if count >= s.cfg.MaxRequestsPerHour {
		if _, err := s.repo.SupersedeLiveTokens(ctx, req.Email, rateLimitedReason, now); err != nil {
			return fmt.Errorf("superseding live tokens: %w", err)
		}
		return s.recordRejection(ctx, req, rateLimitedReason, now)
	}

	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return s.recordRejection(ctx, req, unknownUserReason, now)
	}
	if err != nil {
		return fmt.Errorf("looking up user: %w", err)
	}

	if !s.gate.IsEligible(user.Role) {
		return s.recordRejection(ctx, req, roleDeniedReason, now)
	}

	token, err := generateToken()
	if err != nil {
		return err
	}

	if _, err := s.repo.SupersedeLiveTokens(ctx, req.Email, supersededReason, now); err != nil {
		return fmt.Errorf("superseding live tokens: %w", err)
	}

	row := &models.MagicLinkToken{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Token:     token,
		ExpiresAt: now.Add(s.cfg.Expiration()),
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		CreatedAt: now,
	}
	if err := s.repo.CreateMagicLinkToken(ctx, row); err != nil {
		return fmt.Errorf("recording token: %w", err)
	}

	link := s.verificationURL(req.RedirectURL, token)
	if sendErr := s.notifier.SendLoginLink(ctx, req.Email, link, s.cfg.ExpirationMinutes); sendErr != nil {
		// Delivery failures are an operator concern, never the requester's.
		slog.Error("magic link delivery failed", "email", req.Email, "error", sendErr)
		msg := truncate(sendErr.Error(), maxErrorLength)
		if err := s.repo.SetEmailOutcome(ctx, row.ID, false, &msg); err != nil {
			return fmt.Errorf("recording delivery failure: %w", err)
		}
		return nil
	}

	slog.Info("magic link issued", "email", req.Email, "expires_at", row.ExpiresAt)
	return s.repo.SetEmailOutcome(ctx, row.ID, true, nil)
}

// recordRejection inserts a pre-used, short-lived audit row so rejected
// requests still count against the rate window and stay traceable. The row
// can never be redeemed.
func (s *Service) recordRejection(ctx context.Context, req LinkRequest, reason string, now time.Time) error {
	slog.Info("magic link request rejected", "email", req.Email, "reason", reason)

	token, err := generateToken()
	if err != nil {
		return err
	}

	notSent := false
	auditReason := reason
	row := &models.MagicLinkToken{
		ID:         uuid.NewString(),
		Email:      req.Email,
		Token:      token,
		ExpiresAt:  now.Add(auditExpiry),
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		Used:       true,
		CreatedAt:  now,
		EmailSent:  &notSent,
		EmailError: &auditReason,
	}
	if err := s.repo.CreateMagicLinkToken(ctx, row); err != nil {
		return fmt.Errorf("recording audit row: %w", err)
	}
	return nil
}
