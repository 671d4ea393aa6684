// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package magiclink implements the token lifecycle: issuance with rate
// limiting and eligibility checks, supersession, delivery bookkeeping, and
// the verification state machine.
package magiclink

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/carwei/directus-magic-link-auth/internal/config"
	"github.com/carwei/directus-magic-link-auth/internal/repository"
	"github.com/carwei/directus-magic-link-auth/internal/services/eligibility"
	"github.com/carwei/directus-magic-link-auth/internal/services/email"
	"github.com/carwei/directus-magic-link-auth/internal/services/session"
)

const (
	// tokenLength is the number of random bytes per token (256 bits).
	tokenLength = 32
	// rateWindow is the sliding window for the issuance ceiling.
	rateWindow = time.Hour
	// auditExpiry is the expiry of pre-used audit rows.
	auditExpiry = 60 * time.Second
	// maxErrorLength truncates delivery errors before they hit the ledger.
	maxErrorLength = 255

	supersededReason  = "superseded by new token"
	rateLimitedReason = "rate limit exceeded"
	unknownUserReason = "user does not exist"
	roleDeniedReason  = "role not allowed by policy"
)

// Service wires the token ledger, the eligibility gate, the delivery
// notifier and the session exchanger together.
type Service struct {
	repo      *repository.Repository
	gate      *eligibility.Gate
	notifier  email.Notifier
	exchanger session.Exchanger
	cfg       *config.MagicLinkConfig
	publicURL string
}

// NewService creates a new magic link service.
func NewService(repo *repository.Repository, gate *eligibility.Gate, notifier email.Notifier, exchanger session.Exchanger, cfg *config.MagicLinkConfig, publicURL string) *Service {
	return &Service{
		repo:      repo,
		gate:      gate,
		notifier:  notifier,
		exchanger: exchanger,
		cfg:       cfg,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}
}

// generateToken returns a fresh bearer secret, hex encoded.
func generateToken() (string, error) {
	bytes := make([]byte, tokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// verificationURL builds the link sent by email. A caller-supplied redirect
// base wins so an external front end can control the landing page; the
// default is the service's own verify endpoint.
func (s *Service) verificationURL(redirectBase, token string) string {
	base := redirectBase
	if base == "" {
		base = s.publicURL + s.cfg.VerifyPath
	}

	separator := "?"
	if strings.Contains(base, "?") {
		separator = "&"
	}
	return base + separator + "token=" + url.QueryEscape(token)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
