// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session converts a verified identity into access and refresh
// credentials.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/carwei/directus-magic-link-auth/internal/config"
	"github.com/carwei/directus-magic-link-auth/internal/models"
	"github.com/carwei/directus-magic-link-auth/internal/repository"
)

// refreshTokenLength is the number of random bytes in a refresh token.
const refreshTokenLength = 32

// RequestContext carries the caller details a credential is bound to.
type RequestContext struct {
	IPAddress string
	UserAgent *string
	Origin    *string
}

// Credentials is the result of a successful exchange. Expires is the access
// token lifetime in milliseconds.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Expires      int64
}

// Exchanger mints credentials for a verified identity.
type Exchanger interface {
	Exchange(ctx context.Context, user *models.User, rc RequestContext) (*Credentials, error)
}

// Claims are the access token claims.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Service implements Exchanger with HS256 JWTs and persisted refresh sessions.
type Service struct {
	repo       *repository.Repository
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewService creates a new session service.
func NewService(repo *repository.Repository, cfg *config.JWTConfig) (*Service, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}

	return &Service{
		repo:       repo,
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}, nil
}

// Exchange mints an access token and a refresh credential for the user and
// stores the refresh session bound to the request context.
func (s *Service) Exchange(ctx context.Context, user *models.User, rc RequestContext) (*Credentials, error) {
	now := time.Now()

	role := ""
	if user.Role != nil {
		role = *user.Role
	}

	claims := Claims{
		Email: user.Email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}

	refresh, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}

	row := &models.RefreshSession{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     refresh,
		ExpiresAt: now.Add(s.refreshTTL),
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		Origin:    rc.Origin,
		CreatedAt: now,
	}
	if err := s.repo.CreateRefreshSession(ctx, row); err != nil {
		return nil, fmt.Errorf("storing refresh session: %w", err)
	}

	return &Credentials{
		AccessToken:  access,
		RefreshToken: refresh,
		Expires:      s.accessTTL.Milliseconds(),
	}, nil
}

// ParseAccessToken validates an access token and returns its claims.
func (s *Service) ParseAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func generateRefreshToken() (string, error) {
	bytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
