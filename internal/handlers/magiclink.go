// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"

	"github.com/labstack/echo/v4"

	"github.com/carwei/directus-magic-link-auth/internal/config"
	"github.com/carwei/directus-magic-link-auth/internal/i18n"
	"github.com/carwei/directus-magic-link-auth/internal/services/magiclink"
	"github.com/carwei/directus-magic-link-auth/internal/services/session"
)

// emailPattern matches local@domain.tld addresses.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// LinkRequester runs the asynchronous issuance phase.
type LinkRequester interface {
	RequestLink(ctx context.Context, req magiclink.LinkRequest) error
}

// TokenVerifier runs the verification state machine.
type TokenVerifier interface {
	Verify(ctx context.Context, token string, rc session.RequestContext) (*magiclink.VerifyResult, error)
}

// MagicLinkHandlers contains the magic link HTTP handlers.
type MagicLinkHandlers struct {
	requester LinkRequester
	verifier  TokenVerifier
	jwtCfg    *config.JWTConfig
}

// NewMagicLink creates a new MagicLinkHandlers instance.
func NewMagicLink(requester LinkRequester, verifier TokenVerifier, jwtCfg *config.JWTConfig) *MagicLinkHandlers {
	return &MagicLinkHandlers{
		requester: requester,
		verifier:  verifier,
		jwtCfg:    jwtCfg,
	}
}

// MagicLinkRequest is the issuance request body.
type MagicLinkRequest struct {
	Email       string `json:"email"`
	RedirectURL string `json:"redirectUrl"`
}

// VerifyData is the payload of a successful verification.
type VerifyData struct {
	User         UserData `json:"user"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	Expires      int64    `json:"expires"`
}

// UserData is the user subset exposed on verification.
type UserData struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// Request handles POST /auth/magic-link/request. The response is identical
// for every well-formed email, no matter the internal outcome, and is sent
// before any policy check runs; the actual work happens on a detached
// goroutine so a client disconnect cannot drop side effects.
func (h *MagicLinkHandlers) Request(c echo.Context) error {
	ctx := c.Request().Context()

	var req MagicLinkRequest
	if err := c.Bind(&req); err != nil || !emailPattern.MatchString(req.Email) {
		return c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Message: i18n.T(ctx, "invalid_email"),
		})
	}

	link := magiclink.LinkRequest{
		Email:       req.Email,
		RedirectURL: req.RedirectURL,
		IPAddress:   c.RealIP(),
		UserAgent:   optional(c.Request().UserAgent()),
	}

	// Detach from the request context, keep the requester's locale for the
	// email copy.
	bg := i18n.WithLocale(context.Background(),
		i18n.MatchLanguage(c.Request().Header.Get("Accept-Language")))
	go func() {
		if err := h.requester.RequestLink(bg, link); err != nil {
			slog.Error("magic link issuance failed", "error", err)
		}
	}()

	return c.JSON(http.StatusOK, Response{
		Success: true,
		Message: i18n.T(ctx, "magic_link_requested"),
	})
}

// Verify handles GET /auth/magic-link/verify. All token-state and policy
// failures share one generic message and status.
func (h *MagicLinkHandlers) Verify(c echo.Context) error {
	ctx := c.Request().Context()

	rc := session.RequestContext{
		IPAddress: c.RealIP(),
		UserAgent: optional(c.Request().UserAgent()),
		Origin:    optional(c.Request().Header.Get("Origin")),
	}

	result, err := h.verifier.Verify(ctx, c.QueryParam("token"), rc)
	if err != nil {
		var rejection *magiclink.Rejection
		if errors.As(err, &rejection) {
			if rejection.Reason == magiclink.ReasonMissingToken {
				return c.JSON(http.StatusBadRequest, Response{
					Success: false,
					Message: i18n.T(ctx, "missing_token"),
				})
			}
			return c.JSON(http.StatusUnauthorized, Response{
				Success: false,
				Message: i18n.T(ctx, "invalid_link"),
			})
		}

		slog.Error("magic link verification failed", "error", err)
		return c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Message: i18n.T(ctx, "internal_error"),
		})
	}

	h.setRefreshCookie(c, result.Credentials.RefreshToken)

	return c.JSON(http.StatusOK, Response{
		Success: true,
		Message: i18n.T(ctx, "login_success"),
		Data: VerifyData{
			User: UserData{
				ID:        result.User.ID,
				Email:     result.User.Email,
				FirstName: result.User.FirstName,
				LastName:  result.User.LastName,
			},
			AccessToken:  result.Credentials.AccessToken,
			RefreshToken: result.Credentials.RefreshToken,
			Expires:      result.Credentials.Expires,
		},
	})
}

// setRefreshCookie attaches the refresh credential as an HTTP-only cookie.
// Cross-site callers on a secure connection get SameSite=None so browser
// front ends on other origins can keep the session.
func (h *MagicLinkHandlers) setRefreshCookie(c echo.Context, token string) {
	secure := c.IsTLS() || c.Scheme() == "https"

	sameSite := http.SameSiteLaxMode
	if secure && isCrossSite(c) {
		sameSite = http.SameSiteNoneMode
	}

	c.SetCookie(&http.Cookie{
		Name:     h.jwtCfg.RefreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.jwtCfg.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	})
}

func isCrossSite(c echo.Context) bool {
	origin := c.Request().Header.Get("Origin")
	if origin == "" {
		return false
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return parsed.Host != c.Request().Host
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
