// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package magiclink_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"

	"github.com/carwei/directus-magic-link-auth/internal/config"
	"github.com/carwei/directus-magic-link-auth/internal/models"
	"github.com/carwei/directus-magic-link-auth/internal/repository"
	"github.com/carwei/directus-magic-link-auth/internal/services/eligibility"
	"github.com/carwei/directus-magic-link-auth/internal/services/magiclink"
	"github.com/carwei/directus-magic-link-auth/internal/services/session"
	"github.com/carwei/directus-magic-link-auth/internal/testutil"
)

type fakeNotifier struct {
	calls   int
	to      string
	url     string
	minutes int
	err     error
}

func (f *fakeNotifier) SendLoginLink(_ context.Context, to, url string, validMinutes int) error {
	f.calls++
	f.to = to
	f.url = url
	f.minutes = validMinutes
	return f.err
}

type fakeExchanger struct {
	calls int
	creds *session.Credentials
	err   error
}

func (f *fakeExchanger) Exchange(_ context.Context, _ *models.User, _ session.RequestContext) (*session.Credentials, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.creds, nil
}

type env struct {
	svc  *magiclink.Service
	db   *sqlx.DB
	repo *repository.Repository
	mail *fakeNotifier
	exch *fakeExchanger
	cfg  *config.MagicLinkConfig
}

func newEnv(t *testing.T, gate *eligibility.Gate) *env {
	t.Helper()

	db, repo := testutil.NewTestDB(t)
	if gate == nil {
		gate = eligibility.NewGate(nil, nil)
	}
	cfg := &config.MagicLinkConfig{
		ExpirationMinutes:  15,
		MaxRequestsPerHour: 5,
		VerifyPath:         "/auth/magic-link/verify",
	}
	mail := &fakeNotifier{}
	exch := &fakeExchanger{creds: &session.Credentials{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expires:      (15 * time.Minute).Milliseconds(),
	}}
	svc := magiclink.NewService(repo, gate, mail, exch, cfg, "https://auth.example.com")
	return &env{svc: svc, db: db, repo: repo, mail: mail, exch: exch, cfg: cfg}
}

func tokensFor(t *testing.T, db *sqlx.DB, email string) []models.MagicLinkToken {
	t.Helper()
	var rows []models.MagicLinkToken
	require.NoError(t, db.Select(&rows,
		`SELECT * FROM magic_link_tokens WHERE email = ? ORDER BY created_at, id`, email))
	return rows
}

func insertToken(t *testing.T, repo *repository.Repository, email string, used bool, expiresAt time.Time) *models.MagicLinkToken {
	t.Helper()
	row := &models.MagicLinkToken{
		ID:        uuid.NewString(),
		Email:     email,
		Token:     uuid.NewString(),
		ExpiresAt: expiresAt,
		IPAddress: "127.0.0.1",
		Used:      used,
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.CreateMagicLinkToken(context.Background(), row))
	return row
}

func TestRequestLink_IssuesAndSends(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	role := "editor"
	testutil.NewTestUser(t, e.db, "user-1", "user@example.com", &role)

	err := e.svc.RequestLink(ctx, magiclink.LinkRequest{
		Email:     "user@example.com",
		IPAddress: "10.0.0.1",
		UserAgent: testutil.StrPtr("test-agent"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, e.mail.calls)
	assert.Equal(t, "user@example.com", e.mail.to)
	assert.Equal(t, 15, e.mail.minutes)

	rows := tokensFor(t, e.db, "user@example.com")
	require.Len(t, rows, 1)
	row := rows[0]
	assert.False(t, row.Used)
	assert.Len(t, row.Token, 64) // 32 random bytes, hex encoded
	assert.WithinDuration(t, row.CreatedAt.Add(15*time.Minute), row.ExpiresAt, time.Second)
	require.NotNil(t, row.EmailSent)
	assert.True(t, *row.EmailSent)
	assert.Nil(t, row.EmailError)

	assert.Equal(t,
		"https://auth.example.com/auth/magic-link/verify?token="+row.Token,
		e.mail.url)
}

func TestRequestLink_RedirectBaseWins(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	testutil.NewTestUser(t, e.db, "user-1", "user@example.com", nil)

	err := e.svc.RequestLink(ctx, magiclink.LinkRequest{
		Email:       "user@example.com",
		RedirectURL: "https://app.example.com/login?lang=de",
		IPAddress:   "10.0.0.1",
	})
	require.NoError(t, err)

	rows := tokensFor(t, e.db, "user@example.com")
	require.Len(t, rows, 1)
	assert.Equal(t,
		"https://app.example.com/login?lang=de&token="+rows[0].Token,
		e.mail.url)
}

func TestRequestLink_SupersedesPreviousToken(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	testutil.NewTestUser(t, e.db, "user-1", "user@example.com", nil)
	old := insertToken(t, e.repo, "user@example.com", false, time.Now().Add(10*time.Minute))

	err := e.svc.RequestLink(ctx, magiclink.LinkRequest{
		Email:     "user@example.com",
		IPAddress: "10.0.0.1",
	})
	require.NoError(t, err)

	superseded, err := e.repo.GetMagicLinkToken(ctx, old.Token)
	require.NoError(t, err)
	assert.True(t, superseded.Used)
	require.NotNil(t, superseded.EmailError)
	assert.Equal(t, "superseded by new token", *superseded.EmailError)

	rows := tokensFor(t, e.db, "user@example.com")
	require.Len(t, rows, 2)

	var live int
	for _, row := range rows {
		if row.Live(time.Now()) {
			live++
		}
	}
	assert.Equal(t, 1, live, "exactly one live token after reissue")
}

func TestRequestLink_UnknownUserLeavesAuditRow(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	err := e.svc.RequestLink(ctx, magiclink.LinkRequest{
		Email:     "stranger@example.com",
		IPAddress: "10.0.0.1",
	})
	require.NoError(t, err)

	assert.Zero(t, e.mail.calls)

	rows := tokensFor(t, e.db, "stranger@example.com")
	require.Len(t, rows, 1)
	row := rows[0]
	assert.True(t, row.Used)
	assert.WithinDuration(t, row.CreatedAt.Add(time.Minute), row.ExpiresAt, time.Second)
	require.NotNil(t, row.EmailSent)
	assert.False(t, *row.EmailSent)
	require.NotNil(t, row.EmailError)
	assert.Equal(t, "user does not exist", *row.EmailError)
}

func TestRequestLink_RoleDenied(t *testing.T) {
	e := newEnv(t, eligibility.NewGate([]string{"editor"}, nil))
	ctx := context.Background()

	role := "viewer"
	testutil.NewTestUser(t, e.db, "user-1", "user@example.com", &role)

	err := e.svc.RequestLink(ctx, magiclink.LinkRequest{
		Email:     "user@example.com",
		IPAddress: "10.0.0.1",
	})
	require.NoError(t, err)

	assert.Zero(t, e.mail.calls)

	rows := tokensFor(t, e.db, "user@example.com")
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Used)
	require.NotNil(t, rows[0].EmailError)
	assert.Equal(t, "role not allowed by policy", *rows[0].EmailError)
}

func TestRequestLink_RateLimited(t *testing.T) {
	e := newEnv(t, nil)
	e.cfg.MaxRequestsPerHour = 2
	ctx := context.Background()

	testutil.NewTestUser(t, e.db, "user-1", "user@example.com", nil)

	require.NoError(t, e.svc.RequestLink(ctx, magiclink.LinkRequest{
		Email: "user@example.com", IPAddress: "10.0.0.1"}))
	require.NoError(t, e.svc.RequestLink(ctx, magiclink.LinkRequest{
		Email: "user@example.com", IPAddress: "10.0.0.1"}))
	assert.Equal(t, 2, e.mail.calls)

	// Third request hits the ceiling: no email, every live token revoked.
	require.NoError(t, e.svc.RequestLink(ctx, magiclink.LinkRequest{
		Email: "user@example.com", IPAddress: "10.0.0.1"}))
	assert.Equal(t, 2, e.mail.calls)

	rows := tokensFor(t, e.db, "user@example.com")
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.True(t, row.Used)
	}

	var limited int
	for _, row := range rows {
		if row.EmailError != nil && *row.EmailError == "rate limit exceeded" {
			limited++
		}
	}
	assert.Equal(t, 2, limited, "revoked live token plus the audit row")
}

func TestRequestLink_DeliveryFailureRecorded(t *testing.T) {
	e := newEnv(t, nil)
	e.mail.err = errors.New("smtp: connection refused")
	ctx := context.Background()

	testutil.NewTestUser(t, e.db, "user-1", "user@example.com", nil)

	err := e.svc.RequestLink(ctx, magiclink.LinkRequest{
		Email:     "user@example.com",
		IPAddress: "10.0.0.1",
	})
	require.NoError(t, err)

	rows := tokensFor(t, e.db, "user@example.com")
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].EmailSent)
	assert.False(t, *rows[0].EmailSent)
	require.NotNil(t, rows[0].EmailError)
	assert.Equal(t, "smtp: connection refused", *rows[0].EmailError)
}

func TestVerify_Success(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	role := "editor"
	user := testutil.NewTestUser(t, e.db, "user-1", "user@example.com", &role)
	row := insertToken(t, e.repo, user.Email, false, time.Now().Add(10*time.Minute))

	result, err := e.svc.Verify(ctx, row.Token, session.RequestContext{IPAddress: "10.0.0.1"})

	require.NoError(t, err)
	assert.Equal(t, "user-1", result.User.ID)
	assert.Equal(t, "access", result.Credentials.AccessToken)
	assert.Equal(t, 1, e.exch.calls)

	// The token is not consumed: mail clients prefetch links, so it stays
	// redeemable until it expires or is superseded.
	stored, err := e.repo.GetMagicLinkToken(ctx, row.Token)
	require.NoError(t, err)
	assert.False(t, stored.Used)

	_, err = e.svc.Verify(ctx, row.Token, session.RequestContext{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, 2, e.exch.calls)
}

func TestVerify_MissingToken(t *testing.T) {
	e := newEnv(t, nil)

	_, err := e.svc.Verify(context.Background(), "", session.RequestContext{})

	var rejection *magiclink.Rejection
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, magiclink.ReasonMissingToken, rejection.Reason)
}

func TestVerify_UnknownToken(t *testing.T) {
	e := newEnv(t, nil)

	_, err := e.svc.Verify(context.Background(), "no-such-token", session.RequestContext{})

	var rejection *magiclink.Rejection
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, magiclink.ReasonNotFound, rejection.Reason)
}

func TestVerify_Expired(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	testutil.NewTestUser(t, e.db, "user-1", "user@example.com", nil)
	row := insertToken(t, e.repo, "user@example.com", false, time.Now().Add(-time.Minute))

	_, err := e.svc.Verify(ctx, row.Token, session.RequestContext{})

	var rejection *magiclink.Rejection
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, magiclink.ReasonExpired, rejection.Reason)
}

func TestVerify_AlreadyUsed(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	testutil.NewTestUser(t, e.db, "user-1", "user@example.com", nil)
	row := insertToken(t, e.repo, "user@example.com", true, time.Now().Add(10*time.Minute))

	_, err := e.svc.Verify(ctx, row.Token, session.RequestContext{})

	var rejection *magiclink.Rejection
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, magiclink.ReasonAlreadyUsed, rejection.Reason)
}

func TestVerify_ExpiredBeatsUsed(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	row := insertToken(t, e.repo, "user@example.com", true, time.Now().Add(-time.Minute))

	_, err := e.svc.Verify(ctx, row.Token, session.RequestContext{})

	var rejection *magiclink.Rejection
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, magiclink.ReasonExpired, rejection.Reason)
}

func TestVerify_UserVanished(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	row := insertToken(t, e.repo, "gone@example.com", false, time.Now().Add(10*time.Minute))

	_, err := e.svc.Verify(ctx, row.Token, session.RequestContext{})

	var rejection *magiclink.Rejection
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, magiclink.ReasonUserVanished, rejection.Reason)
}

func TestVerify_RoleRevokedAfterIssuance(t *testing.T) {
	e := newEnv(t, eligibility.NewGate(nil, []string{"suspended"}))
	ctx := context.Background()

	role := "suspended"
	testutil.NewTestUser(t, e.db, "user-1", "user@example.com", &role)
	row := insertToken(t, e.repo, "user@example.com", false, time.Now().Add(10*time.Minute))

	_, err := e.svc.Verify(ctx, row.Token, session.RequestContext{})

	var rejection *magiclink.Rejection
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, magiclink.ReasonRoleIneligible, rejection.Reason)
}

func TestVerify_ExchangeFailureKeepsTokenLive(t *testing.T) {
	e := newEnv(t, nil)
	e.exch.err = errors.New("database is locked")
	ctx := context.Background()

	testutil.NewTestUser(t, e.db, "user-1", "user@example.com", nil)
	row := insertToken(t, e.repo, "user@example.com", false, time.Now().Add(10*time.Minute))

	_, err := e.svc.Verify(ctx, row.Token, session.RequestContext{})

	require.Error(t, err)
	var rejection *magiclink.Rejection
	assert.False(t, errors.As(err, &rejection), "infrastructure failures are not rejections")

	stored, err := e.repo.GetMagicLinkToken(ctx, row.Token)
	require.NoError(t, err)
	assert.True(t, stored.Live(time.Now()))
}
