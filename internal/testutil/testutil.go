// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"

	"github.com/carwei/directus-magic-link-auth/internal/database"
	"github.com/carwei/directus-magic-link-auth/internal/models"
	"github.com/carwei/directus-magic-link-auth/internal/repository"
)

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestUser inserts a directory user. The directory is read-only for the
// service, so tests write it directly.
func NewTestUser(t *testing.T, db *sqlx.DB, id, email string, role *string) *models.User {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO users (id, email, first_name, last_name, role) VALUES (?, ?, ?, ?, ?)`,
		id, email, "Test", "User", role)
	require.NoError(t, err)

	first := "Test"
	last := "User"
	return &models.User{
		ID:        id,
		Email:     email,
		FirstName: &first,
		LastName:  &last,
		Role:      role,
	}
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// StrPtr returns a pointer to the given string.
func StrPtr(s string) *string {
	return &s
}
