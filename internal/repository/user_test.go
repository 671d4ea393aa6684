// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carwei/directus-magic-link-auth/internal/repository"
	"github.com/carwei/directus-magic-link-auth/internal/testutil"
)

func TestGetUserByEmail(t *testing.T) {
	db, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	role := "editor"
	testutil.NewTestUser(t, db, "user-1", "user@example.com", &role)

	got, err := repo.GetUserByEmail(ctx, "user@example.com")

	require.NoError(t, err)
	assert.Equal(t, "user-1", got.ID)
	assert.Equal(t, "user@example.com", got.Email)
	require.NotNil(t, got.Role)
	assert.Equal(t, "editor", *got.Role)
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	_, err := repo.GetUserByEmail(ctx, "missing@example.com")

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGetUserByID_NilRole(t *testing.T) {
	db, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	testutil.NewTestUser(t, db, "user-2", "noroles@example.com", nil)

	got, err := repo.GetUserByID(ctx, "user-2")

	require.NoError(t, err)
	assert.Equal(t, "noroles@example.com", got.Email)
	assert.Nil(t, got.Role)
}
