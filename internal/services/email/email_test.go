// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carwei/directus-magic-link-auth/internal/config"
	"github.com/carwei/directus-magic-link-auth/internal/services/email"
)

func TestNewService(t *testing.T) {
	svc, err := email.NewService(&config.SMTPConfig{
		Host: "smtp.example.com",
		From: "auth@example.com",
	}, "Your login link")

	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestNewService_RequiresHost(t *testing.T) {
	_, err := email.NewService(&config.SMTPConfig{From: "auth@example.com"}, "Your login link")

	assert.ErrorContains(t, err, "SMTP host")
}

func TestNewService_RequiresFrom(t *testing.T) {
	_, err := email.NewService(&config.SMTPConfig{Host: "smtp.example.com"}, "Your login link")

	assert.ErrorContains(t, err, "from address")
}
