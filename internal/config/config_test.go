// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func TestIsLocalhost(t *testing.T) {
	tests := []struct {
		host     string
		expected bool
	}{
		{"", true},
		{"localhost", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"app.localhost", true},
		{"sub.domain.localhost", true},
		{"example.com", false},
		{"www.example.com", false},
		{"192.168.1.1", false},
		{"localhost.com", false}, // not a real localhost
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsLocalhost(tt.host))
		})
	}
}

func TestShouldUseTLS(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		host     string
		expected bool
	}{
		{"off mode", "off", "example.com", false},
		{"acme mode", "acme", "localhost", true},
		{"selfsigned mode", "selfsigned", "localhost", true},
		{"manual mode", "manual", "localhost", true},
		{"auto mode with localhost", "auto", "localhost", false},
		{"auto mode with remote host", "auto", "example.com", true},
		{"empty mode with localhost", "", "localhost", false},
		{"empty mode with remote host", "", "example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, shouldUseTLS(tt.mode, tt.host))
		})
	}
}

// parseConfig runs the CLI with the given args and captures the config.
func parseConfig(t *testing.T, args ...string) *Config {
	t.Helper()

	var cfg *Config
	cmd := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg = NewFromCLI(cmd)
			return nil
		},
	}

	err := cmd.Run(context.Background(), append([]string{"test"}, args...))
	require.NoError(t, err)
	require.NotNil(t, cfg)
	return cfg
}

func TestNewFromCLI_Defaults(t *testing.T) {
	cfg := parseConfig(t)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "http://localhost:8080", cfg.Server.BaseURL)
	assert.Equal(t, cfg.Server.BaseURL, cfg.Server.PublicURL)
	assert.Equal(t, 15, cfg.MagicLink.ExpirationMinutes)
	assert.Equal(t, 5, cfg.MagicLink.MaxRequestsPerHour)
	assert.Empty(t, cfg.MagicLink.AllowedRoles)
	assert.Empty(t, cfg.MagicLink.DeniedRoles)
	assert.Equal(t, "/auth/magic-link/verify", cfg.MagicLink.VerifyPath)
	assert.Equal(t, "Your login link", cfg.MagicLink.EmailSubject)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.JWT.RefreshTTL)
	assert.Equal(t, "refresh_token", cfg.JWT.RefreshCookieName)
}

func TestNewFromCLI_MagicLinkOverrides(t *testing.T) {
	cfg := parseConfig(t,
		"--magic-link-expiration-minutes", "5",
		"--magic-link-max-requests-per-hour", "2",
		"--magic-link-allowed-roles", "editor",
		"--magic-link-allowed-roles", "admin",
		"--magic-link-denied-roles", "bot",
	)

	assert.Equal(t, 5, cfg.MagicLink.ExpirationMinutes)
	assert.Equal(t, 5*time.Minute, cfg.MagicLink.Expiration())
	assert.Equal(t, 2, cfg.MagicLink.MaxRequestsPerHour)
	assert.Equal(t, []string{"editor", "admin"}, cfg.MagicLink.AllowedRoles)
	assert.Equal(t, []string{"bot"}, cfg.MagicLink.DeniedRoles)
}

func TestNewFromCLI_PublicURLTrailingSlash(t *testing.T) {
	cfg := parseConfig(t, "--public-url", "https://auth.example.com/")

	assert.Equal(t, "https://auth.example.com", cfg.Server.PublicURL)
}
