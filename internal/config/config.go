// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	TLS       TLSConfig
	MagicLink MagicLinkConfig
	SMTP      SMTPConfig
	JWT       JWTConfig
}

type TLSConfig struct {
	Mode     string // auto, acme, selfsigned, manual, off
	CertDir  string // Directory for auto-generated certificates
	Email    string // ACME email for Let's Encrypt
	CertFile string // Path to certificate file (manual mode)
	KeyFile  string // Path to private key file (manual mode)
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	PublicURL   string // Base for links handed out in emails, defaults to BaseURL
	MaxBodySize int    // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

// MagicLinkConfig controls the token lifecycle policy.
type MagicLinkConfig struct { //nolint:govet // fieldalignment not critical
	ExpirationMinutes  int      // Token validity window
	MaxRequestsPerHour int      // Issuance ceiling per email per trailing hour
	AllowedRoles       []string // Allow-list of role IDs; empty means unrestricted
	DeniedRoles        []string // Deny-list of role IDs; empty means unrestricted
	VerifyPath         string   // Default verification endpoint path
	EmailSubject       string   // Subject line of the login email
}

// Expiration returns the token validity window as a duration.
func (c *MagicLinkConfig) Expiration() time.Duration {
	return time.Duration(c.ExpirationMinutes) * time.Minute
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	From     string
	FromName string
	Username string
	Password string
	TLS      bool
}

// JWTConfig controls the credentials minted by the session exchanger.
type JWTConfig struct { //nolint:govet // fieldalignment not critical
	Secret            string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	RefreshCookieName string
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			PublicURL:   cmd.String("public-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			Email:    cmd.String("tls-email"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		MagicLink: MagicLinkConfig{
			ExpirationMinutes:  int(cmd.Int("magic-link-expiration-minutes")),
			MaxRequestsPerHour: int(cmd.Int("magic-link-max-requests-per-hour")),
			AllowedRoles:       cmd.StringSlice("magic-link-allowed-roles"),
			DeniedRoles:        cmd.StringSlice("magic-link-denied-roles"),
			VerifyPath:         cmd.String("magic-link-verify-path"),
			EmailSubject:       cmd.String("magic-link-email-subject"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		JWT: JWTConfig{
			Secret:            cmd.String("jwt-secret"),
			AccessTTL:         cmd.Duration("access-token-ttl"),
			RefreshTTL:        cmd.Duration("refresh-token-ttl"),
			RefreshCookieName: cmd.String("refresh-cookie-name"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = cfg.Server.BaseURL
	}
	cfg.Server.PublicURL = strings.TrimSuffix(cfg.Server.PublicURL, "/")

	return cfg
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	mode := strings.ToLower(cfg.TLS.Mode)

	// Determine if TLS will be used
	useTLS := shouldUseTLS(mode, host)

	scheme := "http"
	if useTLS {
		scheme = "https"
	}

	// ACME mode always uses port 443
	if mode == "acme" {
		return fmt.Sprintf("https://%s", host)
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func shouldUseTLS(mode, host string) bool {
	switch mode {
	case "off":
		return false
	case "acme", "selfsigned", "manual":
		return true
	default: // "auto" or empty
		return !IsLocalhost(host)
	}
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.StringFlag{
			Name:    "public-url",
			Usage:   "Public base URL used in login links (defaults to base URL)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PUBLIC_URL"), toml.TOML("server.public_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/auth.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "auto",
			Usage:   "TLS mode (auto, acme, selfsigned, manual, off)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_MODE"), toml.TOML("tls.mode", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Directory for auto-generated certificates",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_DIR"), toml.TOML("tls.cert_dir", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-email",
			Usage:   "Email for ACME/Let's Encrypt registration",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_EMAIL"), toml.TOML("tls.email", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_FILE"), toml.TOML("tls.cert_file", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_KEY_FILE"), toml.TOML("tls.key_file", configFile)),
		},
		// Magic link flags
		&cli.IntFlag{
			Name:    "magic-link-expiration-minutes",
			Value:   15,
			Usage:   "Minutes a login link stays valid",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAGIC_LINK_EXPIRATION_MINUTES"), toml.TOML("magic_link.expiration_minutes", configFile)),
		},
		&cli.IntFlag{
			Name:    "magic-link-max-requests-per-hour",
			Value:   5,
			Usage:   "Issuance ceiling per email per trailing hour",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAGIC_LINK_MAX_REQUESTS_PER_HOUR"), toml.TOML("magic_link.max_requests_per_hour", configFile)),
		},
		&cli.StringSliceFlag{
			Name:    "magic-link-allowed-roles",
			Usage:   "Role IDs allowed to use magic links (empty: unrestricted)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAGIC_LINK_ALLOWED_ROLES"), toml.TOML("magic_link.allowed_roles", configFile)),
		},
		&cli.StringSliceFlag{
			Name:    "magic-link-denied-roles",
			Usage:   "Role IDs denied from using magic links",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAGIC_LINK_DENIED_ROLES"), toml.TOML("magic_link.denied_roles", configFile)),
		},
		&cli.StringFlag{
			Name:    "magic-link-verify-path",
			Value:   "/auth/magic-link/verify",
			Usage:   "Default verification endpoint path",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAGIC_LINK_VERIFY_PATH"), toml.TOML("magic_link.verify_path", configFile)),
		},
		&cli.StringFlag{
			Name:    "magic-link-email-subject",
			Value:   "Your login link",
			Usage:   "Subject line of the login email",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAGIC_LINK_EMAIL_SUBJECT"), toml.TOML("magic_link.email_subject", configFile)),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "From address for outgoing email",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Usage:   "Display name for the from address",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		// JWT / session flags
		&cli.StringFlag{
			Name:    "jwt-secret",
			Usage:   "Secret for signing access tokens",
			Sources: cli.NewValueSourceChain(cli.EnvVar("JWT_SECRET"), toml.TOML("jwt.secret", configFile)),
		},
		&cli.DurationFlag{
			Name:    "access-token-ttl",
			Value:   15 * time.Minute,
			Usage:   "Access token lifetime",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ACCESS_TOKEN_TTL"), toml.TOML("jwt.access_token_ttl", configFile)),
		},
		&cli.DurationFlag{
			Name:    "refresh-token-ttl",
			Value:   168 * time.Hour,
			Usage:   "Refresh token lifetime",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REFRESH_TOKEN_TTL"), toml.TOML("jwt.refresh_token_ttl", configFile)),
		},
		&cli.StringFlag{
			Name:    "refresh-cookie-name",
			Value:   "refresh_token",
			Usage:   "Name of the HTTP-only refresh cookie",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REFRESH_COOKIE_NAME"), toml.TOML("jwt.refresh_cookie_name", configFile)),
		},
	}
}
