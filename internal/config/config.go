// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package config defines the application configuration. Values come from
// CLI flags, environment variables and an optional TOML file, in that
// order of precedence. All policy knobs are explicit fields threaded into
// constructors; nothing reads the environment at decision time.
package config

import (
	"fmt"
	"strings"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	SMTP     SMTPConfig
	OTP      OTPConfig
	Session  SessionConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host    string
	Port    int
	BaseURL string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string
	Port     int
	From     string
	FromName string
	Username string
	Password string
	TLS      bool
}

// OTPConfig carries the sign-in policy knobs. ResendInterval is short in
// development so test suites can iterate; production uses a full minute.
type OTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	ResendIntervalSeconds int    // Minimum seconds between code issuances
	MaxCodeAttempts       int    // Failed verifications before lockout
	CodeExpirySeconds     int    // How long an issued code stays valid
	EncryptionKey         string // Seals the client-held state token (required)
	SpoolPath             string // Dev-only file the latest code is written to
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string // Session cookie name
	MaxAge     int    // Session max age in seconds
	HashKey    string // 32-byte hex string for HMAC signing
	BlockKey   string // 32-byte hex string for AES encryption (optional)
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:    cmd.String("host"),
			Port:    int(cmd.Int("port")),
			BaseURL: cmd.String("base-url"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
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
		OTP: OTPConfig{
			ResendIntervalSeconds: int(cmd.Int("otp-resend-interval")),
			MaxCodeAttempts:       int(cmd.Int("otp-max-attempts")),
			CodeExpirySeconds:     int(cmd.Int("otp-code-expiry")),
			EncryptionKey:         cmd.String("otp-encryption-key"),
			SpoolPath:             cmd.String("otp-spool-path"),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			MaxAge:     int(cmd.Int("session-max-age")),
			HashKey:    cmd.String("session-hash-key"),
			BlockKey:   cmd.String("session-block-key"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	return cfg
}

// Validate checks the configuration for fatal omissions.
func (c *Config) Validate() error {
	if c.OTP.EncryptionKey == "" {
		return fmt.Errorf("otp-encryption-key is required")
	}
	if c.Session.HashKey == "" {
		return fmt.Errorf("session-hash-key is required")
	}
	return nil
}

// CookieSecure reports whether cookies should carry the Secure flag.
// Localhost deployments stay on plain HTTP.
func (c *Config) CookieSecure() bool {
	return !IsLocalhost(c.Server.Host)
}

func buildBaseURL(cfg *Config) string {
	scheme := "https"
	if IsLocalhost(cfg.Server.Host) {
		scheme = "http"
	}

	// Hide default ports in URL
	port := cfg.Server.Port
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, cfg.Server.Host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Server.Host, port)
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
			Value:   "./data/app.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host (leave empty for log delivery in development)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address for sign-in codes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Usage:   "Sender display name",
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
		// OTP flags
		&cli.IntFlag{
			Name:    "otp-resend-interval",
			Value:   60,
			Usage:   "Minimum seconds between code requests (use 2 in development)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OTP_RESEND_INTERVAL"), toml.TOML("otp.resend_interval", configFile)),
		},
		&cli.IntFlag{
			Name:    "otp-max-attempts",
			Value:   3,
			Usage:   "Failed code attempts before a fresh sign-in is required",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OTP_MAX_ATTEMPTS"), toml.TOML("otp.max_attempts", configFile)),
		},
		&cli.IntFlag{
			Name:    "otp-code-expiry",
			Value:   900,
			Usage:   "Seconds an issued code stays valid",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OTP_CODE_EXPIRY"), toml.TOML("otp.code_expiry", configFile)),
		},
		&cli.StringFlag{
			Name:    "otp-encryption-key",
			Usage:   "Secret key sealing the OTP state cookie (required)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OTP_ENCRYPTION_KEY"), toml.TOML("otp.encryption_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "otp-spool-path",
			Usage:   "Development-only file the latest code is written to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OTP_SPOOL_PATH"), toml.TOML("otp.spool_path", configFile)),
		},
		// Session flags
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_session",
			Usage:   "Session cookie name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_COOKIE_NAME"), toml.TOML("session.cookie_name", configFile)),
		},
		&cli.IntFlag{
			Name:    "session-max-age",
			Value:   604800, // 7 days in seconds
			Usage:   "Session max age in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_MAX_AGE"), toml.TOML("session.max_age", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Session hash key (32-byte hex)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_HASH_KEY"), toml.TOML("session.hash_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session block key for encryption (32-byte hex, optional)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_BLOCK_KEY"), toml.TOML("session.block_key", configFile)),
		},
	}
}
