// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package delivery sends one-time passcodes to users. The engine depends
// only on the CodeDelivery interface; production wires SMTP, development
// wires the log spool.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/wneessen/go-mail"

	"codeberg.org/oliverandrich/go-otp-login/internal/config"
)

// CodeDelivery delivers a sign-in code to an email address.
type CodeDelivery interface {
	Deliver(ctx context.Context, email, code string) error
}

// SMTP delivers codes by email via go-mail.
type SMTP struct {
	cfg *config.SMTPConfig
}

// NewSMTP creates an SMTP delivery from the given configuration.
func NewSMTP(cfg *config.SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}
	return &SMTP{cfg: cfg}, nil
}

// Deliver sends the code in a short plain-text email.
func (s *SMTP) Deliver(ctx context.Context, email, code string) error {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(email); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject("Your sign-in code")
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Your sign-in code is: %s\n\nIt expires shortly. If you did not request it, ignore this email.\n", code))

	// Build client options
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	// Configure TLS based on config and port
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Use implicit TLS (SSL) for port 465, STARTTLS for others
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	// Add authentication if credentials are provided
	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

// Log delivers codes to the server log, optionally spooling the latest
// code to a file so local end-to-end tests can read it back. Development
// only; never enabled in production.
type Log struct {
	SpoolPath string
}

// Deliver logs the code and writes it to the spool file if configured.
func (l *Log) Deliver(_ context.Context, email, code string) error {
	slog.Info("otp_code_delivery", "email", email, "code", code)

	if l.SpoolPath != "" {
		if err := os.WriteFile(l.SpoolPath, []byte(code), 0o600); err != nil {
			slog.Error("otp_spool_write_failed", "path", l.SpoolPath, "error", err)
		}
	}

	return nil
}
