// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package engine is the OTP engine: it generates, stores and validates the
// actual sign-in codes. The lifecycle flow in internal/otp only observes
// its outcomes through the otp.Engine interface.
package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"codeberg.org/oliverandrich/go-otp-login/internal/delivery"
	"codeberg.org/oliverandrich/go-otp-login/internal/models"
	"codeberg.org/oliverandrich/go-otp-login/internal/otp"
	"codeberg.org/oliverandrich/go-otp-login/internal/repository"
)

// CodeLength is the number of digits in a generated code.
const CodeLength = 6

// Engine issues and validates one-time passcodes backed by the database.
// Codes are stored bcrypt-hashed and consumed on first successful
// verification.
type Engine struct {
	repo     *repository.Repository
	delivery delivery.CodeDelivery
	expiry   time.Duration
	now      func() time.Time
}

// New creates an engine. codeExpiry bounds how long an issued code stays
// valid (default 15 minutes when zero).
func New(repo *repository.Repository, d delivery.CodeDelivery, codeExpiry time.Duration) *Engine {
	if codeExpiry <= 0 {
		codeExpiry = 15 * time.Minute
	}
	return &Engine{repo: repo, delivery: d, expiry: codeExpiry, now: time.Now}
}

// WithClock replaces the engine's time source for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// generateCode returns a random zero-padded 6-digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}
	return fmt.Sprintf("%06d", n), nil
}

// IssueCode generates a fresh code for (email, purpose), replacing any
// pending one, and hands it to the delivery channel. The plaintext code is
// never stored.
func (e *Engine) IssueCode(ctx context.Context, email, purpose string) error {
	code, err := generateCode()
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing code: %w", err)
	}

	record := &models.OTPCode{
		Email:     email,
		Purpose:   purpose,
		CodeHash:  string(hash),
		ExpiresAt: e.now().Add(e.expiry),
	}
	if err := e.repo.UpsertOTPCode(ctx, record); err != nil {
		return fmt.Errorf("storing code: %w", err)
	}

	if err := e.delivery.Deliver(ctx, email, code); err != nil {
		// The undeliverable code must not stay verifiable.
		if delErr := e.repo.DeleteOTPCode(ctx, email, purpose); delErr != nil {
			slog.Error("otp_code_cleanup_failed", "email", email, "error", delErr)
		}
		return fmt.Errorf("delivering code: %w", err)
	}

	slog.Info("otp_code_issued", "email", email, "purpose", purpose)
	return nil
}

// VerifyCode checks a submitted code for the sign-in purpose. Expired
// codes yield otp.ErrCodeExpired, anything that does not match yields
// otp.ErrCodeMismatch. On success the code is consumed and the user row is
// created on first sign-in.
func (e *Engine) VerifyCode(ctx context.Context, email, code string) (otp.Identity, error) {
	record, err := e.repo.GetOTPCode(ctx, email, otp.PurposeSignIn)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return otp.Identity{}, otp.ErrCodeMismatch
		}
		return otp.Identity{}, fmt.Errorf("loading code: %w", err)
	}

	if record.Expired(e.now()) {
		if err := e.repo.DeleteOTPCode(ctx, email, otp.PurposeSignIn); err != nil {
			slog.Error("otp_code_cleanup_failed", "email", email, "error", err)
		}
		return otp.Identity{}, otp.ErrCodeExpired
	}

	if err := bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(code)); err != nil {
		return otp.Identity{}, otp.ErrCodeMismatch
	}

	// Single use: consume before handing back the identity.
	if err := e.repo.DeleteOTPCode(ctx, email, otp.PurposeSignIn); err != nil {
		return otp.Identity{}, fmt.Errorf("consuming code: %w", err)
	}

	user, err := e.repo.GetOrCreateUser(ctx, email)
	if err != nil {
		return otp.Identity{}, fmt.Errorf("resolving user: %w", err)
	}

	return otp.Identity{UserID: user.ID, Email: user.Email}, nil
}
