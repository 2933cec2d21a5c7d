// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package repository provides database access for users and OTP codes.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vinovest/sqlx"

	"codeberg.org/oliverandrich/go-otp-login/internal/models"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("record not found")

// Repository wraps sqlx for database operations.
type Repository struct {
	db *sqlx.DB
}

// New creates a new Repository instance.
func New(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// DB returns the underlying database handle for direct access.
func (r *Repository) DB() *sqlx.DB {
	return r.db
}

// wrapError converts database errors to repository errors.
func wrapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// ===== User methods =====

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by their email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = ?`, email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// CreateUser creates a new user and returns it with its assigned ID.
func (r *Repository) CreateUser(ctx context.Context, email string) (*models.User, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO users (email) VALUES (?)`, email)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetUserByID(ctx, id)
}

// GetOrCreateUser returns the user for an email, creating it on first
// sign-in.
func (r *Repository) GetOrCreateUser(ctx context.Context, email string) (*models.User, error) {
	user, err := r.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return r.CreateUser(ctx, email)
}

// CountUsers returns the total number of users.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`)
	return count, err
}

// ===== OTP code methods =====

// UpsertOTPCode stores a pending code for (email, purpose), replacing any
// prior one. Replacement is what makes codes effectively single-issue: a
// resend invalidates the previous code.
func (r *Repository) UpsertOTPCode(ctx context.Context, code *models.OTPCode) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO otp_codes (email, purpose, code_hash, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (email, purpose) DO UPDATE SET
		   code_hash = excluded.code_hash,
		   expires_at = excluded.expires_at,
		   created_at = CURRENT_TIMESTAMP`,
		code.Email, code.Purpose, code.CodeHash, code.ExpiresAt)
	return err
}

// GetOTPCode retrieves the pending code for (email, purpose).
func (r *Repository) GetOTPCode(ctx context.Context, email, purpose string) (*models.OTPCode, error) {
	var code models.OTPCode
	err := r.db.GetContext(ctx, &code,
		`SELECT * FROM otp_codes WHERE email = ? AND purpose = ?`, email, purpose)
	if err != nil {
		return nil, wrapError(err)
	}
	return &code, nil
}

// DeleteOTPCode removes the pending code for (email, purpose).
func (r *Repository) DeleteOTPCode(ctx context.Context, email, purpose string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM otp_codes WHERE email = ? AND purpose = ?`, email, purpose)
	return err
}

// DeleteExpiredOTPCodes removes codes past their expiry.
func (r *Repository) DeleteExpiredOTPCodes(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM otp_codes WHERE expires_at < CURRENT_TIMESTAMP`)
	return err
}
