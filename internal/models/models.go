// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package models contains the database row types.
package models

import "time"

// User is an account created on first successful OTP sign-in.
type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// OTPCode stores a pending one-time passcode. Only the bcrypt hash of the
// code is persisted; the plaintext exists solely in the delivery email.
// At most one pending code exists per (email, purpose).
type OTPCode struct { //nolint:govet // fieldalignment: readability over optimization
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Purpose   string    `db:"purpose" json:"purpose"`
	CodeHash  string    `db:"code_hash" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Expired reports whether the code is past its expiry at the given time.
func (c *OTPCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
