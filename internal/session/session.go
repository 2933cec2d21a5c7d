// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session manages the signed (and optionally encrypted) session
// cookie issued after a successful OTP verification. Sessions are
// stateless: everything lives in the securecookie payload.
package session

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"

	"codeberg.org/oliverandrich/go-otp-login/internal/config"
)

// Data is the payload stored in the session cookie.
type Data struct { //nolint:govet // fieldalignment: readability over optimization
	ID       string `json:"id"`
	UserID   int64  `json:"user_id"`
	Email    string `json:"email"`
	IssuedAt int64  `json:"issued_at"` // epoch seconds
}

// Manager creates and reads session cookies.
type Manager struct {
	codec      *securecookie.SecureCookie
	cookieName string
	maxAge     int
	secure     bool
}

// NewManager creates a session manager from the configuration. The hash
// key is required; a block key additionally encrypts the payload.
func NewManager(cfg *config.SessionConfig, secure bool) (*Manager, error) {
	hashKey, err := decodeKey(cfg.HashKey)
	if err != nil {
		return nil, fmt.Errorf("invalid session hash key: %w", err)
	}

	var blockKey []byte
	if cfg.BlockKey != "" {
		blockKey, err = decodeKey(cfg.BlockKey)
		if err != nil {
			return nil, fmt.Errorf("invalid session block key: %w", err)
		}
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(cfg.MaxAge)
	codec.SetSerializer(securecookie.JSONEncoder{})

	return &Manager{
		codec:      codec,
		cookieName: cfg.CookieName,
		maxAge:     cfg.MaxAge,
		secure:     secure,
	}, nil
}

// decodeKey decodes a 32-byte hex key.
func decodeKey(key string) ([]byte, error) {
	decoded, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("key is not valid hex: %w", err)
	}
	if len(decoded) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(decoded))
	}
	return decoded, nil
}

// Create issues a session cookie for the given user.
func (m *Manager) Create(userID int64, email string) (*http.Cookie, error) {
	data := Data{
		ID:       uuid.NewString(),
		UserID:   userID,
		Email:    email,
		IssuedAt: time.Now().Unix(),
	}

	encoded, err := m.codec.Encode(m.cookieName, data)
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}

	return &http.Cookie{
		Name:     m.cookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   m.maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Get returns the session data from the request, or nil when there is no
// valid session. Tampered or expired cookies are treated as absent.
func (m *Manager) Get(r *http.Request) *Data {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		return nil
	}

	var data Data
	if err := m.codec.Decode(m.cookieName, cookie.Value, &data); err != nil {
		return nil
	}
	return &data
}

// Clear returns an expired cookie that deletes the session.
func (m *Manager) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// CookieName returns the configured cookie name.
func (m *Manager) CookieName() string {
	return m.cookieName
}
