// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"

	"codeberg.org/oliverandrich/go-otp-login/internal/database"
	"codeberg.org/oliverandrich/go-otp-login/internal/repository"
)

// EncryptionKey is the token sealing key used across tests.
const EncryptionKey = "test-encryption-key"

// HashKey is a valid 32-byte hex session hash key for tests.
const HashKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, repository.New(db)
}

// CaptureDelivery records delivered codes instead of sending them.
type CaptureDelivery struct {
	mu    sync.Mutex
	codes map[string]string
	// Err, when set, is returned from Deliver to simulate failures.
	Err error
}

// NewCaptureDelivery creates an empty capture delivery.
func NewCaptureDelivery() *CaptureDelivery {
	return &CaptureDelivery{codes: make(map[string]string)}
}

// Deliver records the code for later lookup.
func (d *CaptureDelivery) Deliver(_ context.Context, email, code string) error {
	if d.Err != nil {
		return d.Err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.codes[email] = code
	return nil
}

// LastCode returns the most recently delivered code for an email.
func (d *CaptureDelivery) LastCode(email string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.codes[email]
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}
