// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	rec := app.get("/health")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHome_Anonymous(t *testing.T) {
	app := newTestApp(t)

	rec := app.get("/")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sign in")
}

func TestHome_ConsumesFlash(t *testing.T) {
	app := newTestApp(t)
	app.cookies["MESSAGE_FOUND"] = &http.Cookie{
		Name:  "MESSAGE_FOUND",
		Value: url.QueryEscape("Sign out successful"),
	}

	rec := app.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sign out successful")
	assert.False(t, app.hasCookie("MESSAGE_FOUND"), "flash must be one-shot")

	rec = app.get("/")
	assert.NotContains(t, rec.Body.String(), "Sign out successful")
}

func TestHome_ShowsSignedInUser(t *testing.T) {
	app := newTestApp(t)

	app.post("/auth/start-otp", url.Values{"email": {"fred@example.com"}})
	app.post("/auth/finish-otp", url.Values{
		"email": {"fred@example.com"},
		"otp":   {app.capture.LastCode("fred@example.com")},
	})

	rec := app.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fred@example.com")
}

func TestProtected_RequiresSession(t *testing.T) {
	app := newTestApp(t)

	rec := app.get("/protected")

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}
