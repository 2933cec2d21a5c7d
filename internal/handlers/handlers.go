// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers contains the HTTP handlers. POST handlers follow the
// redirect-with-flash pattern: they never render pages themselves, they
// set a message or error cookie and redirect to the page that shows it.
package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/go-otp-login/internal/session"
	"codeberg.org/oliverandrich/go-otp-login/internal/templates"
)

// Handlers contains the page handlers outside the auth flow.
type Handlers struct {
	sessions *session.Manager
}

// New creates a new Handlers instance.
func New(sessions *session.Manager) *Handlers {
	return &Handlers{sessions: sessions}
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Home renders the home page.
func (h *Handlers) Home(c echo.Context) error {
	data := templates.PageData{
		Message: popFlash(c, cookieMessage),
		Error:   popFlash(c, cookieError),
	}
	if sess := h.sessions.Get(c.Request()); sess != nil {
		data.Email = sess.Email
	}
	return c.Render(http.StatusOK, "home.html", data)
}

// Protected renders the protected page; unauthenticated visitors are sent
// back to the home page.
func (h *Handlers) Protected(c echo.Context) error {
	sess := h.sessions.Get(c.Request())
	if sess == nil {
		return c.Redirect(http.StatusFound, "/")
	}
	return c.Render(http.StatusOK, "protected.html", templates.PageData{
		Email:   sess.Email,
		Message: popFlash(c, cookieMessage),
		Error:   popFlash(c, cookieError),
	})
}
