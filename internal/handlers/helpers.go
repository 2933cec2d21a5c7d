// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
)

// Cookie names. MESSAGE_FOUND and ERROR_FOUND are one-shot flash cookies
// consumed by the next page render; EMAIL_ENTERED keeps the entered
// address across redirects; OTP_SETUP carries the sealed pending-sign-in
// state.
const (
	cookieMessage  = "MESSAGE_FOUND"
	cookieError    = "ERROR_FOUND"
	cookieEmail    = "EMAIL_ENTERED"
	cookieOTPSetup = "OTP_SETUP"
)

// setFlash stores a cookie value, URL-escaped so arbitrary text survives
// the cookie grammar.
func setFlash(c echo.Context, name, value string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    url.QueryEscape(value),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// popFlash reads and deletes a flash cookie. Missing or undecodable
// cookies yield "".
func popFlash(c echo.Context, name string) string {
	cookie, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	deleteCookie(c, name)

	value, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return ""
	}
	return value
}

// readCookie returns a cookie value without consuming it.
func readCookie(c echo.Context, name string) string {
	cookie, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	value, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return ""
	}
	return value
}

// deleteCookie expires a cookie immediately.
func deleteCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// redirectWithMessage redirects carrying an informational flash.
func redirectWithMessage(c echo.Context, target, message string) error {
	setFlash(c, cookieMessage, message)
	return c.Redirect(http.StatusFound, target)
}

// redirectWithError redirects carrying an error flash.
func redirectWithError(c echo.Context, target, message string) error {
	setFlash(c, cookieError, message)
	return c.Redirect(http.StatusFound, target)
}

// awaitCodeURL builds the code-entry page URL for an email address.
func awaitCodeURL(email string) string {
	return "/auth/await-code?email=" + url.QueryEscape(email)
}
