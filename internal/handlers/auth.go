// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/go-otp-login/internal/otp"
	"codeberg.org/oliverandrich/go-otp-login/internal/session"
	"codeberg.org/oliverandrich/go-otp-login/internal/templates"
)

const (
	signInPath = "/auth/sign-in"
	homePath   = "/"
	afterAuth  = "/protected"
)

// AuthHandlers contains the OTP sign-in handlers. They translate flow
// results into redirects and cookies; all policy lives in the flow.
type AuthHandlers struct {
	flow     *otp.Flow
	sessions *session.Manager
	secure   bool
}

// NewAuth creates a new AuthHandlers instance. secure controls the Secure
// flag on the OTP state cookie.
func NewAuth(flow *otp.Flow, sessions *session.Manager, secure bool) *AuthHandlers {
	return &AuthHandlers{flow: flow, sessions: sessions, secure: secure}
}

// otpCookie returns the sealed state token as stored. The token is
// base64 segments and goes into the cookie verbatim, so it must not pass
// through the flash escaping ('+' would round-trip as a space).
func otpCookie(c echo.Context) string {
	cookie, err := c.Cookie(cookieOTPSetup)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// setOTPCookie stores (or with an empty token deletes) the sealed state.
func (h *AuthHandlers) setOTPCookie(c echo.Context, token string) {
	cookie := &http.Cookie{
		Name:     cookieOTPSetup,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if token == "" {
		cookie.MaxAge = -1
	}
	c.SetCookie(cookie)
}

// SignInPage renders the email entry page.
func (h *AuthHandlers) SignInPage(c echo.Context) error {
	return c.Render(http.StatusOK, "sign_in.html", templates.PageData{
		Email:   readCookie(c, cookieEmail),
		Message: popFlash(c, cookieMessage),
		Error:   popFlash(c, cookieError),
	})
}

// AwaitCodePage renders the code entry page. The email comes from the
// query or the EMAIL_ENTERED cookie; without one there is nothing to
// verify against, so the user is sent back to email entry.
func (h *AuthHandlers) AwaitCodePage(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		email = readCookie(c, cookieEmail)
	}
	if email == "" {
		return redirectWithError(c, signInPath, "Email is required")
	}

	return c.Render(http.StatusOK, "await_code.html", templates.PageData{
		Email:   email,
		Message: popFlash(c, cookieMessage),
		Error:   popFlash(c, cookieError),
	})
}

// StartOTP begins the sign-in: issue a code and move to the code entry
// page.
func (h *AuthHandlers) StartOTP(c echo.Context) error {
	email := c.FormValue("email")
	// Keep the entered value so the sign-in form can re-fill it.
	setFlash(c, cookieEmail, email)

	res := h.flow.Start(c.Request().Context(), email)
	if res.Next != otp.StepAwaitingCode {
		return redirectWithError(c, signInPath, res.Message)
	}

	if res.Token != "" {
		h.setOTPCookie(c, res.Token)
	}
	return c.Redirect(http.StatusFound, awaitCodeURL(res.Email))
}

// FinishOTP verifies the submitted code.
func (h *AuthHandlers) FinishOTP(c echo.Context) error {
	email := c.FormValue("email")
	code := c.FormValue("otp")
	token := otpCookie(c)

	res := h.flow.Verify(c.Request().Context(), email, code, token)
	switch res.Next {
	case otp.StepSignedIn:
		cookie, err := h.sessions.Create(res.Identity.UserID, res.Identity.Email)
		if err != nil {
			return redirectWithError(c, awaitCodeURL(res.Email), "Failed to verify OTP")
		}
		c.SetCookie(cookie)
		h.setOTPCookie(c, "")
		deleteCookie(c, cookieEmail)
		return redirectWithMessage(c, afterAuth, res.Message)

	case otp.StepAwaitingCode:
		h.setOTPCookie(c, res.Token)
		setFlash(c, cookieEmail, res.Email)
		return redirectWithError(c, awaitCodeURL(res.Email), res.Message)

	case otp.StepRestart, otp.StepReenterEmail:
		h.setOTPCookie(c, "")
		setFlash(c, cookieEmail, res.Email)
		return redirectWithError(c, signInPath, res.Message)
	}

	return redirectWithError(c, signInPath, "Failed to verify OTP")
}

// ResendCode re-issues a code, subject to the throttle.
func (h *AuthHandlers) ResendCode(c echo.Context) error {
	email := c.FormValue("email")
	token := otpCookie(c)

	res := h.flow.Resend(c.Request().Context(), email, token)
	switch res.Next {
	case otp.StepAwaitingCode:
		h.setOTPCookie(c, res.Token)
		setFlash(c, cookieEmail, res.Email)
		if res.IsError {
			return redirectWithError(c, awaitCodeURL(res.Email), res.Message)
		}
		return redirectWithMessage(c, awaitCodeURL(res.Email), res.Message)

	case otp.StepReenterEmail:
		setFlash(c, cookieEmail, res.Email)
		return redirectWithError(c, signInPath, res.Message)

	default: // StepRestart
		h.setOTPCookie(c, "")
		return redirectWithError(c, signInPath, res.Message)
	}
}

// CancelOTP abandons the pending sign-in and returns home.
func (h *AuthHandlers) CancelOTP(c echo.Context) error {
	h.flow.Cancel()
	h.setOTPCookie(c, "")
	deleteCookie(c, cookieEmail)
	return c.Redirect(http.StatusFound, homePath)
}

// SignOut clears the session and all sign-in cookies.
func (h *AuthHandlers) SignOut(c echo.Context) error {
	c.SetCookie(h.sessions.Clear())
	h.setOTPCookie(c, "")
	deleteCookie(c, cookieEmail)
	return redirectWithMessage(c, homePath, "Sign out successful")
}
