// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/oliverandrich/go-otp-login/internal/config"
	"codeberg.org/oliverandrich/go-otp-login/internal/engine"
	"codeberg.org/oliverandrich/go-otp-login/internal/handlers"
	"codeberg.org/oliverandrich/go-otp-login/internal/otp"
	"codeberg.org/oliverandrich/go-otp-login/internal/session"
	"codeberg.org/oliverandrich/go-otp-login/internal/templates"
	"codeberg.org/oliverandrich/go-otp-login/internal/testutil"
)

// testApp runs the full handler stack against an in-memory database,
// keeping cookies across requests like a browser would.
type testApp struct {
	t       *testing.T
	e       *echo.Echo
	capture *testutil.CaptureDelivery
	cookies map[string]*http.Cookie
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	_, repo := testutil.NewTestDB(t)
	capture := testutil.NewCaptureDelivery()

	eng := engine.New(repo, capture, 15*time.Minute)
	flow := otp.NewFlow(eng, otp.Config{
		MinResendIntervalSeconds: 2,
		MaxCodeAttempts:          3,
		EncryptionKey:            testutil.EncryptionKey,
	})

	sessions, err := session.NewManager(&config.SessionConfig{
		CookieName: "session",
		HashKey:    testutil.HashKey,
		MaxAge:     3600,
	}, false)
	require.NoError(t, err)

	e := echo.New()
	renderer, err := templates.New()
	require.NoError(t, err)
	e.Renderer = renderer

	h := handlers.New(sessions)
	auth := handlers.NewAuth(flow, sessions, false)

	e.GET("/health", h.Health)
	e.GET("/", h.Home)
	e.GET("/protected", h.Protected)
	e.GET("/auth/sign-in", auth.SignInPage)
	e.POST("/auth/start-otp", auth.StartOTP)
	e.GET("/auth/await-code", auth.AwaitCodePage)
	e.POST("/auth/finish-otp", auth.FinishOTP)
	e.POST("/auth/resend-code", auth.ResendCode)
	e.GET("/auth/cancel-otp", auth.CancelOTP)
	e.POST("/auth/sign-out", auth.SignOut)

	return &testApp{t: t, e: e, capture: capture, cookies: make(map[string]*http.Cookie)}
}

// do performs a request with the stored cookies and folds any Set-Cookie
// headers back into the jar.
func (a *testApp) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	a.t.Helper()

	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	}
	for _, cookie := range a.cookies {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	for _, cookie := range rec.Result().Cookies() {
		if cookie.MaxAge < 0 {
			delete(a.cookies, cookie.Name)
			continue
		}
		a.cookies[cookie.Name] = cookie
	}
	return rec
}

func (a *testApp) get(path string) *httptest.ResponseRecorder {
	return a.do(http.MethodGet, path, nil)
}

func (a *testApp) post(path string, form url.Values) *httptest.ResponseRecorder {
	return a.do(http.MethodPost, path, form)
}

// flash returns the decoded value of a flash cookie in the jar.
func (a *testApp) flash(name string) string {
	cookie, ok := a.cookies[name]
	if !ok {
		return ""
	}
	value, err := url.QueryUnescape(cookie.Value)
	require.NoError(a.t, err)
	return value
}

func (a *testApp) hasCookie(name string) bool {
	_, ok := a.cookies[name]
	return ok
}

func TestSignInFlow_EndToEnd(t *testing.T) {
	app := newTestApp(t)

	rec := app.post("/auth/start-otp", url.Values{"email": {"fred@example.com"}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/await-code?email=fred%40example.com", rec.Header().Get("Location"))
	assert.True(t, app.hasCookie("OTP_SETUP"))

	rec = app.get("/auth/await-code?email=fred%40example.com")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fred@example.com")

	code := app.capture.LastCode("fred@example.com")
	require.Len(t, code, 6)

	rec = app.post("/auth/finish-otp", url.Values{
		"email": {"fred@example.com"},
		"otp":   {code},
	})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/protected", rec.Header().Get("Location"))
	assert.Equal(t, "Sign in successful!", app.flash("MESSAGE_FOUND"))
	assert.True(t, app.hasCookie("session"))
	assert.False(t, app.hasCookie("OTP_SETUP"), "state cookie must be cleared after sign-in")

	rec = app.get("/protected")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fred@example.com")
}

func TestStartOTP_InvalidEmail(t *testing.T) {
	app := newTestApp(t)

	rec := app.post("/auth/start-otp", url.Values{"email": {"not-an-email"}})

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/sign-in", rec.Header().Get("Location"))
	assert.Equal(t, "Please enter a valid email address", app.flash("ERROR_FOUND"))
	assert.False(t, app.hasCookie("OTP_SETUP"))
}

func TestStartOTP_EmptyEmail(t *testing.T) {
	app := newTestApp(t)

	rec := app.post("/auth/start-otp", url.Values{"email": {""}})

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/sign-in", rec.Header().Get("Location"))
	assert.Equal(t, "Email is required", app.flash("ERROR_FOUND"))
}

func TestFinishOTP_WrongCodesThenLockout(t *testing.T) {
	app := newTestApp(t)

	app.post("/auth/start-otp", url.Values{"email": {"fred@example.com"}})
	form := url.Values{"email": {"fred@example.com"}, "otp": {"000000"}}
	code := app.capture.LastCode("fred@example.com")
	if form.Get("otp") == code {
		form.Set("otp", "000001")
	}

	// First two wrong codes return to the code entry page.
	for i := 1; i <= 2; i++ {
		rec := app.post("/auth/finish-otp", form)
		require.Equal(t, http.StatusFound, rec.Code, "attempt %d", i)
		assert.Equal(t, "/auth/await-code?email=fred%40example.com", rec.Header().Get("Location"))
		assert.Equal(t, "Invalid OTP or verification failed", app.flash("ERROR_FOUND"))
		assert.True(t, app.hasCookie("OTP_SETUP"))
	}

	// The third one locks the attempt out and restarts.
	rec := app.post("/auth/finish-otp", form)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/sign-in", rec.Header().Get("Location"))
	assert.Equal(t, "Too many failed attempts. Please sign in again.", app.flash("ERROR_FOUND"))
	assert.False(t, app.hasCookie("OTP_SETUP"), "state cookie must be cleared on lockout")
	assert.False(t, app.hasCookie("session"))
}

func TestFinishOTP_EmptyCode(t *testing.T) {
	app := newTestApp(t)

	app.post("/auth/start-otp", url.Values{"email": {"fred@example.com"}})
	rec := app.post("/auth/finish-otp", url.Values{
		"email": {"fred@example.com"},
		"otp":   {""},
	})

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/await-code?email=fred%40example.com", rec.Header().Get("Location"))
	assert.Contains(t, app.flash("ERROR_FOUND"), "Resend")

	// The real code still works afterwards.
	rec = app.post("/auth/finish-otp", url.Values{
		"email": {"fred@example.com"},
		"otp":   {app.capture.LastCode("fred@example.com")},
	})
	assert.Equal(t, "/protected", rec.Header().Get("Location"))
}

func TestResendCode_Throttled(t *testing.T) {
	app := newTestApp(t)

	app.post("/auth/start-otp", url.Values{"email": {"fred@example.com"}})
	first := app.capture.LastCode("fred@example.com")
	token := app.cookies["OTP_SETUP"].Value

	rec := app.post("/auth/resend-code", url.Values{"email": {"fred@example.com"}})

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/await-code?email=fred%40example.com", rec.Header().Get("Location"))
	assert.Equal(t,
		"Please wait another 2 seconds before asking for another code, to give time for the email to arrive.",
		app.flash("MESSAGE_FOUND"))
	assert.Empty(t, app.flash("ERROR_FOUND"), "a throttled resend is not an error")
	assert.Equal(t, token, app.cookies["OTP_SETUP"].Value, "token must be unchanged")
	assert.Equal(t, first, app.capture.LastCode("fred@example.com"), "no new code may be sent")
}

func TestResendCode_AfterInterval(t *testing.T) {
	app := newTestApp(t)

	app.post("/auth/start-otp", url.Values{"email": {"fred@example.com"}})
	token := app.cookies["OTP_SETUP"].Value

	time.Sleep(2100 * time.Millisecond)

	rec := app.post("/auth/resend-code", url.Values{"email": {"fred@example.com"}})

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "Code sent! Please check your email (including spam folder).",
		app.flash("MESSAGE_FOUND"))
	assert.NotEqual(t, token, app.cookies["OTP_SETUP"].Value, "resend must issue a fresh token")

	// The freshly delivered code signs in.
	rec = app.post("/auth/finish-otp", url.Values{
		"email": {"fred@example.com"},
		"otp":   {app.capture.LastCode("fred@example.com")},
	})
	assert.Equal(t, "/protected", rec.Header().Get("Location"))
}

func TestResendCode_WithoutPendingSignIn(t *testing.T) {
	app := newTestApp(t)

	rec := app.post("/auth/resend-code", url.Values{"email": {"fred@example.com"}})

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/sign-in", rec.Header().Get("Location"))
	assert.Equal(t, "Your sign-in request has expired, please sign in again",
		app.flash("ERROR_FOUND"))
}

func TestCancelOTP(t *testing.T) {
	app := newTestApp(t)

	app.post("/auth/start-otp", url.Values{"email": {"fred@example.com"}})
	require.True(t, app.hasCookie("OTP_SETUP"))

	rec := app.get("/auth/cancel-otp")

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.False(t, app.hasCookie("OTP_SETUP"))
	assert.False(t, app.hasCookie("EMAIL_ENTERED"))
}

func TestSignOut(t *testing.T) {
	app := newTestApp(t)

	app.post("/auth/start-otp", url.Values{"email": {"fred@example.com"}})
	app.post("/auth/finish-otp", url.Values{
		"email": {"fred@example.com"},
		"otp":   {app.capture.LastCode("fred@example.com")},
	})
	require.True(t, app.hasCookie("session"))

	rec := app.post("/auth/sign-out", nil)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, "Sign out successful", app.flash("MESSAGE_FOUND"))
	assert.False(t, app.hasCookie("session"))

	rec = app.get("/protected")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestAwaitCodePage_WithoutEmail(t *testing.T) {
	app := newTestApp(t)

	rec := app.get("/auth/await-code")

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/sign-in", rec.Header().Get("Location"))
	assert.Equal(t, "Email is required", app.flash("ERROR_FOUND"))
}

func TestSignInPage_RefillsEmail(t *testing.T) {
	app := newTestApp(t)

	// A failed start keeps the entered address for the form.
	app.post("/auth/start-otp", url.Values{"email": {"fred@broken"}})

	rec := app.get("/auth/sign-in")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fred@broken")
	assert.Contains(t, rec.Body.String(), "Please enter a valid email address")
}
