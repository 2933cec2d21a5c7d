// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// PurposeSignIn is the purpose passed to the engine for sign-in codes.
const PurposeSignIn = "sign-in"

// MaxEmailLength is the RFC 5321 limit on address length.
const MaxEmailLength = 254

// emailPattern accepts local@domain.tld shapes.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidEmail reports whether the address has an acceptable shape. This is
// a routing check only; authorization is the engine's job.
func ValidEmail(email string) bool {
	return email != "" && len(email) <= MaxEmailLength && emailPattern.MatchString(email)
}

// Engine outcome errors. VerifyCode must return one of these (possibly
// wrapped) for the two expected rejections; anything else is treated as a
// transport failure.
var (
	ErrCodeExpired  = errors.New("code expired")
	ErrCodeMismatch = errors.New("code invalid or mismatched")
)

// Identity is the authenticated identity the engine hands back on a
// successful verification.
type Identity struct {
	UserID int64
	Email  string
}

// Engine is the external OTP engine: it owns generation, storage and
// validation of the actual codes. The flow only observes its outcomes.
type Engine interface {
	IssueCode(ctx context.Context, email, purpose string) error
	VerifyCode(ctx context.Context, email, code string) (Identity, error)
}

// Step tells the caller which screen comes next.
type Step string

const (
	// StepAwaitingCode keeps (or puts) the user on the code-entry screen.
	StepAwaitingCode Step = "awaiting-code"
	// StepReenterEmail returns to email entry with the entered value kept.
	StepReenterEmail Step = "re-enter-email"
	// StepRestart forces a fresh sign-in; all pending state is gone.
	StepRestart Step = "restart"
	// StepSignedIn hands off to the session layer.
	StepSignedIn Step = "signed-in"
)

// Result is the outcome of one flow operation. Token is the sealed state
// the caller must hand back to the client ("" means delete it); Message is
// user-facing copy; Identity is set only for StepSignedIn. LockedOut marks
// the restart as an attempt-budget lockout rather than a generic failure.
type Result struct {
	Next      Step
	Token     string
	Email     string
	Message   string
	Identity  Identity
	LockedOut bool
	// IsError distinguishes corrective messages from informational ones so
	// the rendering layer can style them apart. A throttled resend is
	// informational, not an error.
	IsError bool
}

// User-facing messages. These are part of the tested contract.
const (
	msgEmailRequired = "Email is required"
	msgEmailInvalid  = "Please enter a valid email address"
	msgCodeRequired  = "You must supply the code sent to your email address. " +
		"Check your spam filter, and after a few minutes, if it hasn't arrived, " +
		"click the 'Resend' button below to try again."
	msgSendFailed   = "Failed to send OTP"
	msgVerifyFailed = "Failed to verify OTP"
	msgResendFailed = "Failed to resend code"
	msgExpired      = "OTP has expired, please sign in again"
	msgInvalidCode  = "Invalid OTP or verification failed"
	msgLockedOut    = "Too many failed attempts. Please sign in again."
	msgSignedIn     = "Sign in successful!"
	msgCodeSent     = "Code sent! Please check your email (including spam folder)."
	msgNoSession    = "Your sign-in request has expired, please sign in again"
)

// Config carries the policy knobs for the flow. All fields are explicit so
// tests can inject short intervals instead of toggling environments.
type Config struct {
	// MinResendIntervalSeconds is the throttle window between code
	// issuances (production 60, development/test 2).
	MinResendIntervalSeconds int
	// MaxCodeAttempts is the failed-verification budget per code.
	MaxCodeAttempts int
	// EncryptionKey seals the client-held state token.
	EncryptionKey string
}

// Flow is the OTP lifecycle state machine. It is stateless between calls:
// every decision is recomputed from the sealed token presented with the
// request, so concurrent requests need no coordination here.
type Flow struct {
	engine Engine
	cfg    Config
	now    func() time.Time
}

// NewFlow creates a flow around the given engine and policy configuration.
func NewFlow(engine Engine, cfg Config) *Flow {
	if cfg.MaxCodeAttempts <= 0 {
		cfg.MaxCodeAttempts = 3
	}
	if cfg.MinResendIntervalSeconds <= 0 {
		cfg.MinResendIntervalSeconds = 60
	}
	return &Flow{engine: engine, cfg: cfg, now: time.Now}
}

// WithClock replaces the flow's time source. Tests use this to step
// through throttle windows deterministically.
func (f *Flow) WithClock(now func() time.Time) *Flow {
	f.now = now
	return f
}

// Start validates the email, asks the engine to issue a code and returns a
// fresh sealed token. No raw error escapes; every failure is folded into a
// Result the rendering layer can act on.
func (f *Flow) Start(ctx context.Context, email string) Result {
	email = strings.TrimSpace(email)
	if email == "" {
		return Result{Next: StepReenterEmail, Email: email, Message: msgEmailRequired, IsError: true}
	}
	if !ValidEmail(email) {
		return Result{Next: StepReenterEmail, Email: email, Message: msgEmailInvalid, IsError: true}
	}

	if err := f.engine.IssueCode(ctx, email, PurposeSignIn); err != nil {
		slog.Error("otp_issue_failed", "email", email, "error", err)
		return Result{Next: StepReenterEmail, Email: email, Message: msgSendFailed, IsError: true}
	}

	token, err := EncodeState(NewSetupState(f.now()), f.cfg.EncryptionKey)
	if err != nil {
		// The code was sent; without a token the user can still verify,
		// only the resend throttle and attempt counter lose their anchor.
		slog.Error("otp_state_seal_failed", "error", err)
		token = ""
	}

	return Result{
		Next:    StepAwaitingCode,
		Token:   token,
		Email:   email,
		Message: fmt.Sprintf("Please enter the code sent to %s", email),
	}
}

// Verify checks a submitted code against the engine and applies the
// attempt policy on rejection. The shape checks run before the engine is
// consulted: a missing or short code costs neither an engine call nor an
// attempt.
func (f *Flow) Verify(ctx context.Context, email, code, token string) Result {
	email = strings.TrimSpace(email)
	if !ValidEmail(email) {
		return Result{Next: StepReenterEmail, Email: email, Message: msgEmailInvalid, IsError: true}
	}

	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return Result{Next: StepAwaitingCode, Token: token, Email: email, Message: msgCodeRequired, IsError: true}
	}

	identity, err := f.engine.VerifyCode(ctx, email, code)
	switch {
	case err == nil:
		slog.Info("otp_verify_success", "email", email)
		return Result{Next: StepSignedIn, Email: email, Message: msgSignedIn, Identity: identity}

	case errors.Is(err, ErrCodeExpired):
		slog.Info("otp_verify_expired", "email", email)
		return Result{Next: StepRestart, Email: email, Message: msgExpired, IsError: true}

	case errors.Is(err, ErrCodeMismatch):
		return f.recordFailedAttempt(email, token)

	default:
		slog.Error("otp_verify_failed", "email", email, "error", err)
		return Result{Next: StepAwaitingCode, Token: token, Email: email, Message: msgVerifyFailed, IsError: true}
	}
}

// recordFailedAttempt applies the attempt policy to the state decoded from
// the presented token. An undecodable token counts as zero prior attempts:
// the engine already rejected the code, so failing open on the counter
// costs nothing.
func (f *Flow) recordFailedAttempt(email, token string) Result {
	state, ok := DecodeState(token, f.cfg.EncryptionKey)
	if !ok {
		state = SetupState{Time: f.now().UnixMilli()}
	}

	state, lockedOut := RecordFailure(state, f.cfg.MaxCodeAttempts)
	if lockedOut {
		slog.Warn("otp_locked_out", "email", email, "attempts", state.CodeAttempts)
		return Result{Next: StepRestart, Email: email, Message: msgLockedOut, LockedOut: true, IsError: true}
	}

	newToken, err := EncodeState(state, f.cfg.EncryptionKey)
	if err != nil {
		slog.Error("otp_state_seal_failed", "error", err)
		newToken = token
	}

	slog.Info("otp_verify_rejected", "email", email, "attempts", state.CodeAttempts)
	return Result{Next: StepAwaitingCode, Token: newToken, Email: email, Message: msgInvalidCode, IsError: true}
}

// Resend re-issues a code if the throttle window has passed. A throttled
// request returns the presented token untouched so neither the issuance
// time nor the attempt counter is reset. A successful resend replaces the
// state wholesale: new code, fresh attempt budget.
func (f *Flow) Resend(ctx context.Context, email, token string) Result {
	email = strings.TrimSpace(email)
	if !ValidEmail(email) {
		return Result{Next: StepReenterEmail, Email: email, Message: msgEmailInvalid, IsError: true}
	}

	state, ok := DecodeState(token, f.cfg.EncryptionKey)
	if !ok {
		// Without the last issuance time there is no throttle anchor, so
		// a resend cannot be honored.
		slog.Warn("otp_resend_no_state", "email", email)
		return Result{Next: StepRestart, Email: email, Message: msgNoSession, IsError: true}
	}

	remaining := SecondsRemaining(state.Time, f.now().UnixMilli(), f.cfg.MinResendIntervalSeconds)
	if remaining > 0 {
		return Result{
			Next:  StepAwaitingCode,
			Token: token,
			Email: email,
			Message: fmt.Sprintf(
				"Please wait another %d seconds before asking for another code, to give time for the email to arrive.",
				remaining,
			),
		}
	}

	if err := f.engine.IssueCode(ctx, email, PurposeSignIn); err != nil {
		slog.Error("otp_resend_failed", "email", email, "error", err)
		return Result{Next: StepAwaitingCode, Token: token, Email: email, Message: msgResendFailed, IsError: true}
	}

	newToken, err := EncodeState(NewSetupState(f.now()), f.cfg.EncryptionKey)
	if err != nil {
		slog.Error("otp_state_seal_failed", "error", err)
		newToken = ""
	}

	slog.Info("otp_resend_success", "email", email)
	return Result{Next: StepAwaitingCode, Token: newToken, Email: email, Message: msgCodeSent}
}

// Cancel abandons the pending sign-in. The caller deletes the token.
func (f *Flow) Cancel() Result {
	return Result{Next: StepRestart}
}
