// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package otp implements the lifecycle of an email one-time-passcode
// sign-in: issuing, verifying with a bounded attempt budget, resend
// throttling and cancellation. All pending-sign-in state lives in an
// encrypted token held by the client; the server keeps nothing.
package otp

import (
	"encoding/json"
	"time"

	"codeberg.org/oliverandrich/go-otp-login/internal/seal"
)

// SetupState is the pending-sign-in state carried inside the sealed token.
// Time is when the currently live code was issued (epoch milliseconds);
// CodeAttempts counts failed verifications against that code. The JSON
// field names are the token wire format and must not change.
type SetupState struct {
	Time         int64 `json:"time"`
	CodeAttempts int   `json:"codeAttempts"`
}

// NewSetupState returns a fresh state for a code issued at the given time.
func NewSetupState(now time.Time) SetupState {
	return SetupState{Time: now.UnixMilli(), CodeAttempts: 0}
}

// EncodeState seals a state into an opaque client-safe token.
func EncodeState(state SetupState, key string) (string, error) {
	plaintext, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return seal.Seal(string(plaintext), key)
}

// DecodeState recovers a state from a sealed token. Any failure (absent
// token, tampering, wrong key, malformed JSON) yields ok=false; callers
// treat that the same as "no pending sign-in".
func DecodeState(token, key string) (SetupState, bool) {
	plaintext, ok := seal.Unseal(token, key)
	if !ok {
		return SetupState{}, false
	}

	var state SetupState
	if err := json.Unmarshal([]byte(plaintext), &state); err != nil {
		return SetupState{}, false
	}
	return state, true
}
