// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package otp

// RecordFailure records one failed verification against the current code.
// It returns the updated state and whether the attempt budget is now
// exhausted. Once lockedOut is true the token must be discarded and the
// user sent back to email entry; the state is no longer valid for further
// verification.
func RecordFailure(state SetupState, maxAttempts int) (SetupState, bool) {
	state.CodeAttempts++
	return state, state.CodeAttempts >= maxAttempts
}
