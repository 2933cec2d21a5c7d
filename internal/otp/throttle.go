// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package otp

// SecondsRemaining reports how many seconds must still pass before another
// code may be requested. Values <= 0 mean a resend is permitted. Both
// timestamps are epoch milliseconds; elapsed time is floored to whole
// seconds, so the result is exactly minIntervalSeconds at now == issuedAt.
func SecondsRemaining(issuedAtMs, nowMs int64, minIntervalSeconds int) int {
	elapsed := (nowMs - issuedAtMs) / 1000
	return minIntervalSeconds - int(elapsed)
}
