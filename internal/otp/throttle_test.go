// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package otp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"codeberg.org/oliverandrich/go-otp-login/internal/otp"
)

func TestSecondsRemaining(t *testing.T) {
	issued := int64(1_700_000_000_000)

	tests := []struct {
		name      string
		elapsedMs int64
		interval  int
		want      int
	}{
		{"at issuance", 0, 60, 60},
		{"sub-second elapsed", 999, 60, 60},
		{"one second elapsed", 1000, 60, 59},
		{"half way", 30_000, 60, 30},
		{"one second left", 59_000, 60, 1},
		{"exactly allowed", 60_000, 60, 0},
		{"past the window", 61_500, 60, -1},
		{"short dev interval", 2_100, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := otp.SecondsRemaining(issued, issued+tt.elapsedMs, tt.interval)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSecondsRemaining_NonIncreasing(t *testing.T) {
	issued := int64(1_700_000_000_000)

	prev := otp.SecondsRemaining(issued, issued, 60)
	for elapsed := int64(0); elapsed <= 70_000; elapsed += 350 {
		got := otp.SecondsRemaining(issued, issued+elapsed, 60)
		assert.LessOrEqual(t, got, prev)
		prev = got
	}
}
