// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package seal provides a reversible, tamper-evident encoding for short
// strings that must round-trip through an untrusted client (cookies).
//
// The wire format is base64(iv):base64(tag):base64(ciphertext) using
// AES-256-GCM with a key derived from an arbitrary-length passphrase.
// Decoding fails closed: anything that does not authenticate yields
// "no value", never an error or a panic.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ivSize is the GCM nonce length in bytes. 16 bytes rather than the GCM
// default of 12 to stay wire-compatible with existing tokens.
const ivSize = 16

var (
	// ErrNoKey is returned when the encryption key is empty. This is a
	// deployment configuration error, not a runtime condition.
	ErrNoKey = errors.New("encryption key is empty")

	// ErrEmptyPlaintext is returned when there is nothing to seal.
	ErrEmptyPlaintext = errors.New("plaintext is empty")
)

// deriveKey turns an arbitrary passphrase into a fixed 32-byte AES key.
func deriveKey(key string) []byte {
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}

// Seal encrypts plaintext with the given passphrase. Each call uses a fresh
// random IV, so sealing the same plaintext twice yields different tokens.
func Seal(plaintext, key string) (string, error) {
	if key == "" {
		return "", ErrNoKey
	}
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	block, err := aes.NewCipher(deriveKey(key))
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating IV: %w", err)
	}

	// GCM appends the 16-byte auth tag to the ciphertext; split it off so
	// the token carries iv, tag and ciphertext as separate segments.
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(iv),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(ciphertext),
	}, ":"), nil
}

// Unseal decrypts a token produced by Seal. It returns ok=false for any
// malformed, truncated or tampered input, including a wrong key. Callers
// treat that the same as an absent token.
func Unseal(token, key string) (string, bool) {
	if token == "" || key == "" {
		return "", false
	}

	parts := strings.Split(token, ":")
	if len(parts) < 3 {
		return "", false
	}

	iv, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", false
	}
	tag, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", false
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", false
	}

	block, err := aes.NewCipher(deriveKey(key))
	if err != nil {
		return "", false
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return "", false
	}
	if len(tag) != gcm.Overhead() {
		return "", false
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", false
	}

	return string(plaintext), true
}
