// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidActorToken = errors.New("invalid actor token")
	ErrMissingActor      = errors.New("missing actor credentials")
)

func GenerateID(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("failed to generate random ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateActorToken derives the bearer token of an actor from its uid.
func GenerateActorToken(uid, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(uid))
	sum := h.Sum(nil)
	// Use URL-safe base64 and trim padding for cleaner tokens
	return strings.TrimRight(base64.URLEncoding.EncodeToString(sum), "=")
}

func ValidateActorToken(uid, token, salt string) error {
	if uid == "" || token == "" {
		return ErrMissingActor
	}
	expected := GenerateActorToken(uid, salt)
	if !hmac.Equal([]byte(token), []byte(expected)) {
		return ErrInvalidActorToken
	}
	return nil
}

func HashIP(ip, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(ip))
	sum := h.Sum(nil)
	// Return first 16 hex chars (64 bits) - enough for throttling keys
	return hex.EncodeToString(sum[:8])
}
