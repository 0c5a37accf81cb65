package helpers

import (
	"crypto/rand"
	"encoding/base64"
)

// Redis key builders for the opaque-token flows.

// KeyConfirmToken maps an email-confirmation token to an email address.
func KeyConfirmToken(t string) string { return "email:confirm:token:" + t }

// KeyResetToken maps a password-reset token to an email address.
func KeyResetToken(t string) string { return "pwd:reset:token:" + t }

// GenOpaqueToken returns n random bytes as a URL-safe base64 string.
func GenOpaqueToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
