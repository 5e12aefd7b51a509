package common

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// HashSecret keys an HMAC-SHA256 over a single secret. Backup codes and
// credential fingerprints are stored and compared only in this form, never
// as plaintext.
func HashSecret(key string, secret string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

// GenerateSecret returns n characters of URL-safe random material, drawing
// one random byte per character of output.
func GenerateSecret(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:n], nil
}
