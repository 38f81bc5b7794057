package adapters

import (
	"crypto/hmac"
	"crypto/sha256"
)

// HMACSHA256 signs payload with secret.
func HMACSHA256(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}

// EqualMAC compares two MACs in constant time.
func EqualMAC(expected, got []byte) bool {
	return hmac.Equal(expected, got)
}
