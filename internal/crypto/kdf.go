package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDF runs RFC 5869 HKDF-SHA256. A nil salt means a zero salt of hash
// length, as the Signal derivations expect.
func HKDF(ikm, salt, info []byte, length int) ([]byte, error) {
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, info), out); err != nil {
		return nil, err
	}
	return out, nil
}

// HMACSHA256 returns the full 32-byte tag.
func HMACSHA256(key []byte, parts ...[]byte) []byte {
	h := hmac.New(sha256.New, key)
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// HMACSHA512 returns the full 64-byte tag.
func HMACSHA512(key []byte, parts ...[]byte) []byte {
	h := hmac.New(sha512.New, key)
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// HMACEqual compares two tags in constant time.
func HMACEqual(a, b []byte) bool { return hmac.Equal(a, b) }
