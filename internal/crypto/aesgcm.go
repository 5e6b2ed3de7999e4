package crypto

import (
	"crypto/aes"
	"crypto/cipher"
)

// GCMNonceSize is the nonce width the transport AEAD uses.
const GCMNonceSize = 12

// EncryptGCM seals plaintext with AES-256-GCM.
func EncryptGCM(key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// DecryptGCM opens AES-256-GCM ciphertext.
func DecryptGCM(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, aad)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
