package store

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"github.com/ssouza/wamd/internal/domain"
	"github.com/ssouza/wamd/internal/util/memzero"
)

// At-rest envelope for the keys document: scrypt KEK + ChaCha20-Poly1305.
// The salt doubles as associated data.

type envelope struct {
	Salt  []byte `json:"salt"`
	Nonce []byte `json:"nonce"`
	CT    []byte `json:"ct"`
}

func scryptParams() (N, r, p int) { return 1 << 15, 8, 1 }

func sealEnvelope(passphrase string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	aead, err := envelopeAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	ct := aead.Seal(nil, nonce, plaintext, salt)
	return json.Marshal(envelope{Salt: salt, Nonce: nonce, CT: ct})
}

func openEnvelope(passphrase string, blob []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", domain.ErrPersistence, err)
	}
	aead, err := envelopeAEAD(passphrase, env.Salt)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, env.Nonce, env.CT, env.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: open envelope: %v", domain.ErrPersistence, err)
	}
	return pt, nil
}

func envelopeAEAD(passphrase string, salt []byte) (cipher.AEAD, error) {
	N, r, p := scryptParams()
	kek, err := scrypt.Key([]byte(passphrase), salt, N, r, p, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	defer memzero.Zero(kek)
	return chacha20poly1305.New(kek)
}
