package transport

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ssouza/wamd/internal/crypto"
	"github.com/ssouza/wamd/internal/domain"
	"github.com/ssouza/wamd/internal/keys"
)

// ErrNotReady is returned before the outer handshake installed
// transport keys.
var ErrNotReady = errors.New("transport keys not set")

// AEAD seals and opens socket frames against the keys state counters.
type AEAD struct {
	keys *keys.Keys
}

// New constructs the transport AEAD.
func New(ks *keys.Keys) *AEAD {
	return &AEAD{keys: ks}
}

// Encrypt seals one outbound frame. The write counter is consumed even
// if sealing fails, so a nonce can never be reused.
func (t *AEAD) Encrypt(plaintext, ad []byte) ([]byte, error) {
	writeKey, _ := t.keys.TransportKeys()
	if writeKey == nil {
		return nil, ErrNotReady
	}
	counter, err := t.keys.BumpWriteCounter()
	if err != nil {
		return nil, err
	}
	return crypto.EncryptGCM(writeKey, nonce(counter), ad, plaintext)
}

// Decrypt opens one inbound frame. The read counter is consumed
// unconditionally; a frame that fails to open reports a MAC mismatch.
func (t *AEAD) Decrypt(ciphertext, ad []byte) ([]byte, error) {
	_, readKey := t.keys.TransportKeys()
	if readKey == nil {
		return nil, ErrNotReady
	}
	counter, err := t.keys.BumpReadCounter()
	if err != nil {
		return nil, err
	}
	pt, err := crypto.DecryptGCM(readKey, nonce(counter), ad, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: transport frame %d", domain.ErrMacMismatch, counter)
	}
	return pt, nil
}

func nonce(counter uint64) []byte {
	b := make([]byte, crypto.GCMNonceSize)
	binary.LittleEndian.PutUint64(b, counter)
	return b
}
