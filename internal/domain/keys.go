package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// IsZero reports whether the key is all zeros.
func (p X25519Public) IsZero() bool { return p == X25519Public{} }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// Signature is an XEdDSA signature over a Curve25519 key.
type Signature [64]byte

// Slice returns the signature as a []byte.
func (s Signature) Slice() []byte { return s[:] }

// KeyPair is an X25519 scalar and its public point.
type KeyPair struct {
	Priv X25519Private `json:"private"`
	Pub  X25519Public  `json:"public"`
}

// SignedKeyPair is a key pair whose public component is signed by the
// identity key. The id is a rolling unsigned 24-bit value.
type SignedKeyPair struct {
	ID        uint32    `json:"id"`
	KeyPair   KeyPair   `json:"key_pair"`
	Signature Signature `json:"signature"`
}

// PreKey is a one-time pre-key. It is consumed at most once by an
// incoming pre-key message.
type PreKey struct {
	ID      uint32  `json:"id"`
	KeyPair KeyPair `json:"key_pair"`
}

// AppStateSyncKey decrypts app-state snapshots and patches. Immutable
// once inserted.
type AppStateSyncKey struct {
	KeyID       []byte `json:"key_id"`
	KeyData     []byte `json:"key_data"`
	Fingerprint []byte `json:"fingerprint,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

func marshalB64(b []byte) ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(b))
}

func unmarshalB64(data []byte, want int, dst []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != want {
		return fmt.Errorf("bad key length: %d != %d", len(raw), want)
	}
	copy(dst, raw)
	return nil
}

// MarshalJSON encodes the key as base64.
func (p X25519Public) MarshalJSON() ([]byte, error) { return marshalB64(p[:]) }

// UnmarshalJSON decodes the key from base64.
func (p *X25519Public) UnmarshalJSON(data []byte) error { return unmarshalB64(data, 32, p[:]) }

// MarshalJSON encodes the key as base64.
func (k X25519Private) MarshalJSON() ([]byte, error) { return marshalB64(k[:]) }

// UnmarshalJSON decodes the key from base64.
func (k *X25519Private) UnmarshalJSON(data []byte) error { return unmarshalB64(data, 32, k[:]) }

// MarshalJSON encodes the signature as base64.
func (s Signature) MarshalJSON() ([]byte, error) { return marshalB64(s[:]) }

// UnmarshalJSON decodes the signature from base64.
func (s *Signature) UnmarshalJSON(data []byte) error { return unmarshalB64(data, 64, s[:]) }
