package ratchet

import (
	"github.com/ssouza/wamd/internal/crypto"
	"github.com/ssouza/wamd/internal/util/memzero"
)

// Chain-key step constants per the Signal specification.
var (
	seedMessageKey = []byte{0x01}
	seedChainKey   = []byte{0x02}
)

// HKDF labels.
var (
	infoRoot        = []byte("WhisperRatchet")
	infoMessageKeys = []byte("WhisperMessageKeys")
	infoGroup       = []byte("WhisperGroup")
)

// MessageKeys is the expanded material for exactly one message.
type MessageKeys struct {
	CipherKey []byte // 32 bytes, AES-256-CBC
	MacKey    []byte // 32 bytes, HMAC-SHA256
	IV        []byte // 16 bytes
}

// Wipe zeroes the key material.
func (mk *MessageKeys) Wipe() {
	memzero.Zero(mk.CipherKey)
	memzero.Zero(mk.MacKey)
	memzero.Zero(mk.IV)
}

// NextChainKey advances a chain key one step.
func NextChainKey(chainKey []byte) []byte {
	return crypto.HMACSHA256(chainKey, seedChainKey)
}

// MessageKeySeed derives the per-message seed without advancing the chain.
func MessageKeySeed(chainKey []byte) []byte {
	return crypto.HMACSHA256(chainKey, seedMessageKey)
}

// DeriveMessageKeys expands a message-key seed into cipher key, MAC key
// and IV.
func DeriveMessageKeys(seed []byte) (MessageKeys, error) {
	okm, err := crypto.HKDF(seed, nil, infoMessageKeys, 80)
	if err != nil {
		return MessageKeys{}, err
	}
	return MessageKeys{
		CipherKey: okm[0:32],
		MacKey:    okm[32:64],
		IV:        okm[64:80],
	}, nil
}

// StepRootKey mixes a fresh DH output into the root key, producing the
// next root key and a new chain key.
func StepRootKey(rootKey, dh []byte) (newRoot, chainKey []byte, err error) {
	okm, err := crypto.HKDF(dh, rootKey, infoRoot, 64)
	if err != nil {
		return nil, nil, err
	}
	return okm[:32], okm[32:], nil
}

// GroupKeys is the expanded material for one group message.
type GroupKeys struct {
	IV        []byte // 16 bytes
	CipherKey []byte // 32 bytes
}

// Wipe zeroes the key material.
func (gk *GroupKeys) Wipe() {
	memzero.Zero(gk.IV)
	memzero.Zero(gk.CipherKey)
}

// DeriveGroupKeys expands a sender-key message seed into IV and cipher
// key.
func DeriveGroupKeys(seed []byte) (GroupKeys, error) {
	okm, err := crypto.HKDF(seed, nil, infoGroup, 48)
	if err != nil {
		return GroupKeys{}, err
	}
	return GroupKeys{IV: okm[0:16], CipherKey: okm[16:48]}, nil
}
