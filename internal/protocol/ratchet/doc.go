// Package ratchet implements the key derivations of the Double Ratchet:
// symmetric chain stepping, message-key expansion, and the root-key
// step performed on every Diffie–Hellman ratchet.
//
// The package is pure computation. Session state handling (chains,
// skipped keys, trust) lives in internal/services/cipher; the group
// variant of the chain lives in internal/services/groups.
package ratchet
