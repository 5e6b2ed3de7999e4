// Package crypto exposes the primitives used by the session layer.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateKeyPair,
//     KeyPairFromPrivate, DH)
//   - XEdDSA signing and verification with Curve25519 identity keys
//     (Sign, Verify)
//   - HKDF-SHA256 and HMAC-SHA256 helpers (HKDF, HMACSHA256)
//   - AES-256-CBC with PKCS#7 padding and AES-256-GCM (EncryptCBC,
//     DecryptCBC, EncryptGCM, DecryptGCM)
//   - Random byte generation (Random)
//
// # Notes
//
// Key material moves through fixed-size array types defined in
// internal/domain to avoid accidental reallocation. Comparisons against
// secret-derived values use constant-time routines. Callers should wipe
// intermediate secrets with internal/util/memzero when practical.
package crypto
