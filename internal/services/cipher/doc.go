// Package cipher implements the pairwise Signal session: X3DH session
// establishment on both sides, the Double Ratchet for every message
// after that, and the inbound/outbound dispatch across message kinds.
//
// # Flow
//
// Outbound: a session initiated from a peer's pre-key bundle carries
// the handshake material (pkmsg) on every message until the first
// inbound message confirms the session, then plain whisper messages
// (msg) follow. Group plaintext (skmsg) is delegated to the groups
// service.
//
// Inbound: pkmsg bootstraps a responder session from the named signed
// and one-time pre-keys, then decrypts the embedded whisper message.
// Unknown ratchet keys advance the DH ratchet; counters ahead of the
// chain stash skipped message keys within hard caps; counters behind
// it consume exactly one stashed key or fail as duplicates.
//
// Every decryption mutates a deep copy of the session and commits it
// through the keys aggregate only after all MACs verified, so a failed
// or cancelled receive leaves state exactly as it was.
package cipher
