// Package x3dh implements the extended triple Diffie–Hellman agreement
// that bootstraps a pairwise Double Ratchet session.
//
// # Flows
//
// Initiator:
//  1. Verify the signed pre-key signature from the peer's bundle.
//  2. Generate an ephemeral (base) X25519 key pair.
//  3. Compute DH(IKa, SPKb), DH(EKa, IKb), DH(EKa, SPKb) and, when a
//     one-time pre-key is present, DH(EKa, OPKb).
//  4. HKDF the discovery-prefixed transcript into root and chain keys.
//
// Responder:
//  1. Receive the pre-key message (initiator IK, base key, SPK id,
//     optional OPK id).
//  2. Mirror the DH set with the local private halves.
//  3. HKDF the identical transcript to the identical keys.
//
// Only public material crosses the wire. One-time pre-keys are consumed
// by the caller after the first successful decryption.
package x3dh
