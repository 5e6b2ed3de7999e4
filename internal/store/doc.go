// Package store persists the keys state as JSON documents under a
// preferences root.
//
// Layout
//
//	<root>/keys/<id>.json   one keys state per registration id
//	<root>/keys/index.json  the ids known to this machine
//
// Writes go through a temp file plus rename so a crash never leaves a
// half-written document. A missing file reads as absent, not as an
// error. When a passphrase is configured the keys document is sealed
// in an scrypt + ChaCha20-Poly1305 envelope.
package store
