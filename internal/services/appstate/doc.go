// Package appstate reconciles the app-state collections: encrypted
// mutation patches and compacted snapshots, each attested by HMACs and
// a homomorphic set hash (LTHash).
//
// Patches are applied verify-then-commit: every mutation decrypts and
// verifies against a deep copy of the collection state, the patch and
// snapshot MACs are checked over the copy, and only then does the copy
// replace the stored state. A patch naming an unknown sync key is
// buffered in a dead-letter queue and replayed, in version order, when
// the key arrives.
package appstate
