// Package keys owns every piece of long-lived key material: the
// identity, companion and ephemeral pairs, the signed pre-key, the
// one-time pre-keys, pairwise sessions, group sender keys, pinned peer
// identities, app-state keys and hash states, and the transport AEAD
// counters.
//
// The aggregate is single-writer: every mutation happens inside one
// method call under the internal lock, and multi-step protocol commits
// (pin identity, consume pre-key, store session) are exposed as single
// methods so they apply atomically or not at all. Records returned
// from lookups are owned by the aggregate; callers clone before
// mutating and commit the clone back.
package keys
