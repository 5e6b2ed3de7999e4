// Package groups implements the Sender Key protocol: a symmetric
// ratchet per (group, sender) bootstrapped by a distribution message
// delivered over pairwise sessions. Frames are signed by the sender's
// signing key; recipients keep a small window of recent states and a
// bounded stash of skipped message keys for out-of-order delivery.
package groups
