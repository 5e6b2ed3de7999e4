// Package lthash implements the homomorphic set hash used to attest
// app-state collections. Elements can be added and removed without
// recomputing the hash over the whole set, and the result is
// independent of insertion order.
//
// Each input is expanded with HKDF-SHA256 to the 128-byte group
// element, then folded into the accumulator limb-wise: 64 little-endian
// unsigned 16-bit limbs added (or subtracted) modulo 2^16.
package lthash
