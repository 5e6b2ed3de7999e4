// Package transport frames socket payloads with AES-256-GCM under the
// keys negotiated by the outer handshake. Nonces are the little-endian
// write/read counters from the keys state; a counter is consumed by
// exactly one frame and exhausting the space is fatal.
package transport
