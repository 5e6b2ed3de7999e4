// Package commands implements the wamd CLI: key-state bootstrap,
// fingerprint display, pre-key management, pairing, and wipe.
package commands
