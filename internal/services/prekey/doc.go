// Package prekey keeps the one-time pre-key pool topped up and builds
// the public bundle a peer needs to initiate a session with us.
package prekey
