// Package pairing drives the companion-device handshake: advertise,
// verify the primary-signed device identity, counter-sign it, and
// persist the companion binding into the keys state.
package pairing
