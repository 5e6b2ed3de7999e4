// Package domain defines the data model shared across the session layer.
// It contains plain record types (key material, addresses, session state,
// sender keys, app-state records) and the error taxonomy only; behaviour
// lives in the protocol and service packages.
package domain
