// Package app wires application dependencies for the CLI.
//
// It loads the keys state from the preferences root and builds the
// concrete services from Config, exposing them via the Wire struct for
// commands to use.
package app
