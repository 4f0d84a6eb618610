// Package config loads, normalizes, and validates the TOML configuration used
// by the scribed daemon and the scribe CLI.
package config
