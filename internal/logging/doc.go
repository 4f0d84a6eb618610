// Package logging configures slog output for the daemon and CLI and supplies
// the standardized attribute keys used across components.
package logging
