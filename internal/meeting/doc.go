// Package meeting defines the meeting lifecycle state machine, the processing
// attempt audit records, and their SQLite-backed store.
package meeting
