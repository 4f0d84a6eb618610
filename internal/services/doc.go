// Package services provides the error taxonomy and context plumbing shared by
// the pipeline, the reconciliation poller, and the external service clients.
package services
