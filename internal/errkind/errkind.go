// Package errkind names the sum of error conditions the report pipeline can
// hit, so callers can branch on kind with errors.Is instead of string
// matching.
package errkind

import "errors"

var (
	// InvalidInput means a report message failed to parse or named a report
	// type outside the closed set. The pipeline drops it, logs, and does
	// not requeue.
	InvalidInput = errors.New("invalid input")
	// UnknownUser means a report named a user that doesn't exist. The
	// pipeline drops it and logs.
	UnknownUser = errors.New("unknown user")
	// UnknownType means the store's report_types table is missing an entry
	// that report.ParseJSON already validated against the closed set — schema
	// drift.
	// Fatal: the consumer should stop rather than silently drop.
	UnknownType = errors.New("unknown report type")
	// StoreError wraps a failure talking to the store. The pipeline logs
	// and drops the in-flight message, leaving pre-update state intact; an
	// external supervisor is expected to restart the process.
	StoreError = errors.New("store error")
	// Shutdown signals cooperative cancellation of the consume loop.
	Shutdown = errors.New("shutdown")
)
