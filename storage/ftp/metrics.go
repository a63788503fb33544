package ftp

import "time"

// MetricsCollector is an optional sink for backend metrics.
//
// Methods are called synchronously on the operation's goroutine and should
// not block.
type MetricsCollector interface {
	// RecordOperation records one public operation ("list", "upload", ...).
	// kind is empty on success, otherwise the error kind text
	// (e.g. "unauthorized").
	RecordOperation(op, kind string, duration time.Duration)

	// RecordTransfer records a completed data transfer.
	// direction is "upload" or "download".
	RecordTransfer(direction string, bytes int64, duration time.Duration)

	// RecordConnection records a control connection attempt.
	// result is "ok", "dial_failed" or "login_failed".
	RecordConnection(result string)
}
