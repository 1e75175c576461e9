package database

import (
	"context"
	"errors"
	"strings"
)

// IsTransient determines whether a store error is worth replaying later.
// Callers divert transient failures to the fallback queue; permanent
// failures (constraint or schema errors) are surfaced immediately.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := err.Error()

	// Constraint violations are permanent.
	if strings.Contains(errStr, "UNIQUE constraint") ||
		strings.Contains(errStr, "FOREIGN KEY constraint") ||
		strings.Contains(errStr, "CHECK constraint") {
		return false
	}

	// Schema errors are permanent.
	if strings.Contains(errStr, "no such table") || strings.Contains(errStr, "no such column") {
		return false
	}

	// Lock contention, I/O failures and unreachable hosts are expected to
	// clear up; everything unclassified is treated the same way so a flaky
	// store never loses a write.
	return true
}
