// Package monitor is the check orchestration engine: it decides which
// sites to check, runs the capture→diff→analyze→notify pipeline for each,
// and enforces per-tenant plan quotas along the way.
package monitor

import "errors"

// Sentinel errors for the orchestration layer. Handlers map these to HTTP
// statuses, the scheduler uses them to classify per-site failures.
var (
	ErrUnauthorized    = errors.New("monitor: unauthorized")
	ErrNotFound        = errors.New("monitor: not found")
	ErrQuotaExceeded   = errors.New("monitor: daily check quota exceeded")
	ErrSiteLimit       = errors.New("monitor: site limit reached for plan")
	ErrCheckInProgress = errors.New("monitor: check already in progress")
	ErrCapture         = errors.New("monitor: capture failed")
	ErrStorage         = errors.New("monitor: storage operation failed")
)
