// Package handlers defines the HTTP-layer error codes used across all API
// endpoints. Codes are lowercase snake_case; generic ones mirror HTTP status
// semantics, domain-specific ones cover failures a status alone cannot
// express (a page whose price could not be extracted, a store that could not
// be auto-detected, a malformed backup payload).
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeDetectionFailed  = "detection_failed"
	ErrCodeScrapeFailed     = "scrape_failed"
	ErrCodeInvalidBackup    = "invalid_backup"
	ErrCodeDeliveryFailed   = "delivery_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
