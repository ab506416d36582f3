// Package services defines the business logic for stores, products, tracked
// URLs, the price ledger and notifications. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrStoreNotFound indicates that no store matches the requested ID or
	// hostname.
	ErrStoreNotFound = errors.New("store not found")

	// ErrProductNotFound indicates that the requested product does not exist
	// or is not accessible to the current user.
	ErrProductNotFound = errors.New("product not found")

	// ErrUrlNotFound indicates that the requested tracked URL does not exist.
	ErrUrlNotFound = errors.New("url not found")

	// ErrDetectionFailed is returned when the auto-detector cannot resolve
	// both mandatory fields (title and price) for an unknown domain.
	ErrDetectionFailed = errors.New("store auto-detection failed")

	// ErrScrapeFailed is returned when a configured page yields neither a
	// store match nor a price, so nothing can be created or recorded.
	ErrScrapeFailed = errors.New("scrape produced no price")

	// ErrInvalidBackup is returned when a backup payload is structurally
	// invalid (missing or malformed products). The import transaction is
	// rolled back as a whole.
	ErrInvalidBackup = errors.New("invalid backup payload: missing products")

	// ErrNoUser is returned by the backup import when a payload references
	// no resolvable user and no fallback user exists.
	ErrNoUser = errors.New("unable to resolve user for import")
)
