// Package services implements the relay pipeline: the deduplication store,
// the subscription tracker, the forwarding queue, and the pending-forward
// retry worker. This file centralizes common service-level error values so
// they can be consistently returned by service methods and checked by
// callers with errors.Is.
package services

import "errors"

var (
	// ErrInvalidLink is returned by Enqueue when the message link does not
	// match the supported URL pattern.
	ErrInvalidLink = errors.New("unsupported message link")

	// ErrNoTargets is returned by Enqueue when no delivery targets were
	// provided and none are configured.
	ErrNoTargets = errors.New("no delivery targets")
)
