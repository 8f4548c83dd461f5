// Package services defines the business logic for newsletter publication and
// subscriber management. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Publication errors.
var (
	// ErrInvalidIdempotencyKey is returned when the caller-supplied key is
	// empty or exceeds the accepted length.
	ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")

	// ErrAlreadyPublished is returned when the idempotency key has already
	// been used: either the newsletter was published (a saved response
	// exists) or an identical request is still in flight. The message is
	// fixed so retries are informative.
	ErrAlreadyPublished = errors.New("newsletter already published")

	// ErrEmptyTitle is returned when a publish request carries no title.
	ErrEmptyTitle = errors.New("title is empty")

	// ErrEmptyContent is returned when a publish request is missing its html
	// or text body.
	ErrEmptyContent = errors.New("content is empty")

	// ErrIssueNotFound indicates that the requested newsletter issue does
	// not exist.
	ErrIssueNotFound = errors.New("newsletter issue not found")
)

// Subscription errors.
var (
	// ErrInvalidEmail is returned when a sign-up address fails validation.
	ErrInvalidEmail = errors.New("email address is not valid")

	// ErrInvalidName is returned when a sign-up name is empty or too long.
	ErrInvalidName = errors.New("subscriber name is not valid")

	// ErrDuplicateSubscription is returned when the address already has a
	// subscription, pending or confirmed.
	ErrDuplicateSubscription = errors.New("email already subscribed")

	// ErrTokenNotFound indicates that a confirmation token does not match
	// any subscription.
	ErrTokenNotFound = errors.New("confirmation token not found")
)
