// Package services implements the business logic of the booking workflow.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the
// handler/chat layer. They fall into three families mirroring the result
// taxonomy: not-found, conflict (a status guard doing its job), and
// validation (malformed input, rejected before any store mutation).
package services

import "errors"

// Not-found.
var (
	// ErrRequestNotFound indicates that the referenced flight request does
	// not exist.
	ErrRequestNotFound = errors.New("flight request not found")
)

// Conflicts: the record exists but its status forbids the operation.
var (
	// ErrAlreadyQuoted is returned when quoting a record that has left the
	// awaiting-review state. Re-quoting is rejected, not idempotent.
	ErrAlreadyQuoted = errors.New("request already quoted")

	// ErrWrongState is returned when a transition's status precondition
	// fails: submitting proof for an unquoted record, confirming a payment
	// nobody announced, delivering credentials before payment, or any
	// attempt to advance a terminal record.
	ErrWrongState = errors.New("request is not in the required state")

	// ErrNotDeletable is returned when deleting a record whose payment has
	// already been confirmed; such records are permanent.
	ErrNotDeletable = errors.New("paid requests cannot be deleted")
)

// Validation: rejected before any store mutation is attempted.
var (
	// ErrEmptyDescription is returned when a submission carries no usable
	// flight description.
	ErrEmptyDescription = errors.New("description is empty")

	// ErrInvalidAmount is returned when a quote's total amount is not
	// strictly positive.
	ErrInvalidAmount = errors.New("total amount must be positive")

	// ErrInvalidPercentage is returned when a quote's percentage is outside
	// (0, 100].
	ErrInvalidPercentage = errors.New("percentage must be in (0, 100]")

	// ErrNoAttachments is returned when a credential delivery carries no
	// images.
	ErrNoAttachments = errors.New("at least one attachment is required")
)
