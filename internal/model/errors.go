package model

import "errors"

var (
	// ErrValidation marks malformed input; surfaced, never retried
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a uniqueness violation outside the slug allocator
	ErrConflict = errors.New("conflict")
	// ErrSlugTaken is the only retryable provisioning failure
	ErrSlugTaken = errors.New("slug already taken")
	// ErrProvisioningConflict means every slug candidate was taken
	ErrProvisioningConflict = errors.New("could not allocate a unique tenant slug")
	// ErrProvisioningFailed wraps non-retryable provisioning failures
	ErrProvisioningFailed = errors.New("tenant provisioning failed")
	// ErrAuthFailure is the single, cause-free login denial
	ErrAuthFailure = errors.New("invalid credentials")
	ErrNotFound    = errors.New("not found")
	ErrForbidden   = errors.New("forbidden")
	ErrStorage     = errors.New("storage error")
)
