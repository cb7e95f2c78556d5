package domain

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrInvalidFingerprint      = errors.New("invalid fingerprint")
	ErrCodeGenerationExhausted = errors.New("code generation exhausted")
	ErrDuplicateOperation      = errors.New("duplicate operation")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrTimeout                 = errors.New("generation timed out")
	ErrProviderFailure         = errors.New("provider failure")
)
