package apperrors

import "errors"

// Contract violations. These indicate a caller bug and are never silently
// corrected.
var (
	ErrNonPositiveParameter = errors.New("non-positive economic parameter")
	ErrNegativeClosedVolume = errors.New("negative closed volume")
	ErrMissingIdentifier    = errors.New("missing required identifier")
	ErrNilMessage           = errors.New("nil message")
)
