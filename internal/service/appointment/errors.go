package appointment

import "errors"

var (
	ErrNotFound = errors.New("appointment not found")
	// ErrStale means the document changed between read and write.
	ErrStale       = errors.New("appointment changed since it was read")
	ErrInvalidDate = errors.New("appointment date or time is malformed")
)
