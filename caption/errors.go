package caption

import "errors"

var (
	// ErrResourceUnavailable reports a caption resource that is missing or
	// could not be read to the end.
	ErrResourceUnavailable = errors.New("caption resource unavailable")
	ErrMalformedTimestamp  = errors.New("malformed timestamp")
)
