package matcher

import "errors"

var (
	// ErrInvalidQuery is returned before any storage access when the pickup
	// or drop point is missing or malformed.
	ErrInvalidQuery = errors.New("invalid search query")
	// ErrSearchUnavailable wraps failures of the candidate store. The store's
	// own error stays in the chain.
	ErrSearchUnavailable = errors.New("search unavailable")
)
