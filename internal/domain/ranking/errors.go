package ranking

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrInvalidComparison is a caller-correctable validation failure: the
	// characters are the same, not members of the list, or the value is out
	// of range. The log is never touched when it is returned.
	ErrInvalidComparison = errors.New("invalid comparison")

	// ErrInvariant signals corrupted or out-of-order log data. It is not
	// recoverable by the caller and must not be swallowed.
	ErrInvariant = errors.New("ranking invariant violated")
)
