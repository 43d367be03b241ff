package renewal

import "errors"

var (
	// ErrNotFound is returned when a single-subscription invocation names a
	// provider subscription id the tenant does not have.
	ErrNotFound = errors.New("subscription not found")

	// ErrDataInconsistent marks a unique lookup that matched more than one row.
	ErrDataInconsistent = errors.New("subscription lookup matched multiple rows")
)
