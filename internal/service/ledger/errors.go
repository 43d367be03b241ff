package ledger

import "errors"

// ErrNotFound indicates no execution row exists for the given id.
var ErrNotFound = errors.New("job execution not found")
