package contactform

import "errors"

// ErrContactEmailNotConfigured is returned when the tenant has no CONTACT
// address to relay to. The job fails; there is nowhere to deliver.
var ErrContactEmailNotConfigured = errors.New("tenant has no CONTACT email configured")
