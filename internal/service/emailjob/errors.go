package emailjob

import "errors"

// ErrTemplateNotFound is returned when no template exists for the requested
// (templateId, tenantId) pair. It fails the whole job; there is nothing to
// send without a template.
var ErrTemplateNotFound = errors.New("email template not found")
