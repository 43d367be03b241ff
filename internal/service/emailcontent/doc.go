// Package emailcontent composes the final HTML for outbound emails.
//
// Composition follows a strict fallback order per slot: explicit override,
// then the template's own value, then (for header and footer) the tenant
// settings. Missing pieces are omitted and the builder never fails; the
// worst case is a plain body wrapped in the document shell.
package emailcontent
