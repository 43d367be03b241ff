// Package contactform relays contact-form submissions to the tenant's
// CONTACT address. The tenant email table carries many address types; this
// workflow consumes only CONTACT.
package contactform
