// Package httputil provides the shared JSON response helpers for the API
// layer. Handlers use these instead of raw http.ResponseWriter calls so
// every endpoint emits the same envelope and error shape.
package httputil
