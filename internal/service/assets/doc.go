// Package assets fetches tenant footer HTML from object storage or HTTP.
//
// Fetches never fail outward: any persistent error yields an empty string
// and the email content builder simply omits the footer. Results are held
// in a bounded TTL cache keyed by tenant and logo URL, so a logo change
// invalidates the cached footer that embeds it.
package assets
