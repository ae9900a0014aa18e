// Package cloudflare implements the protection toggle against the Cloudflare
// v4 API: the zone security_level setting is switched between under_attack
// and the configured resting level.
//
// API failures are classified into the taxonomy the control loop retries on:
// ErrUnauthorized (fatal), RateLimitedError (retry, honoring Retry-After) and
// ErrTransient (retry with backoff). Anything unrecognized is transient.
package cloudflare
