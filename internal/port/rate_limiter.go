package port

import "time"

// RateLimiter admits or refuses an attempt by an identity.
type RateLimiter interface {
	TryAdmit(identity string, now time.Time) bool
	RetryAfter() time.Duration
}
