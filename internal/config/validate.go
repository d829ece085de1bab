package config

import (
	"fmt"
	"net/url"
)

// Error reports a missing or invalid setting. The server refuses to start
// rather than operate partially configured.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// Validate checks that every setting required by the selected components is
// present and sane. It returns the first problem found as a *Error.
func (c *Config) Validate() error {
	if c.S3.Bucket == "" {
		return &Error{Key: "s3.bucket", Reason: "is required"}
	}
	if c.S3.PublicDomain == "" {
		return &Error{Key: "s3.public_domain", Reason: "is required to build object URLs"}
	}
	if _, err := url.ParseRequestURI(c.S3.PublicDomain); err != nil {
		return &Error{Key: "s3.public_domain", Reason: "must be an absolute URL"}
	}
	if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
		return &Error{Key: "s3.access_key", Reason: "access and secret key must be set together"}
	}
	if c.S3.PutTimeout <= 0 {
		return &Error{Key: "s3.put_timeout", Reason: "must be positive"}
	}

	if c.Quota.StorageLimitBytes <= 0 {
		return &Error{Key: "quota.storage_limit_bytes", Reason: "must be positive"}
	}
	if c.Quota.ClassALimit <= 0 {
		return &Error{Key: "quota.class_a_limit", Reason: "must be positive"}
	}
	if c.Quota.ClassBLimit <= 0 {
		return &Error{Key: "quota.class_b_limit", Reason: "must be positive"}
	}
	if c.Quota.BlockThreshold <= 0 || c.Quota.BlockThreshold > 100 {
		return &Error{Key: "quota.block_threshold", Reason: "must be in (0, 100]"}
	}
	if c.Quota.WarningThreshold < 0 || c.Quota.WarningThreshold > 100 {
		return &Error{Key: "quota.warning_threshold", Reason: "must be in [0, 100]"}
	}
	if c.Quota.FallbackPercent <= 0 || c.Quota.FallbackPercent > 100 {
		return &Error{Key: "quota.fallback_percent", Reason: "must be in (0, 100]"}
	}

	if c.RateLimit.Window <= 0 {
		return &Error{Key: "rate_limit.window", Reason: "must be positive"}
	}
	if c.RateLimit.MaxAttempts <= 0 {
		return &Error{Key: "rate_limit.max_attempts", Reason: "must be positive"}
	}
	if c.RateLimit.SweepProbability < 0 || c.RateLimit.SweepProbability > 1 {
		return &Error{Key: "rate_limit.sweep_probability", Reason: "must be in [0, 1]"}
	}

	if c.Upload.MaxFileSizeMB <= 0 {
		return &Error{Key: "upload.max_file_size_mb", Reason: "must be positive"}
	}
	if c.Upload.MaxRequestSizeMB <= c.Upload.MaxFileSizeMB {
		return &Error{Key: "upload.max_request_size_mb", Reason: "must exceed upload.max_file_size_mb to allow for multipart framing"}
	}
	if c.Upload.MaxFields < 0 {
		return &Error{Key: "upload.max_fields", Reason: "must not be negative"}
	}

	if c.Usage.Timeout <= 0 {
		return &Error{Key: "usage.timeout", Reason: "must be positive"}
	}
	switch c.Usage.Strategy {
	case "memory", "postgres":
	case "redis":
		if c.Usage.RedisURL == "" {
			return &Error{Key: "usage.redis_url", Reason: "is required for the redis strategy"}
		}
	case "analytics":
		if c.Usage.AnalyticsAccount == "" || c.Usage.AnalyticsToken == "" {
			return &Error{Key: "usage.analytics_token", Reason: "account and token are required for the analytics strategy"}
		}
		if c.Usage.AnalyticsBucket == "" {
			return &Error{Key: "usage.analytics_bucket", Reason: "is required for the analytics strategy"}
		}
	default:
		return &Error{Key: "usage.strategy", Reason: fmt.Sprintf("unknown strategy %q", c.Usage.Strategy)}
	}

	return nil
}
