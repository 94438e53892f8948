package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secrets
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		errs = append(errs, "JWT_REFRESH_SECRET must be at least 32 characters")
	}
	if c.JWT.AccessSecret != "" && c.JWT.RefreshSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	// Upstream provider
	if c.Provider.APIKey == "" {
		errs = append(errs, "OPENAI_API_KEY is required")
	}
	if c.Provider.Timeout <= 0 {
		errs = append(errs, "OPENAI_TIMEOUT must be positive")
	}

	// Asset storage
	if c.Storage.Bucket == "" {
		errs = append(errs, "S3_BUCKET is required")
	}
	if c.Storage.Region == "" {
		errs = append(errs, "S3_REGION is required")
	}
	if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		errs = append(errs, "S3_ACCESS_KEY and S3_SECRET_KEY are required")
	}
	if c.Storage.PublicBaseURL == "" {
		errs = append(errs, "S3_PUBLIC_BASE_URL is required")
	}

	// Limits
	if c.Limits.DailyQuota < 1 {
		errs = append(errs, fmt.Sprintf("LIMITS_DAILY_QUOTA must be positive, got %d", c.Limits.DailyQuota))
	}
	if c.Limits.GeneratePerMinute < 1 || c.Limits.EditPerMinute < 1 || c.Limits.VariationPerMinute < 1 {
		errs = append(errs, "per-minute endpoint limits must be positive")
	}
	if c.Limits.Window <= 0 {
		errs = append(errs, "LIMITS_WINDOW must be positive")
	}

	if !c.NATS.Enabled() {
		slog.Warn("NATS_URL is empty, generation events will not be persisted to postgres")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
