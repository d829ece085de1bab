package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	S3        S3Config
	CORS      CORSConfig
	Quota     QuotaConfig
	RateLimit RateLimitConfig
	Upload    UploadConfig
	Usage     UsageConfig
	DB        DBConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
	// TrustedProxies are the proxy addresses whose X-Forwarded-For is
	// believed when resolving the caller identity.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// IsProduction reports whether error details must be hidden from callers.
func (s *ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

// S3Config holds S3-compatible blob store settings.
type S3Config struct {
	Region       string        `mapstructure:"region"`
	Bucket       string        `mapstructure:"bucket"`
	Endpoint     string        `mapstructure:"endpoint"`
	AccessKey    string        `mapstructure:"access_key"`
	SecretKey    string        `mapstructure:"secret_key"`
	PublicDomain string        `mapstructure:"public_domain"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	PutTimeout   time.Duration `mapstructure:"put_timeout"`
}

// CORSConfig holds the browser origin allow-list.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// QuotaConfig holds free-tier limits and thresholds. Percentages are 0-100.
type QuotaConfig struct {
	StorageLimitBytes int64   `mapstructure:"storage_limit_bytes"`
	ClassALimit       int64   `mapstructure:"class_a_limit"`
	ClassBLimit       int64   `mapstructure:"class_b_limit"`
	BlockThreshold    float64 `mapstructure:"block_threshold"`
	WarningThreshold  float64 `mapstructure:"warning_threshold"`
	FallbackPercent   float64 `mapstructure:"fallback_percent"`
}

// RateLimitConfig holds the sliding window admission settings.
type RateLimitConfig struct {
	Window           time.Duration `mapstructure:"window"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	SweepProbability float64       `mapstructure:"sweep_probability"`
}

// UploadConfig holds request and file size ceilings.
type UploadConfig struct {
	MaxFileSizeMB    int64  `mapstructure:"max_file_size_mb"`
	MaxRequestSizeMB int64  `mapstructure:"max_request_size_mb"`
	MaxFields        int    `mapstructure:"max_fields"`
	TempDir          string `mapstructure:"temp_dir"`
}

// MaxFileBytes returns the per-file ceiling in bytes.
func (u *UploadConfig) MaxFileBytes() int64 {
	return u.MaxFileSizeMB * 1024 * 1024
}

// MaxRequestBytes returns the request body ceiling in bytes.
func (u *UploadConfig) MaxRequestBytes() int64 {
	return u.MaxRequestSizeMB * 1024 * 1024
}

// UsageConfig selects and configures the usage source.
type UsageConfig struct {
	Strategy          string        `mapstructure:"strategy"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RedisURL          string        `mapstructure:"redis_url"`
	AnalyticsEndpoint string        `mapstructure:"analytics_endpoint"`
	AnalyticsAccount  string        `mapstructure:"analytics_account"`
	AnalyticsToken    string        `mapstructure:"analytics_token"`
	AnalyticsBucket   string        `mapstructure:"analytics_bucket"`
}

// DBConfig holds PostgreSQL connection settings for the postgres usage strategy.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from environment variables with the IMGUARD_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IMGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.trusted_proxies", "")

	// S3 defaults
	v.SetDefault("s3.region", "auto")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.public_domain", "")
	v.SetDefault("s3.key_prefix", "")
	v.SetDefault("s3.put_timeout", "15s")

	// CORS defaults (localhost origins for development)
	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// Quota defaults mirror the free tier: 10 GB, 1M class A, 10M class B.
	v.SetDefault("quota.storage_limit_bytes", int64(10)*1024*1024*1024)
	v.SetDefault("quota.class_a_limit", 1_000_000)
	v.SetDefault("quota.class_b_limit", 10_000_000)
	v.SetDefault("quota.block_threshold", 50)
	v.SetDefault("quota.warning_threshold", 40)
	v.SetDefault("quota.fallback_percent", 50)

	// Rate limit defaults
	v.SetDefault("rate_limit.window", "15m")
	v.SetDefault("rate_limit.max_attempts", 20)
	v.SetDefault("rate_limit.sweep_probability", 0.01)

	// Upload defaults
	v.SetDefault("upload.max_file_size_mb", 10)
	v.SetDefault("upload.max_request_size_mb", 11)
	v.SetDefault("upload.max_fields", 5)
	v.SetDefault("upload.temp_dir", os.TempDir())

	// Usage defaults
	v.SetDefault("usage.strategy", "memory")
	v.SetDefault("usage.timeout", "10s")
	v.SetDefault("usage.redis_url", "")
	v.SetDefault("usage.analytics_endpoint", "https://api.cloudflare.com/client/v4/graphql")
	v.SetDefault("usage.analytics_account", "")
	v.SetDefault("usage.analytics_token", "")
	v.SetDefault("usage.analytics_bucket", "")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "imguard")
	v.SetDefault("db.password", "imguard_secret")
	v.SetDefault("db.name", "imguard_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 10)
	v.SetDefault("db.max_idle", 5)

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                  "IMGUARD_SERVER_PORT",
		"server.read_timeout":          "IMGUARD_SERVER_READ_TIMEOUT",
		"server.write_timeout":         "IMGUARD_SERVER_WRITE_TIMEOUT",
		"server.environment":           "IMGUARD_SERVER_ENVIRONMENT",
		"server.trusted_proxies":       "IMGUARD_SERVER_TRUSTED_PROXIES",
		"s3.region":                    "IMGUARD_S3_REGION",
		"s3.bucket":                    "IMGUARD_S3_BUCKET",
		"s3.endpoint":                  "IMGUARD_S3_ENDPOINT",
		"s3.access_key":                "IMGUARD_S3_ACCESS_KEY",
		"s3.secret_key":                "IMGUARD_S3_SECRET_KEY",
		"s3.public_domain":             "IMGUARD_S3_PUBLIC_DOMAIN",
		"s3.key_prefix":                "IMGUARD_S3_KEY_PREFIX",
		"s3.put_timeout":               "IMGUARD_S3_PUT_TIMEOUT",
		"cors.allowed_origins":         "IMGUARD_CORS_ALLOWED_ORIGINS",
		"quota.storage_limit_bytes":    "IMGUARD_QUOTA_STORAGE_LIMIT_BYTES",
		"quota.class_a_limit":          "IMGUARD_QUOTA_CLASS_A_LIMIT",
		"quota.class_b_limit":          "IMGUARD_QUOTA_CLASS_B_LIMIT",
		"quota.block_threshold":        "IMGUARD_QUOTA_BLOCK_THRESHOLD",
		"quota.warning_threshold":      "IMGUARD_QUOTA_WARNING_THRESHOLD",
		"quota.fallback_percent":       "IMGUARD_QUOTA_FALLBACK_PERCENT",
		"rate_limit.window":            "IMGUARD_RATE_LIMIT_WINDOW",
		"rate_limit.max_attempts":      "IMGUARD_RATE_LIMIT_MAX_ATTEMPTS",
		"rate_limit.sweep_probability": "IMGUARD_RATE_LIMIT_SWEEP_PROBABILITY",
		"upload.max_file_size_mb":      "IMGUARD_UPLOAD_MAX_FILE_SIZE_MB",
		"upload.max_request_size_mb":   "IMGUARD_UPLOAD_MAX_REQUEST_SIZE_MB",
		"upload.max_fields":            "IMGUARD_UPLOAD_MAX_FIELDS",
		"upload.temp_dir":              "IMGUARD_UPLOAD_TEMP_DIR",
		"usage.strategy":               "IMGUARD_USAGE_STRATEGY",
		"usage.timeout":                "IMGUARD_USAGE_TIMEOUT",
		"usage.redis_url":              "IMGUARD_USAGE_REDIS_URL",
		"usage.analytics_endpoint":     "IMGUARD_USAGE_ANALYTICS_ENDPOINT",
		"usage.analytics_account":      "IMGUARD_USAGE_ANALYTICS_ACCOUNT",
		"usage.analytics_token":        "IMGUARD_USAGE_ANALYTICS_TOKEN",
		"usage.analytics_bucket":       "IMGUARD_USAGE_ANALYTICS_BUCKET",
		"db.host":                      "IMGUARD_DB_HOST",
		"db.port":                      "IMGUARD_DB_PORT",
		"db.user":                      "IMGUARD_DB_USER",
		"db.password":                  "IMGUARD_DB_PASSWORD",
		"db.name":                      "IMGUARD_DB_NAME",
		"db.sslmode":                   "IMGUARD_DB_SSLMODE",
		"db.max_open":                  "IMGUARD_DB_MAX_OPEN",
		"db.max_idle":                  "IMGUARD_DB_MAX_IDLE",
		"log.level":                    "IMGUARD_LOG_LEVEL",
		"log.format":                   "IMGUARD_LOG_FORMAT",
		"metrics.enabled":              "IMGUARD_METRICS_ENABLED",
		"metrics.path":                 "IMGUARD_METRICS_PATH",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if IMGUARD_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("IMGUARD_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),

		TrustedProxies: splitList(v.GetString("server.trusted_proxies")),
	}
	cfg.S3 = S3Config{
		Region:       v.GetString("s3.region"),
		Bucket:       v.GetString("s3.bucket"),
		Endpoint:     v.GetString("s3.endpoint"),
		AccessKey:    v.GetString("s3.access_key"),
		SecretKey:    v.GetString("s3.secret_key"),
		PublicDomain: strings.TrimRight(v.GetString("s3.public_domain"), "/"),
		KeyPrefix:    strings.Trim(v.GetString("s3.key_prefix"), "/"),
		PutTimeout:   v.GetDuration("s3.put_timeout"),
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: splitList(v.GetString("cors.allowed_origins")),
	}
	cfg.Quota = QuotaConfig{
		StorageLimitBytes: v.GetInt64("quota.storage_limit_bytes"),
		ClassALimit:       v.GetInt64("quota.class_a_limit"),
		ClassBLimit:       v.GetInt64("quota.class_b_limit"),
		BlockThreshold:    v.GetFloat64("quota.block_threshold"),
		WarningThreshold:  v.GetFloat64("quota.warning_threshold"),
		FallbackPercent:   v.GetFloat64("quota.fallback_percent"),
	}
	cfg.RateLimit = RateLimitConfig{
		Window:           v.GetDuration("rate_limit.window"),
		MaxAttempts:      v.GetInt("rate_limit.max_attempts"),
		SweepProbability: v.GetFloat64("rate_limit.sweep_probability"),
	}
	cfg.Upload = UploadConfig{
		MaxFileSizeMB:    v.GetInt64("upload.max_file_size_mb"),
		MaxRequestSizeMB: v.GetInt64("upload.max_request_size_mb"),
		MaxFields:        v.GetInt("upload.max_fields"),
		TempDir:          v.GetString("upload.temp_dir"),
	}
	cfg.Usage = UsageConfig{
		Strategy:          strings.ToLower(v.GetString("usage.strategy")),
		Timeout:           v.GetDuration("usage.timeout"),
		RedisURL:          v.GetString("usage.redis_url"),
		AnalyticsEndpoint: v.GetString("usage.analytics_endpoint"),
		AnalyticsAccount:  v.GetString("usage.analytics_account"),
		AnalyticsToken:    v.GetString("usage.analytics_token"),
		AnalyticsBucket:   v.GetString("usage.analytics_bucket"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	cfg.Metrics = MetricsConfig{
		Enabled: v.GetBool("metrics.enabled"),
		Path:    v.GetString("metrics.path"),
	}

	return cfg, nil
}

// splitList parses a comma-separated setting, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
