// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, queue tuning, caching,
// quota limits, billing webhooks, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "gemini-backend-clone")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// QueueConfig tunes the durable job queue and its worker pool.
type QueueConfig struct {
	Concurrency    int           // simultaneous workers
	RatePerSecond  float64       // job-starts per second across the pool
	MaxAttempts    int           // retry budget before a job goes dead
	BackoffBase    time.Duration // first retry delay; doubles per attempt
	DeadSetCap     int           // max dead jobs retained (FIFO eviction)
	PollInterval   time.Duration // lease poll fallback when idle
	PurgeOnFailure bool          // drastic fail-safe: purge the whole queue on any job error

	// Circuit breaker (default failure-escalation mode): after
	// BreakerThreshold consecutive failures, leasing pauses for BreakerCooldown.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// CacheConfig selects and tunes the chatroom-list cache.
type CacheConfig struct {
	Backend  string        // "memory" or "redis"
	TTL      time.Duration // entry lifetime
	RedisURL string        // e.g. "redis://localhost:6379/0"
}

// BillingConfig holds payment-provider webhook settings.
type BillingConfig struct {
	WebhookSecret string        // shared secret for signature verification
	Tolerance     time.Duration // max accepted webhook timestamp skew
	EventTTL      time.Duration // how long processed event ids are retained
}

// AIConfig holds settings for the AI text-generation collaborator.
type AIConfig struct {
	APIKey  string        // provider API key
	BaseURL string        // OpenAI-compatible endpoint (empty = provider default)
	Model   string        // model identifier
	Timeout time.Duration // per-call deadline; timeouts are retryable failures
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string        // debug|release|test
	ShutdownGrace     time.Duration // force-exit deadline for graceful shutdown

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath     string // SQLite path
	DailyQuota int    // prompts/day for basic-plan users

	// Edge rate limiting (token bucket per user/IP, abuse control)
	RateRPS   float64
	RateBurst int

	Queue   QueueConfig
	Cache   CacheConfig
	Billing BillingConfig
	AI      AIConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		ShutdownGrace:     getdur("SHUTDOWN_GRACE", 5*time.Second),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:     getenv("DB_PATH", "app.db"),
		DailyQuota: getint("DAILY_QUOTA", 5),

		// Edge rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		Queue: QueueConfig{
			Concurrency:      getint("QUEUE_CONCURRENCY", 5),
			RatePerSecond:    getfloat("QUEUE_RATE_PER_SECOND", 30),
			MaxAttempts:      getint("QUEUE_MAX_ATTEMPTS", 3),
			BackoffBase:      getdur("QUEUE_BACKOFF_BASE", 2000*time.Millisecond),
			DeadSetCap:       getint("QUEUE_DEAD_SET_CAP", 100),
			PollInterval:     getdur("QUEUE_POLL_INTERVAL", 250*time.Millisecond),
			PurgeOnFailure:   getbool("QUEUE_PURGE_ON_FAILURE", false),
			BreakerThreshold: getint("QUEUE_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  getdur("QUEUE_BREAKER_COOLDOWN", 30*time.Second),
		},

		Cache: CacheConfig{
			Backend:  strings.ToLower(getenv("CACHE_BACKEND", "memory")),
			TTL:      getdur("CACHE_TTL", 600*time.Second),
			RedisURL: getenv("REDIS_URL", "redis://localhost:6379/0"),
		},

		Billing: BillingConfig{
			WebhookSecret: getenv("STRIPE_WEBHOOK_SECRET", ""),
			Tolerance:     getdur("WEBHOOK_TOLERANCE", 5*time.Minute),
			EventTTL:      getdur("WEBHOOK_EVENT_TTL", 72*time.Hour),
		},

		AI: AIConfig{
			APIKey:  getenv("AI_API_KEY", ""),
			BaseURL: getenv("AI_BASE_URL", ""),
			Model:   getenv("AI_MODEL", "gemini-2.5-flash"),
			Timeout: getdur("AI_TIMEOUT", 30*time.Second),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "gemini-backend-clone"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.ShutdownGrace <= 0 {
		return cfg, errors.New("SHUTDOWN_GRACE must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.DailyQuota < 1 {
		return cfg, errors.New("DAILY_QUOTA must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Queue.Concurrency < 1 {
		return cfg, errors.New("QUEUE_CONCURRENCY must be >= 1")
	}
	if cfg.Queue.RatePerSecond <= 0 {
		return cfg, errors.New("QUEUE_RATE_PER_SECOND must be > 0")
	}
	if cfg.Queue.MaxAttempts < 1 {
		return cfg, errors.New("QUEUE_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.Queue.BackoffBase <= 0 {
		return cfg, errors.New("QUEUE_BACKOFF_BASE must be > 0")
	}
	if cfg.Queue.DeadSetCap < 1 {
		return cfg, errors.New("QUEUE_DEAD_SET_CAP must be >= 1")
	}
	if cfg.Queue.BreakerThreshold < 1 {
		return cfg, errors.New("QUEUE_BREAKER_THRESHOLD must be >= 1")
	}
	switch cfg.Cache.Backend {
	case "memory", "redis":
	default:
		return cfg, errors.New("CACHE_BACKEND must be one of: memory, redis")
	}
	if cfg.Cache.TTL <= 0 {
		return cfg, errors.New("CACHE_TTL must be > 0")
	}
	if cfg.Billing.Tolerance <= 0 {
		return cfg, errors.New("WEBHOOK_TOLERANCE must be > 0")
	}
	if cfg.Billing.EventTTL <= 0 {
		return cfg, errors.New("WEBHOOK_EVENT_TTL must be > 0")
	}
	if cfg.AI.Timeout <= 0 {
		return cfg, errors.New("AI_TIMEOUT must be > 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
