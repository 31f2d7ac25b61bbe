package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	// No special env needed; defaults are valid.
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath == "" {
		t.Fatalf("unexpected empty config from MustLoad")
	}
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// t.Setenv isolates per test.
	// Server timeouts / sizes (valid)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"
	t.Setenv("SHUTDOWN_GRACE", "7s")

	// Logging
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("API_BASE_PATH", "api/v1/") // no leading slash + trailing slash -> "/api/v1"

	// App
	t.Setenv("DB_PATH", "db.sqlite")
	t.Setenv("DAILY_QUOTA", "9")

	// Rate limiting (use invalids for parse to fall back to defaults)
	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10

	// Queue
	t.Setenv("QUEUE_CONCURRENCY", "3")
	t.Setenv("QUEUE_RATE_PER_SECOND", "12.5")
	t.Setenv("QUEUE_MAX_ATTEMPTS", "4")
	t.Setenv("QUEUE_BACKOFF_BASE", "500ms")
	t.Setenv("QUEUE_DEAD_SET_CAP", "25")
	t.Setenv("QUEUE_POLL_INTERVAL", "100ms")
	t.Setenv("QUEUE_PURGE_ON_FAILURE", "on")
	t.Setenv("QUEUE_BREAKER_THRESHOLD", "2")
	t.Setenv("QUEUE_BREAKER_COOLDOWN", "45s")

	// Cache
	t.Setenv("CACHE_BACKEND", "REDIS") // lowercased
	t.Setenv("CACHE_TTL", "300s")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")

	// Billing
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_x")
	t.Setenv("WEBHOOK_TOLERANCE", "2m")
	t.Setenv("WEBHOOK_EVENT_TTL", "24h")

	// AI
	t.Setenv("AI_API_KEY", "key")
	t.Setenv("AI_BASE_URL", "https://ai.example.com/v1")
	t.Setenv("AI_MODEL", "test-model")
	t.Setenv("AI_TIMEOUT", "10s")

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Server
	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" ||
		cfg.ShutdownGrace != 7*time.Second {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}

	// Logging
	if cfg.LogLevel != "warn" || !cfg.LogPretty || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging fields unexpected: %+v", cfg)
	}

	// App
	if cfg.DBPath != "db.sqlite" || cfg.DailyQuota != 9 {
		t.Fatalf("app fields unexpected: %+v", cfg)
	}

	// Rate limiting (parse fallback to defaults)
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}

	// Queue
	q := cfg.Queue
	if q.Concurrency != 3 || q.RatePerSecond != 12.5 || q.MaxAttempts != 4 ||
		q.BackoffBase != 500*time.Millisecond || q.DeadSetCap != 25 ||
		q.PollInterval != 100*time.Millisecond || !q.PurgeOnFailure ||
		q.BreakerThreshold != 2 || q.BreakerCooldown != 45*time.Second {
		t.Fatalf("queue fields unexpected: %+v", q)
	}

	// Cache
	if cfg.Cache.Backend != "redis" || cfg.Cache.TTL != 300*time.Second || cfg.Cache.RedisURL != "redis://cache:6379/1" {
		t.Fatalf("cache fields unexpected: %+v", cfg.Cache)
	}

	// Billing
	if cfg.Billing.WebhookSecret != "whsec_x" || cfg.Billing.Tolerance != 2*time.Minute || cfg.Billing.EventTTL != 24*time.Hour {
		t.Fatalf("billing fields unexpected: %+v", cfg.Billing)
	}

	// AI
	if cfg.AI.APIKey != "key" || cfg.AI.BaseURL != "https://ai.example.com/v1" || cfg.AI.Model != "test-model" || cfg.AI.Timeout != 10*time.Second {
		t.Fatalf("ai fields unexpected: %+v", cfg.AI)
	}

	// Web protection
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}

	// OTEL
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_QueueAndCacheDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	q := cfg.Queue
	if q.Concurrency != 5 || q.RatePerSecond != 30 || q.MaxAttempts != 3 ||
		q.BackoffBase != 2000*time.Millisecond || q.DeadSetCap != 100 {
		t.Fatalf("queue defaults unexpected: %+v", q)
	}
	if q.PurgeOnFailure {
		t.Fatalf("purge-on-failure must default off")
	}
	if q.BreakerThreshold != 5 || q.BreakerCooldown != 30*time.Second {
		t.Fatalf("breaker defaults unexpected: %+v", q)
	}
	if cfg.Cache.Backend != "memory" || cfg.Cache.TTL != 600*time.Second {
		t.Fatalf("cache defaults unexpected: %+v", cfg.Cache)
	}
	if cfg.DailyQuota != 5 {
		t.Fatalf("DAILY_QUOTA default expected 5, got %d", cfg.DailyQuota)
	}
	if cfg.ShutdownGrace != 5*time.Second {
		t.Fatalf("SHUTDOWN_GRACE default expected 5s, got %v", cfg.ShutdownGrace)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("API_BASE_PATH default expected '/api/v1', got %q", cfg.APIBasePath)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	t.Run("invalid LOG_LEVEL", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "verbose")
		if _, err := Load(); err == nil {
			t.Fatalf("expected LOG_LEVEL validation error")
		}
	})
	t.Run("empty PORT via spaces", func(t *testing.T) {
		t.Setenv("PORT", "   ")
		if _, err := Load(); err == nil || !containsErr(err, "PORT must not be empty") {
			t.Fatalf("expected port validation error, got: %v", err)
		}
	})
	t.Run("non-positive timeouts", func(t *testing.T) {
		t.Setenv("READ_TIMEOUT", "0s")
		if _, err := Load(); err == nil || !containsErr(err, "timeouts must be positive") {
			t.Fatalf("expected timeouts validation error, got: %v", err)
		}
	})
	t.Run("max header bytes <= 0", func(t *testing.T) {
		t.Setenv("MAX_HEADER_BYTES", "0")
		if _, err := Load(); err == nil || !containsErr(err, "MAX_HEADER_BYTES") {
			t.Fatalf("expected MAX_HEADER_BYTES validation error, got: %v", err)
		}
	})
	t.Run("shutdown grace non-positive", func(t *testing.T) {
		t.Setenv("SHUTDOWN_GRACE", "0s")
		if _, err := Load(); err == nil || !containsErr(err, "SHUTDOWN_GRACE") {
			t.Fatalf("expected SHUTDOWN_GRACE validation error, got: %v", err)
		}
	})
	t.Run("empty DB_PATH", func(t *testing.T) {
		t.Setenv("DB_PATH", "   ")
		if _, err := Load(); err == nil || !containsErr(err, "DB_PATH must not be empty") {
			t.Fatalf("expected DB_PATH validation error, got: %v", err)
		}
	})
	t.Run("daily quota < 1", func(t *testing.T) {
		t.Setenv("DAILY_QUOTA", "0")
		if _, err := Load(); err == nil || !containsErr(err, "DAILY_QUOTA") {
			t.Fatalf("expected DAILY_QUOTA validation error, got: %v", err)
		}
	})
	t.Run("rate rps negative", func(t *testing.T) {
		t.Setenv("RATE_RPS", "-1")
		if _, err := Load(); err == nil || !containsErr(err, "RATE_RPS") {
			t.Fatalf("expected RATE_RPS validation error, got: %v", err)
		}
	})
	t.Run("rate burst < 1", func(t *testing.T) {
		t.Setenv("RATE_BURST", "0")
		if _, err := Load(); err == nil || !containsErr(err, "RATE_BURST") {
			t.Fatalf("expected RATE_BURST validation error, got: %v", err)
		}
	})
	t.Run("queue concurrency < 1", func(t *testing.T) {
		t.Setenv("QUEUE_CONCURRENCY", "0")
		if _, err := Load(); err == nil || !containsErr(err, "QUEUE_CONCURRENCY") {
			t.Fatalf("expected QUEUE_CONCURRENCY validation error, got: %v", err)
		}
	})
	t.Run("queue rate non-positive", func(t *testing.T) {
		t.Setenv("QUEUE_RATE_PER_SECOND", "0")
		if _, err := Load(); err == nil || !containsErr(err, "QUEUE_RATE_PER_SECOND") {
			t.Fatalf("expected QUEUE_RATE_PER_SECOND validation error, got: %v", err)
		}
	})
	t.Run("queue max attempts < 1", func(t *testing.T) {
		t.Setenv("QUEUE_MAX_ATTEMPTS", "0")
		if _, err := Load(); err == nil || !containsErr(err, "QUEUE_MAX_ATTEMPTS") {
			t.Fatalf("expected QUEUE_MAX_ATTEMPTS validation error, got: %v", err)
		}
	})
	t.Run("queue backoff base non-positive", func(t *testing.T) {
		t.Setenv("QUEUE_BACKOFF_BASE", "0s")
		if _, err := Load(); err == nil || !containsErr(err, "QUEUE_BACKOFF_BASE") {
			t.Fatalf("expected QUEUE_BACKOFF_BASE validation error, got: %v", err)
		}
	})
	t.Run("dead set cap < 1", func(t *testing.T) {
		t.Setenv("QUEUE_DEAD_SET_CAP", "0")
		if _, err := Load(); err == nil || !containsErr(err, "QUEUE_DEAD_SET_CAP") {
			t.Fatalf("expected QUEUE_DEAD_SET_CAP validation error, got: %v", err)
		}
	})
	t.Run("breaker threshold < 1", func(t *testing.T) {
		t.Setenv("QUEUE_BREAKER_THRESHOLD", "0")
		if _, err := Load(); err == nil || !containsErr(err, "QUEUE_BREAKER_THRESHOLD") {
			t.Fatalf("expected QUEUE_BREAKER_THRESHOLD validation error, got: %v", err)
		}
	})
	t.Run("unknown cache backend", func(t *testing.T) {
		t.Setenv("CACHE_BACKEND", "memcached")
		if _, err := Load(); err == nil || !containsErr(err, "CACHE_BACKEND") {
			t.Fatalf("expected CACHE_BACKEND validation error, got: %v", err)
		}
	})
	t.Run("cache ttl non-positive", func(t *testing.T) {
		t.Setenv("CACHE_TTL", "0s")
		if _, err := Load(); err == nil || !containsErr(err, "CACHE_TTL") {
			t.Fatalf("expected CACHE_TTL validation error, got: %v", err)
		}
	})
	t.Run("webhook tolerance non-positive", func(t *testing.T) {
		t.Setenv("WEBHOOK_TOLERANCE", "0s")
		if _, err := Load(); err == nil || !containsErr(err, "WEBHOOK_TOLERANCE") {
			t.Fatalf("expected WEBHOOK_TOLERANCE validation error, got: %v", err)
		}
	})
	t.Run("webhook event ttl non-positive", func(t *testing.T) {
		t.Setenv("WEBHOOK_EVENT_TTL", "0s")
		if _, err := Load(); err == nil || !containsErr(err, "WEBHOOK_EVENT_TTL") {
			t.Fatalf("expected WEBHOOK_EVENT_TTL validation error, got: %v", err)
		}
	})
	t.Run("ai timeout non-positive", func(t *testing.T) {
		t.Setenv("AI_TIMEOUT", "0s")
		if _, err := Load(); err == nil || !containsErr(err, "AI_TIMEOUT") {
			t.Fatalf("expected AI_TIMEOUT validation error, got: %v", err)
		}
	})
	t.Run("hsts max age negative", func(t *testing.T) {
		t.Setenv("HSTS_MAX_AGE", "-1s")
		if _, err := Load(); err == nil || !containsErr(err, "HSTS_MAX_AGE") {
			t.Fatalf("expected HSTS_MAX_AGE validation error, got: %v", err)
		}
	})
	t.Run("otel sample ratio out of range", func(t *testing.T) {
		t.Setenv("OTEL_TRACES_SAMPLER_ARG", "1.5")
		if _, err := Load(); err == nil || !containsErr(err, "OTEL_TRACES_SAMPLER_ARG") {
			t.Fatalf("expected OTEL_TRACES_SAMPLER_ARG validation error, got: %v", err)
		}
	})

	// Note: API_BASE_PATH validation is effectively unreachable due to normalizeBasePath
	// always ensuring a leading '/' and returning "/" for empty input.
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}

	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}

	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	trueVals := []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"}
	for i, v := range trueVals {
		k := "B_T_" + config_strconv(i)
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	falseVals := []string{"0", "false", "FALSE", " no ", "N", "off", "Off"}
	for i, v := range falseVals {
		k := "B_F_" + config_strconv(i)
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	// default on unset/empty
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	in := " a, ,b ,  c  ,"
	want := []string{"a", "b", "c"}
	if got := splitCSV(in); !reflect.DeepEqual(got, want) {
		t.Fatalf("splitCSV mismatch: got %#v want %#v", got, want)
	}

	// normalizeBasePath
	if normalizeBasePath("") != "/" {
		t.Fatalf("normalizeBasePath empty -> '/' failed")
	}
	if normalizeBasePath("v1") != "/v1" {
		t.Fatalf("normalizeBasePath missing leading slash failed")
	}
	if normalizeBasePath("/v1/") != "/v1" {
		t.Fatalf("normalizeBasePath trailing slash trim failed")
	}
	if normalizeBasePath(" / ") != "/" {
		t.Fatalf("normalizeBasePath whitespace failed")
	}
}

// small helper (avoid fmt just for ints)
func config_strconv(i int) string { return string('a' + rune(i)) }

// Ensure tests don't leak env to others.
func TestMain(m *testing.M) {
	os.Unsetenv("PORT")
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
