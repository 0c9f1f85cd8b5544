// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes relay settings such
// as channel routing, forwarding throttles, deduplication retention, the
// membership quota, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-link-relay")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// ForwardingConfig groups the settings of the forwarding queue.
type ForwardingConfig struct {
	Enabled      bool          // FORWARDING_ENABLED
	Delay        time.Duration // FORWARDING_DELAY, fixed wait before each send
	MaxPerSecond float64       // FORWARDING_MAX_PER_SECOND, 0 disables the cap
	QueueSize    int           // FORWARDING_QUEUE_SIZE, 0 uses the default
	DryRun       bool          // FORWARDING_DRY_RUN, log instead of sending
}

// RetryConfig groups the pending-forward retry worker settings.
type RetryConfig struct {
	Interval    time.Duration // PENDING_RETRY_INTERVAL, floored at 1m
	BatchSize   int           // PENDING_RETRY_BATCH
	MaxAttempts int           // PENDING_RETRY_MAX_ATTEMPTS
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// Storage
	DBPath string // SQLite path

	// Routing
	SourceChannel  string   // SOURCE_CHANNEL, channel whose posts are scanned
	TargetChannels []string // TARGET_CHANNELS, comma-separated forward targets

	// Pipeline
	Forwarding ForwardingConfig
	Retry      RetryConfig

	// Keyword pre-filter; empty means relay everything.
	Keywords              []string // KEYWORDS, comma-separated
	KeywordsCaseSensitive bool     // KEYWORDS_CASE_SENSITIVE

	// Deduplication
	DedupRetention     time.Duration // DEDUP_RETENTION, fingerprint lifetime
	DedupSweepInterval time.Duration // DEDUP_SWEEP_INTERVAL, 0 disables sweeps

	// Membership quota
	JoinQuota int // JOIN_QUOTA, max simultaneous channel memberships

	// Rate limiting (HTTP API)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS CORSConfig

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

// Load reads configuration from environment variables (a .env file in the
// working directory is merged in first, without overriding the real
// environment), applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBPath: getenv("DB_PATH", "relay.db"),

		// Routing
		SourceChannel:  strings.TrimSpace(getenv("SOURCE_CHANNEL", "")),
		TargetChannels: splitCSV(getenv("TARGET_CHANNELS", "")),

		// Pipeline
		Forwarding: ForwardingConfig{
			Enabled:      getbool("FORWARDING_ENABLED", true),
			Delay:        getdur("FORWARDING_DELAY", 0),
			MaxPerSecond: getfloat("FORWARDING_MAX_PER_SECOND", 0),
			QueueSize:    getint("FORWARDING_QUEUE_SIZE", 0),
			DryRun:       getbool("FORWARDING_DRY_RUN", false),
		},
		Retry: RetryConfig{
			Interval:    getdur("PENDING_RETRY_INTERVAL", 5*time.Minute),
			BatchSize:   getint("PENDING_RETRY_BATCH", 10),
			MaxAttempts: getint("PENDING_RETRY_MAX_ATTEMPTS", 5),
		},

		// Keyword pre-filter
		Keywords:              splitCSV(getenv("KEYWORDS", "")),
		KeywordsCaseSensitive: getbool("KEYWORDS_CASE_SENSITIVE", false),

		// Deduplication
		DedupRetention:     getdur("DEDUP_RETENTION", 7*24*time.Hour),
		DedupSweepInterval: getdur("DEDUP_SWEEP_INTERVAL", 24*time.Hour),

		// Membership quota
		JoinQuota: getint("JOIN_QUOTA", 10),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-link-relay"),
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
	// The retry interval has a hard floor so a misconfigured worker cannot
	// hammer the platform.
	if cfg.Retry.Interval < time.Minute {
		cfg.Retry.Interval = time.Minute
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
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Forwarding.Enabled && len(cfg.TargetChannels) == 0 {
		return cfg, errors.New("TARGET_CHANNELS must not be empty when forwarding is enabled")
	}
	if cfg.Forwarding.Delay < 0 {
		return cfg, errors.New("FORWARDING_DELAY must be >= 0")
	}
	if cfg.Forwarding.MaxPerSecond < 0 {
		return cfg, errors.New("FORWARDING_MAX_PER_SECOND must be >= 0")
	}
	if cfg.Forwarding.QueueSize < 0 {
		return cfg, errors.New("FORWARDING_QUEUE_SIZE must be >= 0")
	}
	if cfg.Retry.BatchSize < 1 {
		return cfg, errors.New("PENDING_RETRY_BATCH must be >= 1")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return cfg, errors.New("PENDING_RETRY_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.DedupRetention <= 0 {
		return cfg, errors.New("DEDUP_RETENTION must be > 0")
	}
	if cfg.DedupSweepInterval < 0 {
		return cfg, errors.New("DEDUP_SWEEP_INTERVAL must be >= 0")
	}
	if cfg.JoinQuota < 1 {
		return cfg, errors.New("JOIN_QUOTA must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
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
