package core

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every externally tunable knob for the resolution pipeline.
// Defaults are safe for local development; environment variables with the
// MAPREASON_ prefix override them field by field.
type Config struct {
	// Decomposition bounds
	MaxSubqueries       int // hard budget for one decomposition
	CoarseMaxSubqueries int // budget requested on the coarsen retry

	// Resolver loop
	ResolverConcurrency int // parallel resolutions within a dependency level

	// Geospatial API fetches
	GeoAPIBaseURL      string        // base URL of the external data API
	FetchTimeout       time.Duration // per-call timeout
	FetchMaxAttempts   int           // 1 initial try + (n-1) retries, transport errors only
	RetryInitialDelay  time.Duration
	RetryMaxDelay      time.Duration
	RetryBackoffFactor float64

	// Reasoning backend
	ReasonBaseURL string // OpenAI-compatible endpoint; empty uses the provider default
	ReasonTimeout time.Duration
	ReasonModel   string

	// Schema catalog
	SchemaFile string // YAML catalog path; empty starts with an empty catalog

	// HTTP daemon
	ListenAddr string

	// Sandbox ceilings
	SandboxMaxSteps    uint64
	SandboxTimeout     time.Duration
	SandboxMaxOutBytes int

	// Persistence
	RedisURL    string // empty disables Redis-backed stores
	RecordTTL   time.Duration
	HistorySize int

	// Decomposition cache
	CacheEnabled bool
	CacheTTL     time.Duration

	// Logging
	LogLevel string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		MaxSubqueries:       8,
		CoarseMaxSubqueries: 4,
		ResolverConcurrency: 4,
		FetchTimeout:        15 * time.Second,
		FetchMaxAttempts:    3,
		RetryInitialDelay:   200 * time.Millisecond,
		RetryMaxDelay:       3 * time.Second,
		RetryBackoffFactor:  2.0,
		ReasonTimeout:       60 * time.Second,
		SandboxMaxSteps:     50_000,
		SandboxTimeout:      2 * time.Second,
		SandboxMaxOutBytes:  256 * 1024,
		RecordTTL:           24 * time.Hour,
		HistorySize:         100,
		CacheEnabled:        true,
		CacheTTL:            5 * time.Minute,
		ListenAddr:          ":8080",
		LogLevel:            "info",
	}
}

// LoadConfigFromEnv returns the default configuration with any MAPREASON_*
// environment overrides applied.
func LoadConfigFromEnv() (*Config, error) {
	c := DefaultConfig()

	var err error
	if err = applyEnvInt("MAPREASON_MAX_SUBQUERIES", &c.MaxSubqueries); err != nil {
		return nil, err
	}
	if err = applyEnvInt("MAPREASON_COARSE_MAX_SUBQUERIES", &c.CoarseMaxSubqueries); err != nil {
		return nil, err
	}
	if err = applyEnvInt("MAPREASON_RESOLVER_CONCURRENCY", &c.ResolverConcurrency); err != nil {
		return nil, err
	}
	if err = applyEnvDuration("MAPREASON_FETCH_TIMEOUT", &c.FetchTimeout); err != nil {
		return nil, err
	}
	if err = applyEnvInt("MAPREASON_FETCH_MAX_ATTEMPTS", &c.FetchMaxAttempts); err != nil {
		return nil, err
	}
	if err = applyEnvDuration("MAPREASON_RETRY_INITIAL_DELAY", &c.RetryInitialDelay); err != nil {
		return nil, err
	}
	if err = applyEnvDuration("MAPREASON_RETRY_MAX_DELAY", &c.RetryMaxDelay); err != nil {
		return nil, err
	}
	if err = applyEnvDuration("MAPREASON_REASON_TIMEOUT", &c.ReasonTimeout); err != nil {
		return nil, err
	}
	if err = applyEnvDuration("MAPREASON_SANDBOX_TIMEOUT", &c.SandboxTimeout); err != nil {
		return nil, err
	}
	if err = applyEnvInt("MAPREASON_SANDBOX_MAX_OUT_BYTES", &c.SandboxMaxOutBytes); err != nil {
		return nil, err
	}
	if err = applyEnvUint64("MAPREASON_SANDBOX_MAX_STEPS", &c.SandboxMaxSteps); err != nil {
		return nil, err
	}
	if err = applyEnvDuration("MAPREASON_RECORD_TTL", &c.RecordTTL); err != nil {
		return nil, err
	}
	if err = applyEnvInt("MAPREASON_HISTORY_SIZE", &c.HistorySize); err != nil {
		return nil, err
	}
	if err = applyEnvDuration("MAPREASON_CACHE_TTL", &c.CacheTTL); err != nil {
		return nil, err
	}
	if v := os.Getenv("MAPREASON_CACHE_ENABLED"); v != "" {
		enabled, parseErr := strconv.ParseBool(v)
		if parseErr != nil {
			return nil, fmt.Errorf("MAPREASON_CACHE_ENABLED=%q: %w", v, ErrInvalidConfiguration)
		}
		c.CacheEnabled = enabled
	}
	if v := os.Getenv("MAPREASON_REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("MAPREASON_GEOAPI_BASE_URL"); v != "" {
		c.GeoAPIBaseURL = v
	}
	if v := os.Getenv("MAPREASON_REASON_BASE_URL"); v != "" {
		c.ReasonBaseURL = v
	}
	if v := os.Getenv("MAPREASON_SCHEMA_FILE"); v != "" {
		c.SchemaFile = v
	}
	if v := os.Getenv("MAPREASON_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("MAPREASON_REASON_MODEL"); v != "" {
		c.ReasonModel = v
	}
	if v := os.Getenv("MAPREASON_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	return c, c.Validate()
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.MaxSubqueries < 1 {
		return fmt.Errorf("max subqueries must be at least 1: %w", ErrInvalidConfiguration)
	}
	if c.CoarseMaxSubqueries < 1 || c.CoarseMaxSubqueries > c.MaxSubqueries {
		return fmt.Errorf("coarse budget must be in [1, max subqueries]: %w", ErrInvalidConfiguration)
	}
	if c.ResolverConcurrency < 1 {
		return fmt.Errorf("resolver concurrency must be at least 1: %w", ErrInvalidConfiguration)
	}
	if c.FetchMaxAttempts < 1 {
		return fmt.Errorf("fetch attempts must be at least 1: %w", ErrInvalidConfiguration)
	}
	if c.RetryBackoffFactor < 1.0 {
		return fmt.Errorf("backoff factor must be >= 1.0: %w", ErrInvalidConfiguration)
	}
	return nil
}

func applyEnvInt(name string, target *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s=%q: %w", name, v, ErrInvalidConfiguration)
	}
	*target = parsed
	return nil
}

func applyEnvUint64(name string, target *uint64) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s=%q: %w", name, v, ErrInvalidConfiguration)
	}
	*target = parsed
	return nil
}

func applyEnvDuration(name string, target *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s=%q: %w", name, v, ErrInvalidConfiguration)
	}
	*target = parsed
	return nil
}
