// Package envconfig loads the runtime's environment configuration (spec.md
// §6) the way the teacher's pkg/server config loads session/server
// settings: a struct with a Default constructor, chainable With* builders,
// and a Validate method returning both hard errors and soft warnings.
package envconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LogCategory is one of the per-component console verbosity categories
// recognized by LIVE_LOGGING.
type LogCategory string

const (
	LogLifecycle  LogCategory = "lifecycle"
	LogMessages   LogCategory = "messages"
	LogState      LogCategory = "state"
	LogPerformance LogCategory = "performance"
	LogRooms      LogCategory = "rooms"
	LogWebSocket  LogCategory = "websocket"
)

// Config is the process-wide environment configuration.
type Config struct {
	StateSecret          string
	KeyRotationInterval  time.Duration
	MaxKeyAge            time.Duration
	KeyRetentionCount    int
	CompressionEnabled   bool
	CompressionThreshold int
	CompressionLevel     int
	DebugLive            bool
	LoggingEnabled       bool
	LoggingCategories    map[LogCategory]bool
}

// DefaultConfig returns the baseline configuration before environment
// overrides are applied.
func DefaultConfig() *Config {
	return &Config{
		StateSecret:          "",
		KeyRotationInterval:  24 * time.Hour,
		MaxKeyAge:            7 * 24 * time.Hour,
		KeyRetentionCount:    5,
		CompressionEnabled:   true,
		CompressionThreshold: 1024,
		CompressionLevel:     6,
		DebugLive:            false,
		LoggingEnabled:       false,
		LoggingCategories:    map[LogCategory]bool{},
	}
}

// WithStateSecret sets the HMAC signing secret.
func (c *Config) WithStateSecret(secret string) *Config { c.StateSecret = secret; return c }

// WithKeyRotationInterval overrides the key rotation cadence.
func (c *Config) WithKeyRotationInterval(d time.Duration) *Config {
	c.KeyRotationInterval = d
	return c
}

// WithCompression configures gzip compression thresholds.
func (c *Config) WithCompression(enabled bool, threshold, level int) *Config {
	c.CompressionEnabled = enabled
	c.CompressionThreshold = threshold
	c.CompressionLevel = level
	return c
}

// Load reads a .env file (if present, via godotenv) layered under the
// process environment, then builds a Config from the named variables in
// spec.md §6. A missing .env file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("envconfig: loading %s: %w", envFile, err)
	}

	cfg := DefaultConfig()
	cfg.StateSecret = os.Getenv("STATE_SECRET")

	if v := os.Getenv("KEY_ROTATION_INTERVAL"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("envconfig: KEY_ROTATION_INTERVAL: %w", err)
		}
		cfg.KeyRotationInterval = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("MAX_KEY_AGE"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("envconfig: MAX_KEY_AGE: %w", err)
		}
		cfg.MaxKeyAge = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("KEY_RETENTION_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("envconfig: KEY_RETENTION_COUNT: %w", err)
		}
		cfg.KeyRetentionCount = n
	}
	if v := os.Getenv("COMPRESSION_ENABLED"); v != "" {
		cfg.CompressionEnabled = parseBool(v, cfg.CompressionEnabled)
	}
	if v := os.Getenv("COMPRESSION_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("envconfig: COMPRESSION_THRESHOLD: %w", err)
		}
		cfg.CompressionThreshold = n
	}
	if v := os.Getenv("COMPRESSION_LEVEL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("envconfig: COMPRESSION_LEVEL: %w", err)
		}
		cfg.CompressionLevel = n
	}
	cfg.DebugLive = parseBool(os.Getenv("DEBUG_LIVE"), false)

	cfg.LoggingEnabled, cfg.LoggingCategories = parseLiveLogging(os.Getenv("LIVE_LOGGING"))

	return cfg, nil
}

func parseBool(v string, fallback bool) bool {
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// parseLiveLogging parses LIVE_LOGGING=<true|false|csv of categories>.
func parseLiveLogging(v string) (bool, map[LogCategory]bool) {
	cats := map[LogCategory]bool{}
	if v == "" {
		return false, cats
	}
	if b, err := strconv.ParseBool(v); err == nil {
		if b {
			for _, c := range []LogCategory{LogLifecycle, LogMessages, LogState, LogPerformance, LogRooms, LogWebSocket} {
				cats[c] = true
			}
		}
		return b, cats
	}
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		cats[LogCategory(part)] = true
	}
	return len(cats) > 0, cats
}

// Enabled reports whether the given category is active under LIVE_LOGGING.
func (c *Config) Enabled(cat LogCategory) bool {
	if !c.LoggingEnabled {
		return false
	}
	return c.LoggingCategories[cat]
}

// Validate returns a hard error for nonsensical configuration plus soft
// warnings for values likely to be operator mistakes.
func (c *Config) Validate() ([]string, error) {
	var warnings []string
	if c.StateSecret == "" {
		return nil, fmt.Errorf("envconfig: STATE_SECRET must be set")
	}
	if len(c.StateSecret) < 32 {
		warnings = append(warnings, "STATE_SECRET is shorter than 32 characters; consider a longer secret")
	}
	if c.KeyRetentionCount < 1 {
		return nil, fmt.Errorf("envconfig: KEY_RETENTION_COUNT must be >= 1")
	}
	if c.CompressionLevel < -2 || c.CompressionLevel > 9 {
		return nil, fmt.Errorf("envconfig: COMPRESSION_LEVEL must be between -2 and 9")
	}
	if c.MaxKeyAge < c.KeyRotationInterval {
		warnings = append(warnings, "MAX_KEY_AGE is shorter than KEY_ROTATION_INTERVAL; rotated keys may be evicted before a fresh rotation completes")
	}
	return warnings, nil
}
