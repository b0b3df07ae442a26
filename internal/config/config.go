package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Redis     RedisConfig     `json:"redis"`
	Database  DatabaseConfig  `json:"database"`
	JWT       JWTConfig       `json:"jwt"`
	Log       LogConfig       `json:"log"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Idle      IdleConfig      `json:"idle"`
	CORS      CORSConfig      `json:"cors"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
}

type RedisConfig struct {
	// Empty URL means no distributed backend: the local fallback is used.
	URL              string `json:"url"`
	OpTimeoutMs      int    `json:"op_timeout_ms"`
	ProbeTimeoutMs   int    `json:"probe_timeout_ms"`
	BreakerFailures  int    `json:"breaker_failures"`
	BreakerTimeoutMs int    `json:"breaker_timeout_ms"`
}

type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

type JWTConfig struct {
	Secret string `json:"secret"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "json" or "text"
}

// Rate strings per endpoint class, e.g. "authentication": ["5/minute", "50/hour"].
type RateLimitConfig struct {
	Algorithm string              `json:"algorithm"` // "fixed_window" or "sliding_window"
	Classes   map[string][]string `json:"classes"`
}

type IdleConfig struct {
	Enabled              bool `json:"enabled"`
	IdleTimeoutSeconds   int  `json:"idle_timeout_seconds"`
	ShutdownDelaySeconds int  `json:"shutdown_delay_seconds"`
	PollIntervalSeconds  int  `json:"poll_interval_seconds"`
	CancelOnActivity     bool `json:"cancel_on_activity"`
}

type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			Environment: "development",
		},
		Redis: RedisConfig{
			OpTimeoutMs:      200,
			ProbeTimeoutMs:   2000,
			BreakerFailures:  5,
			BreakerTimeoutMs: 30000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Algorithm: "fixed_window",
			Classes: map[string][]string{
				"default":           {"100/minute", "1000/hour"},
				"authentication":    {"5/minute", "50/hour"},
				"chat":              {"30/minute", "500/hour"},
				"tier_free":         {"20/minute", "200/hour"},
				"tier_professional": {"100/minute", "2000/hour"},
				"tier_enterprise":   {"500/minute", "10000/hour"},
				"health":            {},
			},
		},
		Idle: IdleConfig{
			IdleTimeoutSeconds:   1800,
			ShutdownDelaySeconds: 300,
			PollIntervalSeconds:  30,
			CancelOnActivity:     true,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

// Load layers the JSON file at path (if present) and the environment over Default.
func Load(path string) (*Config, error) {
	// Load env if it exists
	_ = godotenv.Load()

	cfg := Default()

	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults + env only
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.Environment = getEnv("ENVIRONMENT", cfg.Server.Environment)
	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)
	cfg.Redis.OpTimeoutMs = getEnvInt("REDIS_OP_TIMEOUT_MS", cfg.Redis.OpTimeoutMs)
	cfg.Database.DSN = getEnv("DATABASE_URL", cfg.Database.DSN)
	cfg.JWT.Secret = getEnv("JWT_SECRET", cfg.JWT.Secret)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.RateLimit.Algorithm = getEnv("RATE_LIMIT_ALGORITHM", cfg.RateLimit.Algorithm)
	cfg.Idle.Enabled = getEnvBool("IDLE_SHUTDOWN_ENABLED", cfg.Idle.Enabled)
	cfg.Idle.IdleTimeoutSeconds = getEnvInt("IDLE_TIMEOUT_SECONDS", cfg.Idle.IdleTimeoutSeconds)
	cfg.Idle.ShutdownDelaySeconds = getEnvInt("IDLE_SHUTDOWN_DELAY_SECONDS", cfg.Idle.ShutdownDelaySeconds)

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORS.AllowedOrigins = strings.Split(origins, ",")
	}
}

// Validate reports configuration that must stop the process from starting.
// Rate strings are validated by the ratelimit package when the policy is built.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Redis.OpTimeoutMs <= 0 {
		return errors.New("redis.op_timeout_ms must be > 0")
	}
	switch c.RateLimit.Algorithm {
	case "fixed_window", "sliding_window":
	default:
		return fmt.Errorf("unknown rate limit algorithm: %s", c.RateLimit.Algorithm)
	}
	if c.Idle.Enabled {
		if c.Idle.IdleTimeoutSeconds <= 0 || c.Idle.ShutdownDelaySeconds <= 0 || c.Idle.PollIntervalSeconds <= 0 {
			return errors.New("idle timeouts must be > 0 when idle shutdown is enabled")
		}
	}
	return nil
}

func (r RedisConfig) OpTimeout() time.Duration {
	return time.Duration(r.OpTimeoutMs) * time.Millisecond
}

func (r RedisConfig) ProbeTimeout() time.Duration {
	return time.Duration(r.ProbeTimeoutMs) * time.Millisecond
}

func (r RedisConfig) BreakerTimeout() time.Duration {
	return time.Duration(r.BreakerTimeoutMs) * time.Millisecond
}

func (i IdleConfig) IdleTimeout() time.Duration {
	return time.Duration(i.IdleTimeoutSeconds) * time.Second
}

func (i IdleConfig) ShutdownDelay() time.Duration {
	return time.Duration(i.ShutdownDelaySeconds) * time.Second
}

func (i IdleConfig) PollInterval() time.Duration {
	return time.Duration(i.PollIntervalSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return i
}

func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}
