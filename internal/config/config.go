package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the brandlens server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Providers ProvidersConfig
	Scan      ScanConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// ProvidersConfig lists the AI answer engines available to the engine.
// Enabled is a comma-separated list; each named provider must have its key set.
type ProvidersConfig struct {
	Enabled    []string
	OpenAI     OpenAIConfig
	Anthropic  AnthropicConfig
	Perplexity PerplexityConfig
}

type OpenAIConfig struct {
	APIKey string
	Model  string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type PerplexityConfig struct {
	APIKey string
	Model  string
}

// ScanConfig carries engine defaults. Per-scan values frozen into the
// settings snapshot at creation take precedence over these.
type ScanConfig struct {
	DefaultIterations int
	CallTimeout       time.Duration
	Concurrency       int
	StatusCheckEvery  int
	BreakerThreshold  int
	BreakerCooldown   time.Duration
}

var validProviders = map[string]bool{
	"openai":     true,
	"anthropic":  true,
	"perplexity": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("BRANDLENS_PORT", 8080),
			Env:  envString("BRANDLENS_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Providers: ProvidersConfig{
			Enabled: splitList(os.Getenv("AI_PROVIDERS")),
			OpenAI: OpenAIConfig{
				APIKey: os.Getenv("OPENAI_API_KEY"),
				Model:  envString("OPENAI_MODEL", "gpt-4o"),
			},
			Anthropic: AnthropicConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
			Perplexity: PerplexityConfig{
				APIKey: os.Getenv("PERPLEXITY_API_KEY"),
				Model:  envString("PERPLEXITY_MODEL", "sonar"),
			},
		},
		Scan: ScanConfig{
			DefaultIterations: envInt("SCAN_DEFAULT_ITERATIONS", 3),
			CallTimeout:       envDurationSecs("SCAN_CALL_TIMEOUT_SECS", 45*time.Second),
			Concurrency:       envInt("SCAN_CONCURRENCY", 3),
			StatusCheckEvery:  envInt("SCAN_STATUS_CHECK_EVERY", 10),
			BreakerThreshold:  envInt("SCAN_BREAKER_THRESHOLD", 5),
			BreakerCooldown:   envDurationSecs("SCAN_BREAKER_COOLDOWN_SECS", 60*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if len(c.Providers.Enabled) == 0 {
		return fmt.Errorf("AI_PROVIDERS is required (comma-separated: openai, anthropic, perplexity)")
	}
	for _, p := range c.Providers.Enabled {
		if !validProviders[p] {
			return fmt.Errorf("AI_PROVIDERS must name only openai, anthropic, perplexity; got %q", p)
		}
	}

	for _, p := range c.Providers.Enabled {
		switch p {
		case "openai":
			if c.Providers.OpenAI.APIKey == "" {
				return fmt.Errorf("OPENAI_API_KEY is required when openai is enabled")
			}
		case "anthropic":
			if c.Providers.Anthropic.APIKey == "" {
				return fmt.Errorf("ANTHROPIC_API_KEY is required when anthropic is enabled")
			}
		case "perplexity":
			if c.Providers.Perplexity.APIKey == "" {
				return fmt.Errorf("PERPLEXITY_API_KEY is required when perplexity is enabled")
			}
		}
	}

	if c.Scan.DefaultIterations <= 0 {
		return fmt.Errorf("SCAN_DEFAULT_ITERATIONS must be positive, got %d", c.Scan.DefaultIterations)
	}
	if c.Scan.Concurrency <= 0 {
		return fmt.Errorf("SCAN_CONCURRENCY must be positive, got %d", c.Scan.Concurrency)
	}

	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
