package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the NoteGraph server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Engine   EngineConfig
	Extract  ExtractConfig
	Poll     PollConfig
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

// EngineConfig points at the remote insight engine and tunes the retry loop
// used for every call against it.
type EngineConfig struct {
	BaseURL string
	APIKey  string

	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BaseTimeout       time.Duration
	MaxTimeout        time.Duration
	TimeoutMultiplier float64

	ExtractPath  string
	SubmitPath   string
	StatusPath   string
	DownloadPath string
}

// ExtractConfig bounds chunked extraction runs.
type ExtractConfig struct {
	ChunkSize      int
	ChunkThreshold int
}

// PollConfig tunes the adaptive status polling for report jobs.
type PollConfig struct {
	FastInterval         time.Duration
	MediumInterval       time.Duration
	SlowInterval         time.Duration
	FastUntil            time.Duration
	MediumUntil          time.Duration
	MaxElapsed           time.Duration
	MaxConsecutiveErrors int
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("NOTEGRAPH_PORT", 8080),
			Env:  envString("NOTEGRAPH_ENV", "development"),
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
		Engine: EngineConfig{
			BaseURL:           os.Getenv("ENGINE_BASE_URL"),
			APIKey:            os.Getenv("ENGINE_API_KEY"),
			MaxRetries:        envInt("ENGINE_MAX_RETRIES", 3),
			BaseDelay:         envDuration("ENGINE_BASE_DELAY", 1*time.Second),
			MaxDelay:          envDuration("ENGINE_MAX_DELAY", 30*time.Second),
			BaseTimeout:       envDuration("ENGINE_BASE_TIMEOUT", 60*time.Second),
			MaxTimeout:        envDuration("ENGINE_MAX_TIMEOUT", 180*time.Second),
			TimeoutMultiplier: envFloat("ENGINE_TIMEOUT_MULTIPLIER", 1.0),
			ExtractPath:       envString("ENGINE_EXTRACT_PATH", "/api/v1/extract"),
			SubmitPath:        envString("ENGINE_SUBMIT_PATH", "/api/v1/reports"),
			StatusPath:        envString("ENGINE_STATUS_PATH", "/api/v1/reports/status"),
			DownloadPath:      envString("ENGINE_DOWNLOAD_PATH", "/api/v1/reports/download"),
		},
		Extract: ExtractConfig{
			ChunkSize:      envInt("EXTRACT_CHUNK_SIZE", 8000),
			ChunkThreshold: envInt("EXTRACT_CHUNK_THRESHOLD", 10000),
		},
		Poll: PollConfig{
			FastInterval:         envDuration("POLL_FAST_INTERVAL", 2*time.Second),
			MediumInterval:       envDuration("POLL_MEDIUM_INTERVAL", 5*time.Second),
			SlowInterval:         envDuration("POLL_SLOW_INTERVAL", 15*time.Second),
			FastUntil:            envDuration("POLL_FAST_UNTIL", 30*time.Second),
			MediumUntil:          envDuration("POLL_MEDIUM_UNTIL", 2*time.Minute),
			MaxElapsed:           envDuration("POLL_MAX_ELAPSED", 10*time.Minute),
			MaxConsecutiveErrors: envInt("POLL_MAX_CONSECUTIVE_ERRORS", 3),
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

	if c.Engine.BaseURL == "" {
		return fmt.Errorf("ENGINE_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Engine.BaseURL, "http://") && !strings.HasPrefix(c.Engine.BaseURL, "https://") {
		return fmt.Errorf("ENGINE_BASE_URL must start with http:// or https://, got %q", c.Engine.BaseURL)
	}

	if c.Engine.BaseDelay > c.Engine.MaxDelay {
		return fmt.Errorf("ENGINE_BASE_DELAY (%s) must not exceed ENGINE_MAX_DELAY (%s)",
			c.Engine.BaseDelay, c.Engine.MaxDelay)
	}
	if c.Engine.BaseTimeout > c.Engine.MaxTimeout {
		return fmt.Errorf("ENGINE_BASE_TIMEOUT (%s) must not exceed ENGINE_MAX_TIMEOUT (%s)",
			c.Engine.BaseTimeout, c.Engine.MaxTimeout)
	}

	if c.Extract.ChunkSize <= 0 {
		return fmt.Errorf("EXTRACT_CHUNK_SIZE must be positive, got %d", c.Extract.ChunkSize)
	}
	if c.Extract.ChunkThreshold < c.Extract.ChunkSize {
		return fmt.Errorf("EXTRACT_CHUNK_THRESHOLD (%d) must be at least EXTRACT_CHUNK_SIZE (%d)",
			c.Extract.ChunkThreshold, c.Extract.ChunkSize)
	}

	if c.Poll.FastUntil > c.Poll.MediumUntil {
		return fmt.Errorf("POLL_FAST_UNTIL (%s) must not exceed POLL_MEDIUM_UNTIL (%s)",
			c.Poll.FastUntil, c.Poll.MediumUntil)
	}

	return nil
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

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
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
