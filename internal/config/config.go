// Package config loads swarmd settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ssd-technologies/swarmgov/internal/agent"
	"github.com/ssd-technologies/swarmgov/internal/events"
	"github.com/ssd-technologies/swarmgov/internal/swarm"
)

// DBFile is the database file name inside the data directory.
const DBFile = "swarmgov.db"

// Environment variables that override file settings.
const (
	EnvPort     = "PORT"
	EnvDataDir  = "SWARMGOV_DATA_DIR"
	EnvRedisURL = "SWARMGOV_REDIS_URL"
	EnvConfig   = "SWARMGOV_CONFIG"
)

// SwarmConfig holds the bootstrap parameters used when the daemon creates
// the swarm itself. Bootstrap is skipped when Authority is empty.
type SwarmConfig struct {
	Authority        string `yaml:"authority,omitempty"`
	MaxAgents        int    `yaml:"max_agents"`
	MinVotesRequired int    `yaml:"min_votes_required"`
	ProposalTimeout  int64  `yaml:"proposal_timeout"`
}

// RateLimitConfig is the per-IP request budget. TrustProxy keys clients on
// X-Forwarded-For and must only be set behind a proxy that rewrites it.
type RateLimitConfig struct {
	Requests   int           `yaml:"requests"`
	Window     time.Duration `yaml:"window"`
	TrustProxy bool          `yaml:"trust_proxy"`
}

// RedisConfig enables the Redis event stream when URL is set.
type RedisConfig struct {
	URL    string `yaml:"url,omitempty"`
	Stream string `yaml:"stream"`
	MaxLen int64  `yaml:"max_len"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Config is the full daemon configuration.
type Config struct {
	Listen          string          `yaml:"listen"`
	DataDir         string          `yaml:"data_dir"`
	Swarm           SwarmConfig     `yaml:"swarm"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	ReplayCacheSize int             `yaml:"replay_cache_size"`
	Redis           RedisConfig     `yaml:"redis"`
	Log             LogConfig       `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:  ":8080",
		DataDir: "data",
		Swarm: SwarmConfig{
			MaxAgents:        swarm.MaxAgents,
			MinVotesRequired: swarm.MinVotesFor(swarm.MaxAgents),
			ProposalTimeout:  swarm.DefaultProposalTimeout,
		},
		RateLimit: RateLimitConfig{
			Requests: 120,
			Window:   time.Minute,
		},
		ReplayCacheSize: agent.DefaultReplayCacheSize,
		Redis: RedisConfig{
			Stream: events.DefaultStream,
			MaxLen: 100000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path falls back to $SWARMGOV_CONFIG; a missing file is not an error
// unless it was named explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = os.Getenv(EnvConfig)
		explicit = path != ""
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if port := os.Getenv(EnvPort); port != "" {
		c.Listen = ":" + port
	}
	if dir := os.Getenv(EnvDataDir); dir != "" {
		c.DataDir = dir
	}
	if url := os.Getenv(EnvRedisURL); url != "" {
		c.Redis.URL = url
	}
}

// Validate checks every field. Swarm parameters are only checked when the
// daemon is configured to bootstrap.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("config: listen address required")
	}
	if c.DataDir == "" {
		return errors.New("config: data_dir required")
	}
	if c.Swarm.Authority != "" {
		if _, err := agent.ParseIdentity(c.Swarm.Authority); err != nil {
			return fmt.Errorf("config: swarm.authority: %w", err)
		}
		if err := swarm.ValidateParams(c.Swarm.MaxAgents, c.Swarm.MinVotesRequired, c.Swarm.ProposalTimeout); err != nil {
			return fmt.Errorf("config: swarm: %w", err)
		}
	}
	if c.RateLimit.Requests < 0 {
		return errors.New("config: rate_limit.requests must not be negative")
	}
	if c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0 {
		return errors.New("config: rate_limit.window must be positive")
	}
	if c.ReplayCacheSize < 0 {
		return errors.New("config: replay_cache_size must not be negative")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: log.format %q must be text or json", c.Log.Format)
	}
	return nil
}

// DBPath returns the database file path.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, DBFile)
}

// Bootstrap reports whether the daemon should initialize the swarm.
func (c *Config) Bootstrap() bool {
	return c.Swarm.Authority != ""
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	if n, err := strconv.Atoi(l.Level); err == nil {
		return slog.Level(n), nil
	}
	return 0, fmt.Errorf("config: unknown log level %q", l.Level)
}
