// Package config holds the server settings: defaults, then an optional JSON
// file, then environment variables, then command-line flags.
package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	Addr string

	MongoURI      string
	MongoDatabase string
	StoreTimeout  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Memory runs on the in-process store and cache instead of MongoDB and
	// Redis. Nothing survives a restart.
	Memory bool

	SessionTTL     time.Duration
	ChallengeTTL   time.Duration
	RequireSession bool

	// NullifierKeyMode is "state" or "pair".
	NullifierKeyMode string

	ReconcileInterval time.Duration
	ReconcileGrace    time.Duration

	RateLimit float64
	RateBurst int

	LogLevel string
}

func (c *Config) LoadDefaults() {
	c.Addr = "localhost:9090"
	c.MongoURI = "mongodb://localhost:27017"
	c.MongoDatabase = "iou"
	c.StoreTimeout = 5 * time.Second
	c.RedisAddr = "localhost:6379"
	c.RedisPassword = ""
	c.RedisDB = 0
	c.Memory = false
	c.SessionTTL = 24 * time.Hour
	c.ChallengeTTL = 5 * time.Minute
	c.RequireSession = false
	c.NullifierKeyMode = "state"
	c.ReconcileInterval = 30 * time.Second
	c.ReconcileGrace = time.Minute
	c.RateLimit = 50
	c.RateBurst = 100
	c.LogLevel = "info"
}

// Load builds a Config from args (without the program name).
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	path := configPath(args)
	if path != "" {
		if err := parseJSON(cfg, path); err != nil {
			return nil, err
		}
	}
	parseEnv(cfg)
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.NullifierKeyMode {
	case "state", "pair":
	default:
		return fmt.Errorf("nullifier key mode must be state or pair, got %q", c.NullifierKeyMode)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("reconcile interval must be positive")
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return fmt.Errorf("rate limit and burst must not be negative")
	}
	return nil
}

func parseEnv(c *Config) {
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("MONGODB_URI"); v != "" {
		c.MongoURI = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
}
