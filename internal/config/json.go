package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Duration reads either a string such as "30s" or a number of nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

// jsonConfig mirrors Config with pointer fields so that keys missing from
// the file keep their current value.
type jsonConfig struct {
	Addr              *string   `json:"address"`
	MongoURI          *string   `json:"mongo_uri"`
	MongoDatabase     *string   `json:"mongo_database"`
	StoreTimeout      *Duration `json:"store_timeout"`
	RedisAddr         *string   `json:"redis_addr"`
	RedisPassword     *string   `json:"redis_password"`
	RedisDB           *int      `json:"redis_db"`
	Memory            *bool     `json:"memory"`
	SessionTTL        *Duration `json:"session_ttl"`
	ChallengeTTL      *Duration `json:"challenge_ttl"`
	RequireSession    *bool     `json:"require_session"`
	NullifierKeyMode  *string   `json:"nullifier_key_mode"`
	ReconcileInterval *Duration `json:"reconcile_interval"`
	ReconcileGrace    *Duration `json:"reconcile_grace"`
	RateLimit         *float64  `json:"rate_limit"`
	RateBurst         *int      `json:"rate_burst"`
	LogLevel          *string   `json:"log_level"`
}

func parseJSON(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var j jsonConfig
	if err := json.Unmarshal(data, &j); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Addr, j.Addr)
	setString(&c.MongoURI, j.MongoURI)
	setString(&c.MongoDatabase, j.MongoDatabase)
	setDuration(&c.StoreTimeout, j.StoreTimeout)
	setString(&c.RedisAddr, j.RedisAddr)
	setString(&c.RedisPassword, j.RedisPassword)
	if j.RedisDB != nil {
		c.RedisDB = *j.RedisDB
	}
	if j.Memory != nil {
		c.Memory = *j.Memory
	}
	setDuration(&c.SessionTTL, j.SessionTTL)
	setDuration(&c.ChallengeTTL, j.ChallengeTTL)
	if j.RequireSession != nil {
		c.RequireSession = *j.RequireSession
	}
	setString(&c.NullifierKeyMode, j.NullifierKeyMode)
	setDuration(&c.ReconcileInterval, j.ReconcileInterval)
	setDuration(&c.ReconcileGrace, j.ReconcileGrace)
	if j.RateLimit != nil {
		c.RateLimit = *j.RateLimit
	}
	if j.RateBurst != nil {
		c.RateBurst = *j.RateBurst
	}
	setString(&c.LogLevel, j.LogLevel)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
