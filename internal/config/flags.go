package config

import (
	"flag"
	"io"
	"os"
	"strings"
)

// configPath finds -c/-config in args, falling back to the CONFIG variable.
func configPath(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		for _, name := range []string{"-c", "--c", "-config", "--config"} {
			if a == name && i+1 < len(args) {
				return args[i+1]
			}
			if v, ok := strings.CutPrefix(a, name+"="); ok {
				return v
			}
		}
	}
	return os.Getenv("CONFIG")
}

func newFlagSet(c *Config) *flag.FlagSet {
	fs := flag.NewFlagSet("iou-server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var ignored string
	fs.StringVar(&ignored, "c", "", "path to JSON config file")
	fs.StringVar(&ignored, "config", "", "path to JSON config file")

	fs.StringVar(&c.Addr, "a", c.Addr, "listen address host:port")
	fs.StringVar(&c.MongoURI, "mongo", c.MongoURI, "MongoDB connection URI")
	fs.StringVar(&c.MongoDatabase, "db", c.MongoDatabase, "MongoDB database name")
	fs.DurationVar(&c.StoreTimeout, "store-timeout", c.StoreTimeout, "timeout of a single store call")
	fs.StringVar(&c.RedisAddr, "redis", c.RedisAddr, "Redis address host:port")
	fs.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	fs.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")
	fs.BoolVar(&c.Memory, "memory", c.Memory, "use in-memory store and cache")
	fs.DurationVar(&c.SessionTTL, "session-ttl", c.SessionTTL, "session lifetime")
	fs.DurationVar(&c.ChallengeTTL, "challenge-ttl", c.ChallengeTTL, "login challenge lifetime")
	fs.BoolVar(&c.RequireSession, "require-session", c.RequireSession, "require X-Session-ID on ledger writes")
	fs.StringVar(&c.NullifierKeyMode, "nullifier-key", c.NullifierKeyMode, "nullifier uniqueness: state or pair")
	fs.DurationVar(&c.ReconcileInterval, "reconcile-interval", c.ReconcileInterval, "how often unfinished transfers are resumed")
	fs.DurationVar(&c.ReconcileGrace, "reconcile-grace", c.ReconcileGrace, "minimum age of a transfer before it is resumed")
	fs.Float64Var(&c.RateLimit, "rate", c.RateLimit, "requests per second, 0 disables limiting")
	fs.IntVar(&c.RateBurst, "burst", c.RateBurst, "rate limiter burst")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	return fs
}

func parseFlags(c *Config, args []string) error {
	return newFlagSet(c).Parse(args)
}
