package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcdev12/tourneyclock/go/internal/clock/orchestrator"
	"github.com/mcdev12/tourneyclock/go/internal/dbconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "CLOCK"

const (
	backendPostgres = "postgres"
	backendMemory   = "memory"
)

type Config struct {
	HTTP struct {
		Port string
	}
	Tick struct {
		Interval         time.Duration
		AnomalyThreshold time.Duration
		MirrorSize       int
	}
	Store struct {
		Timeout time.Duration
		Backend string
	}
	NATS struct {
		URL    string
		Stream string
	}
	Redis struct {
		Addr     string
		LeaseTTL time.Duration
	}
	Log struct {
		Level  string
		Pretty bool
	}
	Database dbconfig.Config
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.port", "8080")
	v.SetDefault("tick.interval", time.Second)
	v.SetDefault("tick.anomaly_threshold", 600*time.Second)
	v.SetDefault("tick.mirror_size", orchestrator.DefaultMirrorSize)
	v.SetDefault("store.timeout", 3*time.Second)
	v.SetDefault("store.backend", backendPostgres)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.stream", "CLOCK_EVENTS")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.lease_ttl", 900*time.Millisecond)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
	return v
}

// loadConfig reads an optional YAML file, then resolves every key against
// flags, CLOCK_* env and defaults.
func loadConfig(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	cfg.HTTP.Port = v.GetString("http.port")
	cfg.Tick.Interval = v.GetDuration("tick.interval")
	cfg.Tick.AnomalyThreshold = v.GetDuration("tick.anomaly_threshold")
	cfg.Tick.MirrorSize = v.GetInt("tick.mirror_size")
	cfg.Store.Timeout = v.GetDuration("store.timeout")
	cfg.Store.Backend = strings.ToLower(v.GetString("store.backend"))
	cfg.NATS.URL = v.GetString("nats.url")
	cfg.NATS.Stream = v.GetString("nats.stream")
	cfg.Redis.Addr = v.GetString("redis.addr")
	cfg.Redis.LeaseTTL = v.GetDuration("redis.lease_ttl")
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Pretty = v.GetBool("log.pretty")
	cfg.Database = dbconfig.NewConfigFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Tick.Interval <= 0 {
		return fmt.Errorf("tick.interval must be positive, got %s", c.Tick.Interval)
	}
	if c.Tick.AnomalyThreshold <= c.Tick.Interval {
		return fmt.Errorf("tick.anomaly_threshold (%s) must exceed tick.interval (%s)", c.Tick.AnomalyThreshold, c.Tick.Interval)
	}
	switch c.Store.Backend {
	case backendPostgres, backendMemory:
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	if c.Redis.Addr != "" && c.Redis.LeaseTTL >= c.Tick.Interval {
		return fmt.Errorf("redis.lease_ttl (%s) must be shorter than tick.interval (%s)", c.Redis.LeaseTTL, c.Tick.Interval)
	}
	return nil
}

func setupLogging(level string, pretty bool) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return nil
}
