package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by validate when a field is unset.
const (
	DefaultLogPath        = "/data/logs/access.log"
	DefaultLogFormat      = "lancache"
	DefaultListen         = ":9114"
	DefaultPollInterval   = time.Second
	DefaultRecentWindow   = 1000
	DefaultMaxClients     = 1024
	DefaultReportInterval = 30 * time.Second
)

// Load reads, parses, and validates configuration from the provided path.
// An empty path skips the file and builds the configuration from defaults
// and CACHEWATCH_* environment variables alone, which is how container
// deployments usually run.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// applyEnv layers environment overrides on top of the file values.
func applyEnv(c *Config) {
	c.Log.Path = envOrDefault("CACHEWATCH_LOG_PATH", c.Log.Path)
	c.Log.Format = envOrDefault("CACHEWATCH_LOG_FORMAT", c.Log.Format)
	c.Logging.Level = envOrDefault("CACHEWATCH_LOG_LEVEL", c.Logging.Level)
	c.Metrics.Listen = envOrDefault("CACHEWATCH_LISTEN", c.Metrics.Listen)
	c.Tail.Mode = envOrDefault("CACHEWATCH_TAIL_MODE", c.Tail.Mode)
	c.Tail.StartAt = envOrDefault("CACHEWATCH_START_AT", c.Tail.StartAt)
	c.Tail.PollInterval = envDurationOrDefault("CACHEWATCH_POLL_INTERVAL", c.Tail.PollInterval)
}

func envOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envDurationOrDefault(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func validate(c *Config) error {
	if c.Log.Path == "" {
		c.Log.Path = DefaultLogPath
	}

	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	if c.Tail.Mode == "" {
		c.Tail.Mode = TailModePoll
	}
	switch c.Tail.Mode {
	case TailModePoll, TailModeFollow:
	default:
		return fmt.Errorf("unsupported tail.mode %q", c.Tail.Mode)
	}

	if c.Tail.PollInterval <= 0 {
		c.Tail.PollInterval = DefaultPollInterval
	}

	if c.Tail.StartAt == "" {
		c.Tail.StartAt = StartAtEnd
	}
	switch c.Tail.StartAt {
	case StartAtEnd, StartAtStart:
	default:
		return fmt.Errorf("unsupported tail.start_at %q", c.Tail.StartAt)
	}

	if c.Stats.RecentWindow <= 0 {
		c.Stats.RecentWindow = DefaultRecentWindow
	}
	if c.Stats.MaxClients <= 0 {
		c.Stats.MaxClients = DefaultMaxClients
	}
	if c.Stats.ReportInterval <= 0 {
		c.Stats.ReportInterval = DefaultReportInterval
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = DefaultListen
	}

	if len(c.CDNs) == 0 {
		c.CDNs = DefaultCDNRules()
	}

	for i := range c.CDNs {
		r := &c.CDNs[i]
		r.Label = strings.ToLower(strings.TrimSpace(r.Label))
		if r.Label == "" {
			return fmt.Errorf("cdn rule at index %d is missing label", i)
		}
		patterns := r.Patterns[:0]
		for _, p := range r.Patterns {
			p = strings.ToLower(strings.TrimSpace(p))
			if p != "" {
				patterns = append(patterns, p)
			}
		}
		r.Patterns = patterns
		if len(r.Patterns) == 0 {
			return fmt.Errorf("cdn rule %q: at least one pattern is required", r.Label)
		}
	}

	// Default logging level if not provided.
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	return nil
}
