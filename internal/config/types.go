package config

import "time"

// Config is the root configuration structure loaded from YAML.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Log     LogConfig     `yaml:"log"`
	Tail    TailConfig    `yaml:"tail"`
	Stats   StatsConfig   `yaml:"stats"`
	Metrics MetricsConfig `yaml:"metrics"`
	CDNs    []CDNRule     `yaml:"cdns"`
}

// LoggingConfig controls log verbosity and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g. "info", "debug"
	Pretty bool   `yaml:"pretty"` // human-readable console output instead of JSON
}

// LogConfig describes the cache access log we are tailing.
type LogConfig struct {
	Path   string `yaml:"path"`   // e.g. /data/logs/access.log
	Format string `yaml:"format"` // e.g. "lancache", "combined", "json"
}

// Tail modes.
const (
	TailModePoll   = "poll"   // stat/read loop with explicit rotation handling
	TailModeFollow = "follow" // event-driven follow via hpcloud/tail
)

// Tail start positions.
const (
	StartAtEnd   = "end"
	StartAtStart = "start"
)

// TailConfig controls how the access log is followed.
type TailConfig struct {
	Mode         string        `yaml:"mode"`          // "poll" or "follow"
	PollInterval time.Duration `yaml:"poll_interval"` // read cadence in poll mode (e.g. "1s")
	StartAt      string        `yaml:"start_at"`      // "end" (new entries only) or "start"
}

// StatsConfig bounds the in-memory aggregation state.
type StatsConfig struct {
	RecentWindow   int           `yaml:"recent_window"`   // capacity of the recent-request ring
	MaxClients     int           `yaml:"max_clients"`     // max unique client addresses tracked
	ReportInterval time.Duration `yaml:"report_interval"` // periodic summary cadence (e.g. "30s")
}

// MetricsConfig configures the HTTP exporter endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen"` // e.g. ":9114"
}

// CDNRule maps a CDN label to the URL substrings that identify it.
// Rules are evaluated in order; the first match wins.
type CDNRule struct {
	Label    string   `yaml:"label"`
	Patterns []string `yaml:"patterns"`
}

// DefaultCDNRules returns the built-in CDN table, used when the
// configuration does not provide one.
func DefaultCDNRules() []CDNRule {
	return []CDNRule{
		{Label: "steam", Patterns: []string{"steam", "steamcontent", "steampowered", "steamusercontent"}},
		{Label: "epic", Patterns: []string{"epic", "epicgames"}},
		{Label: "blizzard", Patterns: []string{"blizzard", "battle.net", "battlenet"}},
		{Label: "origin", Patterns: []string{"origin", "ea.com", "eaplay"}},
		{Label: "uplay", Patterns: []string{"uplay", "ubisoft", "ubi.com"}},
		{Label: "windows", Patterns: []string{"windows", "microsoft", "windowsupdate", "xbox"}},
		{Label: "riot", Patterns: []string{"riot", "riotgames"}},
		{Label: "gog", Patterns: []string{"gog"}},
		{Label: "sony", Patterns: []string{"playstation"}},
		{Label: "nintendo", Patterns: []string{"nintendo"}},
		{Label: "twitch", Patterns: []string{"twitch", "twitchcdn"}},
	}
}
