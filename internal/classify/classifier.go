package classify

import (
	"strings"

	"github.com/lanops/cachewatch/internal/config"
	"github.com/lanops/cachewatch/internal/parser"
)

// UnknownCDN is the catch-all label for requests no rule matches. Using a
// fixed label keeps totals consistent: every request lands in exactly one
// bucket.
const UnknownCDN = "unknown"

// Result is the outcome of classifying a single request.
type Result struct {
	Hit bool
	CDN string
}

// Classifier decides cache hit/miss and CDN attribution for parsed events.
// It reads the CDN table from the config store on every call, so rule
// reloads take effect without restarting the pipeline.
type Classifier struct {
	cfgStore *config.Store
}

// New creates a Classifier backed by a config.Store.
func New(cfgStore *config.Store) *Classifier {
	return &Classifier{cfgStore: cfgStore}
}

// Classify maps an event to a hit/miss verdict and a CDN label.
func (c *Classifier) Classify(ev *parser.Event) Result {
	return Result{
		Hit: IsHit(ev),
		CDN: c.cdnLabel(ev),
	}
}

// IsHit applies the two-tier hit policy: the explicit cache status token
// wins when recognized, otherwise a 200/206/304 response counts as served
// from cache.
func IsHit(ev *parser.Event) bool {
	switch strings.ToUpper(ev.HitStatus) {
	case "HIT", "STALE":
		return true
	case "MISS", "BYPASS", "EXPIRED":
		return false
	}
	switch ev.Status {
	case 200, 206, 304:
		return true
	}
	return false
}

func (c *Classifier) cdnLabel(ev *parser.Event) string {
	// An explicit tag from the log format is authoritative.
	if ev.CDNTag != "" {
		return strings.ToLower(ev.CDNTag)
	}

	host := strings.ToLower(ev.Host)
	path := strings.ToLower(ev.Path)

	cfg := c.cfgStore.Current()
	if cfg == nil {
		return UnknownCDN
	}
	for _, rule := range cfg.CDNs {
		for _, p := range rule.Patterns {
			if p == "" {
				continue
			}
			if (host != "" && strings.Contains(host, p)) || strings.Contains(path, p) {
				return rule.Label
			}
		}
	}
	return UnknownCDN
}
