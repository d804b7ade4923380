package stats

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/lanops/cachewatch/internal/config"
	"github.com/lanops/cachewatch/internal/metrics"
)

// clientIdleTTL is how long a client may stay quiet before the reporter
// drops it from the per-client table.
const clientIdleTTL = time.Hour

// Reporter periodically refreshes the gauge metrics and logs a traffic
// summary.
type Reporter struct {
	agg      *Aggregator
	cfgStore *config.Store
	logger   zerolog.Logger
}

// NewReporter creates a Reporter over the given aggregator.
func NewReporter(agg *Aggregator, cfgStore *config.Store, logger zerolog.Logger) *Reporter {
	return &Reporter{agg: agg, cfgStore: cfgStore, logger: logger}
}

// Run reports on the configured cadence until ctx is canceled. The
// interval is re-read every cycle so config reloads take effect.
func (r *Reporter) Run(ctx context.Context) {
	for {
		interval := config.DefaultReportInterval
		if cfg := r.cfgStore.Current(); cfg != nil && cfg.Stats.ReportInterval > 0 {
			interval = cfg.Stats.ReportInterval
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			r.report()
		}
	}
}

func (r *Reporter) report() {
	snap := r.agg.Snapshot()

	metrics.UptimeSeconds.Set(snap.UptimeSeconds)
	metrics.ActiveClients.Set(float64(snap.RecentRequests))
	metrics.CacheSizeBytes.Set(float64(snap.TotalBytes))
	metrics.BytesServedTotal.Set(float64(snap.TotalBytes))

	if pruned := r.agg.PruneIdleClients(clientIdleTTL); pruned > 0 {
		r.logger.Debug().Int("clients", pruned).Msg("pruned idle clients")
	}

	r.logger.Info().
		Uint64("requests", snap.TotalRequests).
		Uint64("hits", snap.TotalHits).
		Uint64("misses", snap.TotalMisses).
		Float64("hit_rate", snap.HitRate).
		Float64("served_gb", gigabytes(snap.TotalBytes)).
		Int("recent", snap.RecentRequests).
		Msg("traffic summary")

	for _, name := range cdnsByBytes(snap.CDNs) {
		cs := snap.CDNs[name]
		r.logger.Info().
			Str("cdn", name).
			Uint64("requests", cs.Requests).
			Uint64("hits", cs.Hits).
			Float64("hit_rate", cs.HitRate).
			Float64("served_gb", gigabytes(cs.Bytes)).
			Msg("cdn summary")
	}
}

// cdnsByBytes returns CDN names sorted busiest-first for stable log output.
func cdnsByBytes(cdns map[string]CDNSnapshot) []string {
	names := make([]string, 0, len(cdns))
	for name := range cdns {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := cdns[names[i]], cdns[names[j]]
		if a.Bytes != b.Bytes {
			return a.Bytes > b.Bytes
		}
		return names[i] < names[j]
	})
	return names
}

func gigabytes(n int64) float64 {
	return float64(n) / (1 << 30)
}
