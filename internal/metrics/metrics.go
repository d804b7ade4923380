// Package metrics declares the Prometheus instruments exported on /metrics.
// Counters are driven by the stats aggregator as lines arrive; gauges are
// refreshed by the periodic reporter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lancache_requests_total",
		Help: "Total requests seen in the access log.",
	}, []string{"status", "method", "cdn"})

	BytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lancache_bytes_total",
		Help: "Total bytes served, labelled by CDN and cache status.",
	}, []string{"cdn", "hit_status"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lancache_cache_hits_total",
		Help: "Requests answered from the local cache.",
	}, []string{"cdn"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lancache_cache_misses_total",
		Help: "Requests that had to go upstream.",
	}, []string{"cdn"})

	HitRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lancache_hit_rate",
		Help: "Overall cache hit rate (0-1).",
	})

	HitRateByCDN = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lancache_hit_rate_by_cdn",
		Help: "Cache hit rate per CDN (0-1).",
	}, []string{"cdn"})

	ActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lancache_active_connections",
		Help: "Requests observed within the recent activity window.",
	})

	CacheSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lancache_cache_size_bytes",
		Help: "Approximate bytes held by the cache, derived from served traffic.",
	})

	// BytesServedTotal duplicates the bytes counter as a gauge because the
	// stock dashboards graph it that way.
	BytesServedTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lancache_bytes_served_total",
		Help: "Total bytes served since start.",
	})

	UptimeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lancache_uptime_seconds",
		Help: "Seconds since the monitor started.",
	})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lancache_http_duration_seconds",
		Help:    "Upstream response time as logged, per CDN.",
		Buckets: prometheus.DefBuckets,
	}, []string{"cdn"})

	ParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lancache_parse_errors_total",
		Help: "Access log lines that did not match the configured format.",
	})
)
