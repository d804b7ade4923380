package stats

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lanops/cachewatch/internal/classify"
	"github.com/lanops/cachewatch/internal/metrics"
	"github.com/lanops/cachewatch/internal/parser"
)

// activityWindow is how far back a request still counts as recent activity.
const activityWindow = 60 * time.Second

// topClientsN bounds the client list included in snapshots.
const topClientsN = 10

// cdnCounters accumulates per-CDN totals.
type cdnCounters struct {
	requests uint64
	hits     uint64
	bytes    int64
}

// recentEntry is one request in the recent-activity ring.
type recentEntry struct {
	at    time.Time
	cdn   string
	bytes int64
}

// recentRing is a fixed-capacity overwrite-oldest buffer of recent requests.
type recentRing struct {
	buf  []recentEntry
	next int
	size int
}

func newRecentRing(capacity int) *recentRing {
	if capacity <= 0 {
		capacity = 1000
	}
	return &recentRing{buf: make([]recentEntry, capacity)}
}

func (r *recentRing) push(e recentEntry) {
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

func (r *recentRing) countSince(cutoff time.Time) int {
	n := 0
	for i := 0; i < r.size; i++ {
		if r.buf[i].at.After(cutoff) {
			n++
		}
	}
	return n
}

// Aggregator keeps the running totals derived from the access log. All
// fields are guarded by mu; Record applies every side effect of one line
// inside a single critical section so snapshots never observe a
// half-applied request.
type Aggregator struct {
	mu sync.RWMutex

	start time.Time
	now   func() time.Time

	totalRequests uint64
	totalHits     uint64
	totalMisses   uint64
	totalBytes    int64

	cdns        map[string]*cdnCounters
	statusCodes map[int]uint64
	recent      *recentRing
	clients     *clientTracker
}

// New creates an Aggregator. recentWindow caps the recent-request ring and
// maxClients caps the per-client table.
func New(recentWindow, maxClients int) *Aggregator {
	a := &Aggregator{
		now:         time.Now,
		cdns:        make(map[string]*cdnCounters),
		statusCodes: make(map[int]uint64),
		recent:      newRecentRing(recentWindow),
		clients:     newClientTracker(maxClients),
	}
	a.start = a.now()
	return a
}

// Record folds one classified request into the totals and updates the
// exported Prometheus series.
func (a *Aggregator) Record(ev *parser.Event, res classify.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()

	a.totalRequests++
	if res.Hit {
		a.totalHits++
	} else {
		a.totalMisses++
	}
	a.totalBytes += ev.Bytes
	a.statusCodes[ev.Status]++

	c := a.cdns[res.CDN]
	if c == nil {
		c = &cdnCounters{}
		a.cdns[res.CDN] = c
	}
	c.requests++
	if res.Hit {
		c.hits++
	}
	c.bytes += ev.Bytes

	a.recent.push(recentEntry{at: now, cdn: res.CDN, bytes: ev.Bytes})
	a.clients.observe(ev.RemoteAddr, ev.Bytes, now)

	metrics.RequestsTotal.WithLabelValues(strconv.Itoa(ev.Status), ev.Method, res.CDN).Inc()
	if ev.Bytes > 0 {
		metrics.BytesTotal.WithLabelValues(res.CDN, hitStatusLabel(ev.HitStatus)).Add(float64(ev.Bytes))
	}
	if res.Hit {
		metrics.CacheHits.WithLabelValues(res.CDN).Inc()
	} else {
		metrics.CacheMisses.WithLabelValues(res.CDN).Inc()
	}
	metrics.HitRate.Set(float64(a.totalHits) / float64(a.totalRequests))
	metrics.HitRateByCDN.WithLabelValues(res.CDN).Set(float64(c.hits) / float64(c.requests))
	if ev.ResponseTime > 0 {
		metrics.RequestDuration.WithLabelValues(res.CDN).Observe(ev.ResponseTime)
	}
}

// hitStatusLabel normalizes the raw cache status for the bytes counter.
func hitStatusLabel(raw string) string {
	if raw == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(raw)
}

// Snapshot is a consistent copy of the aggregate state, shaped for the
// JSON stats endpoint.
type Snapshot struct {
	StartTime      time.Time              `json:"start_time"`
	UptimeSeconds  float64                `json:"uptime_seconds"`
	TotalRequests  uint64                 `json:"total_requests"`
	TotalHits      uint64                 `json:"total_hits"`
	TotalMisses    uint64                 `json:"total_misses"`
	TotalBytes     int64                  `json:"total_bytes"`
	HitRate        float64                `json:"hit_rate"`
	RecentRequests int                    `json:"recent_requests"`
	CDNs           map[string]CDNSnapshot `json:"cdns"`
	StatusCodes    map[int]uint64         `json:"status_codes"`
	TopClients     []ClientSnapshot       `json:"top_clients"`
}

// CDNSnapshot holds the per-CDN totals at snapshot time.
type CDNSnapshot struct {
	Requests uint64  `json:"requests"`
	Hits     uint64  `json:"hits"`
	Misses   uint64  `json:"misses"`
	Bytes    int64   `json:"bytes"`
	HitRate  float64 `json:"hit_rate"`
}

// ClientSnapshot holds one client's totals at snapshot time.
type ClientSnapshot struct {
	Address  string `json:"address"`
	Requests uint64 `json:"requests"`
	Bytes    int64  `json:"bytes"`
}

// Snapshot returns a deep copy of the current totals. Callers own the
// result and may retain it across further Records.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	now := a.now()
	snap := Snapshot{
		StartTime:      a.start,
		UptimeSeconds:  now.Sub(a.start).Seconds(),
		TotalRequests:  a.totalRequests,
		TotalHits:      a.totalHits,
		TotalMisses:    a.totalMisses,
		TotalBytes:     a.totalBytes,
		RecentRequests: a.recent.countSince(now.Add(-activityWindow)),
		CDNs:           make(map[string]CDNSnapshot, len(a.cdns)),
		StatusCodes:    make(map[int]uint64, len(a.statusCodes)),
		TopClients:     a.clients.top(topClientsN),
	}
	if a.totalRequests > 0 {
		snap.HitRate = float64(a.totalHits) / float64(a.totalRequests)
	}
	for name, c := range a.cdns {
		cs := CDNSnapshot{
			Requests: c.requests,
			Hits:     c.hits,
			Misses:   c.requests - c.hits,
			Bytes:    c.bytes,
		}
		if c.requests > 0 {
			cs.HitRate = float64(c.hits) / float64(c.requests)
		}
		snap.CDNs[name] = cs
	}
	for code, n := range a.statusCodes {
		snap.StatusCodes[code] = n
	}
	return snap
}

// PruneIdleClients drops clients quiet for longer than olderThan and
// reports how many were removed.
func (a *Aggregator) PruneIdleClients(olderThan time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.clients.pruneIdle(a.now().Add(-olderThan))
}
