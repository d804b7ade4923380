package stats

import (
	"sort"
	"time"
)

// clientCounters holds per-client totals.
type clientCounters struct {
	requests uint64
	bytes    int64
	lastSeen time.Time
}

// clientTracker tracks per-client traffic with a hard cap on unique
// addresses, so a scan from spoofed sources cannot grow the map without
// bound. At capacity the least recently seen client is evicted.
// Synchronization is handled by the owning Aggregator.
type clientTracker struct {
	byAddr map[string]*clientCounters
	max    int
}

func newClientTracker(max int) *clientTracker {
	if max <= 0 {
		max = 1024
	}
	return &clientTracker{
		byAddr: make(map[string]*clientCounters),
		max:    max,
	}
}

func (t *clientTracker) observe(addr string, bytes int64, now time.Time) {
	if addr == "" {
		return
	}
	c, ok := t.byAddr[addr]
	if !ok {
		if len(t.byAddr) >= t.max {
			t.evictOldest()
		}
		c = &clientCounters{}
		t.byAddr[addr] = c
	}
	c.requests++
	c.bytes += bytes
	c.lastSeen = now
}

func (t *clientTracker) evictOldest() {
	var (
		oldestAddr string
		oldestSeen time.Time
	)
	for addr, c := range t.byAddr {
		if oldestAddr == "" || c.lastSeen.Before(oldestSeen) {
			oldestAddr = addr
			oldestSeen = c.lastSeen
		}
	}
	if oldestAddr != "" {
		delete(t.byAddr, oldestAddr)
	}
}

// pruneIdle removes clients not seen since the cutoff and reports how many
// were dropped.
func (t *clientTracker) pruneIdle(cutoff time.Time) int {
	n := 0
	for addr, c := range t.byAddr {
		if c.lastSeen.Before(cutoff) {
			delete(t.byAddr, addr)
			n++
		}
	}
	return n
}

// top returns the n busiest clients by bytes served, ties broken by
// address for stable output.
func (t *clientTracker) top(n int) []ClientSnapshot {
	out := make([]ClientSnapshot, 0, len(t.byAddr))
	for addr, c := range t.byAddr {
		out = append(out, ClientSnapshot{Address: addr, Requests: c.requests, Bytes: c.bytes})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bytes != out[j].Bytes {
			return out[i].Bytes > out[j].Bytes
		}
		return out[i].Address < out[j].Address
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
