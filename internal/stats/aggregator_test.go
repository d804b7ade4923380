package stats

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanops/cachewatch/internal/classify"
	"github.com/lanops/cachewatch/internal/parser"
)

func record(a *Aggregator, addr, cdn string, status int, bytes int64, hit bool) {
	a.Record(&parser.Event{
		RemoteAddr: addr,
		Method:     "GET",
		Status:     status,
		Bytes:      bytes,
	}, classify.Result{Hit: hit, CDN: cdn})
}

func TestAggregatorTotals(t *testing.T) {
	a := New(100, 10)

	record(a, "1.2.3.4", "steam", 200, 2048, true)
	record(a, "1.2.3.4", "epic", 404, 0, false)

	snap := a.Snapshot()
	assert.Equal(t, uint64(2), snap.TotalRequests)
	assert.Equal(t, uint64(1), snap.TotalHits)
	assert.Equal(t, uint64(1), snap.TotalMisses)
	assert.Equal(t, int64(2048), snap.TotalBytes)
	assert.InDelta(t, 0.5, snap.HitRate, 1e-9)

	steam := snap.CDNs["steam"]
	assert.Equal(t, uint64(1), steam.Requests)
	assert.Equal(t, uint64(1), steam.Hits)
	assert.Equal(t, uint64(0), steam.Misses)
	assert.Equal(t, int64(2048), steam.Bytes)
	assert.InDelta(t, 1.0, steam.HitRate, 1e-9)

	epic := snap.CDNs["epic"]
	assert.Equal(t, uint64(1), epic.Requests)
	assert.Equal(t, uint64(0), epic.Hits)
	assert.Equal(t, uint64(1), epic.Misses)
	assert.Equal(t, int64(0), epic.Bytes)

	assert.Equal(t, uint64(1), snap.StatusCodes[200])
	assert.Equal(t, uint64(1), snap.StatusCodes[404])
}

func TestAggregatorEmptySnapshot(t *testing.T) {
	a := New(0, 0)

	snap := a.Snapshot()
	assert.Zero(t, snap.TotalRequests)
	assert.Zero(t, snap.HitRate)
	assert.Empty(t, snap.CDNs)
	assert.Empty(t, snap.TopClients)
}

func TestAggregatorSnapshotIsCopy(t *testing.T) {
	a := New(100, 10)
	record(a, "1.2.3.4", "steam", 200, 100, true)

	snap := a.Snapshot()
	record(a, "1.2.3.4", "steam", 200, 100, true)

	assert.Equal(t, uint64(1), snap.TotalRequests)
	assert.Equal(t, uint64(1), snap.CDNs["steam"].Requests)
}

func TestAggregatorRecentWindow(t *testing.T) {
	a := New(100, 10)
	base := time.Now()
	cur := base
	a.now = func() time.Time { return cur }

	for i := 0; i < 3; i++ {
		record(a, "1.2.3.4", "steam", 200, 1, true)
	}

	// Entries older than the activity window no longer count as recent.
	cur = base.Add(2 * time.Minute)
	record(a, "1.2.3.4", "steam", 200, 1, true)

	snap := a.Snapshot()
	assert.Equal(t, uint64(4), snap.TotalRequests)
	assert.Equal(t, 1, snap.RecentRequests)
}

func TestRecentRingOverwritesOldest(t *testing.T) {
	r := newRecentRing(3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		r.push(recentEntry{at: now})
	}

	assert.Equal(t, 3, r.countSince(now.Add(-time.Minute)))
}

func TestAggregatorTopClients(t *testing.T) {
	a := New(100, 10)

	record(a, "10.0.0.1", "steam", 200, 100, true)
	record(a, "10.0.0.2", "steam", 200, 300, true)
	record(a, "10.0.0.2", "steam", 200, 300, true)
	record(a, "10.0.0.3", "steam", 200, 50, true)

	snap := a.Snapshot()
	require.Len(t, snap.TopClients, 3)
	assert.Equal(t, "10.0.0.2", snap.TopClients[0].Address)
	assert.Equal(t, int64(600), snap.TopClients[0].Bytes)
	assert.Equal(t, uint64(2), snap.TopClients[0].Requests)
	assert.Equal(t, "10.0.0.1", snap.TopClients[1].Address)
	assert.Equal(t, "10.0.0.3", snap.TopClients[2].Address)
}

func TestAggregatorPruneIdleClients(t *testing.T) {
	a := New(100, 10)
	base := time.Now()
	cur := base
	a.now = func() time.Time { return cur }

	record(a, "10.0.0.1", "steam", 200, 1, true)

	cur = base.Add(3 * time.Hour)
	record(a, "10.0.0.2", "steam", 200, 1, true)

	pruned := a.PruneIdleClients(time.Hour)
	assert.Equal(t, 1, pruned)

	snap := a.Snapshot()
	require.Len(t, snap.TopClients, 1)
	assert.Equal(t, "10.0.0.2", snap.TopClients[0].Address)
}

func TestAggregatorConcurrentRecord(t *testing.T) {
	a := New(1000, 100)

	const (
		workers = 8
		perG    = 250
	)

	var wg sync.WaitGroup
	for g := 0; g < workers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			hit := g%2 == 0
			addr := fmt.Sprintf("10.0.0.%d", g)
			for i := 0; i < perG; i++ {
				record(a, addr, "steam", 200, 1, hit)
				if i%25 == 0 {
					_ = a.Snapshot()
				}
			}
		}(g)
	}
	wg.Wait()

	snap := a.Snapshot()
	assert.Equal(t, uint64(workers*perG), snap.TotalRequests)
	assert.Equal(t, snap.TotalRequests, snap.TotalHits+snap.TotalMisses)
	assert.Equal(t, uint64(workers*perG/2), snap.TotalHits)
	assert.Equal(t, int64(workers*perG), snap.TotalBytes)
	assert.Equal(t, uint64(workers*perG), snap.CDNs["steam"].Requests)
}

func TestHitStatusLabel(t *testing.T) {
	assert.Equal(t, "HIT", hitStatusLabel("hit"))
	assert.Equal(t, "MISS", hitStatusLabel("MISS"))
	assert.Equal(t, "UNKNOWN", hitStatusLabel(""))
}
