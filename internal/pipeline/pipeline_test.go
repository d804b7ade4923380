package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanops/cachewatch/internal/config"
	"github.com/lanops/cachewatch/internal/metrics"
	"github.com/lanops/cachewatch/internal/stats"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "access.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(path, format string) *config.Config {
	return &config.Config{
		Logging: config.LoggingConfig{Level: "info"},
		Log:     config.LogConfig{Path: path, Format: format},
		Tail: config.TailConfig{
			Mode:         config.TailModePoll,
			PollInterval: 10 * time.Millisecond,
			StartAt:      config.StartAtStart,
		},
		Stats: config.StatsConfig{
			RecentWindow:   100,
			MaxClients:     64,
			ReportInterval: time.Minute,
		},
		Metrics: config.MetricsConfig{Listen: ":0"},
		CDNs:    config.DefaultCDNRules(),
	}
}

func startPipeline(t *testing.T, cfg *config.Config) *stats.Aggregator {
	t.Helper()
	store := config.NewStore(cfg)
	agg := stats.New(cfg.Stats.RecentWindow, cfg.Stats.MaxClients)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, Start(ctx, cfg, store, zerolog.Nop(), agg))
	return agg
}

func waitForRequests(t *testing.T, agg *stats.Aggregator, n uint64) stats.Snapshot {
	t.Helper()
	var snap stats.Snapshot
	require.Eventually(t, func() bool {
		snap = agg.Snapshot()
		return snap.TotalRequests >= n
	}, 3*time.Second, 20*time.Millisecond, "want at least %d requests", n)
	return snap
}

func TestPipelineCombinedLog(t *testing.T) {
	path := writeLog(t, `1.2.3.4 - - [01/Jan/2024:00:00:00 +0000] "GET /steam/depot/1 HTTP/1.1" 200 2048 "-" "-" "HIT"
1.2.3.4 - - [01/Jan/2024:00:00:01 +0000] "GET /epic/manifest HTTP/1.1" 404 0 "-" "-" "MISS"
`)

	agg := startPipeline(t, testConfig(path, "combined"))
	snap := waitForRequests(t, agg, 2)

	assert.Equal(t, uint64(2), snap.TotalRequests)
	assert.Equal(t, uint64(1), snap.TotalHits)
	assert.Equal(t, uint64(1), snap.TotalMisses)
	assert.Equal(t, int64(2048), snap.TotalBytes)
	assert.InDelta(t, 0.5, snap.HitRate, 1e-9)

	require.Contains(t, snap.CDNs, "steam")
	require.Contains(t, snap.CDNs, "epic")
	assert.Equal(t, stats.CDNSnapshot{Requests: 1, Hits: 1, Bytes: 2048, HitRate: 1}, snap.CDNs["steam"])
	assert.Equal(t, stats.CDNSnapshot{Requests: 1, Misses: 1}, snap.CDNs["epic"])

	assert.Equal(t, uint64(1), snap.StatusCodes[200])
	assert.Equal(t, uint64(1), snap.StatusCodes[404])

	require.Len(t, snap.TopClients, 1)
	assert.Equal(t, stats.ClientSnapshot{Address: "1.2.3.4", Requests: 2, Bytes: 2048}, snap.TopClients[0])
}

func TestPipelineLancacheLog(t *testing.T) {
	path := writeLog(t, `[steam] 10.0.0.5 / - - - [01/Jan/2024:00:00:00 +0000] "GET /depot/881/chunk/abc HTTP/1.1" 200 1048576 "-" "Valve/Steam HTTP Client 1.0" "HIT" "-" "-"
[wsus] 10.0.0.6 / - - - [01/Jan/2024:00:00:01 +0000] "GET /update.cab HTTP/1.1" 200 512 "-" "Windows-Update-Agent" "MISS" "upstream.example" "-"
`)

	agg := startPipeline(t, testConfig(path, "lancache"))
	snap := waitForRequests(t, agg, 2)

	// The bracketed tag wins over any URL matching, even for labels the
	// rule table does not know.
	require.Contains(t, snap.CDNs, "steam")
	require.Contains(t, snap.CDNs, "wsus")
	assert.Equal(t, stats.CDNSnapshot{Requests: 1, Hits: 1, Bytes: 1048576, HitRate: 1}, snap.CDNs["steam"])
	assert.Equal(t, stats.CDNSnapshot{Requests: 1, Misses: 1, Bytes: 512}, snap.CDNs["wsus"])
}

func TestPipelineSkipsUnparseableLines(t *testing.T) {
	path := writeLog(t, `1.2.3.4 - - [01/Jan/2024:00:00:00 +0000] "GET /steam/depot/1 HTTP/1.1" 200 2048 "-" "-" "HIT"
this is not an access log line

1.2.3.4 - - [01/Jan/2024:00:00:01 +0000] "GET /epic/manifest HTTP/1.1" 404 0 "-" "-" "MISS"
`)

	before := testutil.ToFloat64(metrics.ParseErrors)
	agg := startPipeline(t, testConfig(path, "combined"))
	snap := waitForRequests(t, agg, 2)

	// Lines are processed in file order, so by the time the second valid
	// line landed the junk line was already counted. Blank lines are
	// skipped without counting as errors.
	assert.Equal(t, uint64(2), snap.TotalRequests)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ParseErrors))
}

func TestPipelineStreamsAppendedLines(t *testing.T) {
	path := writeLog(t, "")

	agg := startPipeline(t, testConfig(path, "combined"))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("5.6.7.8 - - [01/Jan/2024:00:00:00 +0000] \"GET /blizzard/data HTTP/1.1\" 200 100 \"-\" \"-\" \"HIT\"\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	snap := waitForRequests(t, agg, 1)
	assert.Contains(t, snap.CDNs, "blizzard")
}

func TestPipelineStartErrors(t *testing.T) {
	cfg := testConfig("/tmp/access.log", "xml")
	store := config.NewStore(cfg)
	agg := stats.New(100, 64)
	err := Start(context.Background(), cfg, store, zerolog.Nop(), agg)
	require.Error(t, err)

	cfg = testConfig("/tmp/access.log", "combined")
	cfg.Tail.Mode = "watch"
	err = Start(context.Background(), cfg, store, zerolog.Nop(), agg)
	require.Error(t, err)
}
