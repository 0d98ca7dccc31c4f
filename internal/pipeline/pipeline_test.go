package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/klauspost/compress/zlib"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KI7MT/muf-rt/internal/archive"
	"github.com/KI7MT/muf-rt/internal/bmp565"
	"github.com/KI7MT/muf-rt/internal/config"
	"github.com/KI7MT/muf-rt/internal/metrics"
	"github.com/KI7MT/muf-rt/internal/render"
	"github.com/KI7MT/muf-rt/internal/solar"
	"github.com/KI7MT/muf-rt/internal/station"
	"github.com/KI7MT/muf-rt/internal/store"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	obs   []station.Observation
	stats station.Stats
	err   error

	calls int
	now   time.Time

	// clock, when set, is advanced by delay to simulate a slow feed.
	clock *clockwork.FakeClock
	delay time.Duration
}

func (s *fakeSource) Observations(ctx context.Context, now time.Time) ([]station.Observation, station.Stats, error) {
	s.calls++
	s.now = now
	if s.clock != nil {
		s.clock.Advance(s.delay)
	}
	return s.obs, s.stats, s.err
}

type obsSink struct {
	runTime time.Time
	obs     []station.Observation
	err     error
}

func (s *obsSink) Write(ctx context.Context, runTime time.Time, obs []station.Observation) error {
	s.runTime, s.obs = runTime, obs
	return s.err
}

type runSink struct {
	rows []store.RunRow
	err  error
}

func (s *runSink) Write(ctx context.Context, row store.RunRow) error {
	s.rows = append(s.rows, row)
	return s.err
}

func writeBase(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, color.RGBA{0, 64, 128, 255})
		}
	}
	path := filepath.Join(dir, "base.bmp")
	require.NoError(t, os.WriteFile(path, bmp565.Encode(img), 0o644))
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		URL:        "http://example.invalid/stations.json",
		Timeout:    time.Second,
		OutDir:     filepath.Join(dir, "out"),
		BasePath:   writeBase(t, dir),
		Width:      16,
		Height:     8,
		Alpha:      render.DefaultAlpha,
		Product:    "TEST",
		GridWidth:  8,
		GridHeight: 5,
		K:          4,
		Power:      2,

		InfluenceKm: 4000,
		LogLevel:    "info",
	}
}

func stationObs() []station.Observation {
	return []station.Observation{
		{Station: "AA000", Longitude: 0, Latitude: 0, MUF: 20, Confidence: 1, ObservedAt: testNow.Add(-5 * time.Minute)},
		{Station: "BB111", Longitude: 90, Latitude: 45, MUF: 12, Confidence: 0.8, ObservedAt: testNow.Add(-10 * time.Minute)},
	}
}

func TestRun_PublishesMap(t *testing.T) {
	cfg := testConfig(t)
	cfg.ArchiveDir = filepath.Join(t.TempDir(), "archive")
	cfg.MetricsFile = filepath.Join(t.TempDir(), "muf.prom")

	src := &fakeSource{obs: stationObs(), stats: station.Stats{Records: 3, Accepted: 2, DroppedStale: 1}}
	obsOut := &obsSink{}
	runOut := &runSink{}
	m := metrics.New()
	clock := clockwork.NewFakeClockAt(testNow)

	p := New(cfg, src, testLogger(),
		WithClock(clock),
		WithMetrics(m),
		WithObservationSink(obsOut),
		WithRunSink(runOut))

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, testNow, src.now)
	assert.Equal(t, testNow, res.RunTime)
	assert.Equal(t, testNow, res.EvalTime)
	assert.Empty(t, res.Warnings)

	// Bitmap and compressed copy.
	assert.Equal(t, filepath.Join(cfg.OutDir, "map-D-16x8-TEST.bmp"), res.Paths.BMP)
	data, err := os.ReadFile(res.Paths.BMP)
	require.NoError(t, err)
	img, err := bmp565.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 8), img.Bounds())

	zf, err := os.Open(res.Paths.Z)
	require.NoError(t, err)
	defer zf.Close()
	zr, err := zlib.NewReader(zf)
	require.NoError(t, err)
	inflated, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, data, inflated)

	// Field diagnostics.
	require.NotNil(t, res.Field)
	assert.False(t, res.Field.Empty)
	assert.GreaterOrEqual(t, res.Summary.Min, 5.0)
	assert.LessOrEqual(t, res.Summary.Max, 20.0)
	assert.NotEmpty(t, res.Coverage)

	// Sinks.
	require.NotEmpty(t, res.Snapshot)
	archived, err := archive.ReadSnapshot(res.Snapshot)
	require.NoError(t, err)
	assert.Len(t, archived, 2)

	assert.Equal(t, testNow, obsOut.runTime)
	assert.Len(t, obsOut.obs, 2)

	require.Len(t, runOut.rows, 1)
	row := runOut.rows[0]
	assert.Equal(t, "*pipeline.fakeSource", row.Source)
	assert.Equal(t, uint32(3), row.Records)
	assert.Equal(t, uint32(2), row.Accepted)
	assert.Equal(t, uint32(1), row.Dropped)
	assert.False(t, row.Empty)
	assert.Equal(t, res.Paths.BMP, row.Output)
	assert.Len(t, row.BandNames, len(res.Coverage))

	// Metrics.
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Accepted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped.WithLabelValues("stale")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.EmptyField))
	assert.Equal(t, float64(testNow.Unix()), testutil.ToFloat64(m.LastSuccess))
	prom, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "muf_rt_accepted 2")
}

func TestRun_EmptyFieldPublishesBase(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{stats: station.Stats{Records: 4, DroppedInvalid: 4}}

	res, err := New(cfg, src, testLogger(), WithClock(clockwork.NewFakeClockAt(testNow))).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Field.Empty)
	assert.Equal(t, 0.0, res.Residual)

	base, err := render.LoadBase(cfg.BasePath)
	require.NoError(t, err)
	want := bmp565.Encode(render.Composite(base, nil, cfg.Width, cfg.Height))

	got, err := os.ReadFile(res.Paths.BMP)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRun_OverlayChangesOutput(t *testing.T) {
	cfg := testConfig(t)
	res, err := New(cfg, &fakeSource{obs: stationObs()}, testLogger(),
		WithClock(clockwork.NewFakeClockAt(testNow))).Run(context.Background())
	require.NoError(t, err)

	base, err := render.LoadBase(cfg.BasePath)
	require.NoError(t, err)
	baseOnly := bmp565.Encode(render.Composite(base, nil, cfg.Width, cfg.Height))

	got, err := os.ReadFile(res.Paths.BMP)
	require.NoError(t, err)
	assert.Equal(t, len(baseOnly), len(got))
	assert.NotEqual(t, baseOnly, got)
}

func TestRun_SourceErrorPublishesNothing(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{err: errors.New("HTTP 503 from feed")}

	res, err := New(cfg, src, testLogger()).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "503")
	assert.NoFileExists(t, filepath.Join(cfg.OutDir, cfg.FileName()))
	assert.NoFileExists(t, filepath.Join(cfg.OutDir, cfg.FileName()+".z"))
}

func TestRun_BadBaseSkipsFetch(t *testing.T) {
	cfg := testConfig(t)
	cfg.BasePath = filepath.Join(t.TempDir(), "missing.bmp")
	src := &fakeSource{obs: stationObs()}

	_, err := New(cfg, src, testLogger()).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Zero(t, src.calls)
}

func TestRun_SinkFailuresAreWarnings(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.ArchiveDir = filepath.Join(blocker, "archive")

	m := metrics.New()
	obsOut := &obsSink{err: errors.New("connection refused")}
	runOut := &runSink{}

	res, err := New(cfg, &fakeSource{obs: stationObs()}, testLogger(),
		WithClock(clockwork.NewFakeClockAt(testNow)),
		WithMetrics(m),
		WithObservationSink(obsOut),
		WithRunSink(runOut)).Run(context.Background())
	require.NoError(t, err)

	assert.FileExists(t, res.Paths.BMP)
	assert.Empty(t, res.Snapshot)
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0].Error(), "archive")
	assert.Contains(t, res.Warnings[1].Error(), "connection refused")
	assert.Len(t, runOut.rows, 1, "later sinks still run")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkErrors.WithLabelValues("archive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkErrors.WithLabelValues("observations")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SinkErrors.WithLabelValues("runs")))
}

func TestRun_ReplayEvaluatesAtNewest(t *testing.T) {
	cfg := testConfig(t)
	snap, err := archive.WriteSnapshot(t.TempDir(), testNow, stationObs())
	require.NoError(t, err)
	cfg.ReplayPath = snap
	cfg.ArchiveDir = filepath.Join(t.TempDir(), "archive")

	runOut := &runSink{}
	later := testNow.Add(72 * time.Hour)
	res, err := New(cfg, archive.Replay{Path: snap}, testLogger(),
		WithClock(clockwork.NewFakeClockAt(later)),
		WithEvalAtNewest(),
		WithRunSink(runOut)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, later, res.RunTime)
	assert.True(t, res.EvalTime.Equal(testNow.Add(-5*time.Minute)), "eval time %v", res.EvalTime)
	assert.Equal(t, 2, res.Stats.Accepted)
	assert.Empty(t, res.Snapshot, "replays are not archived again")

	require.Len(t, runOut.rows, 1)
	assert.Equal(t, "replay:"+snap, runOut.rows[0].Source)
}

func TestRun_EvalTimeKeepsWallClock(t *testing.T) {
	cfg := testConfig(t)
	cfg.UseSolar = true
	cfg.MetricsFile = filepath.Join(t.TempDir(), "muf.prom")

	wall := testNow.Add(30 * 24 * time.Hour)
	clock := clockwork.NewFakeClockAt(wall)
	src := &fakeSource{obs: stationObs(), clock: clock, delay: 3 * time.Second}
	m := metrics.New()

	res, err := New(cfg, src, testLogger(),
		WithClock(clock),
		WithEvalTime(testNow),
		WithMetrics(m)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, testNow, src.now, "freshness uses the evaluation time")
	assert.Equal(t, testNow, res.EvalTime)
	assert.Equal(t, wall, res.RunTime)
	assert.Equal(t, 3*time.Second, res.Elapsed)
	assert.Equal(t, float64(wall.Add(3*time.Second).Unix()), testutil.ToFloat64(m.LastSuccess))

	lat, lon := solar.At(testNow).Subsolar()
	assert.Equal(t, lat, res.SubsolarLat)
	assert.Equal(t, lon, res.SubsolarLon)
}

func TestSourceName(t *testing.T) {
	assert.Equal(t, "live", SourceName(station.NewFetcher("http://x", time.Second, testLogger())))
	assert.Equal(t, "replay:a.parquet", SourceName(archive.Replay{Path: "a.parquet"}))
}
