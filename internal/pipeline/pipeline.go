// Package pipeline runs one map build: fetch, interpolate, render, publish,
// then feed the optional sinks.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/KI7MT/muf-rt/internal/archive"
	"github.com/KI7MT/muf-rt/internal/bands"
	"github.com/KI7MT/muf-rt/internal/bmp565"
	"github.com/KI7MT/muf-rt/internal/config"
	"github.com/KI7MT/muf-rt/internal/interp"
	"github.com/KI7MT/muf-rt/internal/metrics"
	"github.com/KI7MT/muf-rt/internal/render"
	"github.com/KI7MT/muf-rt/internal/solar"
	"github.com/KI7MT/muf-rt/internal/station"
	"github.com/KI7MT/muf-rt/internal/store"
)

// Source supplies the observations for a run. now is the freshness
// reference.
type Source interface {
	Observations(ctx context.Context, now time.Time) ([]station.Observation, station.Stats, error)
}

// ObservationSink receives the accepted observations after publishing.
type ObservationSink interface {
	Write(ctx context.Context, runTime time.Time, obs []station.Observation) error
}

// RunSink receives the run summary after publishing.
type RunSink interface {
	Write(ctx context.Context, row store.RunRow) error
}

// Stage names used in logs and metrics.
const (
	StageBase        = "base"
	StageFetch       = "fetch"
	StageInterpolate = "interpolate"
	StageRender      = "render"
	StageWrite       = "write"
)

// Pipeline builds and publishes one map per Run.
type Pipeline struct {
	cfg     *config.Config
	source  Source
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	observations ObservationSink
	runs         RunSink

	// evalTime, when set, is the evaluation and freshness time. Stage
	// timings and the success timestamp still come from clock.
	evalTime time.Time

	// evalAtNewest takes the evaluation time from the newest observation
	// rather than the clock. Used when replaying a snapshot.
	evalAtNewest bool
}

// Option configures optional collaborators.
type Option func(*Pipeline)

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithMetrics records run gauges and writes them to the configured textfile.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithObservationSink stores accepted observations.
func WithObservationSink(s ObservationSink) Option {
	return func(p *Pipeline) { p.observations = s }
}

// WithRunSink stores the run summary.
func WithRunSink(s RunSink) Option {
	return func(p *Pipeline) { p.runs = s }
}

// WithEvalTime evaluates the map at t instead of the current time.
func WithEvalTime(t time.Time) Option {
	return func(p *Pipeline) { p.evalTime = t }
}

// WithEvalAtNewest evaluates the solar term at the newest observation time.
func WithEvalAtNewest() Option {
	return func(p *Pipeline) { p.evalAtNewest = true }
}

// New creates a Pipeline. cfg must already be validated.
func New(cfg *config.Config, src Source, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		source: src,
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result describes a completed run.
type Result struct {
	RunTime  time.Time
	EvalTime time.Time
	Stats    station.Stats
	Field    *interp.Field
	Summary  interp.Summary
	Residual float64
	Coverage []bands.Coverage
	Paths    bmp565.Paths
	Snapshot string // archive file, empty when not archived

	// Subsolar point at EvalTime in degrees, set when solar weighting is on.
	SubsolarLat float64
	SubsolarLon float64

	Elapsed  time.Duration

	// Warnings collects sink failures. They never fail the run.
	Warnings []error
}

// Run builds and publishes the map. An error means nothing was published.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := p.clock.Now()
	res := &Result{RunTime: start, EvalTime: start}
	if !p.evalTime.IsZero() {
		res.EvalTime = p.evalTime
	}

	stageStart := start
	stage := func(name string) {
		now := p.clock.Now()
		d := now.Sub(stageStart)
		stageStart = now
		if p.metrics != nil {
			p.metrics.ObserveStage(name, d)
		}
		p.logger.Debug("stage complete", "stage", name, "elapsed", d)
	}

	grid, err := p.cfg.Grid()
	if err != nil {
		return nil, err
	}

	base, err := render.LoadBase(p.cfg.BasePath)
	if err != nil {
		return nil, err
	}
	stage(StageBase)

	obs, stats, err := p.source.Observations(ctx, res.EvalTime)
	if err != nil {
		return nil, fmt.Errorf("fetch observations: %w", err)
	}
	res.Stats = stats
	if p.evalAtNewest {
		if newest := archive.Newest(obs); !newest.IsZero() {
			res.EvalTime = newest
		}
	}
	p.logger.Info("observations loaded",
		"records", stats.Records,
		"accepted", stats.Accepted,
		"dropped_invalid", stats.DroppedInvalid,
		"dropped_stale", stats.DroppedStale)
	stage(StageFetch)

	if p.cfg.UseSolar {
		res.SubsolarLat, res.SubsolarLon = solar.SubsolarPoint(res.EvalTime)
		p.logger.Info("solar weighting",
			"eval_time", res.EvalTime,
			"subsolar_lat", res.SubsolarLat,
			"subsolar_lon", res.SubsolarLon)
	}

	field := interp.Interpolate(obs, grid, p.cfg.Interp(res.EvalTime))
	res.Field = field
	res.Summary = field.Stats()
	res.Residual = interp.Residual(obs, field)
	res.Coverage = bands.FieldCoverage(field)
	if field.Empty {
		p.logger.Warn("no usable observations, publishing base map only")
	}
	stage(StageInterpolate)

	var overlay image.Image
	if !field.Empty {
		values := render.ResampleBilinear(field, p.cfg.Width, p.cfg.Height)
		overlay = render.Overlay(values, p.cfg.Width, p.cfg.Height, p.cfg.Alpha)
	}
	comp := render.Composite(base, overlay, p.cfg.Width, p.cfg.Height)
	data := bmp565.Encode(comp)
	stage(StageRender)

	paths, err := bmp565.WriteAtomic(p.cfg.OutDir, p.cfg.FileName(), data)
	if err != nil {
		return nil, fmt.Errorf("publish map: %w", err)
	}
	res.Paths = paths
	stage(StageWrite)

	p.logger.Info("map published",
		"path", paths.BMP,
		"bytes", len(data),
		"field_min", res.Summary.Min,
		"field_max", res.Summary.Max,
		"field_mean", res.Summary.Mean,
		"residual_mhz", res.Residual)

	p.runSinks(ctx, res, obs)

	res.Elapsed = p.clock.Since(start)
	return res, nil
}

// runSinks feeds the archive, ClickHouse and metrics. The map is already
// published, so failures are logged and collected, never returned.
func (p *Pipeline) runSinks(ctx context.Context, res *Result, obs []station.Observation) {
	warn := func(sink string, err error) {
		if err == nil {
			return
		}
		res.Warnings = append(res.Warnings, fmt.Errorf("%s: %w", sink, err))
		p.logger.Warn("sink failed", "sink", sink, "error", err)
		if p.metrics != nil {
			p.metrics.SinkErrors.WithLabelValues(sink).Set(1)
		}
	}
	if p.metrics != nil {
		for _, s := range []string{"archive", "observations", "runs"} {
			p.metrics.SinkErrors.WithLabelValues(s).Set(0)
		}
	}

	if p.cfg.ArchiveDir != "" && p.cfg.ReplayPath == "" {
		path, err := archive.WriteSnapshot(p.cfg.ArchiveDir, res.RunTime, obs)
		warn("archive", err)
		if err == nil {
			res.Snapshot = path
			p.logger.Debug("snapshot archived", "path", path, "rows", len(obs))
		}
	}

	if p.observations != nil {
		warn("observations", p.observations.Write(ctx, res.RunTime, obs))
	}
	if p.runs != nil {
		warn("runs", p.runs.Write(ctx, res.runRow(p.source, p.clock.Since(res.RunTime))))
	}

	if p.metrics != nil {
		p.record(res)
		if p.cfg.MetricsFile != "" {
			if err := p.metrics.WriteTextfile(p.cfg.MetricsFile); err != nil {
				res.Warnings = append(res.Warnings, err)
				p.logger.Warn("metrics textfile failed", "error", err)
			}
		}
	}
}

func (p *Pipeline) record(res *Result) {
	m := p.metrics
	m.Records.Set(float64(res.Stats.Records))
	m.Accepted.Set(float64(res.Stats.Accepted))
	m.Dropped.WithLabelValues("invalid").Set(float64(res.Stats.DroppedInvalid))
	m.Dropped.WithLabelValues("stale").Set(float64(res.Stats.DroppedStale))
	m.FieldMHz.WithLabelValues("min").Set(res.Summary.Min)
	m.FieldMHz.WithLabelValues("max").Set(res.Summary.Max)
	m.FieldMHz.WithLabelValues("mean").Set(res.Summary.Mean)
	m.Residual.Set(res.Residual)
	empty := 0.0
	if res.Field != nil && res.Field.Empty {
		empty = 1
	}
	m.EmptyField.Set(empty)
	for _, c := range res.Coverage {
		m.BandCoverage.WithLabelValues(c.Band.Name).Set(c.Fraction)
	}
	m.MarkSuccess(p.clock.Now())
}

// SourceName labels where observations came from.
func SourceName(src Source) string {
	switch s := src.(type) {
	case archive.Replay:
		return "replay:" + s.Path
	case *station.Fetcher:
		return "live"
	}
	return fmt.Sprintf("%T", src)
}

func (r *Result) runRow(src Source, elapsed time.Duration) store.RunRow {
	row := store.RunRow{
		RunTime:   r.RunTime,
		EvalTime:  r.EvalTime,
		Source:    SourceName(src),
		Records:   uint32(r.Stats.Records),
		Accepted:  uint32(r.Stats.Accepted),
		Dropped:   uint32(r.Stats.Dropped()),
		FieldMin:  float32(r.Summary.Min),
		FieldMax:  float32(r.Summary.Max),
		FieldMean: float32(r.Summary.Mean),
		Residual:  float32(r.Residual),
		ElapsedMs: uint32(elapsed.Milliseconds()),
		Output:    r.Paths.BMP,
	}
	if r.Field != nil {
		row.Empty = r.Field.Empty
	}
	for _, c := range r.Coverage {
		row.BandNames = append(row.BandNames, c.Band.Name)
		row.BandCoverage = append(row.BandCoverage, float32(c.Fraction))
	}
	return row
}
