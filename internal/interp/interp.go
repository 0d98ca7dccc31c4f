// Package interp turns scattered MUF soundings into a regular global field
// using k-nearest-neighbour inverse distance weighting in log space.
package interp

import (
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/KI7MT/muf-rt/internal/geo"
	"github.com/KI7MT/muf-rt/internal/solar"
	"github.com/KI7MT/muf-rt/internal/station"
)

// MUF limits in MHz. Inputs are clipped to this range before averaging and
// every output cell lands inside it.
const (
	MinMHz = 5.0
	MaxMHz = 35.0
)

// Weighting constants.
const (
	distanceEpsilon = 1e-6 // keeps 1/d^p finite at a station
	weightEpsilon   = 1e-9 // keeps the ratio defined when no weight survives
	latExponent     = 1.5
	solarExponent   = 0.7
)

// Defaults match the production map.
const (
	DefaultK           = 16
	DefaultPower       = 2.8
	DefaultInfluenceKm = 4000.0
)

// rowsPerBand is the unit of work handed to a worker.
const rowsPerBand = 32

// Params controls the interpolation.
type Params struct {
	K           int     // Neighbours per cell
	Power       float64 // Inverse distance exponent
	InfluenceKm float64 // Neighbours further than this get zero weight
	UseSolar    bool    // Attenuate by mu0^0.7 at Time
	Time        time.Time
	Workers     int // 0 = runtime.NumCPU()
}

// DefaultParams returns the production settings evaluated at t.
func DefaultParams(t time.Time) Params {
	return Params{
		K:           DefaultK,
		Power:       DefaultPower,
		InfluenceKm: DefaultInfluenceKm,
		Time:        t,
	}
}

// sample is an observation prepared for the inner loop.
type sample struct {
	pos    geo.LonLat
	logMUF float64
	conf   float64
}

// neighbour is a candidate in the per-cell best-k buffer.
type neighbour struct {
	dist float64
	idx  int
}

// Interpolate evaluates the field on every cell of grid. The result does not
// depend on p.Workers.
func Interpolate(obs []station.Observation, grid geo.Grid, p Params) *Field {
	f := newField(grid)
	if len(obs) == 0 {
		f.fill(MinMHz)
		f.Empty = true
		return f
	}

	samples := make([]sample, len(obs))
	for i, o := range obs {
		samples[i] = sample{
			pos:    geo.FromDegrees(o.Longitude, o.Latitude),
			logMUF: math.Log(ClampMHz(o.MUF)),
			conf:   o.Confidence,
		}
	}

	k := p.K
	if k <= 0 {
		k = DefaultK
	}
	if k > len(samples) {
		k = len(samples)
	}

	e := &evaluator{
		grid:      grid,
		samples:   samples,
		k:         k,
		power:     p.Power,
		maxRad:    geo.KmToRadians(p.InfluenceKm),
		useSolar:  p.UseSolar,
		sun:       solar.At(p.Time),
		lonRad:    make([]float64, grid.Width),
		lonDegree: make([]float64, grid.Width),
	}
	for x := 0; x < grid.Width; x++ {
		e.lonDegree[x] = grid.Lon(x)
		e.lonRad[x] = geo.Radians(e.lonDegree[x])
	}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	bands := (grid.Height + rowsPerBand - 1) / rowsPerBand

	if workers <= 1 || bands <= 1 {
		e.rows(f, 0, grid.Height)
		return f
	}
	e.parallel(f, workers, bands)
	return f
}

// evaluator holds everything shared read-only between workers.
type evaluator struct {
	grid      geo.Grid
	samples   []sample
	k         int
	power     float64
	maxRad    float64
	useSolar  bool
	sun       solar.Position
	lonRad    []float64
	lonDegree []float64
}

// parallel hands out row bands over a channel. Each row is written by exactly
// one worker and the samples are never mutated, so no locking is needed.
func (e *evaluator) parallel(f *Field, workers, bands int) {
	jobs := make(chan int, bands)
	for b := 0; b < bands; b++ {
		jobs <- b
	}
	close(jobs)

	if workers > bands {
		workers = bands
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range jobs {
				start := b * rowsPerBand
				end := start + rowsPerBand
				if end > e.grid.Height {
					end = e.grid.Height
				}
				e.rows(f, start, end)
			}
		}()
	}
	wg.Wait()
}

// rows fills rows [start, end) of f.
func (e *evaluator) rows(f *Field, start, end int) {
	best := make([]neighbour, 0, e.k)
	for y := start; y < end; y++ {
		latDeg := e.grid.Lat(y)
		lat := geo.Radians(latDeg)
		latFactor := math.Pow(math.Cos(math.Abs(lat)), latExponent)

		row := f.Values[y*f.Width : (y+1)*f.Width]
		for x := range row {
			best = e.nearest(best[:0], geo.LonLat{Lon: e.lonRad[x], Lat: lat})

			solarFactor := 1.0
			if e.useSolar {
				solarFactor = math.Pow(e.sun.CosZenith(latDeg, e.lonDegree[x]), solarExponent)
			}

			var sumW, sumWV float64
			for _, n := range best {
				if n.dist > e.maxRad {
					continue
				}
				s := e.samples[n.idx]
				w := s.conf / math.Pow(n.dist+distanceEpsilon, e.power)
				w *= latFactor * solarFactor
				sumW += w
				sumWV += w * s.logMUF
			}
			row[x] = float32(ClampMHz(math.Exp(sumWV / (sumW + weightEpsilon))))
		}
	}
}

// nearest streams every sample through a bounded buffer kept sorted by
// (distance, index). Samples are visited in index order and only a strictly
// closer sample displaces an entry, so equal distances keep the lower index.
func (e *evaluator) nearest(best []neighbour, q geo.LonLat) []neighbour {
	for i := range e.samples {
		d := geo.Distance(q, e.samples[i].pos)

		if len(best) == e.k {
			if d >= best[len(best)-1].dist {
				continue
			}
			best = best[:len(best)-1]
		}

		pos := len(best)
		for pos > 0 && best[pos-1].dist > d {
			pos--
		}
		best = append(best, neighbour{})
		copy(best[pos+1:], best[pos:])
		best[pos] = neighbour{dist: d, idx: i}
	}
	return best
}

// ClampMHz limits v to [MinMHz, MaxMHz]. NaN maps to MinMHz.
func ClampMHz(v float64) float64 {
	if !(v >= MinMHz) {
		return MinMHz
	}
	if v > MaxMHz {
		return MaxMHz
	}
	return v
}
