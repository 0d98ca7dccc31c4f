package interp

import (
	"math"

	"github.com/KI7MT/muf-rt/internal/geo"
)

// Field is a row-major grid of MUF values in MHz. Row 0 is the north edge.
type Field struct {
	Width  int
	Height int
	Values []float32

	// Empty is set when there were no observations to interpolate; every
	// value is then MinMHz and carries no information.
	Empty bool
}

func newField(g geo.Grid) *Field {
	return &Field{
		Width:  g.Width,
		Height: g.Height,
		Values: make([]float32, g.Cells()),
	}
}

func (f *Field) fill(v float32) {
	for i := range f.Values {
		f.Values[i] = v
	}
}

// Grid returns the grid the field was sampled on.
func (f *Field) Grid() geo.Grid {
	return geo.Grid{Width: f.Width, Height: f.Height}
}

// At returns the value of cell (x, y).
func (f *Field) At(x, y int) float32 {
	return f.Values[y*f.Width+x]
}

// ValueAt returns the value of the cell containing (lon, lat) in degrees.
func (f *Field) ValueAt(lon, lat float64) float32 {
	x, y := f.Grid().LonLatToXY(lon, lat)
	return f.At(x, y)
}

// Summary holds simple field statistics.
type Summary struct {
	Min  float64
	Max  float64
	Mean float64
}

// Stats returns the minimum, maximum and plain cell mean.
func (f *Field) Stats() Summary {
	if len(f.Values) == 0 {
		return Summary{}
	}
	s := Summary{Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, v := range f.Values {
		fv := float64(v)
		s.Min = math.Min(s.Min, fv)
		s.Max = math.Max(s.Max, fv)
		sum += fv
	}
	s.Mean = sum / float64(len(f.Values))
	return s
}
