package geo

import "fmt"

// Default grid resolution: half a degree in each axis.
const (
	DefaultGridWidth  = 720
	DefaultGridHeight = 360
)

// Grid is a global rectangular mesh. Column 0 sits on -180 and the last
// column on +180; row 0 sits on +90 and the last row on -90, both axes evenly
// spaced end to end.
type Grid struct {
	Width  int
	Height int
}

// NewGrid validates the dimensions. Each axis needs at least two samples so
// that both edges of the globe are represented.
func NewGrid(width, height int) (Grid, error) {
	if width < 2 || height < 2 {
		return Grid{}, fmt.Errorf("grid %dx%d: each dimension must be >= 2", width, height)
	}
	return Grid{Width: width, Height: height}, nil
}

// Cells returns the number of grid cells.
func (g Grid) Cells() int { return g.Width * g.Height }

// Lon returns the longitude in degrees of column x.
func (g Grid) Lon(x int) float64 {
	return -180 + 360*float64(x)/float64(g.Width-1)
}

// Lat returns the latitude in degrees of row y.
func (g Grid) Lat(y int) float64 {
	return 90 - 180*float64(y)/float64(g.Height-1)
}

// LonLat returns the cell centre of (x, y) in degrees.
func (g Grid) LonLat(x, y int) (lon, lat float64) {
	return g.Lon(x), g.Lat(y)
}

// LonLatToXY maps a degree position onto the nearest lower-left grid index.
// Results are clamped into the grid so out-of-range input lands on an edge.
func (g Grid) LonLatToXY(lon, lat float64) (x, y int) {
	x = int((lon + 180) / 360 * float64(g.Width-1))
	y = int((90 - lat) / 180 * float64(g.Height-1))
	return clampInt(x, 0, g.Width-1), clampInt(y, 0, g.Height-1)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
