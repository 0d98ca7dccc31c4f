package interp

import (
	"math"

	"github.com/KI7MT/muf-rt/internal/station"
)

// Residual is the mean absolute difference in MHz between each observation's
// clipped MUF and the field cell it falls in. It is a fit diagnostic only: a
// large value usually means a station disagrees with its neighbours.
func Residual(obs []station.Observation, f *Field) float64 {
	if len(obs) == 0 || f == nil || f.Empty {
		return 0
	}
	var sum float64
	for _, o := range obs {
		got := float64(f.ValueAt(o.Longitude, o.Latitude))
		sum += math.Abs(ClampMHz(o.MUF) - got)
	}
	return sum / float64(len(obs))
}
