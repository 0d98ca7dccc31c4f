// Package bands summarises a MUF field per amateur HF band.
//
// A band counts as open over a cell when the cell's MUF reaches the band's
// lower edge. Coverage is the share of the globe's surface, not of grid
// cells, so each row is weighted by cos(latitude).
package bands

import (
	"math"

	"github.com/KI7MT/muf-rt/internal/interp"
)

// ADIF band identifiers, shared with the lab's spot tables.
const (
	Band160m int32 = 102 // 1.8-2.0 MHz
	Band80m  int32 = 103 // 3.5-4.0 MHz
	Band60m  int32 = 104 // 5.3-5.405 MHz
	Band40m  int32 = 105 // 7.0-7.3 MHz
	Band30m  int32 = 106 // 10.1-10.15 MHz
	Band20m  int32 = 107 // 14.0-14.35 MHz
	Band17m  int32 = 108 // 18.068-18.168 MHz
	Band15m  int32 = 109 // 21.0-21.45 MHz
	Band12m  int32 = 110 // 24.89-24.99 MHz
	Band10m  int32 = 111 // 28.0-29.7 MHz
)

// Band is an amateur allocation.
type Band struct {
	ID         int32
	Name       string
	MinFreqMHz float64
	MaxFreqMHz float64
}

// hfBands is sorted by frequency.
var hfBands = []Band{
	{ID: Band160m, Name: "160m", MinFreqMHz: 1.800, MaxFreqMHz: 2.000},
	{ID: Band80m, Name: "80m", MinFreqMHz: 3.500, MaxFreqMHz: 4.000},
	{ID: Band60m, Name: "60m", MinFreqMHz: 5.300, MaxFreqMHz: 5.405},
	{ID: Band40m, Name: "40m", MinFreqMHz: 7.000, MaxFreqMHz: 7.300},
	{ID: Band30m, Name: "30m", MinFreqMHz: 10.100, MaxFreqMHz: 10.150},
	{ID: Band20m, Name: "20m", MinFreqMHz: 14.000, MaxFreqMHz: 14.350},
	{ID: Band17m, Name: "17m", MinFreqMHz: 18.068, MaxFreqMHz: 18.168},
	{ID: Band15m, Name: "15m", MinFreqMHz: 21.000, MaxFreqMHz: 21.450},
	{ID: Band12m, Name: "12m", MinFreqMHz: 24.890, MaxFreqMHz: 24.990},
	{ID: Band10m, Name: "10m", MinFreqMHz: 28.000, MaxFreqMHz: 29.700},
}

// Mapped returns the bands the field can distinguish: those whose lower edge
// lies strictly above the field floor and not above its ceiling. Bands below
// the floor would always read fully open.
func Mapped() []Band {
	var out []Band
	for _, b := range hfBands {
		if b.MinFreqMHz > interp.MinMHz && b.MinFreqMHz <= interp.MaxMHz {
			out = append(out, b)
		}
	}
	return out
}

// HighestOpen returns the highest band whose lower edge is at or below mhz,
// found by binary search over the sorted table.
func HighestOpen(mhz float64) (Band, bool) {
	found := -1
	left, right := 0, len(hfBands)-1
	for left <= right {
		mid := (left + right) / 2
		if hfBands[mid].MinFreqMHz <= mhz {
			found = mid
			left = mid + 1
		} else {
			right = mid - 1
		}
	}
	if found < 0 {
		return Band{}, false
	}
	return hfBands[found], true
}

// Coverage is the open fraction of the globe for one band.
type Coverage struct {
	Band     Band
	Fraction float64 // 0..1
}

// FieldCoverage computes Coverage for every mapped band.
func FieldCoverage(f *interp.Field) []Coverage {
	mapped := Mapped()
	out := make([]Coverage, len(mapped))
	for i, b := range mapped {
		out[i].Band = b
	}
	if f == nil || f.Empty || f.Height == 0 {
		return out
	}

	g := f.Grid()
	open := make([]float64, len(mapped))
	var total float64
	for y := 0; y < f.Height; y++ {
		w := math.Cos(g.Lat(y) * math.Pi / 180)
		if w <= 0 {
			continue
		}
		for x := 0; x < f.Width; x++ {
			v := float64(f.At(x, y))
			total += w
			for i, b := range mapped {
				if v >= b.MinFreqMHz {
					open[i] += w
				}
			}
		}
	}
	if total == 0 {
		return out
	}
	for i := range out {
		out[i].Fraction = open[i] / total
	}
	return out
}
