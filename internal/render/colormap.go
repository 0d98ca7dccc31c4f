// Package render turns an interpolated MUF field into a translucent color
// overlay and composites it onto a base map.
package render

import (
	"image/color"
	"math"
)

// ColorStop pins a color to a frequency in MHz.
type ColorStop struct {
	MHz     float64
	R, G, B uint8
}

// Stops is the MUF ramp, from deep blue at 5 MHz to red at 35 MHz. Values
// between stops are interpolated per channel and values outside are clamped.
var Stops = [...]ColorStop{
	{5, 0, 0, 180},
	{10, 0, 180, 255},
	{15, 0, 255, 0},
	{20, 255, 255, 0},
	{25, 255, 165, 0},
	{30, 255, 60, 0},
	{35, 255, 0, 0},
}

// Colorize maps a MUF value to an opaque color. Channels are truncated, not
// rounded, so every stop reproduces exactly.
func Colorize(mhz float64) color.RGBA {
	first, last := Stops[0], Stops[len(Stops)-1]
	switch {
	case math.IsNaN(mhz) || mhz <= first.MHz:
		return color.RGBA{first.R, first.G, first.B, 0xFF}
	case mhz >= last.MHz:
		return color.RGBA{last.R, last.G, last.B, 0xFF}
	}

	i := 1
	for mhz >= Stops[i].MHz {
		i++
	}
	lo, hi := Stops[i-1], Stops[i]
	dx := mhz - lo.MHz
	span := hi.MHz - lo.MHz
	return color.RGBA{
		R: lerp(lo.R, hi.R, dx, span),
		G: lerp(lo.G, hi.G, dx, span),
		B: lerp(lo.B, hi.B, dx, span),
		A: 0xFF,
	}
}

// lerp evaluates slope*dx + a. Keep the operation order: regrouping it moves
// some truncated channels by one against published maps.
func lerp(a, b uint8, dx, span float64) uint8 {
	slope := (float64(b) - float64(a)) / span
	return uint8(slope*dx + float64(a))
}
