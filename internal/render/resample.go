package render

import (
	"math"

	"github.com/KI7MT/muf-rt/internal/interp"
)

// ResampleBilinear resizes the field to w x h with a triangle filter on pixel
// centres. When enlarging this is plain bilinear interpolation with edge
// clamping; when shrinking the filter widens to cover every source cell so
// nothing is skipped. Rows come out top (north) first.
func ResampleBilinear(f *interp.Field, w, h int) []float32 {
	if w <= 0 || h <= 0 || f.Width == 0 || f.Height == 0 {
		return nil
	}

	xk := triangleKernels(f.Width, w)
	yk := triangleKernels(f.Height, h)

	// Horizontal pass: f.Height rows of w samples.
	tmp := make([]float64, f.Height*w)
	for y := 0; y < f.Height; y++ {
		src := f.Values[y*f.Width : (y+1)*f.Width]
		dst := tmp[y*w : (y+1)*w]
		for x, k := range xk {
			var s float64
			for i, wt := range k.weights {
				s += wt * float64(src[k.start+i])
			}
			dst[x] = s
		}
	}

	// Vertical pass.
	out := make([]float32, w*h)
	for y, k := range yk {
		dst := out[y*w : (y+1)*w]
		for x := range dst {
			var s float64
			for i, wt := range k.weights {
				s += wt * tmp[(k.start+i)*w+x]
			}
			dst[x] = float32(s)
		}
	}
	return out
}

// kernel is the normalised set of source weights for one output sample.
type kernel struct {
	start   int
	weights []float64
}

func triangleKernels(in, out int) []kernel {
	scale := float64(in) / float64(out)
	filterScale := math.Max(scale, 1)
	support := filterScale

	ks := make([]kernel, out)
	for o := range ks {
		center := (float64(o) + 0.5) * scale
		lo := int(center - support + 0.5)
		if lo < 0 {
			lo = 0
		}
		hi := int(center + support + 0.5)
		if hi > in {
			hi = in
		}

		weights := make([]float64, 0, hi-lo)
		var total float64
		for i := lo; i < hi; i++ {
			wt := triangle((float64(i) - center + 0.5) / filterScale)
			weights = append(weights, wt)
			total += wt
		}
		if total > 0 {
			for i := range weights {
				weights[i] /= total
			}
		}
		ks[o] = kernel{start: lo, weights: weights}
	}
	return ks
}

func triangle(x float64) float64 {
	x = math.Abs(x)
	if x < 1 {
		return 1 - x
	}
	return 0
}
