package render

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// DefaultAlpha is the overlay opacity used for published maps.
const DefaultAlpha = 0.38

// AlphaByte converts an opacity in [0, 1] to the 8-bit alpha the overlay is
// drawn with, truncating: 0.38 gives 96.
func AlphaByte(alpha float64) uint8 {
	switch {
	case alpha <= 0:
		return 0
	case alpha >= 1:
		return 0xFF
	}
	return uint8(alpha * 255)
}

// Overlay colorizes a w x h row-major grid of MUF values into a translucent
// image with a uniform alpha.
func Overlay(values []float32, w, h int, alpha float64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	a := AlphaByte(alpha)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			c := Colorize(float64(values[y*w+x]))
			p := row[4*x : 4*x+4]
			p[0], p[1], p[2], p[3] = c.R, c.G, c.B, a
		}
	}
	return img
}

// Composite scales base to w x h and blends overlay over it. A nil overlay
// yields the scaled base alone. The base is flattened first: its alpha is
// dropped and the stored color kept, so the result is fully opaque.
func Composite(base image.Image, overlay image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	flat := Flatten(base)
	if flat.Bounds().Dx() == w && flat.Bounds().Dy() == h {
		draw.Draw(dst, dst.Bounds(), flat, flat.Bounds().Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), flat, flat.Bounds(), draw.Src, nil)
	}

	if overlay != nil {
		draw.Draw(dst, dst.Bounds(), overlay, overlay.Bounds().Min, draw.Over)
	}
	return dst
}

// Flatten copies img into an opaque *image.RGBA, discarding alpha. Pixels
// keep their non-premultiplied color, so a fully transparent red pixel
// becomes red rather than black.
func Flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)

	switch src := img.(type) {
	case *image.RGBA:
		if src.Opaque() {
			draw.Draw(out, b, src, b.Min, draw.Src)
			return out
		}
	case *image.NRGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			si := src.PixOffset(b.Min.X, y)
			di := out.PixOffset(b.Min.X, y)
			for x := 0; x < b.Dx(); x++ {
				copy(out.Pix[di+4*x:di+4*x+3], src.Pix[si+4*x:si+4*x+3])
				out.Pix[di+4*x+3] = 0xFF
			}
		}
		return out
	case *image.NRGBA64:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			si := src.PixOffset(b.Min.X, y)
			di := out.PixOffset(b.Min.X, y)
			for x := 0; x < b.Dx(); x++ {
				p := src.Pix[si+8*x:]
				out.Pix[di+4*x+0] = p[0]
				out.Pix[di+4*x+1] = p[2]
				out.Pix[di+4*x+2] = p[4]
				out.Pix[di+4*x+3] = 0xFF
			}
		}
		return out
	}

	// Premultiplied sources lose the color of fully transparent pixels;
	// they flatten to black.
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.SetRGBA(x, y, color.RGBA{c.R, c.G, c.B, 0xFF})
		}
	}
	return out
}
