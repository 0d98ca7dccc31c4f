package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KI7MT/muf-rt/internal/bmp565"
	"github.com/KI7MT/muf-rt/internal/interp"
)

func rgb(r, g, b uint8) color.RGBA { return color.RGBA{r, g, b, 0xFF} }

func TestColorize_Stops(t *testing.T) {
	for _, s := range Stops {
		assert.Equal(t, rgb(s.R, s.G, s.B), Colorize(s.MHz), "%v MHz", s.MHz)
	}
	assert.Equal(t, rgb(0, 0, 180), Colorize(5))
	assert.Equal(t, rgb(255, 255, 0), Colorize(20))
	assert.Equal(t, rgb(255, 0, 0), Colorize(35))
}

func TestColorize_BetweenStops(t *testing.T) {
	tests := []struct {
		mhz  float64
		want color.RGBA
	}{
		{7.5, rgb(0, 90, 217)},
		{12.5, rgb(0, 217, 127)},
		{17.5, rgb(127, 255, 0)},
		{27.5, rgb(255, 112, 0)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Colorize(tt.mhz), "%v MHz", tt.mhz)
	}
}

func TestColorize_Clamped(t *testing.T) {
	assert.Equal(t, rgb(0, 0, 180), Colorize(0))
	assert.Equal(t, rgb(0, 0, 180), Colorize(-40))
	assert.Equal(t, rgb(255, 0, 0), Colorize(1000))
}

func field(w, h int, values ...float32) *interp.Field {
	return &interp.Field{Width: w, Height: h, Values: values}
}

func TestResampleBilinear_SameSizeIsIdentity(t *testing.T) {
	f := field(3, 2, 5, 10, 15, 20, 25, 30)
	assert.Equal(t, f.Values, ResampleBilinear(f, 3, 2))
}

func TestResampleBilinear_Upscale(t *testing.T) {
	got := ResampleBilinear(field(2, 1, 5, 35), 4, 1)
	require.Len(t, got, 4)
	assert.InDeltaSlice(t, []float32{5, 12.5, 27.5, 35}, got, 1e-5)
}

func TestResampleBilinear_DownscaleCoversAllCells(t *testing.T) {
	got := ResampleBilinear(field(4, 1, 10, 20, 30, 40), 2, 1)
	require.Len(t, got, 2)
	assert.InDelta(t, 30/1.75, got[0], 1e-5)
	assert.InDelta(t, 57.5/1.75, got[1], 1e-5)
}

func TestResampleBilinear_ConstantStaysConstant(t *testing.T) {
	vals := make([]float32, 720*360)
	for i := range vals {
		vals[i] = 17
	}
	got := ResampleBilinear(field(720, 360, vals...), 131, 67)
	require.Len(t, got, 131*67)
	for _, v := range got {
		require.InDelta(t, 17, v, 1e-4)
	}
}

func TestResampleBilinear_RowOrder(t *testing.T) {
	got := ResampleBilinear(field(1, 2, 5, 35), 1, 4)
	assert.InDeltaSlice(t, []float32{5, 12.5, 27.5, 35}, got, 1e-5)
}

func TestAlphaByte(t *testing.T) {
	assert.Equal(t, uint8(96), AlphaByte(DefaultAlpha))
	assert.Equal(t, uint8(0), AlphaByte(0))
	assert.Equal(t, uint8(127), AlphaByte(0.5))
	assert.Equal(t, uint8(255), AlphaByte(1))
	assert.Equal(t, uint8(255), AlphaByte(2))
}

func TestOverlay(t *testing.T) {
	img := Overlay([]float32{5, 20, 35, 12.5}, 2, 2, DefaultAlpha)
	assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())
	assert.Equal(t, color.NRGBA{0, 0, 180, 96}, img.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{255, 255, 0, 96}, img.NRGBAAt(1, 0))
	assert.Equal(t, color.NRGBA{255, 0, 0, 96}, img.NRGBAAt(0, 1))
	assert.Equal(t, color.NRGBA{0, 217, 127, 96}, img.NRGBAAt(1, 1))
}

func uniform(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func assertPixel(t *testing.T, want color.RGBA, img *image.RGBA, x, y int) {
	t.Helper()
	got := img.RGBAAt(x, y)
	assert.InDelta(t, want.R, got.R, 1, "R at (%d,%d)", x, y)
	assert.InDelta(t, want.G, got.G, 1, "G at (%d,%d)", x, y)
	assert.InDelta(t, want.B, got.B, 1, "B at (%d,%d)", x, y)
	assert.Equal(t, uint8(0xFF), got.A, "A at (%d,%d)", x, y)
}

func TestComposite_BlendsOverBase(t *testing.T) {
	base := uniform(2, 2, rgb(0, 0, 0))
	over := Overlay([]float32{35, 35, 35, 35}, 2, 2, DefaultAlpha)

	out := Composite(base, over, 2, 2)
	assertPixel(t, rgb(96, 0, 0), out, 0, 0)
	assertPixel(t, rgb(96, 0, 0), out, 1, 1)

	white := Composite(uniform(2, 2, rgb(255, 255, 255)), over, 2, 2)
	assertPixel(t, rgb(255, 159, 159), white, 0, 0)
}

func TestComposite_ScalesBase(t *testing.T) {
	out := Composite(uniform(4, 2, rgb(20, 40, 200)), nil, 16, 8)
	assert.Equal(t, image.Rect(0, 0, 16, 8), out.Bounds())
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			assertPixel(t, rgb(20, 40, 200), out, x, y)
		}
	}
}

func TestComposite_TransparentBaseIsOpaque(t *testing.T) {
	out := Composite(image.NewNRGBA(image.Rect(0, 0, 2, 2)), nil, 2, 2)
	assertPixel(t, rgb(0, 0, 0), out, 1, 1)
}

func TestComposite_BaseAlphaDropped(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{255, 0, 0, 0})
	src.SetNRGBA(1, 0, color.NRGBA{200, 100, 50, 128})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	base, err := DecodeBase(buf.Bytes())
	require.NoError(t, err)

	out := Composite(base, nil, 2, 1)
	assertPixel(t, rgb(255, 0, 0), out, 0, 0)
	assertPixel(t, rgb(200, 100, 50), out, 1, 0)
}

func TestFlatten_PremultipliedSource(t *testing.T) {
	src := image.NewRGBA(image.Rect(3, 2, 5, 3))
	src.SetRGBA(3, 2, color.RGBA{100, 50, 0, 128})
	src.SetRGBA(4, 2, color.RGBA{10, 20, 30, 255})

	out := Flatten(src)
	assert.Equal(t, src.Bounds(), out.Bounds())
	assertPixel(t, rgb(199, 99, 0), out, 3, 2)
	assert.Equal(t, rgb(10, 20, 30), out.RGBAAt(4, 2))
}

func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadBase_Formats(t *testing.T) {
	dir := t.TempDir()
	src := uniform(6, 3, rgb(255, 255, 0))
	raw565 := bmp565.Encode(src)

	var zbuf bytes.Buffer
	zw := zlib.NewWriter(&zbuf)
	_, err := zw.Write(raw565)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var gzbuf bytes.Buffer
	gw := pgzip.NewWriter(&gzbuf)
	_, err = gw.Write(raw565)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	var pngbuf bytes.Buffer
	require.NoError(t, png.Encode(&pngbuf, src))

	paths := map[string]string{
		"bmp565": writeFile(t, filepath.Join(dir, "day.bmp"), raw565),
		"zlib":   writeFile(t, filepath.Join(dir, "day.bmp.z"), zbuf.Bytes()),
		"gzip":   writeFile(t, filepath.Join(dir, "day.bmp.gz"), gzbuf.Bytes()),
		"png":    writeFile(t, filepath.Join(dir, "day.png"), pngbuf.Bytes()),
	}
	for name, path := range paths {
		t.Run(name, func(t *testing.T) {
			img, err := LoadBase(path)
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 6, 3), img.Bounds())

			r, g, b, _ := img.At(5, 2).RGBA()
			assert.Equal(t, [3]uint32{255, 255, 0}, [3]uint32{r >> 8, g >> 8, b >> 8})
		})
	}
}

func TestLoadBase_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadBase(filepath.Join(dir, "missing.bmp"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadBase(writeFile(t, filepath.Join(dir, "junk.bmp"), []byte("definitely not an image")))
	assert.Error(t, err)

	_, err = LoadBase(writeFile(t, filepath.Join(dir, "junk.bmp.z"), []byte("not zlib")))
	assert.Error(t, err)
}
