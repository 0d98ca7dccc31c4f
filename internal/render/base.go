package render

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/pgzip"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/KI7MT/muf-rt/internal/bmp565"
)

// LoadBase reads a base map image. A ".z" suffix means a zlib stream and
// ".gz" a gzip file, matching how published maps are shipped. 16-bit
// bitmaps go through bmp565; everything else through the registered image
// decoders.
func LoadBase(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open base map: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(path, ".z"):
		zr, err := zlib.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("base map %s: zlib: %w", path, err)
		}
		defer zr.Close()
		r = zr
	case strings.HasSuffix(path, ".gz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("base map %s: gzip: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read base map %s: %w", path, err)
	}
	return DecodeBase(data)
}

// DecodeBase decodes an uncompressed base map held in memory.
func DecodeBase(data []byte) (image.Image, error) {
	if bmp565.IsRGB565(data) {
		img, err := bmp565.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode base map: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode base map: %w", err)
	}
	return img, nil
}
