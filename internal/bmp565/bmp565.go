// Package bmp565 reads and writes 16-bit RGB565 bitmaps with a BITMAPV4
// header, the format consumed by the map display clients.
package bmp565

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
)

// Header layout.
const (
	fileHeaderSize = 14
	v4HeaderSize   = 108
	pixelOffset    = fileHeaderSize + v4HeaderSize // 122

	biBitfields = 3
	lcsSRGB     = 0x73524742 // 'sRGB'

	maskR = 0xF800
	maskG = 0x07E0
	maskB = 0x001F
)

// FileName returns the published name for a map of the given size, e.g.
// map-D-660x330-MUF-RT.bmp.
func FileName(width, height int, product string) string {
	return fmt.Sprintf("map-D-%dx%d-%s.bmp", width, height, product)
}

// Pack565 packs 8-bit channels by truncation.
func Pack565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// Unpack565 expands a pixel back to 8-bit channels as v*255/max, so full
// intensity stays 255.
func Unpack565(v uint16) (r, g, b uint8) {
	r5 := uint32(v >> 11 & 0x1F)
	g6 := uint32(v >> 5 & 0x3F)
	b5 := uint32(v & 0x1F)
	return uint8(r5 * 255 / 31), uint8(g6 * 255 / 63), uint8(b5 * 255 / 31)
}

// Encode serialises img as a top-down RGB565 bitmap. Rows are packed with no
// padding, so the pixel array is exactly 2*width*height bytes. Alpha is
// ignored.
func Encode(img image.Image) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pixLen := 2 * w * h

	buf := make([]byte, pixelOffset+pixLen)
	putHeaders(buf, w, h, pixLen)

	out := buf[pixelOffset:]
	i := 0
	if rgba, ok := img.(*image.RGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := rgba.Pix[rgba.PixOffset(b.Min.X, y):]
			for x := 0; x < w; x++ {
				p := row[4*x : 4*x+3]
				binary.LittleEndian.PutUint16(out[i:], Pack565(p[0], p[1], p[2]))
				i += 2
			}
		}
		return buf
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			binary.LittleEndian.PutUint16(out[i:], Pack565(c.R, c.G, c.B))
			i += 2
		}
	}
	return buf
}

func putHeaders(buf []byte, w, h, pixLen int) {
	le := binary.LittleEndian

	// BITMAPFILEHEADER
	buf[0], buf[1] = 'B', 'M'
	le.PutUint32(buf[2:], uint32(pixelOffset+pixLen))
	le.PutUint16(buf[6:], 0)
	le.PutUint16(buf[8:], 0)
	le.PutUint32(buf[10:], pixelOffset)

	// BITMAPV4HEADER; the negative height marks a top-down image.
	v4 := buf[fileHeaderSize:pixelOffset]
	le.PutUint32(v4[0:], v4HeaderSize)
	le.PutUint32(v4[4:], uint32(int32(w)))
	le.PutUint32(v4[8:], uint32(int32(-h)))
	le.PutUint16(v4[12:], 1)  // planes
	le.PutUint16(v4[14:], 16) // bits per pixel
	le.PutUint32(v4[16:], biBitfields)
	le.PutUint32(v4[20:], uint32(pixLen))
	// 24..39: resolution and palette counts, all zero.
	le.PutUint32(v4[40:], maskR)
	le.PutUint32(v4[44:], maskG)
	le.PutUint32(v4[48:], maskB)
	le.PutUint32(v4[52:], 0) // alpha mask
	le.PutUint32(v4[56:], lcsSRGB)
	// 60..95: CIEXYZTRIPLE endpoints, 96..107: gamma, all zero.
}
