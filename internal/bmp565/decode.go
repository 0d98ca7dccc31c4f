package bmp565

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"math/bits"
)

// ErrFormat is returned for anything that is not a 16-bit bitfield bitmap.
var ErrFormat = errors.New("bmp565: not a 16-bit bitfield bitmap")

// Dimension limits for decoding. MaxPixels is 8192x8192.
const (
	MaxDimension = 1 << 15
	MaxPixels    = 1 << 26
)

// IsRGB565 reports whether the first bytes of a file look like a 16-bit
// bitmap this package can decode. It needs at least 30 bytes.
func IsRGB565(head []byte) bool {
	if len(head) < 30 || head[0] != 'B' || head[1] != 'M' {
		return false
	}
	return binary.LittleEndian.Uint16(head[28:]) == 16
}

type header struct {
	width, height int
	topDown       bool
	offset        int
	sizeImage     int
	masks         [3]uint32
}

func readHeader(r io.Reader) (header, []byte, error) {
	var fh [fileHeaderSize + 4]byte
	if _, err := io.ReadFull(r, fh[:]); err != nil {
		return header{}, nil, fmt.Errorf("bmp565: read header: %w", err)
	}
	if fh[0] != 'B' || fh[1] != 'M' {
		return header{}, nil, ErrFormat
	}
	le := binary.LittleEndian
	infoSize := int(le.Uint32(fh[14:]))
	if infoSize < 40 || infoSize > 124 {
		return header{}, nil, ErrFormat
	}

	info := make([]byte, infoSize)
	copy(info, fh[14:])
	if _, err := io.ReadFull(r, info[4:]); err != nil {
		return header{}, nil, fmt.Errorf("bmp565: read info header: %w", err)
	}
	consumed := append(fh[:], info[4:]...)

	h := header{
		width:     int(int32(le.Uint32(info[4:]))),
		height:    int(int32(le.Uint32(info[8:]))),
		offset:    int(le.Uint32(fh[10:])),
		sizeImage: int(le.Uint32(info[20:])),
	}
	if le.Uint16(info[14:]) != 16 {
		return header{}, nil, ErrFormat
	}
	if h.height < 0 {
		h.topDown = true
		h.height = -h.height
	}
	if h.width <= 0 || h.height <= 0 || h.width > MaxDimension || h.height > MaxDimension ||
		h.width*h.height > MaxPixels {
		return header{}, nil, fmt.Errorf("bmp565: bad dimensions %dx%d: %w", h.width, h.height, ErrFormat)
	}

	switch compression := le.Uint32(info[16:]); compression {
	case 0:
		// BI_RGB at 16 bits is X1R5G5B5.
		h.masks = [3]uint32{0x7C00, 0x03E0, 0x001F}
	case biBitfields:
		if infoSize >= 52 {
			h.masks = [3]uint32{le.Uint32(info[40:]), le.Uint32(info[44:]), le.Uint32(info[48:])}
		} else {
			// BITMAPINFOHEADER keeps the masks right after the header.
			var m [12]byte
			if _, err := io.ReadFull(r, m[:]); err != nil {
				return header{}, nil, fmt.Errorf("bmp565: read masks: %w", err)
			}
			consumed = append(consumed, m[:]...)
			h.masks = [3]uint32{le.Uint32(m[0:]), le.Uint32(m[4:]), le.Uint32(m[8:])}
		}
	default:
		return header{}, nil, fmt.Errorf("bmp565: compression %d: %w", compression, ErrFormat)
	}
	if h.offset < len(consumed) {
		return header{}, nil, fmt.Errorf("bmp565: pixel offset %d inside header: %w", h.offset, ErrFormat)
	}
	return h, consumed, nil
}

// Decode reads a 16-bit bitmap into an opaque *image.RGBA. Both row orders
// are accepted. Rows may be packed, as Encode writes them, or padded to four
// bytes as most other writers do; the image size field tells them apart.
func Decode(r io.Reader) (image.Image, error) {
	h, consumed, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if skip := h.offset - len(consumed); skip > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(skip)); err != nil {
			return nil, fmt.Errorf("bmp565: seek to pixels: %w", err)
		}
	}

	packed := 2 * h.width
	stride := (packed + 3) &^ 3
	if h.sizeImage == packed*h.height {
		stride = packed
	}

	row := make([]byte, stride)
	img := image.NewRGBA(image.Rect(0, 0, h.width, h.height))
	ch := [3]channel{newChannel(h.masks[0]), newChannel(h.masks[1]), newChannel(h.masks[2])}

	for i := 0; i < h.height; i++ {
		// The last row of a padded file may legitimately stop at the pixels.
		n, err := io.ReadFull(r, row)
		if err != nil && !(errors.Is(err, io.ErrUnexpectedEOF) && i == h.height-1 && n >= packed) {
			return nil, fmt.Errorf("bmp565: read row %d: %w", i, err)
		}
		y := i
		if !h.topDown {
			y = h.height - 1 - i
		}
		pix := img.Pix[img.PixOffset(0, y):]
		for x := 0; x < h.width; x++ {
			v := uint32(binary.LittleEndian.Uint16(row[2*x:]))
			pix[4*x+0] = ch[0].expand(v)
			pix[4*x+1] = ch[1].expand(v)
			pix[4*x+2] = ch[2].expand(v)
			pix[4*x+3] = 0xFF
		}
	}
	return img, nil
}

// channel extracts one color component described by a bit mask.
type channel struct {
	mask  uint32
	shift int
	width int
}

func newChannel(mask uint32) channel {
	if mask == 0 {
		return channel{}
	}
	shift := bits.TrailingZeros32(mask)
	return channel{mask: mask, shift: shift, width: bits.OnesCount32(mask >> shift)}
}

func (c channel) expand(v uint32) uint8 {
	if c.width == 0 {
		return 0
	}
	x := uint64((v & c.mask) >> c.shift)
	max := uint64(1)<<c.width - 1
	return uint8(x * 255 / max)
}
