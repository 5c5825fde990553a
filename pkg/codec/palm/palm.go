// Package palm reads and writes Palm OS image resources: a 16-byte
// big-endian header whose flag word selects compression, a custom color
// table, transparency and direct color; pixel data at 1, 2, 4, 8 or 16 bits
// per pixel; and one of three compression schemes (uncompressed, scanline
// and RLE — the PackBits tag value is recognized but not implemented).
// Direct color must be 5/6/5 RGB. Files without a custom color table get a
// built-in system palette chosen from the bit depth alone; at 4 bpp the
// grayscale table is assumed, a guess the format itself does not settle.
package palm

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/jpfielding/raster.go/pkg/raster"
)

const codecName = "palm"

// Flag word bits.
const (
	flagCompressed   = 0x8000
	flagColorTable   = 0x4000
	flagTransparency = 0x2000
	flagDirectColor  = 0x0400
)

// Compression type byte values.
const (
	compScanLine = 0x00
	compRLE      = 0x01
	compPackBits = 0x02
	compNone     = 0xFF
)

type header struct {
	Width            uint16
	Height           uint16
	BytesPerRow      uint16
	Flags            uint16
	PixelSize        uint8
	Version          uint8
	NextDepthOffset  uint16
	TransparentIndex uint8
	Compression      uint8
	Reserved         uint16
}

// Probe reports whether the leading bytes plausibly form a Palm image
// header. Palm resources carry no magic number; the check validates
// geometry, version and pixel size instead.
func Probe(b []byte) bool {
	if len(b) < 16 {
		return false
	}
	w := binary.BigEndian.Uint16(b[0:])
	h := binary.BigEndian.Uint16(b[2:])
	rowBytes := binary.BigEndian.Uint16(b[4:])
	pixelSize := b[8]
	version := b[9]
	if w == 0 || h == 0 || rowBytes == 0 || version > 3 {
		return false
	}
	switch pixelSize {
	case 1, 2, 4, 8, 16:
	default:
		return false
	}
	// bytesPerRow must cover the packed row.
	return int(rowBytes)*8 >= int(w)*int(pixelSize)
}

// Extensions lists the conventional file extensions.
func Extensions() []string { return []string{"palm"} }

// SuggestedExtension returns the conventional extension.
func SuggestedExtension(raster.Image) string { return "palm" }

// Decode reads one Palm image.
func Decode(r io.Reader, opts *raster.DecodeOptions) (raster.Image, error) {
	if r == nil {
		return nil, &raster.MissingParameterError{Param: "input stream"}
	}
	br := bufio.NewReader(r)

	var h header
	if err := binary.Read(br, binary.BigEndian, &h); err != nil {
		return nil, raster.WrapIO(codecName, "reading header", err)
	}
	if h.Width < 1 || h.Height < 1 {
		return nil, raster.Structuref(codecName, "invalid geometry %dx%d", h.Width, h.Height)
	}
	switch h.PixelSize {
	case 1, 2, 4, 8, 16:
	default:
		return nil, raster.Unsupportedf(codecName, "pixel size %d", h.PixelSize)
	}
	if int(h.BytesPerRow)*8 < int(h.Width)*int(h.PixelSize) {
		return nil, raster.Structuref(codecName, "bytesPerRow %d too small for %d pixels at %d bpp", h.BytesPerRow, h.Width, h.PixelSize)
	}

	direct := h.Flags&flagDirectColor != 0
	if direct != (h.PixelSize == 16) {
		return nil, raster.Unsupportedf(codecName, "pixel size %d with direct color flag %v", h.PixelSize, direct)
	}

	// Custom color table, when present, precedes the pixel data.
	var pal *raster.Palette
	if h.Flags&flagColorTable != 0 {
		var n uint16
		if err := binary.Read(br, binary.BigEndian, &n); err != nil {
			return nil, raster.WrapIO(codecName, "reading color table size", err)
		}
		if n < 1 || n > 256 {
			return nil, raster.Structuref(codecName, "color table with %d entries", n)
		}
		raw := make([]byte, int(n)*4) // each entry: index byte + R + G + B
		if _, err := io.ReadFull(br, raw); err != nil {
			return nil, raster.WrapIO(codecName, "reading color table", err)
		}
		pal = raster.NewPalette(int(n))
		for i := 0; i < int(n); i++ {
			pal.SetRGB(i, raw[i*4+1], raw[i*4+2], raw[i*4+3])
		}
	}

	if direct {
		// Direct color info: bits per channel, reserved, transparent color.
		var info [8]byte
		if _, err := io.ReadFull(br, info[:]); err != nil {
			return nil, raster.WrapIO(codecName, "reading direct color info", err)
		}
		if info[0] != 5 || info[1] != 6 || info[2] != 5 {
			return nil, raster.Unsupportedf(codecName, "direct color bits %d/%d/%d, want 5/6/5", info[0], info[1], info[2])
		}
	}

	compression := compNone
	if h.Flags&flagCompressed != 0 {
		compression = int(h.Compression)
		switch compression {
		case compScanLine, compRLE:
		case compPackBits:
			return nil, raster.Unsupportedf(codecName, "PackBits compression")
		default:
			return nil, raster.Unsupportedf(codecName, "compression type %d", compression)
		}
		// The optimistic compressed-size word; unused on load.
		var size uint16
		if err := binary.Read(br, binary.BigEndian, &size); err != nil {
			return nil, raster.WrapIO(codecName, "reading compressed size", err)
		}
	}

	width, height := int(h.Width), int(h.Height)
	win, err := opts.Window(width, height)
	if err != nil {
		return nil, err
	}

	rowBytes := int(h.BytesPerRow)
	row := make([]byte, rowBytes)
	prev := make([]byte, rowBytes)

	var out raster.Image
	var bl *raster.Bilevel
	var idx *raster.Indexed8
	var rgb *raster.RGB24
	switch {
	case direct:
		rgb = raster.NewRGB24(win.Width(), win.Height())
		out = rgb
	case h.PixelSize == 1:
		bl = raster.NewBilevel(win.Width(), win.Height())
		out = bl
	default:
		if pal == nil {
			pal = defaultPalette(int(h.PixelSize))
		}
		idx = raster.NewIndexed8(win.Width(), win.Height(), pal)
		out = idx
	}

	for y := 0; y < height; y++ {
		if opts.Stopped() {
			return out, raster.ErrAborted
		}
		if y > win.Y2 {
			break
		}
		if err := readRow(br, row, prev, compression, y); err != nil {
			return nil, err
		}
		row, prev = prev, row // readRow wrote into row; keep it as prev for the next pass
		cur := prev

		if !win.ContainsRow(y) {
			continue
		}
		oy := y - win.Y1
		for x := win.X1; x <= win.X2; x++ {
			switch {
			case direct:
				v := uint16(cur[x*2])<<8 | uint16(cur[x*2+1])
				r5 := uint8(v >> 11)
				g6 := uint8(v >> 5 & 0x3f)
				b5 := uint8(v & 0x1f)
				rgb.Set(x-win.X1, oy, r5<<3|r5>>2, g6<<2|g6>>4, b5<<3|b5>>2)
			case h.PixelSize == 1:
				bit := cur[x/8] >> uint(7-x%8) & 1
				bl.Set(x-win.X1, oy, 1-bit) // file: 1=black
			case h.PixelSize == 8:
				idx.Set(x-win.X1, oy, cur[x])
			default:
				perByte := 8 / int(h.PixelSize)
				shift := uint((perByte - 1 - x%perByte) * int(h.PixelSize))
				mask := uint8(1<<h.PixelSize - 1)
				idx.Set(x-win.X1, oy, cur[x/perByte]>>shift&mask)
			}
		}
		opts.Step(oy+1, win.Height())
	}
	return out, nil
}

func defaultPalette(pixelSize int) *raster.Palette {
	switch pixelSize {
	case 2:
		return palette2()
	case 4:
		// Grayscale assumed; see the package comment.
		return palette4Gray()
	default:
		return palette8()
	}
}

// readRow fills row with the next decompressed scanline. prev holds the
// previous row for scanline compression; it is all zero for the first row.
func readRow(br *bufio.Reader, row, prev []byte, compression, y int) error {
	switch compression {
	case compNone:
		if _, err := io.ReadFull(br, row); err != nil {
			return &raster.StructureError{Codec: codecName, Msg: "short row data", Row: y, Col: 0, Err: err}
		}
	case compScanLine:
		// One mask byte per 8-byte group; set bits mean a literal byte
		// follows, clear bits copy from the previous row.
		for g := 0; g < len(row); g += 8 {
			mask, err := br.ReadByte()
			if err != nil {
				return &raster.StructureError{Codec: codecName, Msg: "short scanline mask", Row: y, Col: g, Err: err}
			}
			n := len(row) - g
			if n > 8 {
				n = 8
			}
			for i := 0; i < n; i++ {
				if mask>>uint(7-i)&1 == 1 {
					if row[g+i], err = br.ReadByte(); err != nil {
						return &raster.StructureError{Codec: codecName, Msg: "short scanline data", Row: y, Col: g + i, Err: err}
					}
				} else {
					row[g+i] = prev[g+i]
				}
			}
		}
	case compRLE:
		x := 0
		for x < len(row) {
			count, err := br.ReadByte()
			if err != nil {
				return &raster.StructureError{Codec: codecName, Msg: "short RLE data", Row: y, Col: x, Err: err}
			}
			if count == 0 {
				return raster.StructureAt(codecName, y, x, "RLE count of zero")
			}
			value, err := br.ReadByte()
			if err != nil {
				return &raster.StructureError{Codec: codecName, Msg: "short RLE data", Row: y, Col: x, Err: err}
			}
			if x+int(count) > len(row) {
				return raster.StructureAt(codecName, y, x, "RLE run of %d overruns %d-byte row", count, len(row))
			}
			for i := 0; i < int(count); i++ {
				row[x] = value
				x++
			}
		}
	}
	return nil
}
