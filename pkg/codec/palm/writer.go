package palm

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/jpfielding/raster.go/pkg/raster"
)

// Compression selects the pixel data encoding on write.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionScanline
	CompressionRLE
)

// Options controls Encode.
type Options struct {
	Compression Compression
}

// Encode writes img as a Palm image. Bilevel maps to 1 bpp, Indexed8 to
// the smallest of 2, 4 or 8 bpp that covers its palette, Gray8 to 8 bpp
// with a grayscale color table and RGB24 to 16 bpp direct 5/6/5 color.
// An Indexed8 palette matching the built-in system palette for its depth
// is not written out. Compressed pixel data is buffered so the size word
// is always exact.
func Encode(w io.Writer, img raster.Image, opts *Options) error {
	if w == nil {
		return &raster.MissingParameterError{Param: "output stream"}
	}
	if img == nil {
		return &raster.MissingParameterError{Param: "image"}
	}
	if opts == nil {
		opts = &Options{}
	}

	width, height := img.Width(), img.Height()
	if width > 0xffff || height > 0xffff {
		return raster.Unsupportedf(codecName, "%dx%d image exceeds the 16-bit header fields", width, height)
	}

	var pixelSize int
	var pal *raster.Palette
	direct := false
	switch im := img.(type) {
	case *raster.Bilevel:
		pixelSize = 1
	case *raster.Gray8:
		pixelSize = 8
		pal = raster.GrayPalette(256)
	case *raster.Indexed8:
		pal = im.Palette
		switch {
		case pal.Len() <= 4:
			pixelSize = 2
		case pal.Len() <= 16:
			pixelSize = 4
		default:
			pixelSize = 8
		}
	case *raster.RGB24:
		pixelSize = 16
		direct = true
	default:
		return raster.Unsupportedf(codecName, "encoding %s images", img.Kind())
	}

	rowBytes := (width*pixelSize + 15) / 16 * 2 // word aligned
	if rowBytes > 0xffff {
		return raster.Unsupportedf(codecName, "%d-byte rows exceed the 16-bit header fields", rowBytes)
	}

	flags := uint16(0)
	if opts.Compression != CompressionNone {
		flags |= flagCompressed
	}
	if direct {
		flags |= flagDirectColor
	}
	writePal := pal != nil && !matchesBuiltin(pal, pixelSize)
	if writePal {
		flags |= flagColorTable
	}

	h := header{
		Width:       uint16(width),
		Height:      uint16(height),
		BytesPerRow: uint16(rowBytes),
		Flags:       flags,
		PixelSize:   uint8(pixelSize),
		Version:     version(pixelSize, opts.Compression),
	}
	switch opts.Compression {
	case CompressionScanline:
		h.Compression = compScanLine
	case CompressionRLE:
		h.Compression = compRLE
	default:
		h.Compression = compNone
	}
	if err := binary.Write(w, binary.BigEndian, &h); err != nil {
		return raster.WrapIO(codecName, "writing header", err)
	}

	if writePal {
		if err := binary.Write(w, binary.BigEndian, uint16(pal.Len())); err != nil {
			return raster.WrapIO(codecName, "writing color table size", err)
		}
		entry := make([]byte, 4)
		for i := 0; i < pal.Len(); i++ {
			entry[0] = uint8(i)
			entry[1], entry[2], entry[3] = pal.RGB(i)
			if _, err := w.Write(entry); err != nil {
				return raster.WrapIO(codecName, "writing color table", err)
			}
		}
	}
	if direct {
		// Bits per channel, two reserved bytes, transparent color.
		if _, err := w.Write([]byte{5, 6, 5, 0, 0, 0, 0, 0}); err != nil {
			return raster.WrapIO(codecName, "writing direct color info", err)
		}
	}

	var out io.Writer = w
	var buf bytes.Buffer
	if opts.Compression != CompressionNone {
		out = &buf
	}

	row := make([]byte, rowBytes)
	prev := make([]byte, rowBytes)
	for y := 0; y < height; y++ {
		for i := range row {
			row[i] = 0
		}
		packRow(row, img, pixelSize, y)
		var err error
		switch opts.Compression {
		case CompressionScanline:
			err = writeScanline(out, row, prev, y == 0)
		case CompressionRLE:
			err = writeRLE(out, row)
		default:
			_, err = out.Write(row)
		}
		if err != nil {
			return raster.WrapIO(codecName, "writing pixel data", err)
		}
		row, prev = prev, row
	}

	if opts.Compression != CompressionNone {
		// Size word counts itself plus the compressed stream.
		if err := binary.Write(w, binary.BigEndian, uint16(2+buf.Len())); err != nil {
			return raster.WrapIO(codecName, "writing compressed size", err)
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return raster.WrapIO(codecName, "writing pixel data", err)
		}
	}
	return nil
}

func version(pixelSize int, c Compression) uint8 {
	switch {
	case c != CompressionNone || pixelSize > 1:
		return 1
	default:
		return 0
	}
}

func matchesBuiltin(pal *raster.Palette, pixelSize int) bool {
	var builtin *raster.Palette
	switch pixelSize {
	case 2:
		builtin = palette2()
	case 4:
		builtin = palette4Gray()
	case 8:
		builtin = palette8()
	default:
		return false
	}
	if pal.Len() != builtin.Len() {
		return false
	}
	for i := 0; i < pal.Len(); i++ {
		r1, g1, b1 := pal.RGB(i)
		r2, g2, b2 := builtin.RGB(i)
		if r1 != r2 || g1 != g2 || b1 != b2 {
			return false
		}
	}
	return true
}

func packRow(row []byte, img raster.Image, pixelSize, y int) {
	width := img.Width()
	switch im := img.(type) {
	case *raster.Bilevel:
		for x := 0; x < width; x++ {
			if im.At(x, y) == 0 { // file: 1=black
				row[x/8] |= 1 << uint(7-x%8)
			}
		}
	case *raster.Gray8:
		copy(row, im.Row(y))
	case *raster.Indexed8:
		if pixelSize == 8 {
			copy(row, im.Row(y))
			return
		}
		perByte := 8 / pixelSize
		for x := 0; x < width; x++ {
			shift := uint((perByte - 1 - x%perByte) * pixelSize)
			row[x/perByte] |= im.At(x, y) << shift
		}
	case *raster.RGB24:
		for x := 0; x < width; x++ {
			r, g, b := im.At(x, y)
			v := uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
			binary.BigEndian.PutUint16(row[x*2:], v)
		}
	}
}

func writeScanline(w io.Writer, row, prev []byte, first bool) error {
	group := make([]byte, 0, 9)
	for g := 0; g < len(row); g += 8 {
		n := len(row) - g
		if n > 8 {
			n = 8
		}
		group = group[:1]
		group[0] = 0
		for i := 0; i < n; i++ {
			if first || row[g+i] != prev[g+i] {
				group[0] |= 1 << uint(7-i)
				group = append(group, row[g+i])
			}
		}
		if _, err := w.Write(group); err != nil {
			return err
		}
	}
	return nil
}

func writeRLE(w io.Writer, row []byte) error {
	for x := 0; x < len(row); {
		n := 1
		for x+n < len(row) && n < 255 && row[x+n] == row[x] {
			n++
		}
		if _, err := w.Write([]byte{uint8(n), row[x]}); err != nil {
			return err
		}
		x += n
	}
	return nil
}
