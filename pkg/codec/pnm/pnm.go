// Package pnm reads and writes the portable anymap family P1 through P6:
// bilevel (PBM), grayscale (PGM) and RGB (PPM), each in ASCII and binary
// form. The file convention for bilevel data is 1=black; samples are
// inverted at the boundary to the in-memory 1=white convention.
package pnm

import (
	"bufio"
	"io"

	"github.com/jpfielding/raster.go/pkg/raster"
)

const codecName = "pnm"

// Type indices derived from the format digit: (digit-1)%3.
const (
	classBilevel = 0
	classGray    = 1
	classColor   = 2
)

// Probe reports whether the leading bytes look like a PNM header.
func Probe(b []byte) bool {
	return len(b) >= 2 && b[0] == 'P' && b[1] >= '1' && b[1] <= '6'
}

// Extensions lists the conventional file extensions, preferred first.
func Extensions() []string { return []string{"pnm", "pbm", "pgm", "ppm"} }

// Decode reads one PNM image.
func Decode(r io.Reader, opts *raster.DecodeOptions) (raster.Image, error) {
	if r == nil {
		return nil, &raster.MissingParameterError{Param: "input stream"}
	}
	br := bufio.NewReader(r)

	var magic [2]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, raster.WrapIO(codecName, "reading magic", err)
	}
	if magic[0] != 'P' || magic[1] < '1' || magic[1] > '6' {
		return nil, raster.Formatf(codecName, "leading bytes %q", magic[:])
	}
	digit := int(magic[1] - '0')
	ascii := digit <= 3
	class := (digit - 1) % 3

	d := &decoder{br: br}

	width, err := d.nextInt()
	if err != nil {
		return nil, err
	}
	height, err := d.nextInt()
	if err != nil {
		return nil, err
	}
	if width < 1 || height < 1 {
		return nil, raster.Structuref(codecName, "invalid geometry %dx%d", width, height)
	}

	maxval := 1
	if class != classBilevel {
		if maxval, err = d.nextInt(); err != nil {
			return nil, err
		}
		if maxval < 1 || maxval > 65535 {
			return nil, raster.Structuref(codecName, "invalid maximum sample %d", maxval)
		}
	}

	if !ascii {
		// Exactly one whitespace byte separates the header from binary data.
		if _, err := br.ReadByte(); err != nil {
			return nil, raster.WrapIO(codecName, "reading header terminator", err)
		}
	}

	win, err := opts.Window(width, height)
	if err != nil {
		return nil, err
	}

	switch class {
	case classBilevel:
		return d.decodeBilevel(width, height, ascii, win, opts)
	case classGray:
		return d.decodeGray(width, height, maxval, ascii, win, opts)
	default:
		return d.decodeColor(width, height, maxval, ascii, win, opts)
	}
}

type decoder struct {
	br *bufio.Reader
}

// nextInt scans the next whitespace-delimited unsigned number, skipping '#'
// comment lines wherever whitespace may occur.
func (d *decoder) nextInt() (int, error) {
	inComment := false
	// skip whitespace and comments
	for {
		b, err := d.br.ReadByte()
		if err != nil {
			return 0, raster.WrapIO(codecName, "scanning header", err)
		}
		if inComment {
			if b == '\n' || b == '\r' {
				inComment = false
			}
			continue
		}
		switch {
		case b == '#':
			inComment = true
		case b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f':
			// keep skipping
		case b >= '0' && b <= '9':
			v := int(b - '0')
			for {
				b, err = d.br.ReadByte()
				if err == io.EOF {
					return v, nil
				}
				if err != nil {
					return 0, raster.WrapIO(codecName, "scanning number", err)
				}
				if b < '0' || b > '9' {
					if err := d.br.UnreadByte(); err != nil {
						return 0, raster.WrapIO(codecName, "unreading", err)
					}
					return v, nil
				}
				v = v*10 + int(b-'0')
				if v > 1<<30 {
					return 0, raster.Structuref(codecName, "numeric field overflow")
				}
			}
		default:
			return 0, raster.Structuref(codecName, "unexpected byte 0x%02x in header", b)
		}
	}
}

func (d *decoder) decodeBilevel(width, height int, ascii bool, win raster.Bounds, opts *raster.DecodeOptions) (raster.Image, error) {
	img := raster.NewBilevel(win.Width(), win.Height())
	row := make([]uint8, width)
	rowBytes := (width + 7) / 8
	packed := make([]byte, rowBytes)

	for y := 0; y < height; y++ {
		if opts.Stopped() {
			return img, raster.ErrAborted
		}
		if y > win.Y2 {
			break
		}
		if ascii {
			for x := 0; x < width; x++ {
				v, err := d.nextBit(y, x)
				if err != nil {
					return nil, err
				}
				row[x] = v
			}
		} else {
			if _, err := io.ReadFull(d.br, packed); err != nil {
				return nil, &raster.StructureError{Codec: codecName, Msg: "short pixel data", Row: y, Col: 0, Err: err}
			}
			for x := 0; x < width; x++ {
				row[x] = packed[x/8] >> uint(7-x%8) & 1
			}
		}
		if !win.ContainsRow(y) {
			continue
		}
		for x := win.X1; x <= win.X2; x++ {
			// file: 1=black; buffer: 1=white
			img.Set(x-win.X1, y-win.Y1, 1-row[x])
		}
		opts.Step(y-win.Y1+1, win.Height())
	}
	return img, nil
}

// nextBit scans a single ASCII 0/1 digit, tolerating comments.
func (d *decoder) nextBit(row, col int) (uint8, error) {
	v, err := d.nextInt()
	if err != nil {
		return 0, err
	}
	if v > 1 {
		return 0, raster.StructureAt(codecName, row, col, "bilevel sample %d out of range", v)
	}
	return uint8(v), nil
}

func (d *decoder) decodeGray(width, height, maxval int, ascii bool, win raster.Bounds, opts *raster.DecodeOptions) (raster.Image, error) {
	wide := maxval > 255
	var img8 *raster.Gray8
	var img16 *raster.Gray16
	if wide {
		img16 = raster.NewGray16(win.Width(), win.Height())
	} else {
		img8 = raster.NewGray8(win.Width(), win.Height())
	}

	row := make([]uint16, width)
	for y := 0; y < height; y++ {
		if opts.Stopped() {
			if wide {
				return img16, raster.ErrAborted
			}
			return img8, raster.ErrAborted
		}
		if y > win.Y2 {
			break
		}
		if err := d.readSampleRow(row, maxval, ascii, wide, y); err != nil {
			return nil, err
		}
		if !win.ContainsRow(y) {
			continue
		}
		for x := win.X1; x <= win.X2; x++ {
			if wide {
				img16.Set(x-win.X1, y-win.Y1, row[x])
			} else {
				img8.Set(x-win.X1, y-win.Y1, uint8(row[x]))
			}
		}
		opts.Step(y-win.Y1+1, win.Height())
	}
	if wide {
		return img16, nil
	}
	return img8, nil
}

func (d *decoder) decodeColor(width, height, maxval int, ascii bool, win raster.Bounds, opts *raster.DecodeOptions) (raster.Image, error) {
	wide := maxval > 255
	var img24 *raster.RGB24
	var img48 *raster.RGB48
	if wide {
		img48 = raster.NewRGB48(win.Width(), win.Height())
	} else {
		img24 = raster.NewRGB24(win.Width(), win.Height())
	}

	row := make([]uint16, width*3)
	for y := 0; y < height; y++ {
		if opts.Stopped() {
			if wide {
				return img48, raster.ErrAborted
			}
			return img24, raster.ErrAborted
		}
		if y > win.Y2 {
			break
		}
		if err := d.readSampleRow(row, maxval, ascii, wide, y); err != nil {
			return nil, err
		}
		if !win.ContainsRow(y) {
			continue
		}
		for x := win.X1; x <= win.X2; x++ {
			if wide {
				img48.Set(x-win.X1, y-win.Y1, row[x*3], row[x*3+1], row[x*3+2])
			} else {
				img24.Set(x-win.X1, y-win.Y1, uint8(row[x*3]), uint8(row[x*3+1]), uint8(row[x*3+2]))
			}
		}
		opts.Step(y-win.Y1+1, win.Height())
	}
	if wide {
		return img48, nil
	}
	return img24, nil
}

// readSampleRow fills row with samples for one scanline, either parsed from
// ASCII tokens or read as 1- or 2-byte big-endian binary values.
func (d *decoder) readSampleRow(row []uint16, maxval int, ascii, wide bool, y int) error {
	if ascii {
		for i := range row {
			v, err := d.nextInt()
			if err != nil {
				return err
			}
			if v > maxval {
				return raster.StructureAt(codecName, y, i, "sample %d exceeds maximum %d", v, maxval)
			}
			row[i] = uint16(v)
		}
		return nil
	}
	if wide {
		buf := make([]byte, len(row)*2)
		if _, err := io.ReadFull(d.br, buf); err != nil {
			return &raster.StructureError{Codec: codecName, Msg: "short pixel data", Row: y, Col: 0, Err: err}
		}
		for i := range row {
			row[i] = uint16(buf[i*2])<<8 | uint16(buf[i*2+1])
		}
		return nil
	}
	buf := make([]byte, len(row))
	if _, err := io.ReadFull(d.br, buf); err != nil {
		return &raster.StructureError{Codec: codecName, Msg: "short pixel data", Row: y, Col: 0, Err: err}
	}
	for i := range row {
		row[i] = uint16(buf[i])
	}
	return nil
}

// SuggestedExtension returns the conventional extension for the image kind.
func SuggestedExtension(img raster.Image) string {
	switch img.Kind() {
	case raster.KindBilevel:
		return "pbm"
	case raster.KindGray8, raster.KindGray16:
		return "pgm"
	default:
		return "ppm"
	}
}
