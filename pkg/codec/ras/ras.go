// Package ras reads and writes Sun rasterfiles: a fixed 32-byte big-endian
// header followed by an optional planar colormap and uncompressed raster
// data. Rows are padded to an even byte count; 24-bit rows are stored in
// BGR order in the file.
package ras

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/jpfielding/raster.go/pkg/raster"
)

const codecName = "ras"

const rasMagic = 0x59a66a95

// Raster types. Only the uncompressed forms are supported.
const (
	typeOld      = 0
	typeStandard = 1
	typeRLE      = 2
)

// Colormap types.
const (
	mapNone = 0
	mapRGB  = 1
)

type header struct {
	Magic     uint32
	Width     uint32
	Height    uint32
	Depth     uint32
	Length    uint32
	Type      uint32
	MapType   uint32
	MapLength uint32
}

// Probe reports whether the leading bytes carry the rasterfile magic.
func Probe(b []byte) bool {
	return len(b) >= 4 && binary.BigEndian.Uint32(b) == rasMagic
}

// Extensions lists the conventional file extensions.
func Extensions() []string { return []string{"ras", "sun"} }

// SuggestedExtension returns the conventional extension.
func SuggestedExtension(raster.Image) string { return "ras" }

// Decode reads one Sun rasterfile.
func Decode(r io.Reader, opts *raster.DecodeOptions) (raster.Image, error) {
	if r == nil {
		return nil, &raster.MissingParameterError{Param: "input stream"}
	}
	br := bufio.NewReader(r)

	var h header
	if err := binary.Read(br, binary.BigEndian, &h); err != nil {
		return nil, raster.WrapIO(codecName, "reading header", err)
	}
	if h.Magic != rasMagic {
		return nil, raster.Formatf(codecName, "magic 0x%08x", h.Magic)
	}
	if h.Width < 1 || h.Height < 1 || h.Width > 1<<24 || h.Height > 1<<24 {
		return nil, raster.Structuref(codecName, "invalid geometry %dx%d", h.Width, h.Height)
	}
	if h.Type != typeOld && h.Type != typeStandard {
		return nil, raster.Unsupportedf(codecName, "raster type %d", h.Type)
	}
	switch h.Depth {
	case 1, 8, 24:
	default:
		return nil, raster.Unsupportedf(codecName, "depth %d", h.Depth)
	}

	var pal *raster.Palette
	switch h.MapType {
	case mapNone:
		if h.MapLength != 0 {
			return nil, raster.Structuref(codecName, "colormap length %d with no colormap", h.MapLength)
		}
	case mapRGB:
		if h.MapLength == 0 || h.MapLength%3 != 0 || h.MapLength > 3*256 {
			return nil, raster.Structuref(codecName, "invalid colormap length %d", h.MapLength)
		}
		// Planar colormap: all reds, all greens, all blues.
		raw := make([]byte, h.MapLength)
		if _, err := io.ReadFull(br, raw); err != nil {
			return nil, raster.WrapIO(codecName, "reading colormap", err)
		}
		n := int(h.MapLength) / 3
		pal = raster.NewPalette(n)
		for i := 0; i < n; i++ {
			pal.SetRGB(i, raw[i], raw[n+i], raw[2*n+i])
		}
	default:
		return nil, raster.Unsupportedf(codecName, "colormap type %d", h.MapType)
	}

	width, height := int(h.Width), int(h.Height)
	win, err := opts.Window(width, height)
	if err != nil {
		return nil, err
	}

	switch h.Depth {
	case 1:
		return decodeBilevel(br, width, height, win, opts)
	case 8:
		return decodeByte(br, width, height, pal, win, opts)
	default:
		return decodeTrueColor(br, width, height, win, opts)
	}
}

// rowBytes pads a row of n bytes to an even count.
func rowBytes(n int) int { return (n + 1) &^ 1 }

func decodeBilevel(br io.Reader, width, height int, win raster.Bounds, opts *raster.DecodeOptions) (raster.Image, error) {
	img := raster.NewBilevel(win.Width(), win.Height())
	row := make([]byte, rowBytes((width+7)/8))
	for y := 0; y < height; y++ {
		if opts.Stopped() {
			return img, raster.ErrAborted
		}
		if y > win.Y2 {
			break
		}
		if _, err := io.ReadFull(br, row); err != nil {
			return nil, &raster.StructureError{Codec: codecName, Msg: "short raster data", Row: y, Col: 0, Err: err}
		}
		if !win.ContainsRow(y) {
			continue
		}
		for x := win.X1; x <= win.X2; x++ {
			// file: 1=black; buffer: 1=white
			bit := row[x/8] >> uint(7-x%8) & 1
			img.Set(x-win.X1, y-win.Y1, 1-bit)
		}
		opts.Step(y-win.Y1+1, win.Height())
	}
	return img, nil
}

func decodeByte(br io.Reader, width, height int, pal *raster.Palette, win raster.Bounds, opts *raster.DecodeOptions) (raster.Image, error) {
	var idx *raster.Indexed8
	var gray *raster.Gray8
	if pal != nil {
		idx = raster.NewIndexed8(win.Width(), win.Height(), pal)
	} else {
		gray = raster.NewGray8(win.Width(), win.Height())
	}
	row := make([]byte, rowBytes(width))
	for y := 0; y < height; y++ {
		if opts.Stopped() {
			if pal != nil {
				return idx, raster.ErrAborted
			}
			return gray, raster.ErrAborted
		}
		if y > win.Y2 {
			break
		}
		if _, err := io.ReadFull(br, row); err != nil {
			return nil, &raster.StructureError{Codec: codecName, Msg: "short raster data", Row: y, Col: 0, Err: err}
		}
		if !win.ContainsRow(y) {
			continue
		}
		for x := win.X1; x <= win.X2; x++ {
			if pal != nil {
				if int(row[x]) >= pal.Len() {
					return nil, raster.StructureAt(codecName, y, x, "index %d outside %d-entry colormap", row[x], pal.Len())
				}
				idx.Set(x-win.X1, y-win.Y1, row[x])
			} else {
				gray.Set(x-win.X1, y-win.Y1, row[x])
			}
		}
		opts.Step(y-win.Y1+1, win.Height())
	}
	if pal != nil {
		return idx, nil
	}
	return gray, nil
}

func decodeTrueColor(br io.Reader, width, height int, win raster.Bounds, opts *raster.DecodeOptions) (raster.Image, error) {
	img := raster.NewRGB24(win.Width(), win.Height())
	row := make([]byte, rowBytes(width*3))
	for y := 0; y < height; y++ {
		if opts.Stopped() {
			return img, raster.ErrAborted
		}
		if y > win.Y2 {
			break
		}
		if _, err := io.ReadFull(br, row); err != nil {
			return nil, &raster.StructureError{Codec: codecName, Msg: "short raster data", Row: y, Col: 0, Err: err}
		}
		if !win.ContainsRow(y) {
			continue
		}
		for x := win.X1; x <= win.X2; x++ {
			// file order is B,G,R
			b, g, r := row[x*3], row[x*3+1], row[x*3+2]
			img.Set(x-win.X1, y-win.Y1, r, g, b)
		}
		opts.Step(y-win.Y1+1, win.Height())
	}
	return img, nil
}
