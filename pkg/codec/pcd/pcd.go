// Package pcd reads Kodak Photo CD image pacs. Only the three lowest of
// the six resolutions are supported; they are stored uncompressed at fixed
// file offsets, luminance at full resolution and the two chroma planes at
// quarter resolution, and are upscaled and converted to RGB on load. The
// orientation stored in the header is applied as a final rotation of the
// decoded array.
package pcd

import (
	"bufio"
	"io"

	"github.com/jpfielding/raster.go/pkg/raster"
)

const codecName = "pcd"

const (
	magicOffset       = 0x0800
	orientationOffset = 0x0e02
)

var magic = []byte("PCD_IPI")

// Resolution selects which of the fixed-offset images to read.
type Resolution int

const (
	Base16 Resolution = iota // 192x128
	Base4                    // 384x256
	Base                     // 768x512
)

type layout struct {
	offset int64
	w, h   int
}

var layouts = map[Resolution]layout{
	Base16: {offset: 0x02000, w: 192, h: 128},
	Base4:  {offset: 0x0b800, w: 384, h: 256},
	Base:   {offset: 0x30000, w: 768, h: 512},
}

// Probe reports whether b starts an image pac. The signature sits one
// sector in, so probing needs at least 0x807 bytes.
func Probe(b []byte) bool {
	if len(b) < magicOffset+len(magic) {
		return false
	}
	for i, c := range magic {
		if b[magicOffset+i] != c {
			return false
		}
	}
	return true
}

// Extensions lists the conventional file extensions.
func Extensions() []string { return []string{"pcd"} }

// SuggestedExtension returns the conventional extension.
func SuggestedExtension(raster.Image) string { return "pcd" }

// Decode reads the Base (768x512) image.
func Decode(r io.Reader, opts *raster.DecodeOptions) (raster.Image, error) {
	return DecodeResolution(r, Base, opts)
}

// DecodeResolution reads the image stored at the given resolution. The
// input is consumed sequentially, so a plain reader works; no seeking is
// required.
func DecodeResolution(r io.Reader, res Resolution, opts *raster.DecodeOptions) (raster.Image, error) {
	if r == nil {
		return nil, &raster.MissingParameterError{Param: "input stream"}
	}
	lay, ok := layouts[res]
	if !ok {
		return nil, raster.Unsupportedf(codecName, "resolution %d", res)
	}
	br := bufio.NewReaderSize(r, 1<<15)

	pos := int64(0)
	head := make([]byte, orientationOffset+1)
	if _, err := io.ReadFull(br, head); err != nil {
		return nil, raster.Formatf(codecName, "short header: %v", err)
	}
	pos += int64(len(head))
	for i, c := range magic {
		if head[magicOffset+i] != c {
			return nil, raster.Formatf(codecName, "missing PCD_IPI signature")
		}
	}
	orientation := head[orientationOffset] & 3

	if err := skipTo(br, &pos, lay.offset); err != nil {
		return nil, raster.WrapIO(codecName, "seeking to image data", err)
	}

	win, err := opts.Window(lay.w, lay.h)
	if err != nil {
		return nil, err
	}
	out := raster.NewRGB24(win.Width(), win.Height())

	// Rows come in pairs: two full-width luma rows, then half-width C1
	// and C2 rows shared by both.
	y0 := make([]byte, lay.w)
	y1 := make([]byte, lay.w)
	c1 := make([]byte, lay.w/2)
	c2 := make([]byte, lay.w/2)
	for y := 0; y < lay.h; y += 2 {
		if opts.Stopped() {
			return out, raster.ErrAborted
		}
		if y > win.Y2 {
			break
		}
		for _, p := range [][]byte{y0, y1, c1, c2} {
			if _, err := io.ReadFull(br, p); err != nil {
				return nil, &raster.StructureError{Codec: codecName, Msg: "short image data", Row: y, Col: 0, Err: err}
			}
		}
		for dy, luma := range [][]byte{y0, y1} {
			ry := y + dy
			if !win.ContainsRow(ry) {
				continue
			}
			oy := ry - win.Y1
			for x := win.X1; x <= win.X2; x++ {
				r8, g8, b8 := yccToRGB(luma[x], c1[x/2], c2[x/2])
				out.Set(x-win.X1, oy, r8, g8, b8)
			}
			opts.Step(oy+1, win.Height())
		}
	}
	return rotate(out, orientation), nil
}

func skipTo(br *bufio.Reader, pos *int64, target int64) error {
	n, err := io.CopyN(io.Discard, br, target-*pos)
	*pos += n
	return err
}

// yccToRGB converts one PhotoYCC sample to 8-bit RGB. The chroma planes
// are biased at 156 and 137 rather than the JPEG-style 128.
func yccToRGB(y, c1, c2 uint8) (r, g, b uint8) {
	l := 1.3584 * float64(y)
	d1 := float64(c1) - 156
	d2 := float64(c2) - 137
	return clamp(l + 1.8215*d2),
		clamp(l - 0.4303*d2 - 0.9271*d1),
		clamp(l + 2.2179*d1)
}

func clamp(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v + 0.5)
}

// rotate applies the header orientation: 1 turns the image a quarter turn
// counter-clockwise, 2 a half turn, 3 a quarter turn clockwise.
func rotate(img *raster.RGB24, orientation uint8) *raster.RGB24 {
	if orientation == 0 {
		return img
	}
	w, h := img.Width(), img.Height()
	var out *raster.RGB24
	if orientation == 2 {
		out = raster.NewRGB24(w, h)
	} else {
		out = raster.NewRGB24(h, w)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := img.At(x, y)
			switch orientation {
			case 1:
				out.Set(y, w-1-x, r, g, b)
			case 2:
				out.Set(w-1-x, h-1-y, r, g, b)
			case 3:
				out.Set(h-1-y, x, r, g, b)
			}
		}
	}
	return out
}
