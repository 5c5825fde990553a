// Package iff reads IFF ILBM images: a FORM container of FourCC chunks
// (BMHD header, CMAP palette, CAMG Amiga display mode, BODY pixel data),
// with odd chunk lengths padded to even. Pixel rows are stored as bit
// planes, optionally ByteRun1 compressed, and reassembled per pixel into
// palette indices, direct 24-bit RGB, or the HAM6/HAM8 hold-and-modify
// recurrence. Extra-Half-Brite files double the palette with half-bright
// entries before any row is decoded.
package iff

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/jpfielding/raster.go/pkg/compress/packbits"
	"github.com/jpfielding/raster.go/pkg/raster"
)

const codecName = "iff"

// CAMG display mode bits.
const (
	camgHAM = 0x800
	camgEHB = 0x80
)

// BMHD masking values.
const (
	maskNone        = 0
	maskHasMask     = 1
	maskTransparent = 2
	maskLasso       = 3
)

type bitmapHeader struct {
	Width       uint16
	Height      uint16
	XOrigin     int16
	YOrigin     int16
	Planes      uint8
	Masking     uint8
	Compression uint8
	Pad         uint8
	Transparent uint16
	XAspect     uint8
	YAspect     uint8
	PageWidth   int16
	PageHeight  int16
}

// Probe reports whether the leading bytes are an ILBM FORM.
func Probe(b []byte) bool {
	return len(b) >= 12 && string(b[:4]) == "FORM" && string(b[8:12]) == "ILBM"
}

// Extensions lists the conventional file extensions.
func Extensions() []string { return []string{"iff", "lbm", "ilbm"} }

// SuggestedExtension returns the conventional extension.
func SuggestedExtension(raster.Image) string { return "iff" }

// Decode reads one ILBM image.
func Decode(r io.Reader, opts *raster.DecodeOptions) (raster.Image, error) {
	if r == nil {
		return nil, &raster.MissingParameterError{Param: "input stream"}
	}
	br := bufio.NewReader(r)

	var form [12]byte
	if _, err := io.ReadFull(br, form[:]); err != nil {
		return nil, raster.WrapIO(codecName, "reading FORM header", err)
	}
	if string(form[:4]) != "FORM" {
		return nil, raster.Formatf(codecName, "leading FourCC %q", form[:4])
	}
	if string(form[8:12]) != "ILBM" {
		return nil, raster.Formatf(codecName, "FORM type %q", form[8:12])
	}

	var (
		hdr    *bitmapHeader
		pal    *raster.Palette
		camg   uint32
		gotCam bool
	)

	// Chunk loop: terminates once BODY has been decoded.
	for {
		var ch [8]byte
		if _, err := io.ReadFull(br, ch[:]); err != nil {
			return nil, raster.WrapIO(codecName, "reading chunk header", err)
		}
		fourCC := string(ch[:4])
		length := binary.BigEndian.Uint32(ch[4:])
		if length > 1<<30 {
			return nil, raster.Structuref(codecName, "chunk %s length %d", fourCC, length)
		}

		switch fourCC {
		case "BMHD":
			if hdr != nil {
				return nil, raster.Structuref(codecName, "duplicate BMHD chunk")
			}
			if length != 20 {
				return nil, raster.Structuref(codecName, "BMHD length %d, want 20", length)
			}
			hdr = &bitmapHeader{}
			if err := binary.Read(br, binary.BigEndian, hdr); err != nil {
				return nil, raster.WrapIO(codecName, "reading BMHD", err)
			}
			if hdr.Width < 1 || hdr.Height < 1 {
				return nil, raster.Structuref(codecName, "invalid geometry %dx%d", hdr.Width, hdr.Height)
			}
			if (hdr.Planes < 1 || hdr.Planes > 8) && hdr.Planes != 24 {
				return nil, raster.Unsupportedf(codecName, "%d planes", hdr.Planes)
			}
			if hdr.Compression > 1 {
				return nil, raster.Unsupportedf(codecName, "compression %d", hdr.Compression)
			}

		case "CMAP":
			if length < 3 || length/3 > 256 {
				return nil, raster.Structuref(codecName, "CMAP length %d", length)
			}
			raw := make([]byte, length)
			if _, err := io.ReadFull(br, raw); err != nil {
				return nil, raster.WrapIO(codecName, "reading CMAP", err)
			}
			pal = raster.PaletteFrom(raw[:length/3*3])
			if length%2 == 1 {
				if _, err := br.Discard(1); err != nil {
					return nil, raster.WrapIO(codecName, "skipping CMAP pad", err)
				}
			}

		case "CAMG":
			if length != 4 {
				return nil, raster.Structuref(codecName, "CAMG length %d, want 4", length)
			}
			if err := binary.Read(br, binary.BigEndian, &camg); err != nil {
				return nil, raster.WrapIO(codecName, "reading CAMG", err)
			}
			gotCam = true

		case "BODY":
			if hdr == nil {
				return nil, raster.Structuref(codecName, "BODY before BMHD")
			}
			return decodeBody(br, hdr, pal, camg, gotCam, opts)

		default:
			// Unknown chunks are skipped, padded to even length.
			skip := int64(length)
			if length%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, br, skip); err != nil {
				return nil, raster.WrapIO(codecName, "skipping chunk "+fourCC, err)
			}
		}
	}
}

// hamShift returns the shift applied to a HAM modify value for the given
// plane count: HAM6 values replace the top 4 bits of a channel, HAM8 values
// the top 2.
func hamShift(planes int) uint {
	if planes == 8 {
		return 2
	}
	return 4
}

func decodeBody(br *bufio.Reader, hdr *bitmapHeader, pal *raster.Palette, camg uint32, gotCam bool, opts *raster.DecodeOptions) (raster.Image, error) {
	width, height := int(hdr.Width), int(hdr.Height)
	planes := int(hdr.Planes)
	ham := gotCam && camg&camgHAM != 0 && (planes == 6 || planes == 8)
	ehb := gotCam && camg&camgEHB != 0 && planes == 6 && !ham

	win, err := opts.Window(width, height)
	if err != nil {
		return nil, err
	}

	if planes <= 8 && !ham {
		if pal == nil {
			pal = raster.GrayPalette(1 << planes)
		}
		if ehb {
			pal = doubleEHB(pal)
		}
		if pal.Len() < 1<<planes {
			grown := raster.NewPalette(1 << planes)
			for i := 0; i < pal.Len(); i++ {
				r, g, b := pal.RGB(i)
				grown.SetRGB(i, r, g, b)
			}
			pal = grown
		}
	}
	if ham && pal == nil {
		return nil, raster.Structuref(codecName, "HAM body without CMAP")
	}

	// Plane rows are padded to an even byte count.
	planeBytes := ((width + 15) / 16) * 2
	storedPlanes := planes
	if hdr.Masking == maskHasMask {
		storedPlanes++
	}

	var out raster.Image
	var idx *raster.Indexed8
	var rgb *raster.RGB24
	if planes == 24 || ham {
		rgb = raster.NewRGB24(win.Width(), win.Height())
		out = rgb
	} else {
		idx = raster.NewIndexed8(win.Width(), win.Height(), pal)
		out = idx
	}

	planeRows := make([][]byte, storedPlanes)
	for i := range planeRows {
		planeRows[i] = make([]byte, planeBytes)
	}
	indices := make([]uint32, width)
	shift := hamShift(planes)

	for y := 0; y < height; y++ {
		if opts.Stopped() {
			return out, raster.ErrAborted
		}
		if y > win.Y2 {
			break
		}
		for p := 0; p < storedPlanes; p++ {
			if hdr.Compression == 1 {
				if err := packbits.DecodeReader(br, planeRows[p]); err != nil {
					return nil, &raster.StructureError{Codec: codecName, Msg: "decompressing plane row", Row: y, Col: p, Err: err}
				}
			} else if _, err := io.ReadFull(br, planeRows[p]); err != nil {
				return nil, &raster.StructureError{Codec: codecName, Msg: "short plane row", Row: y, Col: p, Err: err}
			}
		}

		// Combine the planes: plane p holds bit p of every pixel index.
		for x := 0; x < width; x++ {
			v := uint32(0)
			byteIdx, bit := x/8, uint(7-x%8)
			for p := 0; p < planes; p++ {
				v |= uint32(planeRows[p][byteIdx]>>bit&1) << uint(p)
			}
			indices[x] = v
		}

		if !win.ContainsRow(y) {
			continue
		}
		oy := y - win.Y1

		switch {
		case planes == 24:
			for x := win.X1; x <= win.X2; x++ {
				v := indices[x]
				rgb.Set(x-win.X1, oy, uint8(v), uint8(v>>8), uint8(v>>16))
			}
		case ham:
			// HAM pixels depend on their left neighbor, so the full row is
			// walked even when horizontally clipped.
			r, g, b := pal.RGB(0)
			for x := 0; x < width; x++ {
				r, g, b = hamPixel(pal, indices[x], r, g, b, shift)
				if x >= win.X1 && x <= win.X2 {
					rgb.Set(x-win.X1, oy, r, g, b)
				}
			}
		default:
			for x := win.X1; x <= win.X2; x++ {
				idx.Set(x-win.X1, oy, uint8(indices[x]))
			}
		}
		opts.Step(oy+1, win.Height())
	}
	return out, nil
}

// hamPixel applies one step of the hold-and-modify recurrence: the top two
// bits of the index select a fresh palette color (0) or replace the top bits
// of the previous pixel's blue (1), red (2) or green (3) channel.
func hamPixel(pal *raster.Palette, index uint32, pr, pg, pb uint8, shift uint) (r, g, b uint8) {
	sel := index >> uint(hamValueBits(shift))
	val := uint8(index) & (1<<hamValueBits(shift) - 1)
	switch sel {
	case 0:
		if int(val) < pal.Len() {
			return pal.RGB(int(val))
		}
		return 0, 0, 0
	case 1:
		return pr, pg, replaceTop(pb, val, shift)
	case 2:
		return replaceTop(pr, val, shift), pg, pb
	default:
		return pr, replaceTop(pg, val, shift), pb
	}
}

// hamValueBits is 4 for HAM6, 6 for HAM8.
func hamValueBits(shift uint) uint { return 8 - shift }

// replaceTop substitutes the top bits of channel c with v.
func replaceTop(c, v uint8, shift uint) uint8 {
	return v<<shift | c&(1<<shift-1)
}

// doubleEHB builds the Extra-Half-Brite palette: the second half repeats the
// first at half brightness.
func doubleEHB(pal *raster.Palette) *raster.Palette {
	n := pal.Len()
	if n > 32 {
		n = 32
	}
	out := raster.NewPalette(64)
	for i := 0; i < n; i++ {
		r, g, b := pal.RGB(i)
		out.SetRGB(i, r, g, b)
		out.SetRGB(i+32, r>>1, g>>1, b>>1)
	}
	return out
}
