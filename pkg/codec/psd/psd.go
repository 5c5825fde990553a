// Package psd reads Adobe Photoshop files: the fixed 8BPS header with
// length-prefixed color-mode, resource and layer sections, followed by
// channel data stored as separate full-height planes, raw or PackBits
// compressed with a leading per-row byte-count table. Only 8-bit depth and
// the grayscale, indexed and RGB color modes are supported.
package psd

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/jpfielding/raster.go/pkg/compress/packbits"
	"github.com/jpfielding/raster.go/pkg/raster"
)

const codecName = "psd"

const signature = "8BPS"

// Color modes.
const (
	modeBitmap  = 0
	modeGray    = 1
	modeIndexed = 2
	modeRGB     = 3
	modeCMYK    = 4
)

// Compression methods.
const (
	compRaw = 0
	compRLE = 1
)

// Probe reports whether the leading bytes carry the 8BPS signature.
func Probe(b []byte) bool {
	return len(b) >= 4 && string(b[:4]) == signature
}

// Extensions lists the conventional file extensions.
func Extensions() []string { return []string{"psd"} }

// Decode reads the composite image of a PSD file.
func Decode(r io.Reader, opts *raster.DecodeOptions) (raster.Image, error) {
	if r == nil {
		return nil, &raster.MissingParameterError{Param: "input stream"}
	}
	br := bufio.NewReader(r)

	var sig [4]byte
	if _, err := io.ReadFull(br, sig[:]); err != nil {
		return nil, raster.WrapIO(codecName, "reading signature", err)
	}
	if string(sig[:]) != signature {
		return nil, raster.Formatf(codecName, "signature %q", sig[:])
	}

	var version uint16
	if err := binary.Read(br, binary.BigEndian, &version); err != nil {
		return nil, raster.WrapIO(codecName, "reading version", err)
	}
	if version != 1 {
		return nil, raster.Unsupportedf(codecName, "version %d", version)
	}
	if err := skip(br, 6); err != nil { // reserved
		return nil, err
	}

	var channels uint16
	var height, width uint32
	var depth, mode uint16
	for _, f := range []any{&channels, &height, &width, &depth, &mode} {
		if err := binary.Read(br, binary.BigEndian, f); err != nil {
			return nil, raster.WrapIO(codecName, "reading header", err)
		}
	}
	if width < 1 || height < 1 || width > 1<<24 || height > 1<<24 {
		return nil, raster.Structuref(codecName, "invalid geometry %dx%d", width, height)
	}
	if depth != 8 {
		return nil, raster.Unsupportedf(codecName, "depth %d", depth)
	}

	var wantChannels int
	switch mode {
	case modeGray, modeIndexed:
		wantChannels = 1
	case modeRGB:
		wantChannels = 3
	default:
		return nil, raster.Unsupportedf(codecName, "color mode %d", mode)
	}
	if int(channels) < wantChannels {
		return nil, raster.Structuref(codecName, "%d channels for color mode %d", channels, mode)
	}

	// Color mode data section: holds the planar palette for indexed files.
	var pal *raster.Palette
	var cmLen uint32
	if err := binary.Read(br, binary.BigEndian, &cmLen); err != nil {
		return nil, raster.WrapIO(codecName, "reading color mode length", err)
	}
	if mode == modeIndexed {
		if cmLen != 768 {
			return nil, raster.Structuref(codecName, "indexed color data length %d, want 768", cmLen)
		}
		raw := make([]byte, 768)
		if _, err := io.ReadFull(br, raw); err != nil {
			return nil, raster.WrapIO(codecName, "reading palette", err)
		}
		pal = raster.NewPalette(256)
		for i := 0; i < 256; i++ {
			pal.SetRGB(i, raw[i], raw[256+i], raw[512+i])
		}
	} else if err := skip(br, int64(cmLen)); err != nil {
		return nil, err
	}

	// Image resources and layer/mask sections are skipped.
	for _, section := range []string{"image resources", "layer and mask info"} {
		var n uint32
		if err := binary.Read(br, binary.BigEndian, &n); err != nil {
			return nil, raster.WrapIO(codecName, "reading "+section+" length", err)
		}
		if err := skip(br, int64(n)); err != nil {
			return nil, err
		}
	}

	var compression uint16
	if err := binary.Read(br, binary.BigEndian, &compression); err != nil {
		return nil, raster.WrapIO(codecName, "reading compression", err)
	}
	if compression != compRaw && compression != compRLE {
		return nil, raster.Unsupportedf(codecName, "compression %d", compression)
	}

	w, h := int(width), int(height)
	win, err := opts.Window(w, h)
	if err != nil {
		return nil, err
	}

	// Per-row compressed byte counts, all rows of all channels, per the RLE
	// layout.
	var rowCounts []int
	if compression == compRLE {
		counts := make([]byte, 2*h*int(channels))
		if _, err := io.ReadFull(br, counts); err != nil {
			return nil, raster.WrapIO(codecName, "reading RLE row counts", err)
		}
		rowCounts = make([]int, h*int(channels))
		for i := range rowCounts {
			rowCounts[i] = int(binary.BigEndian.Uint16(counts[i*2:]))
		}
	}

	var img raster.Image
	var planes [][]byte // one plane per wanted channel, window-sized rows
	switch mode {
	case modeGray:
		img = raster.NewGray8(win.Width(), win.Height())
	case modeIndexed:
		img = raster.NewIndexed8(win.Width(), win.Height(), pal)
	case modeRGB:
		img = raster.NewRGB24(win.Width(), win.Height())
	}
	planes = make([][]byte, wantChannels)
	for i := range planes {
		planes[i] = make([]byte, win.Width()*win.Height())
	}

	totalRows := wantChannels * win.Height()
	doneRows := 0
	row := make([]byte, w)
	for c := 0; c < int(channels); c++ {
		for y := 0; y < h; y++ {
			if opts.Stopped() {
				return img, raster.ErrAborted
			}
			if err := readPlaneRow(br, row, int(compression), rowCounts, c, y, h); err != nil {
				return nil, err
			}
			if c >= wantChannels || !win.ContainsRow(y) {
				continue // alpha and extra channels are consumed but dropped
			}
			out := planes[c][(y-win.Y1)*win.Width():]
			copy(out, row[win.X1:win.X2+1])
			doneRows++
			opts.Step(doneRows, totalRows)
		}
	}

	switch p := img.(type) {
	case *raster.Gray8:
		copy(p.Pix, planes[0])
	case *raster.Indexed8:
		copy(p.Pix, planes[0])
	case *raster.RGB24:
		for i := 0; i < win.Width()*win.Height(); i++ {
			p.Pix[i*3] = planes[0][i]
			p.Pix[i*3+1] = planes[1][i]
			p.Pix[i*3+2] = planes[2][i]
		}
	}
	return img, nil
}

// readPlaneRow fills row with one decompressed scanline of channel c.
func readPlaneRow(br *bufio.Reader, row []byte, compression int, rowCounts []int, c, y, h int) error {
	if compression == compRaw {
		if _, err := io.ReadFull(br, row); err != nil {
			return &raster.StructureError{Codec: codecName, Msg: "short channel data", Row: y, Col: 0, Err: err}
		}
		return nil
	}
	n := rowCounts[c*h+y]
	src := make([]byte, n)
	if _, err := io.ReadFull(br, src); err != nil {
		return &raster.StructureError{Codec: codecName, Msg: "short RLE row", Row: y, Col: 0, Err: err}
	}
	if _, err := packbits.Decode(src, row); err != nil {
		return &raster.StructureError{Codec: codecName, Msg: "decompressing row", Row: y, Col: 0, Err: err}
	}
	return nil
}

func skip(br *bufio.Reader, n int64) error {
	if n == 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, br, n); err != nil {
		return raster.WrapIO(codecName, "skipping section", err)
	}
	return nil
}

// SuggestedExtension returns the conventional extension.
func SuggestedExtension(raster.Image) string { return "psd" }
