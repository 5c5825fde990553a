// Package png reads and writes Portable Network Graphics images. The
// decoder handles grayscale at 1, 2, 4, 8 and 16 bits (1-bit loads as a
// bilevel image), indexed color, and RGB at 8 and 16 bits, interlaced or
// not. Alpha channels are decoded positionally and discarded; no pixel
// buffer variant stores them. Every chunk checksum is verified except the
// pixel data chunks, which are consumed by a streaming inflater.
package png

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/jpfielding/raster.go/pkg/raster"
)

const codecName = "png"

var signature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Color types.
const (
	ctGray      = 0
	ctRGB       = 2
	ctIndexed   = 3
	ctGrayAlpha = 4
	ctRGBAlpha  = 6
)

// Probe reports whether b starts with the PNG signature.
func Probe(b []byte) bool {
	if len(b) < len(signature) {
		return false
	}
	for i, c := range signature {
		if b[i] != c {
			return false
		}
	}
	return true
}

// Extensions lists the conventional file extensions.
func Extensions() []string { return []string{"png"} }

// SuggestedExtension returns the conventional extension.
func SuggestedExtension(raster.Image) string { return "png" }

type decoder struct {
	br   *bufio.Reader
	opts *raster.DecodeOptions

	width, height int
	depth         int
	colorType     uint8
	interlaced    bool
	pal           *raster.Palette

	seenIHDR bool
	seenIDAT bool

	// streaming IDAT state
	idatLen     uint32
	idatStarted bool
	pending     bool
	pendingLen  uint32
	pendingType string
}

// Decode reads one PNG image.
func Decode(r io.Reader, opts *raster.DecodeOptions) (raster.Image, error) {
	if r == nil {
		return nil, &raster.MissingParameterError{Param: "input stream"}
	}
	d := &decoder{br: bufio.NewReader(r), opts: opts}

	sig := make([]byte, len(signature))
	if _, err := io.ReadFull(d.br, sig); err != nil {
		return nil, raster.Formatf(codecName, "short signature: %v", err)
	}
	if !Probe(sig) {
		return nil, raster.Formatf(codecName, "bad signature")
	}

	var img raster.Image
	for {
		length, typ, err := d.nextChunk()
		if err != nil {
			return nil, err
		}
		switch typ {
		case "IHDR":
			if d.seenIHDR {
				return nil, raster.Structuref(codecName, "duplicate IHDR")
			}
			if err := d.parseIHDR(length); err != nil {
				return nil, err
			}
		case "PLTE":
			if !d.seenIHDR {
				return nil, raster.Structuref(codecName, "PLTE before IHDR")
			}
			if d.seenIDAT {
				return nil, raster.Structuref(codecName, "PLTE after pixel data")
			}
			if err := d.parsePLTE(length); err != nil {
				return nil, err
			}
		case "IDAT":
			if !d.seenIHDR {
				return nil, raster.Structuref(codecName, "IDAT before IHDR")
			}
			if d.colorType == ctIndexed && d.pal == nil {
				return nil, raster.Structuref(codecName, "indexed image without PLTE")
			}
			if d.seenIDAT {
				return nil, raster.Structuref(codecName, "pixel data restarted mid-file")
			}
			d.seenIDAT = true
			d.idatLen = length
			d.idatStarted = true
			if img, err = d.decodePixels(); err != nil {
				return nil, err
			}
			if err := d.drainIDAT(); err != nil {
				return nil, err
			}
		case "IEND":
			if !d.seenIDAT {
				return nil, raster.Structuref(codecName, "IEND before pixel data")
			}
			if length != 0 {
				return nil, raster.Structuref(codecName, "IEND with %d data bytes", length)
			}
			if err := d.skipChunk(length, typ); err != nil {
				return nil, err
			}
			return img, nil
		default:
			if err := d.skipChunk(length, typ); err != nil {
				return nil, err
			}
		}
	}
}

// nextChunk reads an 8-byte chunk header, or resumes the one stashed when
// the IDAT stream ran into it.
func (d *decoder) nextChunk() (uint32, string, error) {
	if d.pending {
		d.pending = false
		return d.pendingLen, d.pendingType, nil
	}
	var hdr [8]byte
	if _, err := io.ReadFull(d.br, hdr[:]); err != nil {
		return 0, "", raster.WrapIO(codecName, "reading chunk header", err)
	}
	return binary.BigEndian.Uint32(hdr[:4]), string(hdr[4:8]), nil
}

// readChunkData consumes a chunk payload and verifies its trailing CRC32,
// computed over the type bytes plus the data.
func (d *decoder) readChunkData(length uint32, typ string) ([]byte, error) {
	data := make([]byte, length)
	if _, err := io.ReadFull(d.br, data); err != nil {
		return nil, raster.WrapIO(codecName, "reading "+typ+" chunk", err)
	}
	if err := d.checkCRC(typ, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (d *decoder) checkCRC(typ string, data []byte) error {
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(data)
	var stored [4]byte
	if _, err := io.ReadFull(d.br, stored[:]); err != nil {
		return raster.WrapIO(codecName, "reading "+typ+" checksum", err)
	}
	if binary.BigEndian.Uint32(stored[:]) != crc.Sum32() {
		return raster.Structuref(codecName, "%s chunk checksum mismatch", typ)
	}
	return nil
}

// skipChunk discards a chunk while still verifying its CRC.
func (d *decoder) skipChunk(length uint32, typ string) error {
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	if _, err := io.CopyN(crc, d.br, int64(length)); err != nil {
		return raster.WrapIO(codecName, "reading "+typ+" chunk", err)
	}
	var stored [4]byte
	if _, err := io.ReadFull(d.br, stored[:]); err != nil {
		return raster.WrapIO(codecName, "reading "+typ+" checksum", err)
	}
	if binary.BigEndian.Uint32(stored[:]) != crc.Sum32() {
		return raster.Structuref(codecName, "%s chunk checksum mismatch", typ)
	}
	return nil
}

func (d *decoder) parseIHDR(length uint32) error {
	if length != 13 {
		return raster.Structuref(codecName, "IHDR length %d, want 13", length)
	}
	data, err := d.readChunkData(length, "IHDR")
	if err != nil {
		return err
	}
	w := binary.BigEndian.Uint32(data[0:])
	h := binary.BigEndian.Uint32(data[4:])
	if w < 1 || h < 1 || w > 1<<24 || h > 1<<24 {
		return raster.Structuref(codecName, "invalid geometry %dx%d", w, h)
	}
	d.width, d.height = int(w), int(h)
	d.depth = int(data[8])
	d.colorType = data[9]
	if !validDepth(d.colorType, d.depth) {
		return raster.Unsupportedf(codecName, "color type %d at depth %d", d.colorType, d.depth)
	}
	if data[10] != 0 {
		return raster.Unsupportedf(codecName, "compression method %d", data[10])
	}
	if data[11] != 0 {
		return raster.Unsupportedf(codecName, "filter method %d", data[11])
	}
	switch data[12] {
	case 0:
	case 1:
		d.interlaced = true
	default:
		return raster.Unsupportedf(codecName, "interlace method %d", data[12])
	}
	d.seenIHDR = true
	return nil
}

func validDepth(colorType uint8, depth int) bool {
	switch colorType {
	case ctGray:
		return depth == 1 || depth == 2 || depth == 4 || depth == 8 || depth == 16
	case ctIndexed:
		return depth == 1 || depth == 2 || depth == 4 || depth == 8
	case ctRGB, ctGrayAlpha, ctRGBAlpha:
		return depth == 8 || depth == 16
	}
	return false
}

func (d *decoder) parsePLTE(length uint32) error {
	if length%3 != 0 || length < 3 || length > 768 {
		return raster.Structuref(codecName, "PLTE length %d", length)
	}
	data, err := d.readChunkData(length, "PLTE")
	if err != nil {
		return err
	}
	d.pal = raster.PaletteFrom(data)
	return nil
}

// idatStream feeds the inflater from consecutive IDAT chunks, making the
// chunk boundaries invisible to it. The per-chunk checksums are not
// verified; the data never exists in one piece to sum over.
type idatStream struct {
	d *decoder
}

func (s *idatStream) Read(p []byte) (int, error) {
	d := s.d
	for d.idatLen == 0 {
		// Finished chunk: discard its CRC, then look at the next header.
		if _, err := d.br.Discard(4); err != nil {
			return 0, raster.WrapIO(codecName, "reading IDAT checksum", err)
		}
		var hdr [8]byte
		if _, err := io.ReadFull(d.br, hdr[:]); err != nil {
			return 0, raster.WrapIO(codecName, "reading chunk header", err)
		}
		length, typ := binary.BigEndian.Uint32(hdr[:4]), string(hdr[4:8])
		if typ != "IDAT" {
			d.pending, d.pendingLen, d.pendingType = true, length, typ
			d.idatStarted = false
			return 0, io.EOF
		}
		d.idatLen = length
	}
	if len(p) > int(d.idatLen) {
		p = p[:d.idatLen]
	}
	n, err := d.br.Read(p)
	d.idatLen -= uint32(n)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// drainIDAT consumes whatever IDAT bytes the inflater left behind so the
// outer chunk loop lands on the next chunk boundary.
func (d *decoder) drainIDAT() error {
	for d.idatStarted {
		if _, err := d.br.Discard(int(d.idatLen)); err != nil {
			return raster.WrapIO(codecName, "draining pixel data", err)
		}
		d.idatLen = 0
		if _, err := d.br.Discard(4); err != nil {
			return raster.WrapIO(codecName, "reading IDAT checksum", err)
		}
		var hdr [8]byte
		if _, err := io.ReadFull(d.br, hdr[:]); err != nil {
			return raster.WrapIO(codecName, "reading chunk header", err)
		}
		length, typ := binary.BigEndian.Uint32(hdr[:4]), string(hdr[4:8])
		if typ != "IDAT" {
			d.pending, d.pendingLen, d.pendingType = true, length, typ
			d.idatStarted = false
			return nil
		}
		d.idatLen = length
	}
	return nil
}

func channels(colorType uint8) int {
	switch colorType {
	case ctRGB:
		return 3
	case ctGrayAlpha:
		return 2
	case ctRGBAlpha:
		return 4
	}
	return 1
}

func (d *decoder) decodePixels() (raster.Image, error) {
	win, err := d.opts.Window(d.width, d.height)
	if err != nil {
		return nil, err
	}
	img, err := d.newImage(win)
	if err != nil {
		return nil, err
	}

	zr, err := zlib.NewReader(&idatStream{d: d})
	if err != nil {
		return nil, raster.Structuref(codecName, "bad zlib stream: %v", err)
	}
	defer zr.Close()

	passes := []pass{{0, 0, 1, 1}}
	if d.interlaced {
		passes = adam7[:]
	}

	bitsPerPixel := d.depth * channels(d.colorType)
	bpp := bitsPerPixel / 8
	if bpp < 1 {
		bpp = 1
	}

	total := 0
	for _, p := range passes {
		_, ph := p.size(d.width, d.height)
		total += ph
	}

	done := 0
	var ftype [1]byte
	for _, p := range passes {
		pw, ph := p.size(d.width, d.height)
		if pw == 0 || ph == 0 {
			// Nothing stored for this pass, but its scanline share is
			// still reported.
			if ph > 0 {
				done += ph
				d.opts.Step(done, total)
			}
			continue
		}
		rowBytes := (pw*bitsPerPixel + 7) / 8
		cur := make([]byte, rowBytes)
		prev := make([]byte, rowBytes)
		for r := 0; r < ph; r++ {
			if d.opts.Stopped() {
				return img, raster.ErrAborted
			}
			y := p.y0 + r*p.dy
			if _, err := io.ReadFull(zr, ftype[:]); err != nil {
				return nil, &raster.StructureError{Codec: codecName, Msg: "short pixel data", Row: y, Col: 0, Err: err}
			}
			if _, err := io.ReadFull(zr, cur); err != nil {
				return nil, &raster.StructureError{Codec: codecName, Msg: "short pixel data", Row: y, Col: 0, Err: err}
			}
			if !unfilter(ftype[0], cur, prev, bpp) {
				return nil, raster.StructureAt(codecName, y, 0, "unknown filter type %d", ftype[0])
			}
			d.storeRow(img, cur, p, pw, y, win)
			cur, prev = prev, cur
			done++
			d.opts.Step(done, total)
		}
	}

	// The stream must end exactly here.
	var tail [1]byte
	if n, _ := zr.Read(tail[:]); n != 0 {
		return nil, raster.Structuref(codecName, "trailing bytes after pixel data")
	}
	return img, nil
}

func (d *decoder) newImage(win raster.Bounds) (raster.Image, error) {
	w, h := win.Width(), win.Height()
	switch d.colorType {
	case ctGray, ctGrayAlpha:
		switch {
		case d.depth == 1:
			return raster.NewBilevel(w, h), nil
		case d.depth == 16:
			return raster.NewGray16(w, h), nil
		}
		return raster.NewGray8(w, h), nil
	case ctIndexed:
		return raster.NewIndexed8(w, h, d.pal), nil
	case ctRGB, ctRGBAlpha:
		if d.depth == 16 {
			return raster.NewRGB48(w, h), nil
		}
		return raster.NewRGB24(w, h), nil
	}
	return nil, raster.Unsupportedf(codecName, "color type %d", d.colorType)
}

// bitSample extracts the i-th sub-byte sample from a packed row.
func bitSample(row []byte, i, depth int) uint8 {
	perByte := 8 / depth
	shift := uint((perByte - 1 - i%perByte) * depth)
	return row[i/perByte] >> shift & uint8(1<<depth-1)
}

// storeRow copies one reconstructed pass row into the output, dropping
// samples outside the decode window and any alpha channel.
func (d *decoder) storeRow(img raster.Image, row []byte, p pass, pw, y int, win raster.Bounds) {
	if !win.ContainsRow(y) {
		return
	}
	oy := y - win.Y1
	nc := channels(d.colorType)
	for i := 0; i < pw; i++ {
		x := p.x0 + i*p.dx
		if x < win.X1 || x > win.X2 {
			continue
		}
		ox := x - win.X1
		switch im := img.(type) {
		case *raster.Bilevel:
			im.Set(ox, oy, bitSample(row, i, 1))
		case *raster.Gray8:
			switch d.depth {
			case 2:
				im.Set(ox, oy, bitSample(row, i, 2)*85)
			case 4:
				im.Set(ox, oy, bitSample(row, i, 4)*17)
			default:
				im.Set(ox, oy, row[i*nc])
			}
		case *raster.Gray16:
			im.Set(ox, oy, binary.BigEndian.Uint16(row[i*nc*2:]))
		case *raster.Indexed8:
			if d.depth < 8 {
				im.Set(ox, oy, bitSample(row, i, d.depth))
			} else {
				im.Set(ox, oy, row[i])
			}
		case *raster.RGB24:
			o := i * nc
			im.Set(ox, oy, row[o], row[o+1], row[o+2])
		case *raster.RGB48:
			o := i * nc * 2
			im.Set(ox, oy,
				binary.BigEndian.Uint16(row[o:]),
				binary.BigEndian.Uint16(row[o+2:]),
				binary.BigEndian.Uint16(row[o+4:]))
		}
	}
}
