// Package jpeg parses JFIF marker segments far enough to report the frame
// geometry and the Huffman and quantization tables of a baseline stream.
// Entropy decoding is not implemented, so Decode always fails after the
// scan header with an unsupported-format error.
package jpeg

import (
	"bufio"
	"io"

	"github.com/jpfielding/raster.go/pkg/raster"
)

const codecName = "jpeg"

// Marker codes, without the leading 0xff.
const (
	mSOI   = 0xd8
	mEOI   = 0xd9
	mSOF0  = 0xc0
	mSOF1  = 0xc1
	mSOF2  = 0xc2
	mDHT   = 0xc4
	mDQT   = 0xdb
	mSOS   = 0xda
	mDRI   = 0xdd
	mAPP0  = 0xe0
	mAPP15 = 0xef
	mCOM   = 0xfe
	mTEM   = 0x01
	mRST0  = 0xd0
	mRST7  = 0xd7
)

// Probe reports whether b starts with a JPEG SOI marker.
func Probe(b []byte) bool {
	return len(b) >= 3 && b[0] == 0xff && b[1] == mSOI && b[2] == 0xff
}

// Extensions lists the file extensions associated with the format.
func Extensions() []string { return []string{"jpg", "jpeg"} }

// HuffmanTable is one DHT entry. Values holds the symbols for all code
// lengths concatenated; Lengths[i] of them have length i+1 bits.
type HuffmanTable struct {
	Class   int // 0 DC, 1 AC
	ID      int
	Lengths [16]int
	Values  []uint8
}

// QuantTable is one DQT entry in zig-zag order.
type QuantTable struct {
	Precision int // bits per coefficient, 8 or 16
	ID        int
	Coeff     [64]uint16
}

// Component is one frame component from SOF0.
type Component struct {
	ID      int
	HSamp   int
	VSamp   int
	QuantID int
}

// ScanComponent pairs a frame component with its entropy table selectors.
type ScanComponent struct {
	ID      int
	DCTable int
	ACTable int
}

// Header holds everything parsed before entropy-coded data begins.
type Header struct {
	Precision       int
	Width, Height   int
	Components      []Component
	Huffman         []HuffmanTable
	Quant           []QuantTable
	Scan            []ScanComponent
	RestartInterval int
}

// Decode parses the stream headers and then reports that entropy decoding
// is not implemented. The options are accepted for interface symmetry but
// never consulted, since no pixel data is ever produced.
func Decode(r io.Reader, _ *raster.DecodeOptions) (raster.Image, error) {
	if _, err := DecodeHeader(r); err != nil {
		return nil, err
	}
	return nil, raster.Unsupportedf(codecName, "entropy-coded image data")
}

// DecodeHeader walks the marker segments up to and including SOS and
// returns the parsed tables and frame parameters.
func DecodeHeader(r io.Reader) (*Header, error) {
	if r == nil {
		return nil, &raster.MissingParameterError{Param: "input stream"}
	}
	br := bufio.NewReader(r)

	var soi [2]byte
	if _, err := io.ReadFull(br, soi[:]); err != nil {
		return nil, raster.WrapIO(codecName, "reading signature", err)
	}
	if soi[0] != 0xff || soi[1] != mSOI {
		return nil, raster.Formatf(codecName, "no SOI marker")
	}

	h := &Header{}
	for {
		marker, err := nextMarker(br)
		if err != nil {
			return nil, err
		}
		switch {
		case marker == mTEM || (marker >= mRST0 && marker <= mRST7):
			// standalone, no length field
			continue
		case marker == mEOI:
			return nil, raster.Structuref(codecName, "end of image before scan header")
		}

		seg, err := segment(br, marker)
		if err != nil {
			return nil, err
		}
		switch {
		case marker == mDHT:
			if err := h.parseDHT(seg); err != nil {
				return nil, err
			}
		case marker == mDQT:
			if err := h.parseDQT(seg); err != nil {
				return nil, err
			}
		case marker == mSOF0:
			if err := h.parseSOF0(seg); err != nil {
				return nil, err
			}
		case marker == mSOF1 || marker == mSOF2 || (marker >= 0xc3 && marker <= 0xcf && marker != mDHT):
			return nil, raster.Unsupportedf(codecName, "frame type 0x%02x, only baseline SOF0 is handled", marker)
		case marker == mDRI:
			if len(seg) != 2 {
				return nil, raster.Structuref(codecName, "restart interval segment of %d bytes", len(seg))
			}
			h.RestartInterval = int(seg[0])<<8 | int(seg[1])
		case marker == mSOS:
			if err := h.parseSOS(seg); err != nil {
				return nil, err
			}
			return h, nil
		case marker >= mAPP0 && marker <= mAPP15, marker == mCOM:
			// metadata, skipped
		default:
			return nil, raster.Structuref(codecName, "unexpected marker 0x%02x", marker)
		}
	}
}

// nextMarker consumes any fill bytes and returns the next marker code.
func nextMarker(br *bufio.Reader) (byte, error) {
	b, err := br.ReadByte()
	if err != nil {
		return 0, raster.WrapIO(codecName, "reading marker", err)
	}
	if b != 0xff {
		return 0, raster.Structuref(codecName, "expected marker, got byte 0x%02x", b)
	}
	for {
		b, err = br.ReadByte()
		if err != nil {
			return 0, raster.WrapIO(codecName, "reading marker", err)
		}
		if b != 0xff {
			return b, nil
		}
	}
}

// segment reads one length-prefixed marker payload. The length counts its
// own two bytes.
func segment(br *bufio.Reader, marker byte) ([]byte, error) {
	var lb [2]byte
	if _, err := io.ReadFull(br, lb[:]); err != nil {
		return nil, raster.WrapIO(codecName, "reading segment length", err)
	}
	n := int(lb[0])<<8 | int(lb[1])
	if n < 2 {
		return nil, raster.Structuref(codecName, "marker 0x%02x with length %d", marker, n)
	}
	seg := make([]byte, n-2)
	if _, err := io.ReadFull(br, seg); err != nil {
		return nil, raster.WrapIO(codecName, "reading segment body", err)
	}
	return seg, nil
}

func (h *Header) parseDHT(seg []byte) error {
	for len(seg) > 0 {
		if len(seg) < 17 {
			return raster.Structuref(codecName, "truncated Huffman table header")
		}
		t := HuffmanTable{Class: int(seg[0] >> 4), ID: int(seg[0] & 0x0f)}
		if t.Class > 1 {
			return raster.Structuref(codecName, "Huffman table class %d", t.Class)
		}
		if t.ID > 3 {
			return raster.Structuref(codecName, "Huffman table id %d", t.ID)
		}
		total := 0
		for i := 0; i < 16; i++ {
			t.Lengths[i] = int(seg[1+i])
			total += t.Lengths[i]
		}
		if total == 0 || total > 256 {
			return raster.Structuref(codecName, "Huffman table with %d codes", total)
		}
		if len(seg) < 17+total {
			return raster.Structuref(codecName, "Huffman table wants %d symbols, segment has %d bytes", total, len(seg)-17)
		}
		t.Values = append([]uint8(nil), seg[17:17+total]...)
		h.Huffman = append(h.Huffman, t)
		seg = seg[17+total:]
	}
	return nil
}

func (h *Header) parseDQT(seg []byte) error {
	for len(seg) > 0 {
		t := QuantTable{Precision: 8, ID: int(seg[0] & 0x0f)}
		if t.ID > 3 {
			return raster.Structuref(codecName, "quantization table id %d", t.ID)
		}
		size := 1 + 64
		switch seg[0] >> 4 {
		case 0:
		case 1:
			t.Precision = 16
			size = 1 + 128
		default:
			return raster.Structuref(codecName, "quantization precision code %d", seg[0]>>4)
		}
		if len(seg) < size {
			return raster.Structuref(codecName, "truncated quantization table")
		}
		for i := 0; i < 64; i++ {
			if t.Precision == 16 {
				t.Coeff[i] = uint16(seg[1+2*i])<<8 | uint16(seg[2+2*i])
			} else {
				t.Coeff[i] = uint16(seg[1+i])
			}
		}
		h.Quant = append(h.Quant, t)
		seg = seg[size:]
	}
	return nil
}

func (h *Header) parseSOF0(seg []byte) error {
	if h.Width != 0 {
		return raster.Structuref(codecName, "multiple frame headers")
	}
	if len(seg) < 6 {
		return raster.Structuref(codecName, "frame header of %d bytes", len(seg))
	}
	h.Precision = int(seg[0])
	if h.Precision != 8 {
		return raster.Unsupportedf(codecName, "%d-bit sample precision", h.Precision)
	}
	h.Height = int(seg[1])<<8 | int(seg[2])
	h.Width = int(seg[3])<<8 | int(seg[4])
	if h.Width < 1 || h.Height < 1 {
		return raster.Structuref(codecName, "invalid geometry %dx%d", h.Width, h.Height)
	}
	n := int(seg[5])
	if n != 1 {
		return raster.Unsupportedf(codecName, "%d frame components, only single-component grayscale is handled", n)
	}
	if len(seg) < 6+3*n {
		return raster.Structuref(codecName, "frame header short of component specs")
	}
	for i := 0; i < n; i++ {
		o := 6 + 3*i
		h.Components = append(h.Components, Component{
			ID:      int(seg[o]),
			HSamp:   int(seg[o+1] >> 4),
			VSamp:   int(seg[o+1] & 0x0f),
			QuantID: int(seg[o+2]),
		})
	}
	return nil
}

func (h *Header) parseSOS(seg []byte) error {
	if h.Width == 0 {
		return raster.Structuref(codecName, "scan header before frame header")
	}
	if len(seg) < 1 {
		return raster.Structuref(codecName, "empty scan header")
	}
	n := int(seg[0])
	if n < 1 || len(seg) < 1+2*n+3 {
		return raster.Structuref(codecName, "scan header with %d components in %d bytes", n, len(seg))
	}
	if n != len(h.Components) {
		return raster.Structuref(codecName, "scan covers %d of %d components", n, len(h.Components))
	}
	for i := 0; i < n; i++ {
		o := 1 + 2*i
		sc := ScanComponent{
			ID:      int(seg[o]),
			DCTable: int(seg[o+1] >> 4),
			ACTable: int(seg[o+1] & 0x0f),
		}
		if sc.DCTable > 3 || sc.ACTable > 3 {
			return raster.Structuref(codecName, "scan component table selector out of range")
		}
		h.Scan = append(h.Scan, sc)
	}
	return nil
}
