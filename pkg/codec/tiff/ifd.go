package tiff

import (
	"encoding/binary"
	"io"

	"github.com/jpfielding/raster.go/pkg/raster"
)

// Tag ids.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPredictor       = 317
	tagColorMap        = 320
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
)

// Field types and their byte sizes.
var typeSizes = map[uint16]int{
	1: 1, // BYTE
	2: 1, // ASCII
	3: 2, // SHORT
	4: 4, // LONG
	5: 8, // RATIONAL
}

// Photometric interpretations.
const (
	pmWhiteIsZero = 0
	pmBlackIsZero = 1
	pmRGB         = 2
	pmPalette     = 3
	pmCMYK        = 5
	pmLogL        = 32844
	pmLogLuv      = 32845
)

// Compression ids.
const (
	cNone       = 1
	cFax        = 2 // CCITT Modified Huffman
	cLZW        = 5
	cDeflate    = 8
	cPackBits   = 32773
	cDeflateOld = 32946
	cSGILogRLE  = 34676
	cSGILog24   = 34677
)

// Planar configurations.
const (
	planarContiguous = 1
	planarSeparate   = 2
)

// Layout classifies how decoded block bytes map to pixels.
type Layout int

const (
	LayoutBilevelPacked Layout = iota
	LayoutBilevelByte          // one byte per pixel, produced by the fax decoder
	LayoutGray4
	LayoutGray8
	LayoutGray16
	LayoutPalette4
	LayoutPalette8
	LayoutRGB24
	LayoutRGB48
	LayoutCMYK32
	LayoutCMYK32Planar // one channel per block
	LayoutLogLuv32
	LayoutLogLuv24
	LayoutLogL
)

// rowBytes reports the decoded bytes per row for a block w pixels wide.
func (l Layout) rowBytes(w int) int {
	switch l {
	case LayoutBilevelPacked:
		return (w + 7) / 8
	case LayoutGray4, LayoutPalette4:
		return (w + 1) / 2
	case LayoutGray16:
		return 2 * w
	case LayoutRGB24:
		return 3 * w
	case LayoutRGB48:
		return 6 * w
	case LayoutCMYK32, LayoutLogLuv32:
		return 4 * w
	case LayoutLogLuv24:
		return 3 * w
	case LayoutLogL:
		return 2 * w
	}
	return w
}

// ifd is one parsed Image File Directory with its tags resolved into the
// fields the pixel loop needs.
type ifd struct {
	byteOrder binary.ByteOrder
	tags      map[uint16][]uint32

	width, height int
	bits          int
	spp           int
	photometric   int
	compression   int
	planar        int
	predictor     int
	layout        Layout
	pal           *raster.Palette

	// block grid; strips are tiles as wide as the image
	tiled             bool
	blockW, blockH    int
	acrossX, acrossY  int
	offsets, byteCnts []uint32
}

// readIFD parses the directory at offset, resolving out-of-line values
// through seeks.
func readIFD(r io.ReadSeeker, order binary.ByteOrder, offset int64) (*ifd, int64, error) {
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, raster.WrapIO(codecName, "seeking to directory", err)
	}
	var count uint16
	if err := binary.Read(r, order, &count); err != nil {
		return nil, 0, raster.WrapIO(codecName, "reading directory size", err)
	}
	entries := make([]byte, int(count)*12)
	if _, err := io.ReadFull(r, entries); err != nil {
		return nil, 0, raster.WrapIO(codecName, "reading directory entries", err)
	}
	var next uint32
	if err := binary.Read(r, order, &next); err != nil {
		return nil, 0, raster.WrapIO(codecName, "reading next directory offset", err)
	}

	d := &ifd{byteOrder: order, tags: make(map[uint16][]uint32, count)}
	for i := 0; i < int(count); i++ {
		e := entries[i*12 : i*12+12]
		id := order.Uint16(e[0:])
		typ := order.Uint16(e[2:])
		n := order.Uint32(e[4:])
		size, ok := typeSizes[typ]
		if !ok {
			continue // unknown field type, skip the tag
		}
		total := size * int(n)
		var raw []byte
		if total <= 4 {
			// Inline: values are left-justified in the offset field, so
			// reading at its start with the file byte order is correct
			// under both Intel and Motorola headers.
			raw = e[8 : 8+total]
		} else {
			raw = make([]byte, total)
			if _, err := r.Seek(int64(order.Uint32(e[8:])), io.SeekStart); err != nil {
				return nil, 0, raster.WrapIO(codecName, "seeking to tag value", err)
			}
			if _, err := io.ReadFull(r, raw); err != nil {
				return nil, 0, raster.WrapIO(codecName, "reading tag value", err)
			}
		}
		vals := make([]uint32, n)
		for j := range vals {
			switch typ {
			case 1, 2:
				vals[j] = uint32(raw[j])
			case 3:
				vals[j] = uint32(order.Uint16(raw[j*2:]))
			case 4:
				vals[j] = order.Uint32(raw[j*4:])
			case 5:
				vals[j] = order.Uint32(raw[j*8:]) // numerator only
			}
		}
		d.tags[id] = vals
	}
	return d, int64(next), nil
}

func (d *ifd) first(tag uint16) uint32 {
	if v := d.tags[tag]; len(v) > 0 {
		return v[0]
	}
	return 0
}

func (d *ifd) firstOr(tag uint16, def uint32) uint32 {
	if v := d.tags[tag]; len(v) > 0 {
		return v[0]
	}
	return def
}

// initFromTags resolves the raw tag soup into typed fields, classifies the
// pixel layout and derives the block grid.
func (d *ifd) initFromTags() error {
	d.width = int(d.first(tagImageWidth))
	d.height = int(d.first(tagImageLength))
	if d.width < 1 || d.height < 1 {
		return raster.Structuref(codecName, "invalid geometry %dx%d", d.width, d.height)
	}
	d.spp = int(d.firstOr(tagSamplesPerPixel, 1))
	d.bits = int(d.firstOr(tagBitsPerSample, 1))
	if bps := d.tags[tagBitsPerSample]; len(bps) > 1 {
		for _, b := range bps[1:] {
			if int(b) != d.bits {
				return raster.Unsupportedf(codecName, "mixed bits per sample")
			}
		}
	}
	d.photometric = int(d.first(tagPhotometric))
	d.compression = int(d.firstOr(tagCompression, cNone))
	d.planar = int(d.firstOr(tagPlanarConfig, planarContiguous))
	d.predictor = int(d.firstOr(tagPredictor, 1))

	if err := d.classify(); err != nil {
		return err
	}
	if d.layout == LayoutPalette4 || d.layout == LayoutPalette8 {
		cm := d.tags[tagColorMap]
		n := 1 << d.bits
		if len(cm) != 3*n {
			return raster.Structuref(codecName, "color map with %d entries, want %d", len(cm), 3*n)
		}
		d.pal = raster.NewPalette(n)
		for i := 0; i < n; i++ {
			// 16-bit color map samples, high byte kept.
			d.pal.SetRGB(i, uint8(cm[i]>>8), uint8(cm[n+i]>>8), uint8(cm[2*n+i]>>8))
		}
	}

	if d.predictor == 2 && d.bits != 8 {
		return raster.Unsupportedf(codecName, "predictor 2 at %d bits", d.bits)
	}
	if d.predictor > 2 {
		return raster.Unsupportedf(codecName, "predictor %d", d.predictor)
	}
	if d.planar == planarSeparate && d.layout != LayoutCMYK32Planar {
		return raster.Unsupportedf(codecName, "planar configuration for photometric %d", d.photometric)
	}

	return d.initGrid()
}

func (d *ifd) classify() error {
	switch d.photometric {
	case pmWhiteIsZero, pmBlackIsZero:
		if d.spp != 1 {
			return raster.Unsupportedf(codecName, "%d samples per gray pixel", d.spp)
		}
		switch d.bits {
		case 1:
			if d.compression == cFax {
				d.layout = LayoutBilevelByte
			} else {
				d.layout = LayoutBilevelPacked
			}
		case 4:
			d.layout = LayoutGray4
		case 8:
			d.layout = LayoutGray8
		case 16:
			d.layout = LayoutGray16
		default:
			return raster.Unsupportedf(codecName, "%d-bit grayscale", d.bits)
		}
	case pmPalette:
		switch d.bits {
		case 4:
			d.layout = LayoutPalette4
		case 8:
			d.layout = LayoutPalette8
		default:
			return raster.Unsupportedf(codecName, "%d-bit palette image", d.bits)
		}
	case pmRGB:
		if d.spp != 3 {
			return raster.Unsupportedf(codecName, "%d samples per RGB pixel", d.spp)
		}
		switch d.bits {
		case 8:
			d.layout = LayoutRGB24
		case 16:
			d.layout = LayoutRGB48
		default:
			return raster.Unsupportedf(codecName, "%d-bit RGB", d.bits)
		}
	case pmCMYK:
		if d.spp != 4 || d.bits != 8 {
			return raster.Unsupportedf(codecName, "CMYK with %d samples at %d bits", d.spp, d.bits)
		}
		if d.planar == planarSeparate {
			d.layout = LayoutCMYK32Planar
		} else {
			d.layout = LayoutCMYK32
		}
	case pmLogL:
		if d.compression != cSGILogRLE {
			return raster.Unsupportedf(codecName, "LogL with compression %d", d.compression)
		}
		d.layout = LayoutLogL
	case pmLogLuv:
		switch d.compression {
		case cSGILogRLE:
			d.layout = LayoutLogLuv32
		case cSGILog24:
			d.layout = LayoutLogLuv24
		default:
			return raster.Unsupportedf(codecName, "LogLuv with compression %d", d.compression)
		}
	default:
		return raster.Unsupportedf(codecName, "photometric interpretation %d", d.photometric)
	}

	if d.compression == cFax && d.layout != LayoutBilevelByte {
		return raster.Unsupportedf(codecName, "fax compression on non-bilevel data")
	}
	switch d.compression {
	case cSGILogRLE, cSGILog24:
		switch d.layout {
		case LayoutLogL, LayoutLogLuv32, LayoutLogLuv24:
		default:
			return raster.Unsupportedf(codecName, "SGI log compression on photometric %d", d.photometric)
		}
	}
	return nil
}

// initGrid derives the tile grid, modeling strips as image-wide tiles.
func (d *ifd) initGrid() error {
	if tw := int(d.first(tagTileWidth)); tw != 0 {
		d.tiled = true
		d.blockW = tw
		d.blockH = int(d.first(tagTileLength))
		if d.blockH < 1 {
			return raster.Structuref(codecName, "tile length %d", d.blockH)
		}
		d.offsets = d.tags[tagTileOffsets]
		d.byteCnts = d.tags[tagTileByteCounts]
	} else {
		d.blockW = d.width
		d.blockH = int(d.firstOr(tagRowsPerStrip, uint32(d.height)))
		if d.blockH < 1 {
			d.blockH = d.height
		}
		d.offsets = d.tags[tagStripOffsets]
		d.byteCnts = d.tags[tagStripByteCounts]
	}
	d.acrossX = (d.width + d.blockW - 1) / d.blockW
	d.acrossY = (d.height + d.blockH - 1) / d.blockH

	n := d.acrossX * d.acrossY
	if d.layout == LayoutCMYK32Planar {
		n *= 4
	}
	if len(d.offsets) < n {
		return raster.Structuref(codecName, "%d block offsets for %d blocks", len(d.offsets), n)
	}
	if len(d.byteCnts) < n {
		return raster.Structuref(codecName, "%d block byte counts for %d blocks", len(d.byteCnts), n)
	}
	return nil
}

// blockBounds reports the pixel rectangle of block (i,j) and its stored
// size. Tiles keep their full padded size; the bottom and right strips are
// clamped to the image.
func (d *ifd) blockBounds(i, j int) (x0, y0, bw, bh int) {
	x0, y0 = i*d.blockW, j*d.blockH
	bw, bh = d.blockW, d.blockH
	if !d.tiled {
		if y0+bh > d.height {
			bh = d.height - y0
		}
		if x0+bw > d.width {
			bw = d.width - x0
		}
	}
	return x0, y0, bw, bh
}
