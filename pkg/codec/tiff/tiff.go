// Package tiff reads Tagged Image File Format images. Both byte orders
// are handled, directories are walked for multi-image files, and tiles
// and strips share one path: a strip is a tile as wide as the image.
// Decompression is dispatched through a process-wide registry keyed by
// the compression tag, covering uncompressed data, PackBits,
// Modified-Huffman fax, LZW, Deflate under both its ids, and the SGI log
// encodings for LogL and LogLuv data. CMYK and LogLuv pixels are
// converted to RGB while storing.
package tiff

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/jpfielding/raster.go/pkg/raster"
)

const codecName = "tiff"

const tiffMagic = 42

// Probe reports whether b starts with a TIFF header in either byte order.
func Probe(b []byte) bool {
	if len(b) < 4 {
		return false
	}
	switch {
	case b[0] == 'I' && b[1] == 'I':
		return binary.LittleEndian.Uint16(b[2:]) == tiffMagic
	case b[0] == 'M' && b[1] == 'M':
		return binary.BigEndian.Uint16(b[2:]) == tiffMagic
	}
	return false
}

// Extensions lists the conventional file extensions.
func Extensions() []string { return []string{"tiff", "tif"} }

// SuggestedExtension returns the conventional extension.
func SuggestedExtension(raster.Image) string { return "tiff" }

// Decode reads the first image in the file.
func Decode(r io.Reader, opts *raster.DecodeOptions) (raster.Image, error) {
	return DecodeDirectory(r, 0, opts)
}

// DecodeDirectory reads the dir-th image of a multi-image file. Tile and
// strip access needs seeking; a plain reader is buffered in memory first.
func DecodeDirectory(r io.Reader, dir int, opts *raster.DecodeOptions) (raster.Image, error) {
	if r == nil {
		return nil, &raster.MissingParameterError{Param: "input stream"}
	}
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		all, err := io.ReadAll(r)
		if err != nil {
			return nil, raster.WrapIO(codecName, "buffering input", err)
		}
		rs = bytes.NewReader(all)
	}

	var hdr [8]byte
	if _, err := io.ReadFull(rs, hdr[:]); err != nil {
		return nil, raster.Formatf(codecName, "short header: %v", err)
	}
	var order binary.ByteOrder
	switch {
	case hdr[0] == 'I' && hdr[1] == 'I' && binary.LittleEndian.Uint16(hdr[2:]) == tiffMagic:
		order = binary.LittleEndian
	case hdr[0] == 'M' && hdr[1] == 'M' && binary.BigEndian.Uint16(hdr[2:]) == tiffMagic:
		order = binary.BigEndian
	default:
		return nil, raster.Formatf(codecName, "bad byte-order marker")
	}

	var (
		d    *ifd
		err  error
		next = int64(order.Uint32(hdr[4:]))
	)
	for i := 0; ; i++ {
		if next == 0 {
			return nil, raster.Structuref(codecName, "file has %d directories, want %d", i, dir+1)
		}
		d, next, err = readIFD(rs, order, next)
		if err != nil {
			return nil, err
		}
		if i == dir {
			break
		}
	}
	if err := d.initFromTags(); err != nil {
		return nil, err
	}

	dec, found := lookupDecompressor(d.compression)
	if !found {
		return nil, raster.Unsupportedf(codecName, "compression type %d", d.compression)
	}

	win, err := opts.Window(d.width, d.height)
	if err != nil {
		return nil, err
	}
	img := d.newImage(win)

	if d.layout == LayoutCMYK32Planar {
		return img, d.decodePlanar(rs, dec, img, win, opts)
	}

	total := d.acrossX * d.acrossY
	for j := 0; j < d.acrossY; j++ {
		for i := 0; i < d.acrossX; i++ {
			if opts.Stopped() {
				return img, raster.ErrAborted
			}
			idx := j*d.acrossX + i
			x0, y0, bw, bh := d.blockBounds(i, j)
			if y0 > win.Y2 || y0+bh <= win.Y1 || x0 > win.X2 || x0+bw <= win.X1 {
				opts.Step(idx+1, total)
				continue
			}
			raw, err := d.readBlock(rs, dec, idx, bw, bh)
			if err != nil {
				return nil, err
			}
			d.putBlock(img, raw, x0, y0, bw, bh, win)
			opts.Step(idx+1, total)
		}
	}
	return img, nil
}

func (d *ifd) newImage(win raster.Bounds) raster.Image {
	w, h := win.Width(), win.Height()
	switch d.layout {
	case LayoutBilevelPacked, LayoutBilevelByte:
		return raster.NewBilevel(w, h)
	case LayoutGray4, LayoutGray8, LayoutLogL:
		return raster.NewGray8(w, h)
	case LayoutGray16:
		return raster.NewGray16(w, h)
	case LayoutPalette4, LayoutPalette8:
		return raster.NewIndexed8(w, h, d.pal)
	case LayoutRGB48:
		return raster.NewRGB48(w, h)
	}
	return raster.NewRGB24(w, h)
}

// readBlock seeks to one tile or strip and decompresses it, applying the
// horizontal-differencing predictor when the file asks for it.
func (d *ifd) readBlock(rs io.ReadSeeker, dec Decompressor, idx, bw, bh int) ([]byte, error) {
	if _, err := rs.Seek(int64(d.offsets[idx]), io.SeekStart); err != nil {
		return nil, raster.WrapIO(codecName, "seeking to block", err)
	}
	blk := Block{Width: bw, Height: bh, RowBytes: d.layout.rowBytes(bw)}
	raw, err := dec(io.LimitReader(rs, int64(d.byteCnts[idx])), blk)
	if err != nil {
		return nil, err
	}
	if len(raw) != bh*blk.RowBytes {
		return nil, raster.Structuref(codecName, "block %d decoded to %d bytes, want %d", idx, len(raw), bh*blk.RowBytes)
	}
	if d.predictor == 2 {
		bpp := d.spp
		for y := 0; y < bh; y++ {
			row := raw[y*blk.RowBytes : (y+1)*blk.RowBytes]
			for i := bpp; i < len(row); i++ {
				row[i] += row[i-bpp]
			}
		}
	}
	return raw, nil
}

// putBlock stores one decoded block, clipping to the image and the decode
// window and converting CMYK and log-encoded pixels to the output space.
func (d *ifd) putBlock(img raster.Image, raw []byte, x0, y0, bw, bh int, win raster.Bounds) {
	rowBytes := d.layout.rowBytes(bw)
	wiz := d.photometric == pmWhiteIsZero
	for y := 0; y < bh; y++ {
		gy := y0 + y
		if gy >= d.height || !win.ContainsRow(gy) {
			continue
		}
		row := raw[y*rowBytes : (y+1)*rowBytes]
		oy := gy - win.Y1
		for x := 0; x < bw; x++ {
			gx := x0 + x
			if gx >= d.width || gx < win.X1 || gx > win.X2 {
				continue
			}
			ox := gx - win.X1
			switch d.layout {
			case LayoutBilevelPacked:
				bit := row[x/8] >> uint(7-x%8) & 1
				if wiz {
					bit = 1 - bit
				}
				img.(*raster.Bilevel).Set(ox, oy, bit)
			case LayoutBilevelByte:
				// The fax decoder emits 1=white, the sense of a
				// white-is-zero file.
				v := row[x]
				if !wiz {
					v = 1 - v
				}
				img.(*raster.Bilevel).Set(ox, oy, v)
			case LayoutGray4:
				v := nibble(row, x)
				if wiz {
					v = 15 - v
				}
				img.(*raster.Gray8).Set(ox, oy, v*17)
			case LayoutGray8:
				v := row[x]
				if wiz {
					v = 255 - v
				}
				img.(*raster.Gray8).Set(ox, oy, v)
			case LayoutGray16:
				v := d.byteOrder.Uint16(row[x*2:])
				if wiz {
					v = 65535 - v
				}
				img.(*raster.Gray16).Set(ox, oy, v)
			case LayoutPalette4:
				img.(*raster.Indexed8).Set(ox, oy, nibble(row, x))
			case LayoutPalette8:
				img.(*raster.Indexed8).Set(ox, oy, row[x])
			case LayoutRGB24:
				o := x * 3
				img.(*raster.RGB24).Set(ox, oy, row[o], row[o+1], row[o+2])
			case LayoutRGB48:
				o := x * 6
				img.(*raster.RGB48).Set(ox, oy,
					d.byteOrder.Uint16(row[o:]),
					d.byteOrder.Uint16(row[o+2:]),
					d.byteOrder.Uint16(row[o+4:]))
			case LayoutCMYK32:
				o := x * 4
				r8, g8, b8 := cmykToRGB(row[o], row[o+1], row[o+2], row[o+3])
				img.(*raster.RGB24).Set(ox, oy, r8, g8, b8)
			case LayoutLogLuv32:
				o := x * 4
				r8, g8, b8 := xyzToRGB8(logLuv32ToXYZ(row[o], row[o+1], row[o+2], row[o+3]))
				img.(*raster.RGB24).Set(ox, oy, r8, g8, b8)
			case LayoutLogLuv24:
				o := x * 3
				r8, g8, b8 := xyzToRGB8(logLuv24ToXYZ(row[o], row[o+1], row[o+2]))
				img.(*raster.RGB24).Set(ox, oy, r8, g8, b8)
			case LayoutLogL:
				y16 := logLtoY(uint16(row[x*2])<<8 | uint16(row[x*2+1]))
				img.(*raster.Gray8).Set(ox, oy, srgb8(y16))
			}
		}
	}
}

func nibble(row []byte, x int) uint8 {
	if x%2 == 0 {
		return row[x/2] >> 4
	}
	return row[x/2] & 0x0f
}

func cmykToRGB(c, m, y, k uint8) (r, g, b uint8) {
	kc := 255 - int(k)
	return uint8((255 - int(c)) * kc / 255),
		uint8((255 - int(m)) * kc / 255),
		uint8((255 - int(y)) * kc / 255)
}

// decodePlanar handles separated CMYK: each channel's strips are stored
// one after another, so the four planes are gathered first and converted
// together.
func (d *ifd) decodePlanar(rs io.ReadSeeker, dec Decompressor, img raster.Image, win raster.Bounds, opts *raster.DecodeOptions) error {
	perChannel := d.acrossX * d.acrossY
	total := 4 * perChannel
	planes := make([][]byte, 4)
	for c := range planes {
		planes[c] = make([]byte, d.width*d.height)
	}

	for c := 0; c < 4; c++ {
		for j := 0; j < d.acrossY; j++ {
			for i := 0; i < d.acrossX; i++ {
				if opts.Stopped() {
					return raster.ErrAborted
				}
				idx := c*perChannel + j*d.acrossX + i
				x0, y0, bw, bh := d.blockBounds(i, j)
				if _, err := rs.Seek(int64(d.offsets[idx]), io.SeekStart); err != nil {
					return raster.WrapIO(codecName, "seeking to block", err)
				}
				blk := Block{Width: bw, Height: bh, RowBytes: bw}
				raw, err := dec(io.LimitReader(rs, int64(d.byteCnts[idx])), blk)
				if err != nil {
					return err
				}
				for y := 0; y < bh; y++ {
					gy := y0 + y
					if gy >= d.height {
						break
					}
					for x := 0; x < bw && x0+x < d.width; x++ {
						planes[c][gy*d.width+x0+x] = raw[y*bw+x]
					}
				}
				opts.Step(idx+1, total)
			}
		}
	}

	out := img.(*raster.RGB24)
	for gy := win.Y1; gy <= win.Y2; gy++ {
		for gx := win.X1; gx <= win.X2; gx++ {
			o := gy*d.width + gx
			r8, g8, b8 := cmykToRGB(planes[0][o], planes[1][o], planes[2][o], planes[3][o])
			out.Set(gx-win.X1, gy-win.Y1, r8, g8, b8)
		}
	}
	return nil
}
