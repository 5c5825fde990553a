package png

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/jpfielding/raster.go/pkg/raster"
)

// Encode writes img as a non-interlaced PNG. Bilevel maps to 1-bit
// grayscale, Gray8/Gray16 to grayscale, Indexed8 to indexed color with a
// PLTE chunk and RGB24/RGB48 to truecolor. Each scanline is filtered with
// the minimum-sum heuristic.
func Encode(w io.Writer, img raster.Image) error {
	if w == nil {
		return &raster.MissingParameterError{Param: "output stream"}
	}
	if img == nil {
		return &raster.MissingParameterError{Param: "image"}
	}

	var colorType uint8
	var depth int
	var pal *raster.Palette
	switch im := img.(type) {
	case *raster.Bilevel:
		colorType, depth = ctGray, 1
	case *raster.Gray8:
		colorType, depth = ctGray, 8
	case *raster.Gray16:
		colorType, depth = ctGray, 16
	case *raster.Indexed8:
		colorType, depth = ctIndexed, 8
		pal = im.Palette
	case *raster.RGB24:
		colorType, depth = ctRGB, 8
	case *raster.RGB48:
		colorType, depth = ctRGB, 16
	default:
		return raster.Unsupportedf(codecName, "encoding %s images", img.Kind())
	}

	if _, err := w.Write(signature); err != nil {
		return raster.WrapIO(codecName, "writing signature", err)
	}

	var ihdr [13]byte
	binary.BigEndian.PutUint32(ihdr[0:], uint32(img.Width()))
	binary.BigEndian.PutUint32(ihdr[4:], uint32(img.Height()))
	ihdr[8] = uint8(depth)
	ihdr[9] = colorType
	if err := writeChunk(w, "IHDR", ihdr[:]); err != nil {
		return err
	}

	if pal != nil {
		plte := make([]byte, pal.Len()*3)
		for i := 0; i < pal.Len(); i++ {
			plte[i*3], plte[i*3+1], plte[i*3+2] = pal.RGB(i)
		}
		if err := writeChunk(w, "PLTE", plte); err != nil {
			return err
		}
	}

	idat, err := deflateRows(img, depth, colorType)
	if err != nil {
		return err
	}
	if err := writeChunk(w, "IDAT", idat); err != nil {
		return err
	}
	return writeChunk(w, "IEND", nil)
}

func writeChunk(w io.Writer, typ string, data []byte) error {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(data)))
	copy(hdr[4:], typ)
	crc := crc32.NewIEEE()
	crc.Write(hdr[4:])
	crc.Write(data)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	for _, b := range [][]byte{hdr[:], data, sum[:]} {
		if _, err := w.Write(b); err != nil {
			return raster.WrapIO(codecName, "writing "+typ+" chunk", err)
		}
	}
	return nil
}

func deflateRows(img raster.Image, depth int, colorType uint8) ([]byte, error) {
	width, height := img.Width(), img.Height()
	bitsPerPixel := depth * channels(colorType)
	rowBytes := (width*bitsPerPixel + 7) / 8
	bpp := bitsPerPixel / 8
	if bpp < 1 {
		bpp = 1
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)

	cur := make([]byte, rowBytes)
	prev := make([]byte, rowBytes)
	filtered := make([]byte, rowBytes)
	scratch := make([]byte, rowBytes)
	for y := 0; y < height; y++ {
		for i := range cur {
			cur[i] = 0
		}
		packPixels(cur, img, y)
		ft := chooseFilter(filtered, cur, prev, scratch, bpp)
		if _, err := zw.Write([]byte{ft}); err != nil {
			return nil, raster.WrapIO(codecName, "compressing pixel data", err)
		}
		if _, err := zw.Write(filtered); err != nil {
			return nil, raster.WrapIO(codecName, "compressing pixel data", err)
		}
		cur, prev = prev, cur
	}
	if err := zw.Close(); err != nil {
		return nil, raster.WrapIO(codecName, "compressing pixel data", err)
	}
	return buf.Bytes(), nil
}

func packPixels(row []byte, img raster.Image, y int) {
	switch im := img.(type) {
	case *raster.Bilevel:
		for x := 0; x < im.W; x++ {
			row[x/8] |= im.At(x, y) << uint(7-x%8)
		}
	case *raster.Gray8:
		copy(row, im.Row(y))
	case *raster.Gray16:
		for x := 0; x < im.W; x++ {
			binary.BigEndian.PutUint16(row[x*2:], im.At(x, y))
		}
	case *raster.Indexed8:
		copy(row, im.Row(y))
	case *raster.RGB24:
		copy(row, im.Row(y))
	case *raster.RGB48:
		for x := 0; x < im.W; x++ {
			r, g, b := im.At(x, y)
			binary.BigEndian.PutUint16(row[x*6:], r)
			binary.BigEndian.PutUint16(row[x*6+2:], g)
			binary.BigEndian.PutUint16(row[x*6+4:], b)
		}
	}
}
