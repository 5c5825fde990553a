package ras

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/jpfielding/raster.go/pkg/raster"
)

// Encode writes img as an uncompressed standard rasterfile. Bilevel, gray,
// indexed and RGB24 images are supported; 16-bit kinds have no rasterfile
// representation.
func Encode(w io.Writer, img raster.Image) error {
	if w == nil {
		return &raster.MissingParameterError{Param: "output stream"}
	}
	if img == nil {
		return &raster.MissingParameterError{Param: "image"}
	}

	var depth, mapType, mapLength uint32
	var pal *raster.Palette
	switch p := img.(type) {
	case *raster.Bilevel:
		depth = 1
	case *raster.Gray8:
		depth = 8
	case *raster.Indexed8:
		if p.Palette == nil {
			return &raster.MissingParameterError{Param: "palette"}
		}
		depth = 8
		pal = p.Palette
		mapType = mapRGB
		mapLength = uint32(3 * pal.Len())
	case *raster.RGB24:
		depth = 24
	default:
		return raster.Unsupportedf(codecName, "image kind %s", img.Kind())
	}

	width, height := img.Width(), img.Height()
	stride := 0
	switch depth {
	case 1:
		stride = rowBytes((width + 7) / 8)
	case 8:
		stride = rowBytes(width)
	case 24:
		stride = rowBytes(width * 3)
	}

	bw := bufio.NewWriter(w)
	h := header{
		Magic:     rasMagic,
		Width:     uint32(width),
		Height:    uint32(height),
		Depth:     depth,
		Length:    uint32(stride * height),
		Type:      typeStandard,
		MapType:   mapType,
		MapLength: mapLength,
	}
	if err := binary.Write(bw, binary.BigEndian, &h); err != nil {
		return err
	}

	if pal != nil {
		n := pal.Len()
		raw := make([]byte, 3*n)
		for i := 0; i < n; i++ {
			r, g, b := pal.RGB(i)
			raw[i], raw[n+i], raw[2*n+i] = r, g, b
		}
		if _, err := bw.Write(raw); err != nil {
			return err
		}
	}

	row := make([]byte, stride)
	for y := 0; y < height; y++ {
		for i := range row {
			row[i] = 0
		}
		switch p := img.(type) {
		case *raster.Bilevel:
			for x := 0; x < width; x++ {
				if p.At(x, y) == 0 { // black -> file bit 1
					row[x/8] |= 1 << uint(7-x%8)
				}
			}
		case *raster.Gray8:
			copy(row, p.Row(y))
		case *raster.Indexed8:
			copy(row, p.Row(y))
		case *raster.RGB24:
			for x := 0; x < width; x++ {
				r, g, b := p.At(x, y)
				row[x*3], row[x*3+1], row[x*3+2] = b, g, r
			}
		}
		if _, err := bw.Write(row); err != nil {
			return err
		}
	}
	return bw.Flush()
}
