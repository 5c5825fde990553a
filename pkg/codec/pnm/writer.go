package pnm

import (
	"bufio"
	"fmt"
	"io"

	"github.com/jpfielding/raster.go/pkg/raster"
)

// Options controls encoding.
type Options struct {
	// ASCII selects P1/P2/P3 text output instead of the binary forms.
	ASCII bool
	// Comments are emitted as '#' lines after the magic.
	Comments []string
}

// Encode writes img as PBM, PGM or PPM according to its kind. Indexed
// images are expanded through their palette and written as PPM.
func Encode(w io.Writer, img raster.Image, o *Options) error {
	if w == nil {
		return &raster.MissingParameterError{Param: "output stream"}
	}
	if img == nil {
		return &raster.MissingParameterError{Param: "image"}
	}
	if o == nil {
		o = &Options{}
	}
	bw := bufio.NewWriter(w)

	digit, maxval := formatFor(img, o.ASCII)
	if _, err := fmt.Fprintf(bw, "P%d\n", digit); err != nil {
		return err
	}
	for _, c := range o.Comments {
		if _, err := fmt.Fprintf(bw, "# %s\n", c); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(bw, "%d %d\n", img.Width(), img.Height()); err != nil {
		return err
	}
	if maxval > 1 {
		if _, err := fmt.Fprintf(bw, "%d\n", maxval); err != nil {
			return err
		}
	}

	var err error
	switch p := img.(type) {
	case *raster.Bilevel:
		err = encodeBilevel(bw, p, o.ASCII)
	case *raster.Gray8:
		err = encodeSamples(bw, img.Width(), img.Height(), o.ASCII, false, func(x, y int) (uint16, uint16, uint16) {
			v := uint16(p.At(x, y))
			return v, v, v
		}, 1)
	case *raster.Gray16:
		err = encodeSamples(bw, img.Width(), img.Height(), o.ASCII, true, func(x, y int) (uint16, uint16, uint16) {
			v := p.At(x, y)
			return v, v, v
		}, 1)
	case *raster.RGB24:
		err = encodeSamples(bw, img.Width(), img.Height(), o.ASCII, false, func(x, y int) (uint16, uint16, uint16) {
			r, g, b := p.At(x, y)
			return uint16(r), uint16(g), uint16(b)
		}, 3)
	case *raster.RGB48:
		err = encodeSamples(bw, img.Width(), img.Height(), o.ASCII, true, func(x, y int) (uint16, uint16, uint16) {
			return p.At(x, y)
		}, 3)
	case *raster.Indexed8:
		if p.Palette == nil {
			return &raster.MissingParameterError{Param: "palette"}
		}
		err = encodeSamples(bw, img.Width(), img.Height(), o.ASCII, false, func(x, y int) (uint16, uint16, uint16) {
			r, g, b := p.Palette.RGB(int(p.At(x, y)))
			return uint16(r), uint16(g), uint16(b)
		}, 3)
	default:
		return raster.Unsupportedf(codecName, "image kind %s", img.Kind())
	}
	if err != nil {
		return err
	}
	return bw.Flush()
}

// formatFor picks the PNM digit and maximum sample for an image kind.
func formatFor(img raster.Image, ascii bool) (digit, maxval int) {
	switch img.Kind() {
	case raster.KindBilevel:
		digit, maxval = 4, 1
	case raster.KindGray8:
		digit, maxval = 5, 255
	case raster.KindGray16:
		digit, maxval = 5, 65535
	case raster.KindRGB48:
		digit, maxval = 6, 65535
	default:
		digit, maxval = 6, 255
	}
	if ascii {
		digit -= 3
	}
	return digit, maxval
}

func encodeBilevel(bw *bufio.Writer, p *raster.Bilevel, ascii bool) error {
	w, h := p.Width(), p.Height()
	if ascii {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				// buffer: 1=white; file: 1=black
				c := byte('0' + 1 - p.At(x, y))
				if x > 0 {
					if err := bw.WriteByte(' '); err != nil {
						return err
					}
				}
				if err := bw.WriteByte(c); err != nil {
					return err
				}
			}
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
		return nil
	}
	rowBytes := (w + 7) / 8
	packed := make([]byte, rowBytes)
	for y := 0; y < h; y++ {
		for i := range packed {
			packed[i] = 0
		}
		for x := 0; x < w; x++ {
			if p.At(x, y) == 0 { // black pixel -> file bit 1
				packed[x/8] |= 1 << uint(7-x%8)
			}
		}
		if _, err := bw.Write(packed); err != nil {
			return err
		}
	}
	return nil
}

func encodeSamples(bw *bufio.Writer, w, h int, ascii, wide bool, at func(x, y int) (uint16, uint16, uint16), channels int) error {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := [3]uint16{}
			s[0], s[1], s[2] = at(x, y)
			for c := 0; c < channels; c++ {
				if ascii {
					sep := byte(' ')
					if x == 0 && c == 0 {
						sep = 0
					}
					if sep != 0 {
						if err := bw.WriteByte(sep); err != nil {
							return err
						}
					}
					if _, err := fmt.Fprintf(bw, "%d", s[c]); err != nil {
						return err
					}
				} else if wide {
					if err := bw.WriteByte(byte(s[c] >> 8)); err != nil {
						return err
					}
					if err := bw.WriteByte(byte(s[c])); err != nil {
						return err
					}
				} else if err := bw.WriteByte(byte(s[c])); err != nil {
					return err
				}
			}
		}
		if ascii {
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
	}
	return nil
}
