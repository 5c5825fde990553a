// Package gif writes GIF files. There is no decoder; the format is
// supported for output only.
package gif

import (
	"bufio"
	"io"

	"github.com/jpfielding/raster.go/pkg/compress/giflzw"
	"github.com/jpfielding/raster.go/pkg/raster"
)

const codecName = "gif"

const (
	blockExtension = 0x21
	blockImage     = 0x2c
	blockTrailer   = 0x3b
	extComment     = 0xfe
)

// Extensions lists the file extensions associated with the format.
func Extensions() []string { return []string{"gif"} }

// SuggestedExtension names the preferred extension for an encoded image.
func SuggestedExtension(raster.Image) string { return "gif" }

// Options control the encoded variant. The zero value writes a sequential
// GIF87a stream.
type Options struct {
	// Interlace stores rows in the four-pass interlaced order.
	Interlace bool
	// Comments are written as comment extension blocks. Any comment
	// upgrades the version signature to GIF89a.
	Comments []string
}

// Encode writes img as a GIF. Bilevel, gray and indexed images are
// supported; true-color and 16-bit kinds have no GIF representation.
func Encode(w io.Writer, img raster.Image, opts *Options) error {
	if w == nil {
		return &raster.MissingParameterError{Param: "output stream"}
	}
	if img == nil {
		return &raster.MissingParameterError{Param: "image"}
	}
	if opts == nil {
		opts = &Options{}
	}

	width, height := img.Width(), img.Height()
	if width > 0xffff || height > 0xffff {
		return raster.Unsupportedf(codecName, "%dx%d image exceeds the 16-bit screen descriptor", width, height)
	}

	depth, pal, pixels, err := prepare(img)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	version := "GIF87a"
	if len(opts.Comments) > 0 {
		version = "GIF89a"
	}
	if _, err := bw.WriteString(version); err != nil {
		return err
	}

	// logical screen descriptor with a global color table of 1<<depth
	// entries
	packed := byte(0x80 | (depth-1)<<4 | (depth - 1))
	screen := []byte{
		byte(width), byte(width >> 8),
		byte(height), byte(height >> 8),
		packed,
		0, // background color index
		0, // pixel aspect ratio, unspecified
	}
	if _, err := bw.Write(screen); err != nil {
		return err
	}

	table := make([]byte, 3<<uint(depth))
	for i := 0; i < pal.Len() && i < 1<<uint(depth); i++ {
		r, g, b := pal.RGB(i)
		table[i*3], table[i*3+1], table[i*3+2] = r, g, b
	}
	if _, err := bw.Write(table); err != nil {
		return err
	}

	for _, c := range opts.Comments {
		if err := writeComment(bw, c); err != nil {
			return err
		}
	}

	ipacked := byte(0)
	if opts.Interlace {
		ipacked = 0x40
	}
	descriptor := []byte{
		blockImage,
		0, 0, 0, 0, // left, top
		byte(width), byte(width >> 8),
		byte(height), byte(height >> 8),
		ipacked,
	}
	if _, err := bw.Write(descriptor); err != nil {
		return err
	}

	if opts.Interlace {
		pixels = interlace(pixels, width, height)
	}
	if err := giflzw.Encode(bw, pixels, depth); err != nil {
		return err
	}

	if err := bw.WriteByte(blockTrailer); err != nil {
		return err
	}
	return bw.Flush()
}

// prepare maps the image onto an index stream plus a palette whose size
// determines the GIF bit depth.
func prepare(img raster.Image) (depth int, pal *raster.Palette, pixels []byte, err error) {
	switch p := img.(type) {
	case *raster.Bilevel:
		pal = raster.NewPalette(2)
		pal.SetRGB(0, 0, 0, 0)
		pal.SetRGB(1, 255, 255, 255)
		return 1, pal, p.Pix, nil
	case *raster.Gray8:
		return 8, raster.GrayPalette(256), p.Pix, nil
	case *raster.Indexed8:
		if p.Palette == nil {
			return 0, nil, nil, &raster.MissingParameterError{Param: "palette"}
		}
		depth = 1
		for 1<<uint(depth) < p.Palette.Len() {
			depth++
		}
		if depth > 8 {
			return 0, nil, nil, raster.Unsupportedf(codecName, "palette with %d entries", p.Palette.Len())
		}
		return depth, p.Palette, p.Pix, nil
	default:
		return 0, nil, nil, raster.Unsupportedf(codecName, "image kind %s", img.Kind())
	}
}

// interlaceRows yields the row order of the four interlace passes.
func interlaceRows(height int) []int {
	out := make([]int, 0, height)
	for _, p := range [4][2]int{{0, 8}, {4, 8}, {2, 4}, {1, 2}} {
		for y := p[0]; y < height; y += p[1] {
			out = append(out, y)
		}
	}
	return out
}

func interlace(pixels []byte, width, height int) []byte {
	out := make([]byte, 0, len(pixels))
	for _, y := range interlaceRows(height) {
		out = append(out, pixels[y*width:(y+1)*width]...)
	}
	return out
}

func writeComment(w *bufio.Writer, comment string) error {
	if _, err := w.Write([]byte{blockExtension, extComment}); err != nil {
		return err
	}
	for len(comment) > 0 {
		n := len(comment)
		if n > 255 {
			n = 255
		}
		if err := w.WriteByte(byte(n)); err != nil {
			return err
		}
		if _, err := w.WriteString(comment[:n]); err != nil {
			return err
		}
		comment = comment[n:]
	}
	return w.WriteByte(0)
}
