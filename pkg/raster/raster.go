// Package raster holds the pixel storage model shared by every codec in this
// module: a closed set of image variants (bilevel, indexed, gray, RGB at 8
// and 16 bits), the palette type attached to indexed images, decode bounds,
// progress reporting, and the error taxonomy codecs report through.
//
// Codecs dispatch on the concrete image type with a switch over Kind; there
// is deliberately no open extension point for new pixel layouts.
package raster

import "fmt"

// Kind identifies one of the supported pixel layouts.
type Kind int

const (
	KindBilevel  Kind = iota // 1 bit per pixel, stored one sample per byte (0 or 1)
	KindIndexed8             // 8-bit palette indices
	KindGray8                // 8-bit grayscale
	KindGray16               // 16-bit grayscale
	KindRGB24                // 8 bits per channel RGB, interleaved
	KindRGB48                // 16 bits per channel RGB, interleaved
)

func (k Kind) String() string {
	switch k {
	case KindBilevel:
		return "bilevel"
	case KindIndexed8:
		return "indexed8"
	case KindGray8:
		return "gray8"
	case KindGray16:
		return "gray16"
	case KindRGB24:
		return "rgb24"
	case KindRGB48:
		return "rgb48"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Image is the common surface of all pixel storage variants.
type Image interface {
	Kind() Kind
	Width() int
	Height() int
	// Channels reports samples per pixel (1 or 3).
	Channels() int
	// BitsPerSample reports the significant bits of one sample.
	BitsPerSample() int
}

// Bilevel is a black/white image, one sample per byte, values 0 and 1.
// The in-memory convention is 0=black, 1=white; codecs whose file convention
// is inverted (PNM, fax data) flip at the boundary.
type Bilevel struct {
	W, H int
	Pix  []uint8
}

// NewBilevel allocates a bilevel image. Width and height must already have
// been validated by the caller.
func NewBilevel(w, h int) *Bilevel {
	return &Bilevel{W: w, H: h, Pix: make([]uint8, w*h)}
}

func (p *Bilevel) Kind() Kind         { return KindBilevel }
func (p *Bilevel) Width() int         { return p.W }
func (p *Bilevel) Height() int        { return p.H }
func (p *Bilevel) Channels() int      { return 1 }
func (p *Bilevel) BitsPerSample() int { return 1 }

func (p *Bilevel) At(x, y int) uint8     { return p.Pix[y*p.W+x] }
func (p *Bilevel) Set(x, y int, v uint8) { p.Pix[y*p.W+x] = v }

// Gray8 is an 8-bit grayscale image.
type Gray8 struct {
	W, H int
	Pix  []uint8
}

func NewGray8(w, h int) *Gray8 {
	return &Gray8{W: w, H: h, Pix: make([]uint8, w*h)}
}

func (p *Gray8) Kind() Kind         { return KindGray8 }
func (p *Gray8) Width() int         { return p.W }
func (p *Gray8) Height() int        { return p.H }
func (p *Gray8) Channels() int      { return 1 }
func (p *Gray8) BitsPerSample() int { return 8 }

func (p *Gray8) At(x, y int) uint8     { return p.Pix[y*p.W+x] }
func (p *Gray8) Set(x, y int, v uint8) { p.Pix[y*p.W+x] = v }

// Row returns the y-th row as a slice aliasing the image storage.
func (p *Gray8) Row(y int) []uint8 { return p.Pix[y*p.W : (y+1)*p.W] }

// Gray16 is a 16-bit grayscale image.
type Gray16 struct {
	W, H int
	Pix  []uint16
}

func NewGray16(w, h int) *Gray16 {
	return &Gray16{W: w, H: h, Pix: make([]uint16, w*h)}
}

func (p *Gray16) Kind() Kind         { return KindGray16 }
func (p *Gray16) Width() int         { return p.W }
func (p *Gray16) Height() int        { return p.H }
func (p *Gray16) Channels() int      { return 1 }
func (p *Gray16) BitsPerSample() int { return 16 }

func (p *Gray16) At(x, y int) uint16     { return p.Pix[y*p.W+x] }
func (p *Gray16) Set(x, y int, v uint16) { p.Pix[y*p.W+x] = v }

// Indexed8 is an 8-bit paletted image. The palette is attached once by the
// producing codec and treated as read-only afterwards.
type Indexed8 struct {
	W, H    int
	Pix     []uint8
	Palette *Palette
}

func NewIndexed8(w, h int, pal *Palette) *Indexed8 {
	return &Indexed8{W: w, H: h, Pix: make([]uint8, w*h), Palette: pal}
}

func (p *Indexed8) Kind() Kind         { return KindIndexed8 }
func (p *Indexed8) Width() int         { return p.W }
func (p *Indexed8) Height() int        { return p.H }
func (p *Indexed8) Channels() int      { return 1 }
func (p *Indexed8) BitsPerSample() int { return 8 }

func (p *Indexed8) At(x, y int) uint8     { return p.Pix[y*p.W+x] }
func (p *Indexed8) Set(x, y int, v uint8) { p.Pix[y*p.W+x] = v }

func (p *Indexed8) Row(y int) []uint8 { return p.Pix[y*p.W : (y+1)*p.W] }

// RGB24 is an 8-bit-per-channel RGB image, samples interleaved R,G,B.
type RGB24 struct {
	W, H int
	Pix  []uint8
}

func NewRGB24(w, h int) *RGB24 {
	return &RGB24{W: w, H: h, Pix: make([]uint8, w*h*3)}
}

func (p *RGB24) Kind() Kind         { return KindRGB24 }
func (p *RGB24) Width() int         { return p.W }
func (p *RGB24) Height() int        { return p.H }
func (p *RGB24) Channels() int      { return 3 }
func (p *RGB24) BitsPerSample() int { return 8 }

func (p *RGB24) At(x, y int) (r, g, b uint8) {
	i := (y*p.W + x) * 3
	return p.Pix[i], p.Pix[i+1], p.Pix[i+2]
}

func (p *RGB24) Set(x, y int, r, g, b uint8) {
	i := (y*p.W + x) * 3
	p.Pix[i], p.Pix[i+1], p.Pix[i+2] = r, g, b
}

// Row returns the y-th row (3 bytes per pixel) aliasing the image storage.
func (p *RGB24) Row(y int) []uint8 { return p.Pix[y*p.W*3 : (y+1)*p.W*3] }

// RGB48 is a 16-bit-per-channel RGB image, samples interleaved R,G,B.
type RGB48 struct {
	W, H int
	Pix  []uint16
}

func NewRGB48(w, h int) *RGB48 {
	return &RGB48{W: w, H: h, Pix: make([]uint16, w*h*3)}
}

func (p *RGB48) Kind() Kind         { return KindRGB48 }
func (p *RGB48) Width() int         { return p.W }
func (p *RGB48) Height() int        { return p.H }
func (p *RGB48) Channels() int      { return 3 }
func (p *RGB48) BitsPerSample() int { return 16 }

func (p *RGB48) At(x, y int) (r, g, b uint16) {
	i := (y*p.W + x) * 3
	return p.Pix[i], p.Pix[i+1], p.Pix[i+2]
}

func (p *RGB48) Set(x, y int, r, g, b uint16) {
	i := (y*p.W + x) * 3
	p.Pix[i], p.Pix[i+1], p.Pix[i+2] = r, g, b
}

// New allocates an image of the given kind. Indexed images start without a
// palette; the caller attaches one before handing the image out.
func New(k Kind, w, h int) Image {
	switch k {
	case KindBilevel:
		return NewBilevel(w, h)
	case KindIndexed8:
		return NewIndexed8(w, h, nil)
	case KindGray8:
		return NewGray8(w, h)
	case KindGray16:
		return NewGray16(w, h)
	case KindRGB24:
		return NewRGB24(w, h)
	case KindRGB48:
		return NewRGB48(w, h)
	}
	panic(fmt.Sprintf("raster: unknown kind %d", int(k)))
}
