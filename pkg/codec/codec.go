// Package codec ties the per-format packages together behind one
// registry: codecs are looked up by name or file extension, and
// DecodeAny probes an unknown stream against every registered decoder.
package codec

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/jpfielding/raster.go/pkg/codec/gif"
	"github.com/jpfielding/raster.go/pkg/codec/iff"
	"github.com/jpfielding/raster.go/pkg/codec/jpeg"
	"github.com/jpfielding/raster.go/pkg/codec/palm"
	"github.com/jpfielding/raster.go/pkg/codec/pcd"
	"github.com/jpfielding/raster.go/pkg/codec/png"
	"github.com/jpfielding/raster.go/pkg/codec/pnm"
	"github.com/jpfielding/raster.go/pkg/codec/psd"
	"github.com/jpfielding/raster.go/pkg/codec/ras"
	"github.com/jpfielding/raster.go/pkg/codec/tiff"
	"github.com/jpfielding/raster.go/pkg/raster"
)

// Codec is one registered image format reader.
type Codec interface {
	// Name returns the codec identifier (e.g. "png")
	Name() string
	// Extensions lists file extensions the format is known by
	Extensions() []string
	// Probe reports whether the leading bytes belong to this format
	Probe(b []byte) bool
	// Decode reads one image from the stream
	Decode(r io.Reader, opts *raster.DecodeOptions) (raster.Image, error)
}

// Encoder is one registered image format writer.
type Encoder interface {
	// Name returns the codec identifier
	Name() string
	// Encode writes the image to the stream
	Encode(w io.Writer, img raster.Image) error
	// SuggestedExtension names the preferred extension for img
	SuggestedExtension(img raster.Image) string
}

var (
	mu       sync.RWMutex
	decoders []Codec
	byName   = map[string]Codec{}
	encoders = map[string]Encoder{}
)

// Register appends a decoder to the probe order. Names must be unique.
func Register(c Codec) error {
	if c == nil {
		return fmt.Errorf("codec: register nil codec")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := byName[c.Name()]; ok {
		return fmt.Errorf("codec: %q already registered", c.Name())
	}
	byName[c.Name()] = c
	decoders = append(decoders, c)
	return nil
}

// RegisterEncoder adds a writer. Names must be unique.
func RegisterEncoder(e Encoder) error {
	if e == nil {
		return fmt.Errorf("codec: register nil encoder")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := encoders[e.Name()]; ok {
		return fmt.Errorf("codec: encoder %q already registered", e.Name())
	}
	encoders[e.Name()] = e
	return nil
}

// Codecs returns the registered decoders in probe order.
func Codecs() []Codec {
	mu.RLock()
	defer mu.RUnlock()
	return append([]Codec(nil), decoders...)
}

// ByName returns a decoder by name, or nil if not found.
func ByName(name string) Codec {
	mu.RLock()
	defer mu.RUnlock()
	return byName[name]
}

// EncoderByName returns a writer by name, or nil if not found.
func EncoderByName(name string) Encoder {
	mu.RLock()
	defer mu.RUnlock()
	return encoders[name]
}

// ByExtension returns the decoder claiming the file extension (without
// dot), or nil.
func ByExtension(ext string) Codec {
	mu.RLock()
	defer mu.RUnlock()
	for _, c := range decoders {
		for _, e := range c.Extensions() {
			if e == ext {
				return c
			}
		}
	}
	return nil
}

// DecodeAny tries every registered decoder against the stream and returns
// the first image produced, along with the codec that recognized it. Only
// a format mismatch moves on to the next codec; a codec that recognizes
// the stream but fails to decode it ends the probe with its error.
func DecodeAny(r io.Reader, opts *raster.DecodeOptions) (raster.Image, Codec, error) {
	if r == nil {
		return nil, nil, &raster.MissingParameterError{Param: "input stream"}
	}
	// Decoders consume the source, so buffer it once and restart each
	// attempt from the beginning.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, raster.WrapIO("codec", "buffering input", err)
	}
	for _, c := range Codecs() {
		if !c.Probe(data) {
			continue
		}
		img, err := c.Decode(bytes.NewReader(data), opts)
		if err != nil {
			if raster.IsFormatMismatch(err) {
				continue
			}
			return nil, c, err
		}
		if img == nil {
			continue
		}
		return img, c, nil
	}
	return nil, nil, raster.Formatf("codec", "no codec recognized this input")
}

type pngCodec struct{}

func (pngCodec) Name() string         { return "png" }
func (pngCodec) Extensions() []string { return png.Extensions() }
func (pngCodec) Probe(b []byte) bool  { return png.Probe(b) }
func (pngCodec) Decode(r io.Reader, o *raster.DecodeOptions) (raster.Image, error) {
	return png.Decode(r, o)
}
func (pngCodec) Encode(w io.Writer, img raster.Image) error { return png.Encode(w, img) }
func (pngCodec) SuggestedExtension(img raster.Image) string { return png.SuggestedExtension(img) }

type jpegCodec struct{}

func (jpegCodec) Name() string         { return "jpeg" }
func (jpegCodec) Extensions() []string { return jpeg.Extensions() }
func (jpegCodec) Probe(b []byte) bool  { return jpeg.Probe(b) }
func (jpegCodec) Decode(r io.Reader, o *raster.DecodeOptions) (raster.Image, error) {
	return jpeg.Decode(r, o)
}

type tiffCodec struct{}

func (tiffCodec) Name() string         { return "tiff" }
func (tiffCodec) Extensions() []string { return tiff.Extensions() }
func (tiffCodec) Probe(b []byte) bool  { return tiff.Probe(b) }
func (tiffCodec) Decode(r io.Reader, o *raster.DecodeOptions) (raster.Image, error) {
	return tiff.Decode(r, o)
}

type iffCodec struct{}

func (iffCodec) Name() string         { return "iff" }
func (iffCodec) Extensions() []string { return iff.Extensions() }
func (iffCodec) Probe(b []byte) bool  { return iff.Probe(b) }
func (iffCodec) Decode(r io.Reader, o *raster.DecodeOptions) (raster.Image, error) {
	return iff.Decode(r, o)
}

type psdCodec struct{}

func (psdCodec) Name() string         { return "psd" }
func (psdCodec) Extensions() []string { return psd.Extensions() }
func (psdCodec) Probe(b []byte) bool  { return psd.Probe(b) }
func (psdCodec) Decode(r io.Reader, o *raster.DecodeOptions) (raster.Image, error) {
	return psd.Decode(r, o)
}

type rasCodec struct{}

func (rasCodec) Name() string         { return "ras" }
func (rasCodec) Extensions() []string { return ras.Extensions() }
func (rasCodec) Probe(b []byte) bool  { return ras.Probe(b) }
func (rasCodec) Decode(r io.Reader, o *raster.DecodeOptions) (raster.Image, error) {
	return ras.Decode(r, o)
}
func (rasCodec) Encode(w io.Writer, img raster.Image) error { return ras.Encode(w, img) }
func (rasCodec) SuggestedExtension(img raster.Image) string { return ras.SuggestedExtension(img) }

type pnmCodec struct{}

func (pnmCodec) Name() string         { return "pnm" }
func (pnmCodec) Extensions() []string { return pnm.Extensions() }
func (pnmCodec) Probe(b []byte) bool  { return pnm.Probe(b) }
func (pnmCodec) Decode(r io.Reader, o *raster.DecodeOptions) (raster.Image, error) {
	return pnm.Decode(r, o)
}
func (pnmCodec) Encode(w io.Writer, img raster.Image) error { return pnm.Encode(w, img, nil) }
func (pnmCodec) SuggestedExtension(img raster.Image) string { return pnm.SuggestedExtension(img) }

type pcdCodec struct{}

func (pcdCodec) Name() string         { return "pcd" }
func (pcdCodec) Extensions() []string { return pcd.Extensions() }
func (pcdCodec) Probe(b []byte) bool  { return pcd.Probe(b) }
func (pcdCodec) Decode(r io.Reader, o *raster.DecodeOptions) (raster.Image, error) {
	return pcd.Decode(r, o)
}

type palmCodec struct{}

func (palmCodec) Name() string         { return "palm" }
func (palmCodec) Extensions() []string { return palm.Extensions() }
func (palmCodec) Probe(b []byte) bool  { return palm.Probe(b) }
func (palmCodec) Decode(r io.Reader, o *raster.DecodeOptions) (raster.Image, error) {
	return palm.Decode(r, o)
}
func (palmCodec) Encode(w io.Writer, img raster.Image) error { return palm.Encode(w, img, nil) }
func (palmCodec) SuggestedExtension(img raster.Image) string { return palm.SuggestedExtension(img) }

type gifEncoder struct{}

func (gifEncoder) Name() string                               { return "gif" }
func (gifEncoder) Encode(w io.Writer, img raster.Image) error { return gif.Encode(w, img, nil) }
func (gifEncoder) SuggestedExtension(img raster.Image) string { return gif.SuggestedExtension(img) }

func init() {
	// Probe order: unambiguous signatures first. Palm has no magic and
	// probes on header plausibility alone, so it goes last.
	for _, c := range []Codec{
		pngCodec{}, jpegCodec{}, tiffCodec{}, iffCodec{}, psdCodec{},
		rasCodec{}, pnmCodec{}, pcdCodec{}, palmCodec{},
	} {
		if err := Register(c); err != nil {
			panic(err)
		}
	}
	for _, e := range []Encoder{
		pngCodec{}, rasCodec{}, pnmCodec{}, palmCodec{}, gifEncoder{},
	} {
		if err := RegisterEncoder(e); err != nil {
			panic(err)
		}
	}
}
