package codec

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpfielding/raster.go/pkg/codec/palm"
	"github.com/jpfielding/raster.go/pkg/codec/png"
	"github.com/jpfielding/raster.go/pkg/raster"
)

func TestLookup(t *testing.T) {
	require.NotNil(t, ByName("png"))
	require.NotNil(t, ByName("tiff"))
	assert.Nil(t, ByName("webp"))

	assert.Equal(t, "tiff", ByExtension("tif").Name())
	assert.Equal(t, "pnm", ByExtension("pgm").Name())
	assert.Equal(t, "iff", ByExtension("lbm").Name())
	assert.Nil(t, ByExtension("webp"))

	require.NotNil(t, EncoderByName("gif"))
	require.NotNil(t, EncoderByName("png"))
	assert.Nil(t, EncoderByName("iff"))

	names := make([]string, 0)
	for _, c := range Codecs() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"png", "jpeg", "tiff", "iff", "psd", "ras", "pnm", "pcd", "palm"}, names)
}

type stubCodec struct{ name string }

func (s stubCodec) Name() string         { return s.name }
func (s stubCodec) Extensions() []string { return nil }
func (s stubCodec) Probe([]byte) bool    { return false }
func (s stubCodec) Decode(io.Reader, *raster.DecodeOptions) (raster.Image, error) {
	return nil, raster.Formatf(s.name, "stub")
}

func TestRegisterRefusesDuplicates(t *testing.T) {
	assert.Error(t, Register(stubCodec{name: "png"}))
	assert.Error(t, Register(nil))
	assert.Error(t, RegisterEncoder(nil))
	require.NoError(t, Register(stubCodec{name: "stub-format"}))
	assert.Error(t, Register(stubCodec{name: "stub-format"}))
}

func grayPNG(t *testing.T) ([]byte, *raster.Gray8) {
	t.Helper()
	img := raster.NewGray8(5, 3)
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 11)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes(), img
}

func TestDecodeAnyPNG(t *testing.T) {
	data, want := grayPNG(t)
	img, c, err := DecodeAny(bytes.NewReader(data), nil)
	require.NoError(t, err)
	assert.Equal(t, "png", c.Name())
	assert.Equal(t, want, img)
}

func TestDecodeAnyPNM(t *testing.T) {
	data := []byte("P5\n3 2\n255\n" + "\x01\x02\x03\x04\x05\x06")
	img, c, err := DecodeAny(bytes.NewReader(data), nil)
	require.NoError(t, err)
	assert.Equal(t, "pnm", c.Name())
	assert.Equal(t, []uint8{1, 2, 3, 4, 5, 6}, img.(*raster.Gray8).Pix)
}

func TestDecodeAnyFallsThroughToPalm(t *testing.T) {
	// Palm files carry no magic number, so every other probe must reject
	// the stream first.
	src := raster.NewGray8(4, 4)
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 16)
	}
	var buf bytes.Buffer
	require.NoError(t, palm.Encode(&buf, src, nil))

	img, c, err := DecodeAny(bytes.NewReader(buf.Bytes()), nil)
	require.NoError(t, err)
	assert.Equal(t, "palm", c.Name())
	assert.Equal(t, 4, img.Width())
}

func TestDecodeAnyHonorsBounds(t *testing.T) {
	data, want := grayPNG(t)
	img, _, err := DecodeAny(bytes.NewReader(data),
		&raster.DecodeOptions{Bounds: &raster.Bounds{X1: 1, Y1: 1, X2: 3, Y2: 2}})
	require.NoError(t, err)
	g := img.(*raster.Gray8)
	require.Equal(t, 3, g.W)
	require.Equal(t, 2, g.H)
	assert.Equal(t, want.At(2, 2), g.At(1, 1))
}

func TestDecodeAnyUnrecognized(t *testing.T) {
	_, _, err := DecodeAny(bytes.NewReader([]byte{0xde, 0xad, 0xbe, 0xef}), nil)
	require.Error(t, err)
	assert.True(t, raster.IsFormatMismatch(err), "got %v", err)
}

func TestDecodeAnyReportsDecodeFailure(t *testing.T) {
	// A recognized but corrupt stream must surface the codec's error
	// instead of probing further.
	data, _ := grayPNG(t)
	truncated := data[:len(data)-12]
	_, c, err := DecodeAny(bytes.NewReader(truncated), nil)
	require.Error(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "png", c.Name())
	assert.False(t, raster.IsFormatMismatch(err))
}

func TestDecodeAnyWithEmptyRegistry(t *testing.T) {
	mu.Lock()
	saved := decoders
	decoders = nil
	mu.Unlock()
	defer func() {
		mu.Lock()
		decoders = saved
		mu.Unlock()
	}()

	data, _ := grayPNG(t)
	_, _, err := DecodeAny(bytes.NewReader(data), nil)
	require.Error(t, err)
	assert.True(t, raster.IsFormatMismatch(err))
}

func TestDecodeAnyMissingInput(t *testing.T) {
	_, _, err := DecodeAny(nil, nil)
	var m *raster.MissingParameterError
	assert.True(t, errors.As(err, &m))
}
