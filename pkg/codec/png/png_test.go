package png

import (
	"bytes"
	"errors"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpfielding/raster.go/pkg/raster"
)

func chunk(typ string, data []byte) []byte {
	var buf bytes.Buffer
	writeChunk(&buf, typ, data)
	return buf.Bytes()
}

func ihdr(w, h int, depth, colorType, interlace uint8) []byte {
	data := []byte{
		byte(w >> 24), byte(w >> 16), byte(w >> 8), byte(w),
		byte(h >> 24), byte(h >> 16), byte(h >> 8), byte(h),
		depth, colorType, 0, 0, interlace,
	}
	return chunk("IHDR", data)
}

func deflate(t *testing.T, raw []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// buildPNG assembles signature + IHDR + extra chunks + one IDAT holding
// the deflated scanlines + IEND.
func buildPNG(t *testing.T, w, h int, depth, colorType, interlace uint8, raw []byte, extra ...[]byte) []byte {
	out := append([]byte{}, signature...)
	out = append(out, ihdr(w, h, depth, colorType, interlace)...)
	for _, e := range extra {
		out = append(out, e...)
	}
	out = append(out, chunk("IDAT", deflate(t, raw))...)
	return append(out, chunk("IEND", nil)...)
}

func TestRoundTrip(t *testing.T) {
	bl := raster.NewBilevel(13, 4)
	for i := range bl.Pix {
		bl.Pix[i] = uint8((i / 2) % 2)
	}
	g8 := raster.NewGray8(6, 5)
	for i := range g8.Pix {
		g8.Pix[i] = uint8(i * 7)
	}
	g16 := raster.NewGray16(4, 3)
	for i := range g16.Pix {
		g16.Pix[i] = uint16(i * 4999)
	}
	idx := raster.NewIndexed8(5, 2,
		raster.PaletteFrom([]uint8{0, 0, 0, 255, 0, 0, 0, 255, 0, 0, 0, 255}))
	idx.Pix = []uint8{0, 1, 2, 3, 0, 3, 2, 1, 0, 1}
	rgb := raster.NewRGB24(4, 4)
	for i := range rgb.Pix {
		rgb.Pix[i] = uint8(i * 5)
	}
	rgb48 := raster.NewRGB48(3, 2)
	for i := range rgb48.Pix {
		rgb48.Pix[i] = uint16(i * 3001)
	}

	for name, img := range map[string]raster.Image{
		"Bilevel": bl, "Gray8": g8, "Gray16": g16,
		"Indexed8": idx, "RGB24": rgb, "RGB48": rgb48,
	} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, img))
			got, err := Decode(bytes.NewReader(buf.Bytes()), nil)
			require.NoError(t, err)
			assert.Equal(t, img, got)
		})
	}
}

func TestSubByteGrayScaling(t *testing.T) {
	// 4x1 at 2 bits: samples 0..3 scale to 0, 85, 170, 255.
	data := buildPNG(t, 4, 1, 2, ctGray, 0, []byte{0, 0x1b})
	img, err := Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 85, 170, 255}, img.(*raster.Gray8).Pix)

	// 2x1 at 4 bits: samples 3 and 15 scale to 51 and 255.
	data = buildPNG(t, 2, 1, 4, ctGray, 0, []byte{0, 0x3f})
	img, err = Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	assert.Equal(t, []uint8{51, 255}, img.(*raster.Gray8).Pix)
}

func TestMultiIDAT(t *testing.T) {
	raw := []byte{0, 10, 20, 30, 0, 40, 50, 60} // 3x2 gray, filter 0
	z := deflate(t, raw)
	require.Greater(t, len(z), 4)

	out := append([]byte{}, signature...)
	out = append(out, ihdr(3, 2, 8, ctGray, 0)...)
	out = append(out, chunk("IDAT", z[:3])...)
	out = append(out, chunk("IDAT", z[3:])...)
	out = append(out, chunk("IEND", nil)...)

	img, err := Decode(bytes.NewReader(out), nil)
	require.NoError(t, err)
	assert.Equal(t, []uint8{10, 20, 30, 40, 50, 60}, img.(*raster.Gray8).Pix)
}

func TestAncillaryChunksSkipped(t *testing.T) {
	data := buildPNG(t, 1, 1, 8, ctGray, 0, []byte{0, 77},
		chunk("tEXt", []byte("Comment\x00hi")),
		chunk("gAMA", []byte{0, 0, 0xb1, 0x8f}))
	img, err := Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	assert.Equal(t, []uint8{77}, img.(*raster.Gray8).Pix)
}

func TestAlphaDropped(t *testing.T) {
	t.Run("RGBA", func(t *testing.T) {
		raw := []byte{0, 1, 2, 3, 200, 4, 5, 6, 0}
		img, err := Decode(bytes.NewReader(buildPNG(t, 2, 1, 8, ctRGBAlpha, 0, raw)), nil)
		require.NoError(t, err)
		assert.Equal(t, []uint8{1, 2, 3, 4, 5, 6}, img.(*raster.RGB24).Pix)
	})
	t.Run("GrayAlpha", func(t *testing.T) {
		raw := []byte{0, 9, 128, 8, 0}
		img, err := Decode(bytes.NewReader(buildPNG(t, 2, 1, 8, ctGrayAlpha, 0, raw)), nil)
		require.NoError(t, err)
		assert.Equal(t, []uint8{9, 8}, img.(*raster.Gray8).Pix)
	})
}

// interlace packs a Gray8 image into Adam7 scanlines, all filter None.
func interlace(img *raster.Gray8) []byte {
	var raw []byte
	for _, p := range adam7 {
		pw, ph := p.size(img.W, img.H)
		if pw == 0 || ph == 0 {
			continue
		}
		for r := 0; r < ph; r++ {
			raw = append(raw, 0)
			for i := 0; i < pw; i++ {
				raw = append(raw, img.At(p.x0+i*p.dx, p.y0+r*p.dy))
			}
		}
	}
	return raw
}

func TestInterlacedDecode(t *testing.T) {
	for _, dim := range [][2]int{{4, 4}, {9, 5}, {1, 1}, {16, 3}} {
		want := raster.NewGray8(dim[0], dim[1])
		for i := range want.Pix {
			want.Pix[i] = uint8(i*13 + 1)
		}
		data := buildPNG(t, dim[0], dim[1], 8, ctGray, 1, interlace(want))
		img, err := Decode(bytes.NewReader(data), nil)
		require.NoError(t, err)
		assert.Equal(t, want, img, "%dx%d", dim[0], dim[1])
	}
}

func TestBoundsClippedDecode(t *testing.T) {
	src := raster.NewGray8(10, 8)
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 3)
	}
	bounds := &raster.Bounds{X1: 2, Y1: 1, X2: 7, Y2: 5}

	check := func(t *testing.T, img raster.Image) {
		got := img.(*raster.Gray8)
		require.Equal(t, 6, got.W)
		require.Equal(t, 5, got.H)
		for y := 0; y < 5; y++ {
			for x := 0; x < 6; x++ {
				assert.Equal(t, src.At(x+2, y+1), got.At(x, y))
			}
		}
	}
	t.Run("Sequential", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, src))
		img, err := Decode(bytes.NewReader(buf.Bytes()), &raster.DecodeOptions{Bounds: bounds})
		require.NoError(t, err)
		check(t, img)
	})
	t.Run("Interlaced", func(t *testing.T) {
		data := buildPNG(t, 10, 8, 8, ctGray, 1, interlace(src))
		img, err := Decode(bytes.NewReader(data), &raster.DecodeOptions{Bounds: bounds})
		require.NoError(t, err)
		check(t, img)
	})
}

func TestInterlacedProgressCountsEmptyPasses(t *testing.T) {
	// A 1x1 interlaced image: pass 1 carries the pixel, pass 2 has a row
	// but no columns, the rest are empty. Total is still 2.
	g := raster.NewGray8(1, 1)
	g.Pix[0] = 42
	data := buildPNG(t, 1, 1, 8, ctGray, 1, interlace(g))

	var steps [][2]int
	img, err := Decode(bytes.NewReader(data), &raster.DecodeOptions{
		Progress: func(done, total int) { steps = append(steps, [2]int{done, total}) },
	})
	require.NoError(t, err)
	assert.Equal(t, uint8(42), img.(*raster.Gray8).Pix[0])
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, steps)
}

func TestAbort(t *testing.T) {
	g := raster.NewGray8(4, 4)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, g))
	ab := &raster.Abort{}
	ab.Stop()
	_, err := Decode(bytes.NewReader(buf.Bytes()), &raster.DecodeOptions{Abort: ab})
	assert.ErrorIs(t, err, raster.ErrAborted)
}

func TestDecodeErrors(t *testing.T) {
	valid := buildPNG(t, 1, 1, 8, ctGray, 0, []byte{0, 1})

	corruptIHDR := append([]byte{}, valid...)
	corruptIHDR[len(signature)+8+3]++ // flip a width byte, CRC now wrong

	structure := func(err error) bool { var s *raster.StructureError; return errors.As(err, &s) }

	tests := []struct {
		name string
		data []byte
		want func(error) bool
	}{
		{"BadSignature", []byte("GIF89a definitely not a png"), raster.IsFormatMismatch},
		{"ChecksumMismatch", corruptIHDR, structure},
		{"UnknownFilterType", buildPNG(t, 1, 1, 8, ctGray, 0, []byte{7, 1}), structure},
		{"IDATBeforeIHDR",
			append(append([]byte{}, signature...), chunk("IDAT", deflate(t, []byte{0, 1}))...),
			structure},
		{"DuplicateIHDR",
			append(append(append([]byte{}, signature...), ihdr(1, 1, 8, ctGray, 0)...), ihdr(1, 1, 8, ctGray, 0)...),
			structure},
		{"IndexedWithoutPLTE",
			append(append(append([]byte{}, signature...), ihdr(1, 1, 8, ctIndexed, 0)...),
				chunk("IDAT", deflate(t, []byte{0, 0}))...),
			structure},
		{"IENDBeforeIDAT",
			append(append(append([]byte{}, signature...), ihdr(1, 1, 8, ctGray, 0)...), chunk("IEND", nil)...),
			structure},
		{"TruncatedIDAT", valid[:len(valid)-20], structure},
		{"BadDepthForType",
			append(append([]byte{}, signature...), ihdr(1, 1, 3, ctGray, 0)...),
			func(err error) bool { var u *raster.UnsupportedError; return errors.As(err, &u) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(tt.data), nil)
			require.Error(t, err)
			assert.True(t, tt.want(err), "wrong error kind: %v", err)
		})
	}

	_, err := Decode(nil, nil)
	var m *raster.MissingParameterError
	assert.True(t, errors.As(err, &m))
}
