package iff

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpfielding/raster.go/pkg/compress/packbits"
	"github.com/jpfielding/raster.go/pkg/raster"
)

type chunk struct {
	fourCC string
	data   []byte
}

func buildILBM(t *testing.T, chunks ...chunk) []byte {
	t.Helper()
	var body bytes.Buffer
	body.WriteString("ILBM")
	for _, c := range chunks {
		body.WriteString(c.fourCC)
		binary.Write(&body, binary.BigEndian, uint32(len(c.data)))
		body.Write(c.data)
		if len(c.data)%2 == 1 {
			body.WriteByte(0)
		}
	}
	var out bytes.Buffer
	out.WriteString("FORM")
	binary.Write(&out, binary.BigEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func bmhd(w, h int, planes, masking, compression uint8) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, &bitmapHeader{
		Width: uint16(w), Height: uint16(h),
		Planes: planes, Masking: masking, Compression: compression,
	})
	return buf.Bytes()
}

func TestDecodeOnePixelIndexed(t *testing.T) {
	// 1x1, 1 plane, uncompressed, 2-color palette, pixel index 1 (white).
	data := buildILBM(t,
		chunk{"BMHD", bmhd(1, 1, 1, maskNone, 0)},
		chunk{"CMAP", []byte{0, 0, 0, 255, 255, 255}},
		chunk{"BODY", []byte{0x80, 0x00}}, // plane row padded to 2 bytes
	)

	img, err := Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	idx := img.(*raster.Indexed8)
	require.Equal(t, 1, idx.Width())
	require.Equal(t, 1, idx.Height())
	assert.Equal(t, uint8(1), idx.At(0, 0))
	r, g, b := idx.Palette.RGB(1)
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{r, g, b})
}

func TestDecodeCompressedBody(t *testing.T) {
	// 16x2, 2 planes: plane rows are 2 bytes each; compress each with
	// ByteRun1 (PackBits semantics).
	rows := [][]byte{
		{0xff, 0x00}, {0x0f, 0xf0}, // y=0: planes 0,1
		{0xaa, 0xaa}, {0x55, 0x55}, // y=1
	}
	var body bytes.Buffer
	for _, r := range rows {
		body.Write(packbits.Encode(r))
	}
	data := buildILBM(t,
		chunk{"BMHD", bmhd(16, 2, 2, maskNone, 1)},
		chunk{"CMAP", []byte{0, 0, 0, 85, 85, 85, 170, 170, 170, 255, 255, 255}},
		chunk{"BODY", body.Bytes()},
	)

	img, err := Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	idx := img.(*raster.Indexed8)

	// x=0: plane0 bit 1, plane1 bit 0 -> index 1.
	assert.Equal(t, uint8(1), idx.At(0, 0))
	// x=8: plane0 bit 0, plane1 bit 1 -> index 2.
	assert.Equal(t, uint8(2), idx.At(8, 0))
	// y=1 x=0: plane0 1, plane1 0 -> 1; x=1: plane0 0, plane1 1 -> 2.
	assert.Equal(t, uint8(1), idx.At(0, 1))
	assert.Equal(t, uint8(2), idx.At(1, 1))
}

func TestDecode24Plane(t *testing.T) {
	// 8x1, 24 planes. Set planes so pixel 0 has R=0x01, G=0x02, B=0x03:
	// plane p holds bit p; R is planes 0-7, G 8-15, B 16-23.
	planes := make([][]byte, 24)
	for p := range planes {
		planes[p] = []byte{0x00, 0x00}
	}
	set := func(p int) { planes[p][0] |= 0x80 } // bit for x=0
	set(0)                                      // R bit 0
	set(8 + 1)                                  // G bit 1
	set(16)                                     // B bit 0
	set(16 + 1)                                 // B bit 1
	var body bytes.Buffer
	for _, pr := range planes {
		body.Write(pr)
	}
	data := buildILBM(t,
		chunk{"BMHD", bmhd(8, 1, 24, maskNone, 0)},
		chunk{"BODY", body.Bytes()},
	)

	img, err := Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	rgb := img.(*raster.RGB24)
	r, g, b := rgb.At(0, 0)
	assert.Equal(t, [3]uint8{0x01, 0x02, 0x03}, [3]uint8{r, g, b})
}

// buildHAMBody packs one row of 6-bit (or 8-bit) indices into 6 (or 8)
// plane rows for a width-w image.
func buildPlanarRow(indices []uint32, planes, w int) []byte {
	planeBytes := ((w + 15) / 16) * 2
	out := make([]byte, planes*planeBytes)
	for x, v := range indices {
		for p := 0; p < planes; p++ {
			if v>>uint(p)&1 == 1 {
				out[p*planeBytes+x/8] |= 1 << uint(7-x%8)
			}
		}
	}
	return out
}

func TestHAM6Recurrence(t *testing.T) {
	// Palette entry 0 = (16,32,48), entry 2 = (64,80,96).
	cmap := make([]byte, 16*3)
	copy(cmap[0:], []byte{16, 32, 48})
	copy(cmap[6:], []byte{64, 80, 96})

	// Pixel sequence, top 2 bits select the sub-mode:
	//  0b00_0010: hold -> palette[2]          = (64, 80, 96)
	//  0b01_1111: modify blue top 4 bits 0xF  -> (64, 80, 0xF0|...)
	//  0b10_0001: modify red  top 4 bits 0x1  -> (0x10|..., 80, ...)
	//  0b11_0101: modify green top 4 bits 0x5 -> (..., 0x50|..., ...)
	indices := []uint32{0x02, 0x40 | 0x0f, 0x80 | 0x01, 0xc0 | 0x05}
	want := [][3]uint8{
		{64, 80, 96},
		{64, 80, 0xf0},     // blue: 96&0x0f=0 -> 0xf0|0
		{0x10, 80, 0xf0},   // red: 64&0x0f=0 -> 0x10|0
		{0x10, 0x50, 0xf0}, // green: 80&0x0f=0 -> 0x50|0
	}

	data := buildILBM(t,
		chunk{"BMHD", bmhd(4, 1, 6, maskNone, 0)},
		chunk{"CMAP", cmap},
		chunk{"CAMG", []byte{0x00, 0x00, 0x08, 0x00}}, // HAM bit
		chunk{"BODY", buildPlanarRow(indices, 6, 4)},
	)

	img, err := Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	rgb := img.(*raster.RGB24)
	for x, w := range want {
		r, g, b := rgb.At(x, 0)
		assert.Equal(t, w, [3]uint8{r, g, b}, "pixel %d", x)
	}
}

func TestHAM8Recurrence(t *testing.T) {
	cmap := make([]byte, 64*3)
	copy(cmap[3:], []byte{100, 101, 103}) // entry 1

	// 8-bit indices: top 2 bits select mode, low 6 bits are the value that
	// replaces the top 6 bits of a channel.
	indices := []uint32{
		0x01,        // hold -> (100, 101, 103)
		0x40 | 0x3f, // blue top 6 bits = 0x3f -> 0xfc | (103 & 3)
		0x80 | 0x00, // red top 6 bits = 0 -> 100 & 3
	}
	want := [][3]uint8{
		{100, 101, 103},
		{100, 101, 0xfc | 103&3},
		{100 & 3, 101, 0xfc | 103&3},
	}

	data := buildILBM(t,
		chunk{"BMHD", bmhd(3, 1, 8, maskNone, 0)},
		chunk{"CMAP", cmap},
		chunk{"CAMG", []byte{0x00, 0x00, 0x08, 0x00}},
		chunk{"BODY", buildPlanarRow(indices, 8, 3)},
	)

	img, err := Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	rgb := img.(*raster.RGB24)
	for x, w := range want {
		r, g, b := rgb.At(x, 0)
		assert.Equal(t, w, [3]uint8{r, g, b}, "pixel %d", x)
	}
}

func TestEHBPaletteDoubling(t *testing.T) {
	cmap := make([]byte, 32*3)
	copy(cmap[0:], []byte{200, 100, 50})

	data := buildILBM(t,
		chunk{"BMHD", bmhd(2, 1, 6, maskNone, 0)},
		chunk{"CMAP", cmap},
		chunk{"CAMG", []byte{0x00, 0x00, 0x00, 0x80}}, // EHB bit
		chunk{"BODY", buildPlanarRow([]uint32{0, 32}, 6, 2)},
	)

	img, err := Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	idx := img.(*raster.Indexed8)
	require.Equal(t, 64, idx.Palette.Len())

	r, g, b := idx.Palette.RGB(0)
	assert.Equal(t, [3]uint8{200, 100, 50}, [3]uint8{r, g, b})
	r, g, b = idx.Palette.RGB(32)
	assert.Equal(t, [3]uint8{100, 50, 25}, [3]uint8{r, g, b}, "half brightness")
	assert.Equal(t, uint8(0), idx.At(0, 0))
	assert.Equal(t, uint8(32), idx.At(1, 0))
}

func TestMaskPlaneSkipped(t *testing.T) {
	// 1 plane + mask plane; the mask contributes nothing to the index.
	body := []byte{
		0x80, 0x00, // plane 0
		0xff, 0xff, // mask plane
	}
	data := buildILBM(t,
		chunk{"BMHD", bmhd(1, 1, 1, maskHasMask, 0)},
		chunk{"CMAP", []byte{0, 0, 0, 255, 255, 255}},
		chunk{"BODY", body},
	)

	img, err := Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), img.(*raster.Indexed8).At(0, 0))
}

func TestBoundsClippedDecode(t *testing.T) {
	// 16x4, 2 planes, index (x+y)%4.
	var body bytes.Buffer
	for y := 0; y < 4; y++ {
		indices := make([]uint32, 16)
		for x := range indices {
			indices[x] = uint32((x + y) % 4)
		}
		body.Write(buildPlanarRow(indices, 2, 16))
	}
	data := buildILBM(t,
		chunk{"BMHD", bmhd(16, 4, 2, maskNone, 0)},
		chunk{"CMAP", []byte{0, 0, 0, 85, 85, 85, 170, 170, 170, 255, 255, 255}},
		chunk{"BODY", body.Bytes()},
	)

	img, err := Decode(bytes.NewReader(data),
		&raster.DecodeOptions{Bounds: &raster.Bounds{X1: 3, Y1: 1, X2: 9, Y2: 2}})
	require.NoError(t, err)
	idx := img.(*raster.Indexed8)
	require.Equal(t, 7, idx.Width())
	require.Equal(t, 2, idx.Height())
	for y := 0; y < 2; y++ {
		for x := 0; x < 7; x++ {
			assert.Equal(t, uint8((x+3+y+1)%4), idx.At(x, y), "pixel %d,%d", x, y)
		}
	}
}

func TestHAMClippedDecode(t *testing.T) {
	// Pixels left of the window feed the hold-and-modify chain, so clipped
	// output must still reflect the full left-to-right walk.
	cmap := make([]byte, 16*3)
	copy(cmap[3:], []byte{16, 32, 48}) // entry 1

	indices := []uint32{
		0x01,        // hold -> (16, 32, 48)
		0x40 | 0x0f, // blue top 4 bits -> (16, 32, 0xf0)
		0x80 | 0x02, // red top 4 bits  -> (0x20, 32, 0xf0)
		0xc0 | 0x03, // green top 4 bits -> (0x20, 0x30, 0xf0)
		0x01,        // hold again
	}
	want := [][3]uint8{
		{16, 32, 0xf0},
		{0x20, 32, 0xf0},
		{0x20, 0x30, 0xf0},
	}

	data := buildILBM(t,
		chunk{"BMHD", bmhd(5, 1, 6, maskNone, 0)},
		chunk{"CMAP", cmap},
		chunk{"CAMG", []byte{0x00, 0x00, 0x08, 0x00}},
		chunk{"BODY", buildPlanarRow(indices, 6, 5)},
	)

	img, err := Decode(bytes.NewReader(data),
		&raster.DecodeOptions{Bounds: &raster.Bounds{X1: 1, Y1: 0, X2: 3, Y2: 0}})
	require.NoError(t, err)
	rgb := img.(*raster.RGB24)
	require.Equal(t, 3, rgb.Width())
	for x, w := range want {
		r, g, b := rgb.At(x, 0)
		assert.Equal(t, w, [3]uint8{r, g, b}, "pixel %d", x)
	}
}

func TestProgressAndAbort(t *testing.T) {
	var body bytes.Buffer
	for y := 0; y < 4; y++ {
		body.Write(buildPlanarRow([]uint32{1, 0}, 1, 2))
	}
	data := buildILBM(t,
		chunk{"BMHD", bmhd(2, 4, 1, maskNone, 0)},
		chunk{"CMAP", []byte{0, 0, 0, 255, 255, 255}},
		chunk{"BODY", body.Bytes()},
	)

	var steps []int
	_, err := Decode(bytes.NewReader(data), &raster.DecodeOptions{
		Progress: func(done, total int) {
			assert.Equal(t, 4, total)
			steps = append(steps, done)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, steps)

	ab := &raster.Abort{}
	ab.Stop()
	_, err = Decode(bytes.NewReader(data), &raster.DecodeOptions{Abort: ab})
	assert.ErrorIs(t, err, raster.ErrAborted)
}

func TestDecodeErrors(t *testing.T) {
	t.Run("NotIFF", func(t *testing.T) {
		_, err := Decode(bytes.NewReader([]byte("RIFF....WAVE")), nil)
		assert.True(t, raster.IsFormatMismatch(err))
	})
	t.Run("WrongFormType", func(t *testing.T) {
		data := buildILBM(t)
		copy(data[8:], "AIFF")
		_, err := Decode(bytes.NewReader(data), nil)
		assert.True(t, raster.IsFormatMismatch(err))
	})
	t.Run("DuplicateBMHD", func(t *testing.T) {
		data := buildILBM(t,
			chunk{"BMHD", bmhd(1, 1, 1, maskNone, 0)},
			chunk{"BMHD", bmhd(1, 1, 1, maskNone, 0)},
		)
		_, err := Decode(bytes.NewReader(data), nil)
		var s *raster.StructureError
		assert.ErrorAs(t, err, &s)
	})
	t.Run("BodyBeforeBMHD", func(t *testing.T) {
		data := buildILBM(t, chunk{"BODY", []byte{0, 0}})
		_, err := Decode(bytes.NewReader(data), nil)
		var s *raster.StructureError
		assert.ErrorAs(t, err, &s)
	})
	t.Run("TruncatedBody", func(t *testing.T) {
		data := buildILBM(t,
			chunk{"BMHD", bmhd(16, 2, 1, maskNone, 0)},
			chunk{"BODY", []byte{0x00}},
		)
		_, err := Decode(bytes.NewReader(data), nil)
		var s *raster.StructureError
		assert.ErrorAs(t, err, &s)
	})
	t.Run("BadRunOverPlaneRow", func(t *testing.T) {
		// A replicate run of 100 bytes into a 2-byte plane row.
		data := buildILBM(t,
			chunk{"BMHD", bmhd(16, 1, 1, maskNone, 1)},
			chunk{"BODY", []byte{0x9d, 0xaa}},
		)
		_, err := Decode(bytes.NewReader(data), nil)
		var s *raster.StructureError
		assert.ErrorAs(t, err, &s)
	})
}

func TestUnknownChunkSkipped(t *testing.T) {
	data := buildILBM(t,
		chunk{"BMHD", bmhd(1, 1, 1, maskNone, 0)},
		chunk{"ANNO", []byte("made by a test")}, // odd length, padded
		chunk{"CMAP", []byte{0, 0, 0, 255, 255, 255}},
		chunk{"BODY", []byte{0x80, 0x00}},
	)
	img, err := Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), img.(*raster.Indexed8).At(0, 0))
}
