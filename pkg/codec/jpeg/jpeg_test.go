package jpeg

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpfielding/raster.go/pkg/raster"
)

func seg(marker byte, body []byte) []byte {
	out := []byte{0xff, marker, byte((len(body) + 2) >> 8), byte(len(body) + 2)}
	return append(out, body...)
}

func jfifAPP0() []byte {
	return seg(mAPP0, []byte{'J', 'F', 'I', 'F', 0, 1, 1, 0, 0, 1, 0, 1, 0, 0})
}

func dht(class, id int, lengths [16]byte, values []byte) []byte {
	body := []byte{byte(class<<4 | id)}
	body = append(body, lengths[:]...)
	return seg(mDHT, append(body, values...))
}

func dqt8(id int, coeff []byte) []byte {
	return seg(mDQT, append([]byte{byte(id)}, coeff...))
}

func sof0(precision, w, h, components int) []byte {
	body := []byte{byte(precision), byte(h >> 8), byte(h), byte(w >> 8), byte(w), byte(components)}
	for i := 0; i < components; i++ {
		body = append(body, byte(i+1), 0x11, byte(i))
	}
	return seg(mSOF0, body)
}

func sos(components int) []byte {
	body := []byte{byte(components)}
	for i := 0; i < components; i++ {
		body = append(body, byte(i+1), 0x00)
	}
	return append(body, 0, 63, 0)
}

// grayStream builds a minimal single-component baseline stream up to SOS.
func grayStream() []byte {
	var lengths [16]byte
	lengths[1] = 2 // two 2-bit codes
	coeff := make([]byte, 64)
	for i := range coeff {
		coeff[i] = byte(i + 1)
	}
	out := []byte{0xff, mSOI}
	out = append(out, jfifAPP0()...)
	out = append(out, dqt8(0, coeff)...)
	out = append(out, dht(0, 0, lengths, []byte{3, 7})...)
	out = append(out, dht(1, 0, lengths, []byte{1, 2})...)
	out = append(out, sof0(8, 320, 240, 1)...)
	out = append(out, seg(mSOS, sos(1))...)
	return out
}

func TestDecodeHeader(t *testing.T) {
	h, err := DecodeHeader(bytes.NewReader(grayStream()))
	require.NoError(t, err)

	assert.Equal(t, 320, h.Width)
	assert.Equal(t, 240, h.Height)
	assert.Equal(t, 8, h.Precision)
	require.Len(t, h.Components, 1)
	assert.Equal(t, 1, h.Components[0].ID)
	assert.Equal(t, 0, h.Components[0].QuantID)

	require.Len(t, h.Quant, 1)
	assert.Equal(t, 8, h.Quant[0].Precision)
	assert.Equal(t, uint16(1), h.Quant[0].Coeff[0])
	assert.Equal(t, uint16(64), h.Quant[0].Coeff[63])

	require.Len(t, h.Huffman, 2)
	assert.Equal(t, 0, h.Huffman[0].Class)
	assert.Equal(t, 1, h.Huffman[1].Class)
	assert.Equal(t, []uint8{3, 7}, h.Huffman[0].Values)
	assert.Equal(t, 2, h.Huffman[0].Lengths[1])

	require.Len(t, h.Scan, 1)
	assert.Equal(t, 0, h.Scan[0].DCTable)
	assert.Equal(t, 0, h.Scan[0].ACTable)
}

func TestDQT16Bit(t *testing.T) {
	coeff := make([]byte, 128)
	coeff[0], coeff[1] = 0x01, 0x23 // first coefficient 0x0123
	coeff[126], coeff[127] = 0xab, 0xcd
	stream := []byte{0xff, mSOI}
	stream = append(stream, seg(mDQT, append([]byte{0x12}, coeff...))...)
	stream = append(stream, sof0(8, 8, 8, 1)...)
	stream = append(stream, seg(mSOS, sos(1))...)

	h, err := DecodeHeader(bytes.NewReader(stream))
	require.NoError(t, err)
	require.Len(t, h.Quant, 1)
	assert.Equal(t, 16, h.Quant[0].Precision)
	assert.Equal(t, 2, h.Quant[0].ID)
	assert.Equal(t, uint16(0x0123), h.Quant[0].Coeff[0])
	assert.Equal(t, uint16(0xabcd), h.Quant[0].Coeff[63])
}

func TestMultipleTablesPerSegment(t *testing.T) {
	// Two quantization tables packed into one DQT marker.
	body := []byte{0x00}
	body = append(body, make([]byte, 64)...)
	body = append(body, 0x01)
	body = append(body, make([]byte, 64)...)
	stream := []byte{0xff, mSOI}
	stream = append(stream, seg(mDQT, body)...)
	stream = append(stream, sof0(8, 8, 8, 1)...)
	stream = append(stream, seg(mSOS, sos(1))...)

	h, err := DecodeHeader(bytes.NewReader(stream))
	require.NoError(t, err)
	require.Len(t, h.Quant, 2)
	assert.Equal(t, 0, h.Quant[0].ID)
	assert.Equal(t, 1, h.Quant[1].ID)
}

func TestRestartInterval(t *testing.T) {
	stream := []byte{0xff, mSOI}
	stream = append(stream, seg(mDRI, []byte{0x00, 0x40})...)
	stream = append(stream, sof0(8, 8, 8, 1)...)
	stream = append(stream, seg(mSOS, sos(1))...)
	h, err := DecodeHeader(bytes.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, 64, h.RestartInterval)
}

func TestFillBytesBeforeMarker(t *testing.T) {
	stream := []byte{0xff, mSOI, 0xff, 0xff, 0xff}
	stream = append(stream, sof0(8, 8, 8, 1)[1:]...) // marker byte follows the fill run
	stream = append(stream, seg(mSOS, sos(1))...)
	_, err := DecodeHeader(bytes.NewReader(stream))
	require.NoError(t, err)
}

func TestDecodeAlwaysUnsupported(t *testing.T) {
	_, err := Decode(bytes.NewReader(grayStream()), nil)
	require.Error(t, err)
	var u *raster.UnsupportedError
	assert.True(t, errors.As(err, &u), "got %v", err)
}

func TestProbe(t *testing.T) {
	assert.True(t, Probe(grayStream()))
	assert.False(t, Probe([]byte{0x89, 'P', 'N', 'G'}))
	assert.False(t, Probe([]byte{0xff}))
}

func TestHeaderErrors(t *testing.T) {
	structure := func(err error) bool { var s *raster.StructureError; return errors.As(err, &s) }
	unsupported := func(err error) bool { var u *raster.UnsupportedError; return errors.As(err, &u) }

	pre := func(segments ...[]byte) []byte {
		out := []byte{0xff, mSOI}
		for _, s := range segments {
			out = append(out, s...)
		}
		return out
	}
	var lengths [16]byte
	lengths[0] = 1

	tests := []struct {
		name string
		data []byte
		want func(error) bool
	}{
		{"NoSOI", []byte{0x00, 0x01, 0x02, 0x03}, raster.IsFormatMismatch},
		{"ProgressiveFrame", pre(seg(mSOF2, []byte{8, 0, 8, 0, 8, 1, 1, 0x11, 0})), unsupported},
		{"TwelveBitPrecision", pre(sof0(12, 8, 8, 1)), unsupported},
		{"ThreeComponents", pre(sof0(8, 8, 8, 3)), unsupported},
		{"BadHuffmanClass", pre(dht(2, 0, lengths, []byte{1})), structure},
		{"BadHuffmanID", pre(dht(0, 5, lengths, []byte{1})), structure},
		{"HuffmanShortOfSymbols", pre(seg(mDHT, append([]byte{0x00}, make([]byte, 16)...))), structure},
		{"BadQuantID", pre(dqt8(9, make([]byte, 64))), structure},
		{"TruncatedQuant", pre(dqt8(0, make([]byte, 20))), structure},
		{"ScanBeforeFrame", pre(seg(mSOS, sos(1))), structure},
		{"ScanSelectorOutOfRange", pre(sof0(8, 8, 8, 1), seg(mSOS, []byte{1, 1, 0x55, 0, 63, 0})), structure},
		{"EOIBeforeScan", pre([]byte{0xff, mEOI}), structure},
		{"GarbageBetweenSegments", pre([]byte{0x12, 0x34}), structure},
		{"TruncatedSegment", pre(sof0(8, 8, 8, 1)[:5]), structure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeHeader(bytes.NewReader(tt.data))
			require.Error(t, err)
			assert.True(t, tt.want(err), "wrong error kind: %v", err)
		})
	}

	_, err := DecodeHeader(nil)
	var m *raster.MissingParameterError
	assert.True(t, errors.As(err, &m))
}
