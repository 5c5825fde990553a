package packbits

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBytes(v byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func makeSequence(start byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"Single", []byte{0xAA}},
		{"Run2", []byte{0xAA, 0xAA}},
		{"Run3", []byte{0xAA, 0xAA, 0xAA}},
		{"Literal", []byte{0x01, 0x02, 0x03}},
		{"Mixed", []byte{0xAA, 0xAA, 0xAA, 0x01, 0x02, 0xBB, 0xBB}},
		{"LongRun", makeBytes(0xCC, 130)},
		{"LongLiteral", makeSequence(0, 130)},
		{"MaxRun", makeBytes(0xAA, 128)},
		{"MaxRunPlus1", makeBytes(0xAA, 129)},
		{"MaxLiteral", makeSequence(0, 128)},
		{"Alternating", []byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compressed := Encode(tt.data)
			dst := make([]byte, len(tt.data))
			n, err := Decode(compressed, dst)
			require.NoError(t, err)
			assert.Equal(t, len(compressed), n, "should consume entire compressed stream")
			assert.Equal(t, tt.data, dst, "roundtrip mismatch")
		})
	}
}

func TestDecodeReaderMatchesDecode(t *testing.T) {
	data := []byte{0xAA, 0xAA, 0xAA, 0xAA, 0x01, 0x02, 0x03, 0x07, 0x07}
	compressed := Encode(data)

	dst := make([]byte, len(data))
	require.NoError(t, DecodeReader(bytes.NewReader(compressed), dst))
	assert.Equal(t, data, dst)
}

func TestDecodeGuardsDestination(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		dst   int
	}{
		// Replicate run of 6 into a 4-byte row.
		{"ReplicateOverrun", []byte{0xFB, 0xAA}, 4},
		// Literal of 6 into a 4-byte row.
		{"LiteralOverrun", []byte{0x05, 1, 2, 3, 4, 5, 6}, 4},
		// Second run crosses the boundary.
		{"SecondRunOverrun", []byte{0x01, 1, 2, 0xFD, 0xBB}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]byte, tt.dst+2)
			guard := dst[tt.dst:]
			guard[0], guard[1] = 0xDE, 0xAD
			_, err := Decode(tt.input, dst[:tt.dst])
			require.ErrorIs(t, err, ErrOverrun)
			assert.Equal(t, []byte{0xDE, 0xAD}, guard, "overrun must not touch adjacent memory")

			err = DecodeReader(bytes.NewReader(tt.input), dst[:tt.dst])
			require.ErrorIs(t, err, ErrOverrun)
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		dst   int
	}{
		{"TruncatedLiteral", []byte{0x02, 0x01}, 3},
		{"TruncatedReplicate", []byte{0xFE}, 3},
		{"EmptyInput", nil, 1},
		{"ShortStream", []byte{0x00, 0x01}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input, make([]byte, tt.dst))
			assert.Error(t, err)

			err = DecodeReader(bytes.NewReader(tt.input), make([]byte, tt.dst))
			assert.Error(t, err)
		})
	}
}

func TestDecodeNoOpByte(t *testing.T) {
	// -128 control bytes are skipped.
	dst := make([]byte, 2)
	n, err := Decode([]byte{0x80, 0x80, 0x01, 0x0A, 0x0B}, dst)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte{0x0A, 0x0B}, dst)
}
