package giflzw

import (
	"bytes"
	"compress/lzw"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unframe strips the leading code-size byte and the sub-block framing,
// returning the raw LZW code stream and the code size.
func unframe(t *testing.T, b []byte) (int, []byte) {
	t.Helper()
	require.NotEmpty(t, b)
	codeSize := int(b[0])
	b = b[1:]
	var raw bytes.Buffer
	for {
		require.NotEmpty(t, b, "missing block terminator")
		n := int(b[0])
		b = b[1:]
		if n == 0 {
			break
		}
		require.GreaterOrEqual(t, len(b), n, "truncated sub-block")
		raw.Write(b[:n])
		b = b[n:]
	}
	assert.Empty(t, b, "trailing bytes after block terminator")
	return codeSize, raw.Bytes()
}

// The stdlib LZW reader in LSB order implements the GIF dialect and serves
// as the reference decoder.
func referenceDecode(t *testing.T, codeSize int, raw []byte, want int) []byte {
	t.Helper()
	r := lzw.NewReader(bytes.NewReader(raw), lzw.LSB, codeSize)
	defer r.Close()
	out := make([]byte, want)
	_, err := io.ReadFull(r, out)
	require.NoError(t, err)
	return out
}

func TestEncodeAgainstReferenceDecoder(t *testing.T) {
	tests := []struct {
		name       string
		pixels     []byte
		colorDepth int
	}{
		{"SinglePixel", []byte{3}, 8},
		{"Run", bytes.Repeat([]byte{7}, 300), 8},
		{"Ramp", rampPixels(256), 8},
		{"TwoBit", []byte{0, 1, 2, 3, 3, 2, 1, 0, 0, 0}, 2},
		{"OneBitPromoted", []byte{0, 1, 0, 1, 1, 1, 0}, 1},
		{"LargeNoise", noisePixels(20000), 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, tt.pixels, tt.colorDepth))

			codeSize, raw := unframe(t, buf.Bytes())
			wantSize := tt.colorDepth
			if wantSize < 2 {
				wantSize = 2 // GIF minimum code size
			}
			assert.Equal(t, wantSize, codeSize)

			got := referenceDecode(t, codeSize, raw, len(tt.pixels))
			assert.Equal(t, tt.pixels, got)
		})
	}
}

func TestSubBlockFraming(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, noisePixels(65536), 8))

	b := buf.Bytes()[1:]
	for {
		n := int(b[0])
		b = b[1:]
		if n == 0 {
			break
		}
		assert.LessOrEqual(t, n, 255)
		b = b[n:]
	}
	assert.Empty(t, b)
}

func rampPixels(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i)
	}
	return p
}

// noisePixels is a deterministic pseudo-random pixel stream; enough to force
// dictionary exhaustion and a clear code.
func noisePixels(n int) []byte {
	p := make([]byte, n)
	state := uint32(0x2545f491)
	for i := range p {
		state ^= state << 13
		state ^= state >> 17
		state ^= state << 5
		p[i] = byte(state)
	}
	return p
}
