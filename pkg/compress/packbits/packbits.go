// Package packbits implements the PackBits byte run-length scheme used by
// TIFF, PSD and Palm: a signed control byte n, followed by n+1 literal bytes
// when n >= 0, or one byte repeated 1-n times when n < 0; n == -128 is a
// no-op. Decoders treat the compressed stream as adversarial: a run may
// never write past the destination, truncation is an error.
package packbits

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrOverrun reports a run that would write past the destination buffer.
var ErrOverrun = errors.New("packbits: run exceeds destination")

// Decode expands src into dst and returns the number of src bytes consumed.
// Decoding stops once dst is full; a run that would cross the end of dst, or
// a src that ends mid-run or before dst is full, is an error.
func Decode(src, dst []byte) (int, error) {
	i, o := 0, 0
	for o < len(dst) {
		if i >= len(src) {
			return i, fmt.Errorf("packbits: compressed data truncated (have %d of %d output bytes)", o, len(dst))
		}
		n := int8(src[i])
		i++
		switch {
		case n == -128:
			// No-op.
		case n >= 0:
			count := int(n) + 1
			if o+count > len(dst) {
				return i, fmt.Errorf("%w: literal of %d at output %d/%d", ErrOverrun, count, o, len(dst))
			}
			if i+count > len(src) {
				return i, fmt.Errorf("packbits: compressed data truncated in literal run (need %d, have %d)", count, len(src)-i)
			}
			copy(dst[o:], src[i:i+count])
			i += count
			o += count
		default:
			count := 1 - int(n)
			if o+count > len(dst) {
				return i, fmt.Errorf("%w: replicate of %d at output %d/%d", ErrOverrun, count, o, len(dst))
			}
			if i >= len(src) {
				return i, errors.New("packbits: compressed data truncated in replicate run")
			}
			v := src[i]
			i++
			for k := 0; k < count; k++ {
				dst[o] = v
				o++
			}
		}
	}
	return i, nil
}

// DecodeReader expands exactly len(dst) bytes from r, leaving r positioned
// just past the last control byte consumed. Used by codecs that decode rows
// in place from a stream and must keep the stream position exact.
func DecodeReader(r io.Reader, dst []byte) error {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	o := 0
	for o < len(dst) {
		b, err := br.ReadByte()
		if err != nil {
			return fmt.Errorf("packbits: reading control byte at output %d: %w", o, err)
		}
		n := int8(b)
		switch {
		case n == -128:
			// No-op.
		case n >= 0:
			count := int(n) + 1
			if o+count > len(dst) {
				return fmt.Errorf("%w: literal of %d at output %d/%d", ErrOverrun, count, o, len(dst))
			}
			for k := 0; k < count; k++ {
				if dst[o], err = br.ReadByte(); err != nil {
					return fmt.Errorf("packbits: truncated literal run at output %d: %w", o, err)
				}
				o++
			}
		default:
			count := 1 - int(n)
			if o+count > len(dst) {
				return fmt.Errorf("%w: replicate of %d at output %d/%d", ErrOverrun, count, o, len(dst))
			}
			v, err := br.ReadByte()
			if err != nil {
				return fmt.Errorf("packbits: truncated replicate run at output %d: %w", o, err)
			}
			for k := 0; k < count; k++ {
				dst[o] = v
				o++
			}
		}
	}
	return nil
}

// Encode compresses data. Runs of two or more identical bytes become
// replicate runs; everything else is emitted as literals, broken before any
// three-byte run.
func Encode(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	var buf bytes.Buffer
	i := 0
	for i < len(data) {
		runLen := 1
		for i+runLen < len(data) && runLen < 128 && data[i+runLen] == data[i] {
			runLen++
		}
		if runLen > 1 {
			buf.WriteByte(byte(int8(-(runLen - 1))))
			buf.WriteByte(data[i])
			i += runLen
			continue
		}
		litLen := 1
		for i+litLen < len(data) && litLen < 128 {
			if i+litLen+2 < len(data) &&
				data[i+litLen] == data[i+litLen+1] &&
				data[i+litLen] == data[i+litLen+2] {
				break
			}
			litLen++
		}
		buf.WriteByte(byte(int8(litLen - 1)))
		buf.Write(data[i : i+litLen])
		i += litLen
	}
	return buf.Bytes()
}
