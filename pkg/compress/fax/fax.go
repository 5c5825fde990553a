// Package fax decodes ITU-T T.4 Modified Huffman (Group 3 one-dimensional)
// run-length data, the bilevel compression used by TIFF compression type 2.
// A row is an alternating sequence of white and black runs, starting white;
// runs of 64 or more are encoded as a make-up code immediately followed by a
// terminating code, and both contribute to one total run.
package fax

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// ErrBadCode reports input bits that match no codeword of the expected color.
var ErrBadCode = errors.New("fax: no matching run-length code")

// Reader reads single bits MSB-first from a byte stream.
type Reader struct {
	br   io.ByteReader
	cur  byte
	left int
}

// NewReader wraps r for bit-level reads.
func NewReader(r io.Reader) *Reader {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{br: br}
}

// ReadBit returns the next bit, MSB of the current byte first.
func (r *Reader) ReadBit() (int, error) {
	if r.left == 0 {
		b, err := r.br.ReadByte()
		if err != nil {
			return 0, err
		}
		r.cur = b
		r.left = 8
	}
	r.left--
	return int(r.cur>>uint(r.left)) & 1, nil
}

// Align discards buffered bits so the next read starts on a byte boundary.
// Modified Huffman rows in TIFF are byte-aligned.
func (r *Reader) Align() { r.left = 0 }

// readRun matches one codeword of the given color by accumulating bits until
// the (length, value) pair appears in the lookup table.
func (r *Reader) readRun(white bool) (int, error) {
	runs := blackRuns
	if white {
		runs = whiteRuns
	}
	value := 0
	for bits := 1; bits <= maxCodeBits; bits++ {
		b, err := r.ReadBit()
		if err != nil {
			return 0, fmt.Errorf("fax: truncated codeword after %d bits: %w", bits-1, err)
		}
		value = value<<1 | b
		if run, ok := runs[key(bits, value)]; ok {
			return run, nil
		}
	}
	return 0, fmt.Errorf("%w (read %013b)", ErrBadCode, value)
}

// DecodeRun returns the next complete run length of the given color,
// accumulating a make-up code (run >= 64) with its mandatory terminating
// code.
func (r *Reader) DecodeRun(white bool) (int, error) {
	run, err := r.readRun(white)
	if err != nil {
		return 0, err
	}
	total := run
	for run >= 64 {
		if run, err = r.readRun(white); err != nil {
			return 0, fmt.Errorf("fax: make-up code without terminating code: %w", err)
		}
		total += run
	}
	return total, nil
}

// DecodeRow fills dst with one row of samples (0=black, 1=white), alternating
// colors starting with white. A run crossing the end of the row is an error.
// The reader is byte-aligned afterwards.
func (r *Reader) DecodeRow(dst []uint8) error {
	x := 0
	white := true
	for x < len(dst) {
		run, err := r.DecodeRun(white)
		if err != nil {
			return err
		}
		if x+run > len(dst) {
			return fmt.Errorf("fax: run of %d overruns row at column %d of %d", run, x, len(dst))
		}
		v := uint8(0)
		if white {
			v = 1
		}
		for i := 0; i < run; i++ {
			dst[x] = v
			x++
		}
		white = !white
	}
	r.Align()
	return nil
}
