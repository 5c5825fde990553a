// Package giflzw implements the variable-code-width LZW compressor used by
// the GIF pixel stream: codes start at the pixel bit depth plus one (minimum
// 3), grow to 12 bits, and the dictionary is cleared when 4096 entries are
// exhausted. Output is framed as GIF sub-blocks of at most 255 bytes, with
// the leading code-size byte and a zero-length terminator.
package giflzw

import "io"

const (
	maxBits   = 12
	tableSize = 5003 // hash table size, about 80% occupancy at 4096 codes
)

var masks = [17]int{
	0x0000, 0x0001, 0x0003, 0x0007, 0x000f, 0x001f,
	0x003f, 0x007f, 0x00ff, 0x01ff, 0x03ff, 0x07ff,
	0x0fff, 0x1fff, 0x3fff, 0x7fff, 0xffff,
}

func maxCode(nBits int) int { return 1<<nBits - 1 }

// Encode compresses pixels (one byte each, values below 1<<colorDepth) and
// writes the complete GIF image data section: initial code size byte,
// sub-blocks, and the zero terminator.
func Encode(w io.Writer, pixels []byte, colorDepth int) error {
	initCodeSize := colorDepth
	if initCodeSize < 2 {
		initCodeSize = 2
	}
	if _, err := w.Write([]byte{byte(initCodeSize)}); err != nil {
		return err
	}
	e := &encoder{w: w, pixels: pixels}
	if err := e.compress(initCodeSize + 1); err != nil {
		return err
	}
	_, err := w.Write([]byte{0})
	return err
}

type encoder struct {
	w      io.Writer
	pixels []byte
	pos    int

	// bit packer
	curAccum int
	curBits  int
	nBits    int
	maxcode  int

	// sub-block accumulator
	accum  [256]byte
	aCount int

	initBits  int
	clearCode int
	eofCode   int
	freeEnt   int
	clearFlg  bool

	htab    [tableSize]int
	codetab [tableSize]int
}

func (e *encoder) nextPixel() int {
	if e.pos >= len(e.pixels) {
		return -1
	}
	p := e.pixels[e.pos]
	e.pos++
	return int(p)
}

func (e *encoder) flush() error {
	if e.aCount == 0 {
		return nil
	}
	if _, err := e.w.Write([]byte{byte(e.aCount)}); err != nil {
		return err
	}
	if _, err := e.w.Write(e.accum[:e.aCount]); err != nil {
		return err
	}
	e.aCount = 0
	return nil
}

func (e *encoder) charOut(c byte) error {
	e.accum[e.aCount] = c
	e.aCount++
	if e.aCount >= 254 {
		return e.flush()
	}
	return nil
}

func (e *encoder) output(code int) error {
	e.curAccum &= masks[e.curBits]
	if e.curBits > 0 {
		e.curAccum |= code << e.curBits
	} else {
		e.curAccum = code
	}
	e.curBits += e.nBits

	for e.curBits >= 8 {
		if err := e.charOut(byte(e.curAccum & 0xff)); err != nil {
			return err
		}
		e.curAccum >>= 8
		e.curBits -= 8
	}

	// Grow the code width once the next entry would not fit, or reset it
	// after a clear code.
	if e.freeEnt > e.maxcode || e.clearFlg {
		if e.clearFlg {
			e.nBits = e.initBits
			e.maxcode = maxCode(e.nBits)
			e.clearFlg = false
		} else {
			e.nBits++
			if e.nBits == maxBits {
				e.maxcode = 1 << maxBits
			} else {
				e.maxcode = maxCode(e.nBits)
			}
		}
	}

	if code == e.eofCode {
		for e.curBits > 0 {
			if err := e.charOut(byte(e.curAccum & 0xff)); err != nil {
				return err
			}
			e.curAccum >>= 8
			e.curBits -= 8
		}
		return e.flush()
	}
	return nil
}

func (e *encoder) clearTable() error {
	for i := range e.htab {
		e.htab[i] = -1
	}
	e.freeEnt = e.clearCode + 2
	e.clearFlg = true
	return e.output(e.clearCode)
}

func (e *encoder) compress(initBits int) error {
	e.initBits = initBits
	e.nBits = initBits
	e.maxcode = maxCode(e.nBits)
	e.clearCode = 1 << (initBits - 1)
	e.eofCode = e.clearCode + 1
	e.freeEnt = e.clearCode + 2

	hshift := 0
	for n := tableSize; n < 65536; n *= 2 {
		hshift++
	}
	hshift = 8 - hshift

	for i := range e.htab {
		e.htab[i] = -1
	}

	ent := e.nextPixel()
	if err := e.output(e.clearCode); err != nil {
		return err
	}
	if ent < 0 {
		return e.output(e.eofCode)
	}

outer:
	for {
		c := e.nextPixel()
		if c < 0 {
			break
		}

		fcode := c<<maxBits + ent
		i := c<<uint(hshift) ^ ent // xor hashing

		if e.htab[i] == fcode {
			ent = e.codetab[i]
			continue
		}
		if e.htab[i] >= 0 {
			// secondary hash, after G. Knott
			disp := tableSize - i
			if i == 0 {
				disp = 1
			}
			for {
				i -= disp
				if i < 0 {
					i += tableSize
				}
				if e.htab[i] == fcode {
					ent = e.codetab[i]
					continue outer
				}
				if e.htab[i] < 0 {
					break
				}
			}
		}

		if err := e.output(ent); err != nil {
			return err
		}
		ent = c

		if e.freeEnt < 1<<maxBits {
			e.codetab[i] = e.freeEnt
			e.freeEnt++
			e.htab[i] = fcode
		} else if err := e.clearTable(); err != nil {
			return err
		}
	}

	if err := e.output(ent); err != nil {
		return err
	}
	return e.output(e.eofCode)
}
