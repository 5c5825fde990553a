package tiff

import (
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff/lzw"

	"github.com/jpfielding/raster.go/pkg/compress/fax"
	"github.com/jpfielding/raster.go/pkg/compress/packbits"
	"github.com/jpfielding/raster.go/pkg/raster"
)

// Block describes the geometry one decompressor call must produce:
// Width by Height pixels stored as Height rows of RowBytes bytes.
type Block struct {
	Width, Height int
	RowBytes      int
}

// Decompressor turns one tile or strip's compressed bytes into exactly
// blk.Height*blk.RowBytes raw bytes. Compressed input is untrusted; a run
// that would write outside the block must surface as an error, never as an
// out-of-bounds write.
type Decompressor func(r io.Reader, blk Block) ([]byte, error)

var (
	registryMu sync.RWMutex
	registry   = map[int]Decompressor{
		cNone:       decompressNone,
		cFax:        decompressFax,
		cLZW:        decompressLZW,
		cDeflate:    decompressDeflate,
		cPackBits:   decompressPackBits,
		cDeflateOld: decompressDeflate,
		cSGILogRLE:  decompressSGILogRLE,
		cSGILog24:   decompressNone, // packed 24-bit pixels, no compression layer
	}
)

// RegisterDecompressor adds a decompressor for an unclaimed compression id.
// The registry is append-only; replacing an existing entry is refused.
func RegisterDecompressor(id int, dec Decompressor) error {
	if dec == nil {
		return fmt.Errorf("tiff: nil decompressor for compression %d", id)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[id]; exists {
		return fmt.Errorf("tiff: compression %d already registered", id)
	}
	registry[id] = dec
	return nil
}

func lookupDecompressor(id int) (Decompressor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	dec, ok := registry[id]
	return dec, ok
}

func decompressNone(r io.Reader, blk Block) ([]byte, error) {
	dst := make([]byte, blk.Height*blk.RowBytes)
	if _, err := io.ReadFull(r, dst); err != nil {
		return nil, raster.WrapIO(codecName, "reading uncompressed block", err)
	}
	return dst, nil
}

// decompressFax decodes Modified-Huffman runs into one byte per pixel,
// 1 for white. Every row starts on a byte boundary.
func decompressFax(r io.Reader, blk Block) ([]byte, error) {
	fr := fax.NewReader(r)
	dst := make([]byte, blk.Height*blk.RowBytes)
	for y := 0; y < blk.Height; y++ {
		if err := fr.DecodeRow(dst[y*blk.RowBytes : y*blk.RowBytes+blk.Width]); err != nil {
			return nil, raster.StructureAt(codecName, y, 0, "fax decode: %v", err)
		}
	}
	return dst, nil
}

func decompressLZW(r io.Reader, blk Block) ([]byte, error) {
	lr := lzw.NewReader(r, lzw.MSB, 8)
	defer lr.Close()
	dst := make([]byte, blk.Height*blk.RowBytes)
	if _, err := io.ReadFull(lr, dst); err != nil {
		return nil, raster.WrapIO(codecName, "reading LZW block", err)
	}
	return dst, nil
}

func decompressDeflate(r io.Reader, blk Block) ([]byte, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, raster.Structuref(codecName, "bad deflate block: %v", err)
	}
	defer zr.Close()
	dst := make([]byte, blk.Height*blk.RowBytes)
	if _, err := io.ReadFull(zr, dst); err != nil {
		return nil, raster.WrapIO(codecName, "reading deflate block", err)
	}
	return dst, nil
}

func decompressPackBits(r io.Reader, blk Block) ([]byte, error) {
	dst := make([]byte, blk.Height*blk.RowBytes)
	if err := packbits.DecodeReader(r, dst); err != nil {
		return nil, raster.Structuref(codecName, "packbits block: %v", err)
	}
	return dst, nil
}

// decompressSGILogRLE decodes the SGI log RLE scheme: per scanline, each
// of the pixel's bytes (4 for LogLuv, 2 for LogL) is a separately
// run-length-coded planar stream, re-interleaved here.
func decompressSGILogRLE(r io.Reader, blk Block) ([]byte, error) {
	br := asByteReader(r)
	bytesPerPixel := blk.RowBytes / blk.Width
	dst := make([]byte, blk.Height*blk.RowBytes)

	for row := 0; row < blk.Height; row++ {
		rowOffset := row * blk.RowBytes
		for channel := 0; channel < bytesPerPixel; channel++ {
			offset := channel
			remaining := blk.Width
			for remaining > 0 {
				b, err := br.ReadByte()
				if err != nil {
					return nil, raster.StructureAt(codecName, row, 0, "short log RLE stream: %v", err)
				}
				if b&0x80 != 0 {
					// run of one repeated value
					run := int(b) - 126
					if run > remaining {
						return nil, raster.StructureAt(codecName, row, 0, "log RLE run of %d exceeds %d pixels", run, remaining)
					}
					remaining -= run
					v, err := br.ReadByte()
					if err != nil {
						return nil, raster.StructureAt(codecName, row, 0, "short log RLE stream: %v", err)
					}
					for ; run > 0; run-- {
						dst[rowOffset+offset] = v
						offset += bytesPerPixel
					}
				} else {
					run := int(b)
					if run == 0 || run > remaining {
						return nil, raster.StructureAt(codecName, row, 0, "log RLE literal of %d for %d pixels", run, remaining)
					}
					remaining -= run
					for ; run > 0; run-- {
						v, err := br.ReadByte()
						if err != nil {
							return nil, raster.StructureAt(codecName, row, 0, "short log RLE stream: %v", err)
						}
						dst[rowOffset+offset] = v
						offset += bytesPerPixel
					}
				}
			}
		}
	}
	return dst, nil
}

type byteReader interface {
	io.Reader
	io.ByteReader
}

func asByteReader(r io.Reader) byteReader {
	if br, ok := r.(byteReader); ok {
		return br
	}
	return &simpleByteReader{r: r}
}

type simpleByteReader struct {
	r   io.Reader
	one [1]byte
}

func (s *simpleByteReader) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *simpleByteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(s.r, s.one[:]); err != nil {
		return 0, err
	}
	return s.one[0], nil
}
