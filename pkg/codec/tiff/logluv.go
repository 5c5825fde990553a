package tiff

import "math"

// SGI log color space decoding. The 32-bit pixel carries a sign bit and a
// 15-bit log-encoded luminance over two chroma bytes in CIE (u',v'); the
// 16-bit LogL pixel is the luminance part alone. The 24-bit packed variant
// holds a 10-bit luminance and a 14-bit joint chroma index; the index is
// treated as a uniform 128x128 quantization of the (u',v') square here
// rather than the gamut-packed lookup table real writers use.

const (
	uvQuant = 0.62 / 128
)

// logLtoY decodes a 15-bit log luminance.
func logLtoY(le uint16) float64 {
	le &= 0x7fff
	if le == 0 {
		return 0
	}
	return math.Exp2((float64(le)+0.5)/256 - 64)
}

// logL10toY decodes the 10-bit luminance of the 24-bit packed format.
func logL10toY(le uint16) float64 {
	le &= 0x3ff
	if le == 0 {
		return 0
	}
	return math.Exp2((float64(le)+0.5)/64 - 12)
}

// luvToXYZ converts a luminance plus (u',v') chromaticity to CIE XYZ.
func luvToXYZ(y, u, v float64) (X, Y, Z float64) {
	if v <= 0 {
		return 0, y, 0
	}
	return 9 * u / (4 * v) * y, y, (12 - 3*u - 20*v) / (4 * v) * y
}

// logLuv32ToXYZ decodes one 32-bit LogLuv pixel from its four bytes, most
// significant first.
func logLuv32ToXYZ(b0, b1, b2, b3 uint8) (X, Y, Z float64) {
	y := logLtoY(uint16(b0)<<8 | uint16(b1))
	u := (float64(b2) + 0.5) / 410
	v := (float64(b3) + 0.5) / 410
	return luvToXYZ(y, u, v)
}

// logLuv24ToXYZ decodes one 24-bit packed pixel.
func logLuv24ToXYZ(b0, b1, b2 uint8) (X, Y, Z float64) {
	word := uint32(b0)<<16 | uint32(b1)<<8 | uint32(b2)
	y := logL10toY(uint16(word >> 14))
	ce := word & 0x3fff
	u := (float64(ce%128) + 0.5) * uvQuant
	v := (float64(ce/128) + 0.5) * uvQuant
	return luvToXYZ(y, u, v)
}

// xyzToRGB8 converts CIE XYZ to clamped 8-bit sRGB.
func xyzToRGB8(X, Y, Z float64) (r, g, b uint8) {
	return srgb8(3.2406*X - 1.5372*Y - 0.4986*Z),
		srgb8(-0.9689*X + 1.8758*Y + 0.0415*Z),
		srgb8(0.0557*X - 0.2040*Y + 1.0570*Z)
}

// srgb8 gamma-encodes one linear component and scales it to a byte.
func srgb8(c float64) uint8 {
	switch {
	case c <= 0:
		return 0
	case c >= 1:
		return 255
	}
	if c <= 0.0031308 {
		c = 12.92 * c
	} else {
		c = 1.055*math.Pow(c, 1/2.4) - 0.055
	}
	return uint8(c*255 + 0.5)
}
