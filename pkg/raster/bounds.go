package raster

import "fmt"

// Bounds restricts decoding to a sub-rectangle of the full image. All four
// coordinates are inclusive: x1 <= x2 < width, y1 <= y2 < height.
type Bounds struct {
	X1, Y1, X2, Y2 int
}

// FullBounds covers an entire w x h image.
func FullBounds(w, h int) Bounds {
	return Bounds{X1: 0, Y1: 0, X2: w - 1, Y2: h - 1}
}

// Width reports the number of columns covered.
func (b Bounds) Width() int { return b.X2 - b.X1 + 1 }

// Height reports the number of rows covered.
func (b Bounds) Height() int { return b.Y2 - b.Y1 + 1 }

// ContainsRow reports whether image row y falls inside the bounds.
func (b Bounds) ContainsRow(y int) bool { return y >= b.Y1 && y <= b.Y2 }

// Validate checks the bounds against the full image geometry.
func (b Bounds) Validate(w, h int) error {
	if b.X1 < 0 || b.Y1 < 0 || b.X1 > b.X2 || b.Y1 > b.Y2 || b.X2 >= w || b.Y2 >= h {
		return &StructureError{Msg: fmt.Sprintf("bounds (%d,%d)-(%d,%d) outside %dx%d image", b.X1, b.Y1, b.X2, b.Y2, w, h)}
	}
	return nil
}

// EffectiveBounds resolves an optional caller-supplied bounds against the
// full image geometry, defaulting to the whole image.
func EffectiveBounds(opt *Bounds, w, h int) (Bounds, error) {
	if opt == nil {
		return FullBounds(w, h), nil
	}
	if err := opt.Validate(w, h); err != nil {
		return Bounds{}, err
	}
	return *opt, nil
}
