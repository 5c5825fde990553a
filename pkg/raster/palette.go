package raster

// Palette is an ordered list of RGB triples, 1 to 256 entries, each sample
// in [0, Max]. A palette belongs to the codec that builds it until it is
// attached to an image; after attachment it is shared read-only.
type Palette struct {
	// Max is the declared maximum of each sample, usually 255.
	Max int
	rgb [][3]uint8
}

// NewPalette allocates a palette with n black entries and max sample 255.
func NewPalette(n int) *Palette {
	return &Palette{Max: 255, rgb: make([][3]uint8, n)}
}

// PaletteFrom builds a palette from interleaved R,G,B byte triples.
func PaletteFrom(rgb []uint8) *Palette {
	p := NewPalette(len(rgb) / 3)
	for i := range p.rgb {
		p.rgb[i] = [3]uint8{rgb[i*3], rgb[i*3+1], rgb[i*3+2]}
	}
	return p
}

// Len reports the number of entries.
func (p *Palette) Len() int { return len(p.rgb) }

// RGB returns the i-th entry.
func (p *Palette) RGB(i int) (r, g, b uint8) {
	e := p.rgb[i]
	return e[0], e[1], e[2]
}

// SetRGB stores the i-th entry, clamping each sample to Max.
func (p *Palette) SetRGB(i int, r, g, b uint8) {
	m := uint8(p.Max)
	if r > m {
		r = m
	}
	if g > m {
		g = m
	}
	if b > m {
		b = m
	}
	p.rgb[i] = [3]uint8{r, g, b}
}

// Clone returns an independent copy; used by codecs that rewrite a palette
// (EHB doubling) before attaching it.
func (p *Palette) Clone() *Palette {
	c := &Palette{Max: p.Max, rgb: make([][3]uint8, len(p.rgb))}
	copy(c.rgb, p.rgb)
	return c
}

// GrayPalette builds an n-entry ramp from black to white, used by formats
// whose gray images are stored as palette indices.
func GrayPalette(n int) *Palette {
	p := NewPalette(n)
	for i := 0; i < n; i++ {
		v := uint8(i * 255 / (n - 1))
		p.rgb[i] = [3]uint8{v, v, v}
	}
	return p
}
