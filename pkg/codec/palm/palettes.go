package palm

import "github.com/jpfielding/raster.go/pkg/raster"

// Built-in system palettes, selected purely from bit depth when the file
// carries no custom color table. The 4-bpp default is grayscale; the Palm
// format itself leaves gray-versus-color at that depth undocumented.

// palette1 is the implicit 1-bpp table: 0=white, 1=black.
func palette1() *raster.Palette {
	p := raster.NewPalette(2)
	p.SetRGB(0, 255, 255, 255)
	p.SetRGB(1, 0, 0, 0)
	return p
}

// palette2 is the 4-entry gray ramp used at 2 bpp, white first.
func palette2() *raster.Palette {
	p := raster.NewPalette(4)
	for i, v := range []uint8{255, 170, 85, 0} {
		p.SetRGB(i, v, v, v)
	}
	return p
}

// palette4Gray is the 16-entry gray ramp used at 4 bpp, white first.
func palette4Gray() *raster.Palette {
	p := raster.NewPalette(16)
	for i := 0; i < 16; i++ {
		v := uint8(255 - i*17)
		p.SetRGB(i, v, v, v)
	}
	return p
}

// palette4Color is the 16-color system table.
var palette4ColorRGB = [16][3]uint8{
	{255, 255, 255}, {128, 128, 128}, {128, 0, 0}, {128, 128, 0},
	{0, 128, 0}, {0, 128, 128}, {0, 0, 128}, {128, 0, 128},
	{255, 0, 255}, {255, 255, 0}, {0, 255, 255}, {0, 255, 0},
	{255, 0, 0}, {0, 0, 255}, {192, 192, 192}, {0, 0, 0},
}

func palette4Color() *raster.Palette {
	p := raster.NewPalette(16)
	for i, e := range palette4ColorRGB {
		p.SetRGB(i, e[0], e[1], e[2])
	}
	return p
}

// palette8 is the 256-entry system table: the 6x6x6 color cube from white
// down to black, followed by a ramp of intermediate grays and the four
// extra system colors; the remainder is black.
func palette8() *raster.Palette {
	p := raster.NewPalette(256)
	levels := []uint8{255, 204, 153, 102, 51, 0}
	i := 0
	for _, r := range levels {
		for _, g := range levels {
			for _, b := range levels {
				p.SetRGB(i, r, g, b)
				i++
			}
		}
	}
	// Intermediate grays absent from the cube.
	for _, v := range []uint8{238, 221, 187, 170, 136, 119, 85, 68, 34, 17} {
		p.SetRGB(i, v, v, v)
		i++
	}
	// Extra system colors.
	for _, e := range [][3]uint8{{192, 192, 192}, {128, 0, 0}, {128, 0, 128}, {0, 128, 0}, {0, 128, 128}} {
		p.SetRGB(i, e[0], e[1], e[2])
		i++
	}
	return p
}
