package png

// Adam7 pass geometry: first column, first row, column stride, row stride.
type pass struct {
	x0, y0, dx, dy int
}

var adam7 = [7]pass{
	{0, 0, 8, 8},
	{4, 0, 8, 8},
	{0, 4, 4, 8},
	{2, 4, 4, 8},
	{0, 2, 8, 4},
	{1, 2, 2, 4},
	{0, 1, 1, 2},
}

// size reports how many columns and rows of a w by h image fall into the
// pass. Either count can be zero; such a pass carries no scanlines at all.
func (p pass) size(w, h int) (pw, ph int) {
	pw = (w - p.x0 + p.dx - 1) / p.dx
	ph = (h - p.y0 + p.dy - 1) / p.dy
	if pw < 0 {
		pw = 0
	}
	if ph < 0 {
		ph = 0
	}
	return pw, ph
}
