package png

// Scanline filter types.
const (
	ftNone    = 0
	ftSub     = 1
	ftUp      = 2
	ftAverage = 3
	ftPaeth   = 4
)

// paeth picks whichever of left, up and upper-left is closest to the
// linear predictor a+b-c, ties broken left then up.
func paeth(a, b, c uint8) uint8 {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// unfilter reverses a scanline filter in place. prev is the reconstructed
// previous row of the same pass, all zero for the first row. bpp is the
// byte stride back to the previous pixel, at least 1 even for sub-byte
// depths.
func unfilter(ft uint8, cur, prev []byte, bpp int) bool {
	switch ft {
	case ftNone:
	case ftSub:
		for i := bpp; i < len(cur); i++ {
			cur[i] += cur[i-bpp]
		}
	case ftUp:
		for i := range cur {
			cur[i] += prev[i]
		}
	case ftAverage:
		for i := 0; i < bpp; i++ {
			cur[i] += prev[i] / 2
		}
		for i := bpp; i < len(cur); i++ {
			cur[i] += uint8((int(cur[i-bpp]) + int(prev[i])) / 2)
		}
	case ftPaeth:
		for i := 0; i < bpp; i++ {
			cur[i] += paeth(0, prev[i], 0)
		}
		for i := bpp; i < len(cur); i++ {
			cur[i] += paeth(cur[i-bpp], prev[i], prev[i-bpp])
		}
	default:
		return false
	}
	return true
}

// filterRow applies a filter forward, writing the filtered bytes to dst.
// cur and prev hold raw (unfiltered) rows.
func filterRow(ft uint8, dst, cur, prev []byte, bpp int) {
	switch ft {
	case ftNone:
		copy(dst, cur)
	case ftSub:
		copy(dst[:bpp], cur[:bpp])
		for i := bpp; i < len(cur); i++ {
			dst[i] = cur[i] - cur[i-bpp]
		}
	case ftUp:
		for i := range cur {
			dst[i] = cur[i] - prev[i]
		}
	case ftAverage:
		for i := 0; i < bpp; i++ {
			dst[i] = cur[i] - prev[i]/2
		}
		for i := bpp; i < len(cur); i++ {
			dst[i] = cur[i] - uint8((int(cur[i-bpp])+int(prev[i]))/2)
		}
	case ftPaeth:
		for i := 0; i < bpp; i++ {
			dst[i] = cur[i] - paeth(0, prev[i], 0)
		}
		for i := bpp; i < len(cur); i++ {
			dst[i] = cur[i] - paeth(cur[i-bpp], prev[i], prev[i-bpp])
		}
	}
}

// chooseFilter picks the filter with the smallest sum of absolute filtered
// values, the usual minimum-sum-of-differences heuristic. dst receives the
// filtered row for the winner.
func chooseFilter(dst, cur, prev, scratch []byte, bpp int) uint8 {
	best := uint8(ftNone)
	bestSum := -1
	for ft := uint8(ftNone); ft <= ftPaeth; ft++ {
		filterRow(ft, scratch, cur, prev, bpp)
		sum := 0
		for _, v := range scratch {
			sum += abs(int(int8(v)))
		}
		if bestSum < 0 || sum < bestSum {
			best, bestSum = ft, sum
			copy(dst, scratch)
		}
	}
	return best
}
