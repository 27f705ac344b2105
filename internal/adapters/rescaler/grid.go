package rescaler

import (
	"math"
	"slices"
)

// gridLines places a boundary every size pixels along an axis, shifted by the offset whose lines collect
// the most edge strength. The result starts at 0 and ends at len(profile). Slivers narrower than half a
// cell at either end are merged into their neighbour.
func gridLines(profile []float64, size float64) []int {
	n := len(profile)
	if size >= float64(n) {
		return []int{0, n}
	}

	offset, bestScore := 0.0, -1.0
	for o := 0; o < int(math.Ceil(size)); o++ {
		score := 0.0
		for pos := float64(o); pos < float64(n); pos += size {
			if i := int(math.Round(pos)); i > 0 && i < n {
				score += profile[i]
			}
		}
		if score > bestScore {
			offset, bestScore = float64(o), score
		}
	}

	minGap := max(int(math.Round(size/2)), 1)
	lines := []int{0}
	for pos := offset; pos < float64(n); pos += size {
		i := int(math.Round(pos))
		if i-lines[len(lines)-1] < minGap {
			continue
		}
		if n-i < minGap {
			break
		}
		lines = append(lines, i)
	}

	return append(lines, n)
}

// evenLines splits an axis of length n into count cells of near-equal width.
func evenLines(n, count int) []int {
	lines := make([]int, count+1)
	for i := range lines {
		lines[i] = int(math.Round(float64(i) * float64(n) / float64(count)))
	}
	return lines
}

// refineLines nudges every interior line towards the strongest edge within intensity*size/2 pixels.
// Lines never cross or touch their neighbours.
func refineLines(lines []int, profile []float64, intensity, size float64) []int {
	radius := int(math.Round(intensity * size / 2))
	if radius <= 0 || len(lines) < 3 {
		return lines
	}

	out := slices.Clone(lines)
	for i := 1; i < len(out)-1; i++ {
		lo := max(out[i]-radius, out[i-1]+1)
		hi := min(out[i]+radius, lines[i+1]-1)

		best := out[i]
		for p := lo; p <= hi; p++ {
			if profile[p] > profile[best] {
				best = p
			}
		}
		out[i] = best
	}

	return out
}

// squareCells reconciles the two axes when cells are known to be square. Sizes that roughly agree are
// averaged; otherwise one axis probably locked onto a multiple of the cell and the finer size wins.
func squareCells(x, y float64) (float64, float64) {
	lo, hi := math.Min(x, y), math.Max(x, y)
	if hi <= lo*1.25 {
		avg := (x + y) / 2
		return avg, avg
	}
	return lo, lo
}
