package rescaler

import (
	"image"
	"math"
	"math/cmplx"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/dsp/fourier"
)

// peakRatio is how strong a shorter period has to be, relative to the strongest candidate, to win.
const peakRatio = 0.5

// edgeProfiles sums the absolute sample differences across every column and row boundary. cols[x] is the
// edge strength between columns x-1 and x, so cols[0] and rows[0] are always zero.
func edgeProfiles(img *image.NRGBA) (cols, rows []float64) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	cols = make([]float64, w)
	rows = make([]float64, h)

	for y := 0; y < h; y++ {
		line := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 1; x < w; x++ {
			cols[x] += distance(line[(x-1)*4:x*4], line[x*4:(x+1)*4])
		}

		if y == 0 {
			continue
		}
		prev := img.Pix[(y-1)*img.Stride : (y-1)*img.Stride+w*4]
		for x := 0; x < w; x++ {
			rows[y] += distance(prev[x*4:(x+1)*4], line[x*4:(x+1)*4])
		}
	}

	return cols, rows
}

func distance(a, b []byte) float64 {
	var d float64
	for i := range a {
		d += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return d
}

// detection is the outcome of looking for a repeating cell size along one axis.
type detection struct {
	size  float64
	flat  bool
	found bool
}

// detectCellSize finds the period of the edge profile. The shortest strong autocorrelation peak at or above
// minSize gives a coarse period, which is then refined against the Fourier spectrum of the profile.
func detectCellSize(profile []float64, minSize float64, peakWidth int) detection {
	total, _ := stats.Sum(profile)
	if total == 0 {
		return detection{flat: true}
	}

	n := len(profile)
	minLag := max(int(math.Ceil(minSize)), 1)
	maxLag := n / 2
	if minLag > maxLag {
		return detection{}
	}

	r := autocorrelation(profile)
	lag, ok := firstPeak(r, minLag, maxLag, peakWidth)
	if !ok {
		return detection{}
	}

	size := float64(lag) + parabolicOffset(r, lag)
	size = refineWithSpectrum(profile, size)

	return detection{size: math.Max(size, minSize), found: true}
}

func centered(profile []float64) []float64 {
	mean, _ := stats.Mean(profile)
	out := make([]float64, len(profile))
	for i, v := range profile {
		out[i] = v - mean
	}
	return out
}

// autocorrelation computes the linear autocorrelation of the mean-free profile through its power spectrum.
// The input is zero padded to twice its length so lags do not wrap around.
func autocorrelation(profile []float64) []float64 {
	n := len(profile)
	padded := make([]float64, 2*n)
	copy(padded, centered(profile))

	fft := fourier.NewFFT(2 * n)
	coeffs := fft.Coefficients(nil, padded)
	for i, c := range coeffs {
		coeffs[i] = complex(real(c)*real(c)+imag(c)*imag(c), 0)
	}

	return fft.Sequence(nil, coeffs)[:n]
}

func firstPeak(r []float64, minLag, maxLag, peakWidth int) (int, bool) {
	window := r[minLag : maxLag+1]
	mean, _ := stats.Mean(window)
	sd, _ := stats.StandardDeviation(window)
	threshold := math.Max(mean+sd, 0)
	half := max(peakWidth/2, 1)

	var peaks []int
	strongest := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		if r[lag] <= threshold || !isLocalMax(r, lag, half) {
			continue
		}
		peaks = append(peaks, lag)
		strongest = math.Max(strongest, r[lag])
	}

	for _, lag := range peaks {
		if r[lag] >= strongest*peakRatio {
			return lag, true
		}
	}

	return 0, false
}

// isLocalMax reports whether r[i] dominates its neighbourhood. Ties resolve towards the smaller index.
func isLocalMax(r []float64, i, half int) bool {
	for j := max(i-half, 1); j <= min(i+half, len(r)-1); j++ {
		if j < i && r[j] >= r[i] {
			return false
		}
		if j > i && r[j] > r[i] {
			return false
		}
	}
	return true
}

// parabolicOffset fits a parabola through v[i-1], v[i], v[i+1] and returns the vertex offset from i.
func parabolicOffset(v []float64, i int) float64 {
	if i <= 0 || i >= len(v)-1 {
		return 0
	}
	a, b, c := v[i-1], v[i], v[i+1]
	denom := a - 2*b + c
	if denom == 0 {
		return 0
	}
	return math.Max(-0.5, math.Min(0.5, 0.5*(a-c)/denom))
}

// refineWithSpectrum looks for the fundamental frequency near n/size and converts it back into a period.
// The coarse estimate is kept when there is no distinct spectral peak or it disagrees by more than a pixel.
func refineWithSpectrum(profile []float64, size float64) float64 {
	n := len(profile)
	if n < 4 || size <= 1 {
		return size
	}

	coeffs := fourier.NewFFT(n).Coefficients(nil, centered(profile))
	mags := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mags[i] = cmplx.Abs(c)
	}

	lo := max(int(math.Floor(float64(n)/(size+1))), 1)
	hi := min(int(math.Ceil(float64(n)/(size-1))), len(mags)-2)
	if lo > hi {
		return size
	}

	best := lo
	for k := lo + 1; k <= hi; k++ {
		if mags[k] > mags[best] {
			best = k
		}
	}

	mean, _ := stats.Mean(mags[1:])
	sd, _ := stats.StandardDeviation(mags[1:])
	if mags[best] <= mean+sd {
		return size
	}

	freq := float64(best) + parabolicOffset(mags, best)
	if freq <= 0 {
		return size
	}

	refined := float64(n) / freq
	if math.Abs(refined-size) > 1 {
		return size
	}
	return refined
}
