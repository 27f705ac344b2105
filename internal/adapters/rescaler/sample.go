package rescaler

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/montanaflynn/stats"

	"perfectpixel/internal/core/domain"
)

type cell struct {
	x0, x1, y0, y1 int
}

type sampler func(img *image.NRGBA, c cell) color.NRGBA

func samplerFor(method domain.SampleMethod) (sampler, error) {
	switch method {
	case domain.SampleCenter:
		return centerColor, nil
	case domain.SampleMedian:
		return medianColor, nil
	case domain.SampleMajority:
		return majorityColor, nil
	default:
		return nil, fmt.Errorf("unknown sample method %q", method)
	}
}

// sampleCells reduces every cell between consecutive xs and ys to one output pixel.
func sampleCells(img *image.NRGBA, xs, ys []int, method domain.SampleMethod) (*image.NRGBA, error) {
	pick, err := samplerFor(method)
	if err != nil {
		return nil, err
	}

	out := image.NewNRGBA(image.Rect(0, 0, len(xs)-1, len(ys)-1))
	for cy := 0; cy < len(ys)-1; cy++ {
		for cx := 0; cx < len(xs)-1; cx++ {
			out.SetNRGBA(cx, cy, pick(img, cell{x0: xs[cx], x1: xs[cx+1], y0: ys[cy], y1: ys[cy+1]}))
		}
	}

	return out, nil
}

func centerColor(img *image.NRGBA, c cell) color.NRGBA {
	return img.NRGBAAt((c.x0+c.x1-1)/2, (c.y0+c.y1-1)/2)
}

// medianColor takes the per-channel median, so the result is not necessarily a colour present in the cell.
func medianColor(img *image.NRGBA, c cell) color.NRGBA {
	n := (c.x1 - c.x0) * (c.y1 - c.y0)
	var channels [4]stats.Float64Data
	for i := range channels {
		channels[i] = make(stats.Float64Data, 0, n)
	}

	for y := c.y0; y < c.y1; y++ {
		for x := c.x0; x < c.x1; x++ {
			px := img.NRGBAAt(x, y)
			channels[0] = append(channels[0], float64(px.R))
			channels[1] = append(channels[1], float64(px.G))
			channels[2] = append(channels[2], float64(px.B))
			channels[3] = append(channels[3], float64(px.A))
		}
	}

	var out [4]uint8
	for i, ch := range channels {
		m, err := stats.Median(ch)
		if err != nil {
			continue
		}
		out[i] = uint8(math.Round(m))
	}

	return color.NRGBA{R: out[0], G: out[1], B: out[2], A: out[3]}
}

// majorityColor returns the most frequent colour. Ties go to the colour that reached the count first.
func majorityColor(img *image.NRGBA, c cell) color.NRGBA {
	counts := make(map[color.NRGBA]int)
	var best color.NRGBA
	bestCount := 0

	for y := c.y0; y < c.y1; y++ {
		for x := c.x0; x < c.x1; x++ {
			px := img.NRGBAAt(x, y)
			counts[px]++
			if counts[px] > bestCount {
				best, bestCount = px, counts[px]
			}
		}
	}

	return best
}
