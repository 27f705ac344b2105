package rescaler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"perfectpixel/internal/core/diagnostic"
	"perfectpixel/internal/core/domain"
	"perfectpixel/internal/core/port"
)

var ErrEmptyImage = errors.New("image has no pixels")

// PerfectPixel recovers the native resolution of upscaled pixel art. It measures edge strength along each
// axis, finds the dominant period, lays a grid over the image and samples one pixel per cell.
type PerfectPixel struct{}

func NewPerfectPixel() *PerfectPixel {
	return &PerfectPixel{}
}

func (p *PerfectPixel) Rescale(ctx context.Context, img image.Image, params domain.Params) (port.Rescaled, error) {
	l := log.With().
		Str("method", string(params.SampleMethod)).
		Bool("debug", params.Debug).
		Logger()

	if !params.SampleMethod.Valid() {
		return port.Rescaled{}, fmt.Errorf("unknown sample method %q", params.SampleMethod)
	}

	src := asNRGBA(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if w == 0 || h == 0 {
		return port.Rescaled{}, ErrEmptyImage
	}

	cols, rows := edgeProfiles(src)
	if err := ctx.Err(); err != nil {
		return port.Rescaled{}, err
	}

	xs, ys, ok := p.layout(l, cols, rows, params)
	if !ok {
		l.Info().Int("width", w).Int("height", h).Msg("could not determine cell size")
		return port.Rescaled{}, nil
	}
	if xs == nil {
		l.Debug().Msg("image is uniform, skipping grid sampling")
		return port.Rescaled{RefinedWidth: 1, RefinedHeight: 1, Image: uniform(src)}, nil
	}

	if err := ctx.Err(); err != nil {
		return port.Rescaled{}, err
	}

	out, err := sampleCells(src, xs, ys, params.SampleMethod)
	if err != nil {
		return port.Rescaled{}, err
	}

	scaleX, scaleY := len(xs)-1, len(ys)-1
	if params.Debug {
		diagnostic.Capture(ctx, diagnostic.Visualization{
			Image:   src,
			XCoords: xs,
			YCoords: ys,
			ScaleX:  scaleX,
			ScaleY:  scaleY,
		})
	}

	l.Debug().Int("width", scaleX).Int("height", scaleY).Msg("sampled grid")

	return port.Rescaled{RefinedWidth: scaleX, RefinedHeight: scaleY, Image: out}, nil
}

// layout decides the cell boundaries on both axes. It returns nil boundaries for a uniform image and
// ok=false when no period could be found.
func (p *PerfectPixel) layout(l zerolog.Logger, cols, rows []float64, params domain.Params) (xs, ys []int, ok bool) {
	w, h := len(cols), len(rows)

	if params.GridSize != nil {
		nx := max(min(params.GridSize.Columns, w), 1)
		ny := max(min(params.GridSize.Rows, h), 1)
		l.Debug().Int("columns", nx).Int("rows", ny).Msg("using explicit grid size")

		xs = refineLines(evenLines(w, nx), cols, params.RefineIntensity, float64(w)/float64(nx))
		ys = refineLines(evenLines(h, ny), rows, params.RefineIntensity, float64(h)/float64(ny))
		return xs, ys, true
	}

	dx := detectCellSize(cols, params.MinSize, params.PeakWidth)
	dy := detectCellSize(rows, params.MinSize, params.PeakWidth)

	switch {
	case dx.flat && dy.flat:
		return nil, nil, true
	case !dx.found && !dy.found:
		return nil, nil, false
	case !dx.found:
		dx.size = dy.size
	case !dy.found:
		dy.size = dx.size
	}

	sx, sy := dx.size, dy.size
	if params.FixSquare {
		sx, sy = squareCells(sx, sy)
	}

	l.Debug().Float64("cellWidth", sx).Float64("cellHeight", sy).Msg("detected cell size")

	xs = refineLines(gridLines(cols, sx), cols, params.RefineIntensity, sx)
	ys = refineLines(gridLines(rows, sy), rows, params.RefineIntensity, sy)
	return xs, ys, true
}

func uniform(img *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	out.SetNRGBA(0, 0, img.NRGBAAt(0, 0))
	return out
}

// asNRGBA returns img as an NRGBA image anchored at the origin, converting only when necessary.
func asNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}

	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetNRGBA(x-b.Min.X, y-b.Min.Y, color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA))
		}
	}
	return out
}
