package renderer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"perfectpixel/internal/core/diagnostic"
)

const (
	titleHeight = 20
	margin      = 4
)

var ErrNoImage = errors.New("visualization has no image")

// GridRenderer draws the sampled grid on top of an enlarged copy of the source image, with a title naming
// the resulting cell counts.
type GridRenderer struct {
	minSide   int
	lineColor color.Color
}

func NewGridRenderer(minSide int) *GridRenderer {
	return &GridRenderer{
		minSide:   minSide,
		lineColor: color.NRGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	}
}

// Title is the caption drawn above the grid.
func Title(scaleX, scaleY int) string {
	return fmt.Sprintf("Scaled Image by Grid Sampling(%dx%d)", scaleX, scaleY)
}

func (r *GridRenderer) Render(v diagnostic.Visualization) ([]byte, error) {
	if v.Image == nil {
		return nil, ErrNoImage
	}

	b := v.Image.Bounds()
	if b.Empty() {
		return nil, ErrNoImage
	}

	scale := max(1, r.minSide/max(b.Dx(), b.Dy()))
	w, h := b.Dx()*scale, b.Dy()*scale

	d := &font.Drawer{Src: image.NewUniform(color.Black), Face: basicfont.Face7x13}
	title := Title(v.ScaleX, v.ScaleY)
	titleWidth := d.MeasureString(title).Ceil()

	canvas := image.NewNRGBA(image.Rect(0, 0, max(w, titleWidth+2*margin), h+titleHeight))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	plot := image.Rect(0, titleHeight, w, h+titleHeight)
	draw.NearestNeighbor.Scale(canvas, plot, v.Image, b, draw.Src, nil)

	line := image.NewUniform(r.lineColor)
	for _, x := range v.XCoords {
		px := min(max(x*scale, 0), w-1)
		draw.Draw(canvas, image.Rect(px, plot.Min.Y, px+1, plot.Max.Y), line, image.Point{}, draw.Src)
	}
	for _, y := range v.YCoords {
		py := min(max(y*scale, 0), h-1) + titleHeight
		draw.Draw(canvas, image.Rect(plot.Min.X, py, plot.Max.X, py+1), line, image.Point{}, draw.Src)
	}

	d.Dst = canvas
	d.Dot = fixed.P((canvas.Rect.Dx()-titleWidth)/2, titleHeight-margin-2)
	d.DrawString(title)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("error encoding visualization: %w", err)
	}

	return buf.Bytes(), nil
}
