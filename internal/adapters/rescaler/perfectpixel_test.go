package rescaler

import (
	"context"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perfectpixel/internal/core/diagnostic"
	"perfectpixel/internal/core/domain"
)

var palette = []color.NRGBA{
	{R: 0x1a, G: 0x1c, B: 0x2c, A: 0xff},
	{R: 0xb1, G: 0x3e, B: 0x53, A: 0xff},
	{R: 0xef, G: 0x7d, B: 0x57, A: 0xff},
	{R: 0xff, G: 0xcd, B: 0x75, A: 0xff},
	{R: 0x38, G: 0xb7, B: 0x64, A: 0xff},
	{R: 0x41, G: 0xa6, B: 0xf6, A: 0xff},
}

// sprite builds a random cols x rows image in which no cell matches its left or upper neighbour.
func sprite(cols, rows int, seed int64) *image.NRGBA {
	rnd := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			for {
				c := palette[rnd.Intn(len(palette))]
				if x > 0 && img.NRGBAAt(x-1, y) == c {
					continue
				}
				if y > 0 && img.NRGBAAt(x, y-1) == c {
					continue
				}
				img.SetNRGBA(x, y, c)
				break
			}
		}
	}
	return img
}

func upscale(src *image.NRGBA, factor int) *image.NRGBA {
	b := src.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	for y := 0; y < out.Rect.Dy(); y++ {
		for x := 0; x < out.Rect.Dx(); x++ {
			out.SetNRGBA(x, y, src.NRGBAAt(x/factor, y/factor))
		}
	}
	return out
}

func fill(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

type recordingRenderer struct {
	seen []diagnostic.Visualization
}

func (r *recordingRenderer) Render(v diagnostic.Visualization) ([]byte, error) {
	r.seen = append(r.seen, v)
	return []byte("rendered"), nil
}

func TestRescaleRecoversSprite(t *testing.T) {
	tests := []struct {
		name       string
		cols, rows int
		factor     int
	}{
		{name: "8x6 at 10x", cols: 8, rows: 6, factor: 10},
		{name: "13x9 at 7x", cols: 13, rows: 9, factor: 7},
		{name: "16x16 at 5x", cols: 16, rows: 16, factor: 5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := sprite(tc.cols, tc.rows, int64(tc.cols*tc.rows))

			res, err := NewPerfectPixel().Rescale(context.Background(), upscale(src, tc.factor), domain.DefaultParams())
			require.NoError(t, err)
			assert.Equal(t, tc.cols, res.RefinedWidth)
			assert.Equal(t, tc.rows, res.RefinedHeight)
			assert.Equal(t, src.Pix, asNRGBA(res.Image).Pix)
		})
	}
}

func TestRescaleExplicitGrid(t *testing.T) {
	src := upscale(sprite(8, 6, 3), 10)
	params := domain.DefaultParams()
	params.GridSize = &domain.GridSize{Columns: 4, Rows: 3}

	res, err := NewPerfectPixel().Rescale(context.Background(), src, params)
	require.NoError(t, err)
	assert.Equal(t, 4, res.RefinedWidth)
	assert.Equal(t, 3, res.RefinedHeight)
	assert.Equal(t, image.Rect(0, 0, 4, 3), res.Image.Bounds())
}

func TestRescaleExplicitGridIsClampedToImage(t *testing.T) {
	params := domain.DefaultParams()
	params.GridSize = &domain.GridSize{Columns: 500, Rows: 2}

	res, err := NewPerfectPixel().Rescale(context.Background(), upscale(sprite(4, 2, 9), 3), params)
	require.NoError(t, err)
	assert.Equal(t, 12, res.RefinedWidth)
	assert.Equal(t, 2, res.RefinedHeight)
}

func TestRescaleUniformImage(t *testing.T) {
	renderer := &recordingRenderer{}
	slot := diagnostic.NewSlot(renderer)
	ctx := diagnostic.WithSlot(context.Background(), slot)

	params := domain.DefaultParams()
	params.Debug = true

	c := color.NRGBA{R: 12, G: 200, B: 99, A: 0xff}
	res, err := NewPerfectPixel().Rescale(ctx, fill(100, 100, c), params)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RefinedWidth)
	assert.Equal(t, 1, res.RefinedHeight)
	assert.Equal(t, c, asNRGBA(res.Image).NRGBAAt(0, 0))
	assert.False(t, slot.Populated(), "no sampling pass means nothing to visualize")
	assert.Empty(t, renderer.seen)
}

func TestRescaleUndetermined(t *testing.T) {
	checker := image.NewNRGBA(image.Rect(0, 0, 6, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			checker.SetNRGBA(x, y, palette[(x+y)%2])
		}
	}

	res, err := NewPerfectPixel().Rescale(context.Background(), checker, domain.DefaultParams())
	require.NoError(t, err)
	assert.Zero(t, res.RefinedWidth)
	assert.Zero(t, res.RefinedHeight)
	assert.Nil(t, res.Image)
}

func TestRescaleCapturesVisualization(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
	}{
		{name: "debug", debug: true},
		{name: "no debug", debug: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			renderer := &recordingRenderer{}
			slot := diagnostic.NewSlot(renderer)
			ctx := diagnostic.WithSlot(context.Background(), slot)

			params := domain.DefaultParams()
			params.Debug = tc.debug

			res, err := NewPerfectPixel().Rescale(ctx, upscale(sprite(8, 6, 1), 10), params)
			require.NoError(t, err)

			if !tc.debug {
				assert.False(t, slot.Populated())
				return
			}

			require.Len(t, renderer.seen, 1)
			v := renderer.seen[0]
			assert.Equal(t, res.RefinedWidth, v.ScaleX)
			assert.Equal(t, res.RefinedHeight, v.ScaleY)
			assert.Equal(t, []int{0, 10, 20, 30, 40, 50, 60, 70, 80}, v.XCoords)
			assert.Equal(t, []int{0, 10, 20, 30, 40, 50, 60}, v.YCoords)
			assert.Equal(t, []byte("rendered"), slot.Take())
		})
	}
}

func TestRescaleWithoutSlotStillSucceeds(t *testing.T) {
	params := domain.DefaultParams()
	params.Debug = true

	res, err := NewPerfectPixel().Rescale(context.Background(), upscale(sprite(8, 6, 1), 10), params)
	require.NoError(t, err)
	assert.Equal(t, 8, res.RefinedWidth)
}

func TestRescaleSampleMethods(t *testing.T) {
	cells := []color.NRGBA{palette[1], palette[2], palette[4], palette[5]}
	img := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			c := cells[(y/10)*2+x/10]
			if x%10 == 0 && y%10 == 0 {
				c = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
			}
			img.SetNRGBA(x, y, c)
		}
	}

	for _, method := range []domain.SampleMethod{domain.SampleCenter, domain.SampleMedian, domain.SampleMajority} {
		t.Run(string(method), func(t *testing.T) {
			params := domain.DefaultParams()
			params.SampleMethod = method
			params.RefineIntensity = 0
			params.GridSize = &domain.GridSize{Columns: 2, Rows: 2}

			res, err := NewPerfectPixel().Rescale(context.Background(), img, params)
			require.NoError(t, err)

			out := asNRGBA(res.Image)
			for i, want := range cells {
				assert.Equal(t, want, out.NRGBAAt(i%2, i/2), "cell %d", i)
			}
		})
	}
}

func TestRescaleRejectsUnknownMethod(t *testing.T) {
	params := domain.DefaultParams()
	params.SampleMethod = "mean"

	_, err := NewPerfectPixel().Rescale(context.Background(), fill(4, 4, palette[0]), params)
	assert.Error(t, err)
}

func TestRescaleHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPerfectPixel().Rescale(ctx, upscale(sprite(8, 6, 1), 10), domain.DefaultParams())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRescaleAcceptsGrayAndOffsetImages(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			if (x/10+y/10)%2 == 0 {
				gray.Pix[y*gray.Stride+x] = 0xff
			}
		}
	}

	res, err := NewPerfectPixel().Rescale(context.Background(), gray.SubImage(image.Rect(0, 0, 40, 40)), domain.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 4, res.RefinedWidth)
	assert.Equal(t, 4, res.RefinedHeight)

	// Cropping 3px off the left moves every boundary; the 3px sliver left on the right merges into its
	// neighbour.
	shifted := upscale(sprite(8, 6, 5), 10).SubImage(image.Rect(3, 0, 73, 60))
	res, err = NewPerfectPixel().Rescale(context.Background(), shifted, domain.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 7, res.RefinedWidth)
	assert.Equal(t, 6, res.RefinedHeight)
}
