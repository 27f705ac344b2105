package renderer

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perfectpixel/internal/core/diagnostic"
)

func TestRender(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 16, 8))
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i-1] = 0x40
		src.Pix[i] = 0xff
	}

	data, err := NewGridRenderer(512).Render(diagnostic.Visualization{
		Image:   src,
		XCoords: []int{0, 8, 16},
		YCoords: []int{0, 4, 8},
		ScaleX:  2,
		ScaleY:  2,
	})
	require.NoError(t, err)

	out, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	// 16x8 is enlarged 32 times.
	assert.Equal(t, 512, out.Bounds().Dx())
	assert.Equal(t, 256+titleHeight, out.Bounds().Dy())

	lineColor := color.NRGBAModel.Convert(color.NRGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff})
	assert.Equal(t, lineColor, color.NRGBAModel.Convert(out.At(8*32, titleHeight+10)), "vertical grid line")
	assert.Equal(t, lineColor, color.NRGBAModel.Convert(out.At(10, titleHeight+4*32)), "horizontal grid line")
	assert.Equal(t, lineColor, color.NRGBAModel.Convert(out.At(511, titleHeight+10)), "closing line is clamped")

	inside := color.NRGBAModel.Convert(out.At(100, titleHeight+50)).(color.NRGBA)
	assert.Equal(t, uint8(0x40), inside.B)

	dark := 0
	for y := 0; y < titleHeight; y++ {
		for x := 0; x < out.Bounds().Dx(); x++ {
			if c := color.GrayModel.Convert(out.At(x, y)).(color.Gray); c.Y < 0x80 {
				dark++
			}
		}
	}
	assert.Positive(t, dark, "title must be drawn")
}

func TestRenderWidensCanvasForTitle(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 600))

	data, err := NewGridRenderer(512).Render(diagnostic.Visualization{Image: src, ScaleX: 1, ScaleY: 60})
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Greater(t, cfg.Width, 2)
	assert.Equal(t, 600+titleHeight, cfg.Height)
}

func TestRenderWithoutImage(t *testing.T) {
	_, err := NewGridRenderer(512).Render(diagnostic.Visualization{})
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Scaled Image by Grid Sampling(32x24)", Title(32, 24))
}
