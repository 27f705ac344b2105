package port

import (
	"context"
	"image"

	"perfectpixel/internal/core/domain"
)

// Rescaled is the result of a rescaling run. RefinedWidth and RefinedHeight are zero when the cell size
// could not be determined.
type Rescaled struct {
	RefinedWidth  int
	RefinedHeight int
	Image         image.Image
}

type Rescaler interface {
	// Rescale detects the pixel grid of img and samples one pixel per cell. When params.Debug is set it
	// may hand a visualization to the diagnostic slot carried by ctx.
	Rescale(ctx context.Context, img image.Image, params domain.Params) (Rescaled, error)
}
