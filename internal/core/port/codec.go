package port

import (
	"image"

	"perfectpixel/internal/core/domain"
)

type ImageCodec interface {
	// Decode parses data in the declared container format into a pixel grid. An empty format means the
	// container is sniffed from the data.
	Decode(data []byte, declaredFormat string) (domain.Image, error)
	// Encode serializes a pixel grid into the given container format.
	Encode(img domain.Image, format string) (domain.Encoded, error)
	// Preview returns a downscaled copy as a base64 data URI whose longest side is at most maxDimension.
	Preview(img domain.Image, maxDimension int) (string, error)
	// Fingerprint returns the content-derived identity of a pixel grid.
	Fingerprint(img domain.Image) domain.Fingerprint
	// ToImage exposes a pixel grid as an image.Image.
	ToImage(img domain.Image) image.Image
	// FromImage copies an image.Image into a pixel grid.
	FromImage(img image.Image) domain.Image
}
