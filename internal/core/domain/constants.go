package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidParameters = errors.New("invalid parameters")
	ErrNotFound          = errors.New("artifact not found")
	ErrCorruptData       = errors.New("corrupt image data")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrProcessingFailed  = errors.New("processing failed")
	ErrTooManyPixels     = errors.New("image has too many pixels")
)

// ProcessingFailedError carries the reason reported by the rescaling algorithm verbatim.
type ProcessingFailedError struct {
	Reason string
}

func (e *ProcessingFailedError) Error() string {
	return fmt.Sprintf("processing failed: %s", e.Reason)
}

func (e *ProcessingFailedError) Is(target error) bool {
	return target == ErrProcessingFailed
}

const (
	DefaultLanguage  = "en"
	LanguageCookie   = "language"
	PreviewDimension = 300
	MaxUploadBytes   = 16 << 20
	DefaultFormat    = "png"
)

// MaxPixels bounds width*height of a decoded upload unless upload.max_pixels overrides it.
const MaxPixels = 89_478_485

// ErrUndetermined is returned when the algorithm could not settle on a cell size.
var ErrUndetermined = fmt.Errorf("%w: cell size could not be determined", ErrProcessingFailed)

// AllowedExtensions are the upload file extensions accepted by the service.
var AllowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"bmp":  true,
	"gif":  true,
	"tiff": true,
}
