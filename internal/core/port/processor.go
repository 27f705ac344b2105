package port

import (
	"context"

	"perfectpixel/internal/core/domain"
)

type ImageProcessor interface {
	// Upload validates, decodes and stores a new original image.
	Upload(ctx context.Context, filename string, data []byte) (domain.Upload, error)
	// Lookup reports domain.ErrNotFound when no original is stored for fp.
	Lookup(ctx context.Context, fp domain.Fingerprint) error
	// Process rescales a stored original and stores the result as its processed artifact.
	Process(ctx context.Context, fp domain.Fingerprint, params domain.Params) (domain.Outcome, error)
	// Cleanup removes every artifact stored for fp. Missing artifacts are not an error.
	Cleanup(ctx context.Context, fp domain.Fingerprint) error
	// Artifact returns a stored artifact by its public filename.
	Artifact(ctx context.Context, name string) ([]byte, error)
}

type LanguageResolver interface {
	// Resolve picks the display language from the language cookie and the Accept-Language header.
	Resolve(cookie, acceptLanguage string) string
	// Codes lists the supported language codes.
	Codes() []string
	// Supported reports whether a translation table exists for code.
	Supported(code string) bool
	// Translations returns the table for code, falling back to the default language.
	Translations(code string) map[string]string
}
