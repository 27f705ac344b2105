package port

import (
	"context"
	"time"

	"perfectpixel/internal/core/domain"
)

type ArtifactStore interface {
	// Put stores img under its own fingerprint and returns that fingerprint.
	Put(ctx context.Context, role domain.Role, img domain.Image) (domain.Fingerprint, error)
	// PutAs stores img under the given fingerprint, replacing any previous artifact for that role.
	PutAs(ctx context.Context, fp domain.Fingerprint, role domain.Role, img domain.Image) error
	// Get returns the encoded artifact or domain.ErrNotFound.
	Get(ctx context.Context, fp domain.Fingerprint, role domain.Role) ([]byte, error)
	// Delete removes an artifact. Removing an absent artifact is not an error.
	Delete(ctx context.Context, fp domain.Fingerprint, role domain.Role) error
	// Sweep removes every artifact last written before the cutoff and returns how many were removed.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
	// Name returns the public filename of an artifact.
	Name(fp domain.Fingerprint, role domain.Role) string
	// Resolve maps a public filename back to its artifact key.
	Resolve(name string) (domain.Fingerprint, domain.Role, error)
}
