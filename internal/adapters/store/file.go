package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog/log"

	"perfectpixel/internal/core/domain"
	"perfectpixel/internal/core/port"
)

const (
	extension  = ".png"
	tempPrefix = ".tmp-"
)

// FileStore keeps artifacts as PNG files in a single directory, named by fingerprint and role.
type FileStore struct {
	dir   string
	codec port.ImageCodec
}

func NewFileStore(dir string, codec port.ImageCodec) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating storage directory: %w", err)
	}

	log.Debug().Str("dir", dir).Msg("using file store")

	return &FileStore{dir: dir, codec: codec}, nil
}

// Name maps an artifact key to its filename.
func (s *FileStore) Name(fp domain.Fingerprint, role domain.Role) string {
	return fmt.Sprintf("%s_%s%s", fp, role, extension)
}

// Resolve is the inverse of Name. Anything that Name could not have produced is reported as not found.
func (s *FileStore) Resolve(name string) (domain.Fingerprint, domain.Role, error) {
	stem, ok := strings.CutSuffix(name, extension)
	if !ok || filepath.Base(name) != name {
		return "", "", fmt.Errorf("%w: %q", domain.ErrNotFound, name)
	}

	fp, role, ok := strings.Cut(stem, "_")
	if !ok || !domain.Fingerprint(fp).Valid() || !domain.Role(role).Valid() {
		return "", "", fmt.Errorf("%w: %q", domain.ErrNotFound, name)
	}

	return domain.Fingerprint(fp), domain.Role(role), nil
}

func (s *FileStore) path(fp domain.Fingerprint, role domain.Role) string {
	return filepath.Join(s.dir, s.Name(fp, role))
}

func (s *FileStore) Put(ctx context.Context, role domain.Role, img domain.Image) (domain.Fingerprint, error) {
	fp := s.codec.Fingerprint(img)
	if err := s.PutAs(ctx, fp, role, img); err != nil {
		return "", err
	}

	return fp, nil
}

func (s *FileStore) PutAs(ctx context.Context, fp domain.Fingerprint, role domain.Role, img domain.Image) error {
	if !fp.Valid() || !role.Valid() {
		return fmt.Errorf("%w: invalid artifact key %q/%q", domain.ErrValidation, fp, role)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded, err := s.codec.Encode(img, domain.DefaultFormat)
	if err != nil {
		return err
	}

	return s.write(s.path(fp, role), encoded.Data)
}

// write makes data visible under path only once it is complete: it is written to a temp file in the same
// directory and renamed into place.
func (s *FileStore) write(path string, data []byte) error {
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}

	tmp := filepath.Join(s.dir, tempPrefix+id.String())

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		err = fmt.Errorf("error creating temp file: %w", err)
		log.Error().Err(err).Send()
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		removeTemp(tmp)
		err = fmt.Errorf("error writing temp file: %w", err)
		log.Error().Err(err).Send()
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		removeTemp(tmp)
		return fmt.Errorf("error syncing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		removeTemp(tmp)
		return fmt.Errorf("error closing temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		removeTemp(tmp)
		err = fmt.Errorf("error finalizing artifact: %w", err)
		log.Error().Err(err).Str("path", path).Send()
		return err
	}

	log.Debug().Int("bytes", len(data)).Str("path", path).Msg("stored artifact")

	return nil
}

func (s *FileStore) Get(ctx context.Context, fp domain.Fingerprint, role domain.Role) ([]byte, error) {
	if !fp.Valid() || !role.Valid() {
		return nil, fmt.Errorf("%w: %q/%q", domain.ErrNotFound, fp, role)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf, err := os.ReadFile(s.path(fp, role))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, fp, role)
	}
	if err != nil {
		err = fmt.Errorf("error reading artifact: %w", err)
		log.Error().Err(err).Send()
		return nil, err
	}

	return buf, nil
}

func (s *FileStore) Delete(_ context.Context, fp domain.Fingerprint, role domain.Role) error {
	if !fp.Valid() || !role.Valid() {
		return nil
	}

	path := s.path(fp, role)
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		log.Warn().Str("path", path).Err(err).Msg("could not remove artifact")
		return fmt.Errorf("error removing artifact: %w", err)
	}

	log.Debug().Str("path", path).Msg("removed artifact")

	return nil
}

func (s *FileStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("error listing storage directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if _, _, err := s.Resolve(name); err != nil && !strings.HasPrefix(name, tempPrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, name)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Str("path", path).Err(err).Msg("could not remove expired artifact")
			continue
		}
		removed++
	}

	return removed, nil
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil {
		log.Warn().Str("path", path).Err(err).Msg("could not clean up temp file")
	}
}
