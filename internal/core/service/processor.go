package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/sync/semaphore"

	"perfectpixel/internal/core/diagnostic"
	"perfectpixel/internal/core/domain"
	"perfectpixel/internal/core/port"
)

type Processor struct {
	codec       port.ImageCodec
	store       port.ArtifactStore
	rescaler    port.Rescaler
	renderer    diagnostic.Renderer
	workers     *semaphore.Weighted
	previewSize int
}

func NewProcessor(codec port.ImageCodec, store port.ArtifactStore, rescaler port.Rescaler,
	renderer diagnostic.Renderer) *Processor {
	workers := viper.GetInt64("processing.workers")
	if workers < 1 {
		workers = int64(runtime.NumCPU())
	}

	previewSize := viper.GetInt("upload.preview_size")
	if previewSize < 1 {
		previewSize = domain.PreviewDimension
	}

	log.Debug().Int64("workers", workers).Int("previewSize", previewSize).Msg("initialized processor")

	return &Processor{
		codec:       codec,
		store:       store,
		rescaler:    rescaler,
		renderer:    renderer,
		workers:     semaphore.NewWeighted(workers),
		previewSize: previewSize,
	}
}

// Extension returns the lower-cased extension of filename without its dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

func (p *Processor) Upload(ctx context.Context, filename string, data []byte) (domain.Upload, error) {
	l := log.With().
		Str("filename", filename).
		Int("bytes", len(data)).
		Logger()

	ext := Extension(filename)
	if !domain.AllowedExtensions[ext] {
		l.Debug().Msg("rejected file type")
		return domain.Upload{}, fmt.Errorf("%w: file type %q not allowed", domain.ErrValidation, ext)
	}

	img, err := p.codec.Decode(data, ext)
	if err != nil {
		l.Debug().Err(err).Msg("could not decode upload")
		return domain.Upload{}, err
	}

	fp, err := p.store.Put(ctx, domain.Original, img)
	if err != nil {
		return domain.Upload{}, fmt.Errorf("failed to store upload: %w", err)
	}

	preview, err := p.codec.Preview(img, p.previewSize)
	if err != nil {
		return domain.Upload{}, fmt.Errorf("failed to create preview: %w", err)
	}

	l.Info().Str("imageId", fp.String()).Msg("stored upload")

	return domain.Upload{
		Fingerprint: fp,
		Filename:    p.store.Name(fp, domain.Original),
		Preview:     preview,
	}, nil
}

func (p *Processor) Lookup(ctx context.Context, fp domain.Fingerprint) error {
	_, err := p.store.Get(ctx, fp, domain.Original)
	return err
}

func (p *Processor) Process(ctx context.Context, fp domain.Fingerprint, params domain.Params) (domain.Outcome, error) {
	l := log.With().
		Str("imageId", fp.String()).
		Str("method", string(params.SampleMethod)).
		Bool("debug", params.Debug).
		Logger()

	l.Info().Msg("handling request")

	data, err := p.store.Get(ctx, fp, domain.Original)
	if err != nil {
		return domain.Outcome{}, err
	}

	img, err := p.codec.Decode(data, domain.DefaultFormat)
	if err != nil {
		l.Error().Err(err).Msg("stored original is unreadable")
		return domain.Outcome{}, err
	}

	slot := diagnostic.NewSlot(p.renderer)
	slot.Clear()
	defer slot.Clear()

	res, err := p.rescale(diagnostic.WithSlot(ctx, slot), img, params)
	if err != nil {
		l.Warn().Err(err).Msg("rescaling failed")
		return domain.Outcome{}, err
	}

	if res.RefinedWidth == 0 || res.RefinedHeight == 0 || res.Image == nil {
		l.Warn().Msg("cell size could not be determined")
		return domain.Outcome{}, domain.ErrUndetermined
	}

	out := p.codec.FromImage(res.Image)
	if err := p.store.PutAs(ctx, fp, domain.Processed, out); err != nil {
		return domain.Outcome{}, fmt.Errorf("failed to store processed image: %w", err)
	}

	preview, err := p.codec.Preview(out, p.previewSize)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("failed to create preview: %w", err)
	}

	outcome := domain.Outcome{
		RefinedWidth:  res.RefinedWidth,
		RefinedHeight: res.RefinedHeight,
		Filename:      p.store.Name(fp, domain.Processed),
		Preview:       preview,
	}

	if params.Debug {
		outcome.DiagnosticImage = slot.Take()
	}

	l.Info().
		Int("width", outcome.RefinedWidth).
		Int("height", outcome.RefinedHeight).
		Bool("diagnostic", len(outcome.DiagnosticImage) > 0).
		Msg("processed image")

	return outcome, nil
}

// rescale runs the algorithm once a worker is free. Failures other than cancellation are reported as
// domain.ProcessingFailedError carrying the algorithm's message.
func (p *Processor) rescale(ctx context.Context, img domain.Image, params domain.Params) (port.Rescaled, error) {
	if err := p.workers.Acquire(ctx, 1); err != nil {
		return port.Rescaled{}, err
	}
	defer p.workers.Release(1)

	res, err := p.rescaler.Rescale(ctx, p.codec.ToImage(img), params)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return port.Rescaled{}, err
	}
	if err != nil {
		return port.Rescaled{}, &domain.ProcessingFailedError{Reason: err.Error()}
	}

	return res, nil
}

func (p *Processor) Cleanup(ctx context.Context, fp domain.Fingerprint) error {
	var errs []error
	for _, role := range domain.Roles {
		if err := p.store.Delete(ctx, fp, role); err != nil {
			errs = append(errs, err)
		}
	}

	log.Debug().Str("imageId", fp.String()).Int("failures", len(errs)).Msg("cleaned up artifacts")

	return errors.Join(errs...)
}

func (p *Processor) Artifact(ctx context.Context, name string) ([]byte, error) {
	fp, role, err := p.store.Resolve(name)
	if err != nil {
		return nil, err
	}

	return p.store.Get(ctx, fp, role)
}
