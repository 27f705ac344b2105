// Package diagnostic carries grid-sampling visualizations out of the rescaling algorithm without changing
// its return values. A Slot belongs to exactly one request and travels only inside that request's
// context.Context, so concurrent requests can never observe each other's diagnostics.
package diagnostic

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/rs/zerolog/log"
)

// Visualization describes a grid-sampling decision: the source image and the cell boundaries chosen on
// each axis. ScaleX and ScaleY are the resulting cell counts.
type Visualization struct {
	Image   image.Image
	XCoords []int
	YCoords []int
	ScaleX  int
	ScaleY  int
}

type Renderer interface {
	// Render draws the visualization and returns it as an encoded image.
	Render(v Visualization) ([]byte, error)
}

var ErrNoRenderer = errors.New("diagnostic slot has no renderer")

// Slot holds at most one rendered visualization.
type Slot struct {
	mu       sync.Mutex
	renderer Renderer
	image    []byte
}

func NewSlot(renderer Renderer) *Slot {
	return &Slot{renderer: renderer}
}

// Clear empties the slot.
func (s *Slot) Clear() {
	s.mu.Lock()
	s.image = nil
	s.mu.Unlock()
}

// Store renders v and keeps the result, replacing anything captured earlier.
func (s *Slot) Store(v Visualization) error {
	if s.renderer == nil {
		return ErrNoRenderer
	}

	rendered, err := s.renderer.Render(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.image = rendered
	s.mu.Unlock()

	return nil
}

// Take returns the captured visualization, or nil, and leaves the slot empty.
func (s *Slot) Take() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	rendered := s.image
	s.image = nil
	return rendered
}

// Populated reports whether a visualization is waiting to be taken.
func (s *Slot) Populated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image != nil
}

type slotKey struct{}

// WithSlot returns a context whose visualizations are captured into s.
func WithSlot(ctx context.Context, s *Slot) context.Context {
	return context.WithValue(ctx, slotKey{}, s)
}

// FromContext returns the slot attached to ctx, if any.
func FromContext(ctx context.Context) (*Slot, bool) {
	s, ok := ctx.Value(slotKey{}).(*Slot)
	return s, ok && s != nil
}

// Capture renders v into the slot carried by ctx. Without a slot it does nothing. Render failures are
// logged and swallowed since a missing visualization is never fatal to the run that produced it.
func Capture(ctx context.Context, v Visualization) {
	s, ok := FromContext(ctx)
	if !ok {
		log.Debug().Msg("no diagnostic slot in context, dropping visualization")
		return
	}

	if err := s.Store(v); err != nil {
		log.Warn().Err(err).Int("scaleX", v.ScaleX).Int("scaleY", v.ScaleY).
			Msg("failed to render diagnostic visualization")
		return
	}

	log.Debug().Int("scaleX", v.ScaleX).Int("scaleY", v.ScaleY).Msg("captured diagnostic visualization")
}
