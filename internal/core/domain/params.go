package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
)

type SampleMethod string

const (
	SampleCenter   SampleMethod = "center"
	SampleMedian   SampleMethod = "median"
	SampleMajority SampleMethod = "majority"
)

func (m SampleMethod) Valid() bool {
	switch m {
	case SampleCenter, SampleMedian, SampleMajority:
		return true
	default:
		return false
	}
}

// GridSize is an explicit cell count override.
type GridSize struct {
	Columns int
	Rows    int
}

// Params configures a single rescaling run.
type Params struct {
	SampleMethod SampleMethod
	// GridSize is nil when the grid should be auto-detected.
	GridSize        *GridSize
	MinSize         float64
	PeakWidth       int
	RefineIntensity float64
	FixSquare       bool
	Debug           bool
}

const (
	DefaultMinSize         = 4.0
	MinSizeFloor           = 1.0
	DefaultPeakWidth       = 6
	DefaultRefineIntensity = 0.25
)

func DefaultParams() Params {
	return Params{
		SampleMethod:    SampleCenter,
		MinSize:         DefaultMinSize,
		PeakWidth:       DefaultPeakWidth,
		RefineIntensity: DefaultRefineIntensity,
		FixSquare:       true,
	}
}

// ParseParams coerces a decoded JSON body into Params. Absent or null fields take their defaults and a
// malformed grid_size means auto-detection; only numbers and sample methods that cannot be coerced at all
// are rejected.
func ParseParams(raw map[string]any) (Params, error) {
	p := DefaultParams()

	if v, ok := lookup(raw, "sample_method"); ok {
		name := cast.ToString(v)
		method := SampleMethod(strings.ToLower(strings.TrimSpace(name)))
		if !method.Valid() {
			return Params{}, fmt.Errorf("%w: unknown sample_method %q", ErrInvalidParameters, name)
		}
		p.SampleMethod = method
	}

	if v, ok := lookup(raw, "grid_size"); ok {
		p.GridSize = parseGridSize(v)
	}

	if v, ok := lookup(raw, "min_size"); ok {
		f, err := toFinite(v)
		if err != nil {
			return Params{}, fmt.Errorf("%w: min_size: %w", ErrInvalidParameters, err)
		}
		p.MinSize = math.Max(f, MinSizeFloor)
	}

	if v, ok := lookup(raw, "peak_width"); ok {
		n, err := cast.ToIntE(v)
		if err != nil {
			return Params{}, fmt.Errorf("%w: peak_width: %w", ErrInvalidParameters, err)
		}
		p.PeakWidth = max(n, 1)
	}

	if v, ok := lookup(raw, "refine_intensity"); ok {
		f, err := toFinite(v)
		if err != nil {
			return Params{}, fmt.Errorf("%w: refine_intensity: %w", ErrInvalidParameters, err)
		}
		p.RefineIntensity = math.Min(math.Max(f, 0), 1)
	}

	p.FixSquare = boolField(raw, "fix_square", p.FixSquare)
	p.Debug = boolField(raw, "debug", p.Debug)

	return p, nil
}

func lookup(raw map[string]any, key string) (any, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func toFinite(v any) (float64, error) {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("unable to use %v as a finite number", v)
	}
	return f, nil
}

// boolField never rejects a value: anything that does not read as a boolean keeps the fallback.
func boolField(raw map[string]any, key string, fallback bool) bool {
	v, ok := lookup(raw, key)
	if !ok {
		return fallback
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return fallback
	}
	return b
}

// parseGridSize returns nil for anything that is not a list of at least two positive integers.
func parseGridSize(v any) *GridSize {
	items, err := cast.ToSliceE(v)
	if err != nil || len(items) < 2 {
		return nil
	}

	columns, err := cast.ToIntE(items[0])
	if err != nil {
		return nil
	}
	rows, err := cast.ToIntE(items[1])
	if err != nil {
		return nil
	}
	if columns <= 0 || rows <= 0 {
		return nil
	}

	return &GridSize{Columns: columns, Rows: rows}
}
