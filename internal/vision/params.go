package vision

import (
	"errors"
	"fmt"
)

// ErrInvalidParams is returned by Params.Validate.
var ErrInvalidParams = errors.New("invalid detection parameters")

// Params controls the multi-scale cascade search.
type Params struct {
	// ScaleStep is the factor by which the search window grows between
	// pyramid levels. Must be greater than 1.0.
	ScaleStep float64
	// MinNeighbors is how many overlapping candidate windows a hit needs
	// before it is accepted. Higher values suppress false positives.
	MinNeighbors int
	// MinSize and MaxSize bound the detection window edge in pixels.
	// Zero means no bound.
	MinSize int
	MaxSize int
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		ScaleStep:    1.1,
		MinNeighbors: 4,
		MinSize:      30,
	}
}

// Validate checks the recognized options.
func (p Params) Validate() error {
	if !(p.ScaleStep > 1.0) {
		return fmt.Errorf("%w: scale step must be > 1.0, got %v", ErrInvalidParams, p.ScaleStep)
	}
	if p.MinNeighbors < 0 {
		return fmt.Errorf("%w: min neighbors must be >= 0, got %d", ErrInvalidParams, p.MinNeighbors)
	}
	if p.MinSize < 0 || p.MaxSize < 0 {
		return fmt.Errorf("%w: window bounds must be >= 0", ErrInvalidParams)
	}
	if p.MaxSize > 0 && p.MaxSize < p.MinSize {
		return fmt.Errorf("%w: max size %d is below min size %d", ErrInvalidParams, p.MaxSize, p.MinSize)
	}
	return nil
}
