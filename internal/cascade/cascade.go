// Package cascade runs OpenCV cascade classifiers (Haar or LBP models) over
// intensity frames.
package cascade

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/vipers-surveillance/vipers/internal/logger"
	"github.com/vipers-surveillance/vipers/internal/vision"
	"github.com/vipers-surveillance/vipers/pkg/types"
	"gocv.io/x/gocv"
)

// Models maps a kind to the path of its cascade XML model. An empty path
// leaves that kind unavailable.
type Models map[types.Kind]string

// Detector holds one loaded classifier per kind. Classifiers are fixed after
// loading, so Detect depends only on its input.
type Detector struct {
	mu          sync.Mutex
	params      vision.Params
	classifiers map[types.Kind]*gocv.CascadeClassifier
	equalize    bool
}

// New loads the given models.
func New(params vision.Params, models Models) (*Detector, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	d := &Detector{
		params:      params,
		classifiers: make(map[types.Kind]*gocv.CascadeClassifier),
		equalize:    true,
	}
	for kind, path := range models {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("load %s cascade: %w", kind, err)
		}
		classifier := gocv.NewCascadeClassifier()
		if !classifier.Load(path) {
			_ = classifier.Close()
			_ = d.Close()
			return nil, fmt.Errorf("load %s cascade: cannot parse %s", kind, path)
		}
		d.classifiers[kind] = &classifier
		logger.Info("Cascade", "Loaded %s model from %s", kind, path)
	}
	return d, nil
}

// Has reports whether a model is loaded for kind.
func (d *Detector) Has(kind types.Kind) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.classifiers[kind]
	return ok
}

// Detect returns the objects of the given kind found in gray. It returns an
// empty slice when nothing is found or no model is loaded for kind.
func (d *Detector) Detect(gray *image.Gray, kind types.Kind) []types.Detection {
	d.mu.Lock()
	defer d.mu.Unlock()

	classifier, ok := d.classifiers[kind]
	if !ok || gray == nil || gray.Bounds().Empty() {
		return nil
	}

	mat, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		logger.Warn("Cascade", "Cannot convert frame: %v", err)
		return nil
	}
	defer mat.Close()

	if d.equalize {
		gocv.EqualizeHist(mat, &mat)
	}

	minSize := image.Pt(d.params.MinSize, d.params.MinSize)
	maxSize := image.Pt(d.params.MaxSize, d.params.MaxSize)
	rects := classifier.DetectMultiScaleWithParams(mat, d.params.ScaleStep, d.params.MinNeighbors, 0, minSize, maxSize)

	origin := gray.Bounds().Min
	dets := make([]types.Detection, 0, len(rects))
	for _, r := range rects {
		dets = append(dets, types.Detection{Kind: kind, BBox: types.BoxFromRect(r.Add(origin))})
	}
	return dets
}

// Close releases the classifiers.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for kind, c := range d.classifiers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(d.classifiers, kind)
	}
	return firstErr
}
