package capture

import (
	"image"
	"image/draw"
	"sync"
	"time"

	"github.com/vipers-surveillance/vipers/pkg/types"
)

// Images is a finite in-memory source. Each call to Next returns a copy of
// the next image so the caller may draw on it freely.
type Images struct {
	mu     sync.Mutex
	images []*image.RGBA
	next   int
	closed bool
	now    func() time.Time
}

// NewImages returns a source that yields the given images in order.
func NewImages(images ...*image.RGBA) *Images {
	return &Images{images: images, now: time.Now}
}

// Next implements Source.
func (s *Images) Next() (*types.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.next >= len(s.images) {
		return nil, ErrEndOfStream
	}
	src := s.images[s.next]
	s.next++

	img := image.NewRGBA(src.Bounds())
	draw.Draw(img, img.Bounds(), src, src.Bounds().Min, draw.Src)
	return &types.Frame{Image: img, Number: uint64(s.next), Timestamp: s.now()}, nil
}

// FrameCount implements FrameCounter.
func (s *Images) FrameCount() int {
	return len(s.images)
}

// Close implements Source.
func (s *Images) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
