package vision

import (
	"image"

	"github.com/disintegration/gift"
)

// Grayscale converts a frame to single-channel intensity, the form the
// cascade classifier works on.
func Grayscale(src image.Image) *image.Gray {
	g := gift.New(gift.Grayscale())
	dst := image.NewGray(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return dst
}

// Resize scales src down so it is at most maxWidth pixels wide, keeping the
// aspect ratio. Images already narrow enough (or maxWidth <= 0) are returned
// unchanged.
func Resize(src *image.RGBA, maxWidth int) *image.RGBA {
	if maxWidth <= 0 || src.Bounds().Dx() <= maxWidth {
		return src
	}
	g := gift.New(gift.Resize(maxWidth, 0, gift.LinearResampling))
	dst := image.NewRGBA(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return dst
}

// ToRGBA returns img as *image.RGBA, converting when needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	g := gift.New()
	dst := image.NewRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst
}
