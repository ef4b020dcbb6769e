package vision

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/vipers-surveillance/vipers/pkg/types"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Style controls how detections are drawn onto a frame.
type Style struct {
	Thickness int  // Rectangle edge width in pixels
	Labels    bool // Draw the kind name above each box
	Stamp     bool // Draw frame number and time in the top-left corner
}

// DefaultStyle returns the overlay style used by the dashboard.
func DefaultStyle() Style {
	return Style{Thickness: 2, Labels: true}
}

var (
	labelText = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	labelBack = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

// DrawDetections draws one rectangle per detection onto img, colored by
// detection kind. Boxes are clipped to the image.
func DrawDetections(img *image.RGBA, dets []types.Detection, style Style) {
	thickness := style.Thickness
	if thickness <= 0 {
		thickness = 1
	}
	for _, det := range dets {
		c := det.Kind.Color()
		DrawRect(img, det.BBox.Rect(), c, thickness)
		if style.Labels {
			r := det.BBox.Rect()
			y := r.Min.Y - 4
			if y-13 < img.Bounds().Min.Y {
				y = r.Max.Y + 13
			}
			drawLabel(img, r.Min.X, y, string(det.Kind), labelText, c)
		}
	}
}

// DrawStamp writes "Frame N  YYYY-MM-DD HH:MM:SS" in the top-left corner.
func DrawStamp(img *image.RGBA, frame *types.Frame) {
	if frame == nil {
		return
	}
	text := fmt.Sprintf("Frame: %d  Time: %s", frame.Number, frame.Timestamp.Format("2006-01-02 15:04:05"))
	b := img.Bounds()
	drawLabel(img, b.Min.X+10, b.Min.Y+20, text, labelText, labelBack)
}

// DrawRect draws an unfilled rectangle outline of the given thickness.
func DrawRect(img *image.RGBA, r image.Rectangle, c color.Color, thickness int) {
	r = r.Canon()
	if r.Empty() {
		return
	}
	if thickness > r.Dx()/2 || thickness > r.Dy()/2 {
		fill(img, r, c)
		return
	}
	fill(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness), c) // top
	fill(img, image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y), c) // bottom
	fill(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y), c) // left
	fill(img, image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y), c) // right
}

func fill(img *image.RGBA, r image.Rectangle, c color.Color) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

// drawLabel draws text with its baseline at (x, y) on a solid background.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.Color) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.P(x+2, y),
	}
	width := d.MeasureString(text).Ceil()
	metrics := face.Metrics()
	box := image.Rect(x, y-metrics.Ascent.Ceil()-1, x+width+4, y+metrics.Descent.Ceil()+1)
	fill(img, box, bg)
	d.DrawString(text)
}
