package types

import (
	"image"
	"image/color"
	"strings"
)

// Kind is the object class a cascade model finds.
type Kind string

const (
	KindFace Kind = "face"
	KindBody Kind = "body"
)

// Title returns the capitalized kind name ("Face", "Body").
func (k Kind) Title() string {
	if k == "" {
		return ""
	}
	return strings.ToUpper(string(k[:1])) + string(k[1:])
}

// Color returns the overlay color for the kind: red for bodies, blue for faces.
func (k Kind) Color() color.RGBA {
	if k == KindFace {
		return color.RGBA{R: 0, G: 0, B: 255, A: 255}
	}
	return color.RGBA{R: 255, G: 0, B: 0, A: 255}
}

// BoundingBox is a detection rectangle in frame pixel coordinates.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// BoxFromRect converts an image.Rectangle into a BoundingBox.
func BoxFromRect(r image.Rectangle) BoundingBox {
	return BoundingBox{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Rect returns the box as an image.Rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Detection is one classifier hit, valid only for the frame it came from.
type Detection struct {
	Kind Kind        `json:"class_name"`
	BBox BoundingBox `json:"bbox"`
}
