// Package canvas provides overlay types for the image canvas.
package canvas

import (
	"image/color"
)

// DefaultMarkerRadius is the marker radius in image pixels.
const DefaultMarkerRadius = 5

// Marker is a dot drawn over the image at an image position, with an
// optional label to its right.
type Marker struct {
	X, Y   float64
	Radius float64 // Image pixels; 0 uses DefaultMarkerRadius
	Color  color.RGBA
	Label  string
}
