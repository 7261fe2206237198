// Package colorutil provides shared color utilities for the SMA toolkit.
package colorutil

import (
	"fmt"
	"image/color"
	"math"
)

// Marker colors for the three sampled points, in slot order.
var (
	Red     = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	Green   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Magenta = color.RGBA{R: 255, G: 0, B: 255, A: 255}
	White   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// PointColors maps point slots to their marker colors.
var PointColors = [3]color.RGBA{Red, Green, Magenta}

// RGB is an 8-bit color triple without alpha.
type RGB struct {
	R, G, B uint8
}

// FromColor converts any color to non-premultiplied 8-bit RGB.
// Alpha is dropped, matching how thermal frames are stored (opaque JPEG/PNG).
func FromColor(c color.Color) RGB {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return RGB{R: n.R, G: n.G, B: n.B}
}

// Distance returns the Euclidean distance between two colors in RGB space.
func (c RGB) Distance(other RGB) float64 {
	dr := float64(c.R) - float64(other.R)
	dg := float64(c.G) - float64(other.G)
	db := float64(c.B) - float64(other.B)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

func (c RGB) String() string {
	return fmt.Sprintf("R=%d, G=%d, B=%d", c.R, c.G, c.B)
}
