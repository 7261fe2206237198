// Package image provides loading of captured frames and pixel sampling.
package image

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"sma-lab/pkg/colorutil"
	"sma-lab/pkg/geometry"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Frame is a decoded camera frame addressed in image space.
type Frame struct {
	Path  string      // Original file path
	Image image.Image // Decoded pixels
}

// Load decodes the image at path.
func Load(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", filepath.Base(path), err)
	}

	return &Frame{Path: path, Image: img}, nil
}

// FromImage wraps an already decoded image.
func FromImage(img image.Image) *Frame {
	return &Frame{Image: img}
}

// Width returns the image width in pixels.
func (f *Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the image height in pixels.
func (f *Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Bounds returns the pixel rectangle, normalized to start at the origin.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width(), f.Height())
}

// Contains reports whether p addresses a pixel of the frame.
func (f *Frame) Contains(p geometry.PointInt) bool {
	return p.In(f.Bounds())
}

// RGBAt returns the 8-bit color at (x, y). ok is false outside the frame.
// Coordinates are relative to the top-left pixel even when the decoded
// image has a non-zero origin.
func (f *Frame) RGBAt(x, y int) (colorutil.RGB, bool) {
	if f.Image == nil || !f.Contains(geometry.PointInt{X: x, Y: y}) {
		return colorutil.RGB{}, false
	}
	min := f.Image.Bounds().Min
	return colorutil.FromColor(f.Image.At(min.X+x, min.Y+y)), true
}

// PixelAt returns the raw color at (x, y), or black outside the frame.
func (f *Frame) PixelAt(x, y int) color.Color {
	if f.Image == nil || !f.Contains(geometry.PointInt{X: x, Y: y}) {
		return color.Black
	}
	min := f.Image.Bounds().Min
	return f.Image.At(min.X+x, min.Y+y)
}

// SupportedFormats returns the extensions of frames the tools analyze.
func SupportedFormats() []string {
	return []string{".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
