package ocr

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Preview draws the overlay region and the current reading on a copy of
// the frame at path and writes it to out.
func (e *Engine) Preview(path, out string) error {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return fmt.Errorf("failed to load image %s", path)
	}
	defer img.Close()

	text, err := e.RecognizeRegion(img, e.region, e.threshold)
	if err != nil {
		return err
	}
	v, ok := ExtractNumericValue(text)

	green := color.RGBA{G: 255, A: 255}
	gocv.Rectangle(&img, e.region.Rectangle(), green, 2)
	label := fmt.Sprintf("ROI (%d,%d) %dx%d thresh %.0f", e.region.X, e.region.Y, e.region.Width, e.region.Height, e.threshold)
	gocv.PutText(&img, label, image.Pt(10, 30), gocv.FontHersheySimplex, 0.6, green, 2)

	reading := "OCR: no reading"
	if ok {
		reading = fmt.Sprintf("OCR: %q -> %g", text, v)
	}
	gocv.PutText(&img, reading, image.Pt(10, 60), gocv.FontHersheySimplex, 0.6, color.RGBA{B: 255, A: 255}, 2)

	if !gocv.IMWrite(out, img) {
		return fmt.Errorf("failed to write %s", out)
	}
	return nil
}
